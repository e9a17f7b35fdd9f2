package bookmark

import (
	"github.com/google/uuid"

	"github.com/dyluth/stash/pkg/document"
	"github.com/dyluth/stash/pkg/query"
)

// Kind names a message variant.
type Kind string

const (
	KindRequestAll    Kind = "request_all"
	KindResponseAll   Kind = "response_all"
	KindRequestAdd    Kind = "request_add"
	KindResponseAdd   Kind = "response_add"
	KindRequestFailed Kind = "request_failed"
)

// Message is a bus message. Requests carry their own correlation ID;
// responses carry the ID of the request they answer.
type Message interface {
	Kind() Kind
	CorrelationID() uuid.UUID
}

// Request is a message the synchronization worker acts on.
type Request interface {
	Message
	request()
}

// RequestAll asks for every bookmark matching Filter (nil for all).
type RequestAll struct {
	ID     uuid.UUID
	Filter query.Predicate
}

// ResponseAll answers a RequestAll.
type ResponseAll struct {
	RequestID uuid.UUID
	Bookmarks document.Collection[Bookmark]
}

// RequestAdd asks for a bookmark to be written.
type RequestAdd struct {
	ID          uuid.UUID
	URL         string
	Description string
}

// ResponseAdd answers a RequestAdd with the locally echoed document.
type ResponseAdd struct {
	RequestID uuid.UUID
	Bookmark  document.Document[Bookmark]
}

// RequestFailed answers any request whose processing failed.
type RequestFailed struct {
	RequestID uuid.UUID
	Request   Kind
	Err       error
}

// NewRequestAll creates a RequestAll with a fresh correlation ID.
func NewRequestAll(filter query.Predicate) RequestAll {
	return RequestAll{ID: uuid.New(), Filter: filter}
}

// NewRequestAdd creates a RequestAdd with a fresh correlation ID.
func NewRequestAdd(url, description string) RequestAdd {
	return RequestAdd{ID: uuid.New(), URL: url, Description: description}
}

func (m RequestAll) Kind() Kind               { return KindRequestAll }
func (m RequestAll) CorrelationID() uuid.UUID { return m.ID }
func (RequestAll) request()                   {}

func (m ResponseAll) Kind() Kind               { return KindResponseAll }
func (m ResponseAll) CorrelationID() uuid.UUID { return m.RequestID }

func (m RequestAdd) Kind() Kind               { return KindRequestAdd }
func (m RequestAdd) CorrelationID() uuid.UUID { return m.ID }
func (RequestAdd) request()                   {}

func (m ResponseAdd) Kind() Kind               { return KindResponseAdd }
func (m ResponseAdd) CorrelationID() uuid.UUID { return m.RequestID }

func (m RequestFailed) Kind() Kind               { return KindRequestFailed }
func (m RequestFailed) CorrelationID() uuid.UUID { return m.RequestID }

// Reason returns the failure text, or "" when Err is nil.
func (m RequestFailed) Reason() string {
	if m.Err == nil {
		return ""
	}
	return m.Err.Error()
}
