// Package bookmark is the bookmark domain: its schema versions, the service
// the synchronization worker uses to read and write bookmarks, and the
// messages exchanged over the bus.
package bookmark

import (
	"fmt"

	"github.com/dyluth/stash/pkg/query"
	"github.com/dyluth/stash/pkg/schema"
)

// Bookmark is the field set of a bookmark document.
// Timestamp is zero for documents written under the v1 schema.
type Bookmark struct {
	URL         string `json:"url"`
	Description string `json:"description"`
	Timestamp   int64  `json:"timestamp"`
}

// Field names.
const (
	FieldURL         = "url"
	FieldDescription = "description"
	FieldTimestamp   = "timestamp"
)

// V1ID is the identifier the first bookmark schema was deployed under.
const V1ID schema.ID = "bookmarks_002005b6b965fb55d0ec5530a4d4874646b90669eaf72c14fa0c045f8bfaa6c4383f"

// Schema version names accepted by ForVersion.
const (
	VersionV1 = "bookmarks/v1"
	VersionV2 = "bookmarks/v2"
)

var (
	// V1 is {url, description}.
	V1 = mustDescriptor(V1ID,
		schema.FieldSpec{Name: FieldURL, Type: schema.TypeStr, Required: true},
		schema.FieldSpec{Name: FieldDescription, Type: schema.TypeStr, Required: true},
	)

	// V2 adds a required timestamp (unix millis). Documents without one read
	// as timestamp 0.
	V2 = schema.MustDerive("bookmarks",
		schema.FieldSpec{Name: FieldURL, Type: schema.TypeStr, Required: true},
		schema.FieldSpec{Name: FieldDescription, Type: schema.TypeStr, Required: true},
		schema.FieldSpec{Name: FieldTimestamp, Type: schema.TypeInt, Required: true, Default: schema.Ptr(schema.Int(0))},
	)
)

func mustDescriptor(id schema.ID, fields ...schema.FieldSpec) *schema.Descriptor {
	d, err := schema.NewDescriptor(id, fields...)
	if err != nil {
		panic(err)
	}
	return d
}

// Descriptors returns every bookmark schema version, oldest first.
func Descriptors() []*schema.Descriptor {
	return []*schema.Descriptor{V1, V2}
}

// ForVersion resolves a configured schema version name.
func ForVersion(version string) (*schema.Descriptor, error) {
	switch version {
	case VersionV1:
		return V1, nil
	case VersionV2, "":
		return V2, nil
	default:
		return nil, fmt.Errorf("unknown bookmark schema %q (want %s or %s)", version, VersionV1, VersionV2)
	}
}

// OrderFor returns the listing order for desc: newest first when the schema
// has a timestamp, otherwise document ID order only.
func OrderFor(desc *schema.Descriptor) query.Order {
	if _, ok := desc.Field(FieldTimestamp); ok {
		return query.Order{Field: FieldTimestamp, Direction: query.Descending}
	}
	return query.Order{}
}

// Search returns the filter used by the interface's search box.
func Search(text string) query.Predicate {
	return query.Contains{Field: FieldDescription, Text: text}
}
