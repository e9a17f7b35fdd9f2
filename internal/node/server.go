package node

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/dyluth/stash/pkg/api"
	"github.com/dyluth/stash/pkg/operation"
	"github.com/dyluth/stash/pkg/query"
	"github.com/dyluth/stash/pkg/schema"
)

const maxRequestBytes = 1 << 20

// Server exposes the submission, query and health endpoints.
type Server struct {
	log          *Log
	proj         *Projection
	registry     *schema.Registry
	instanceName string
}

// NewServer creates the HTTP front end for a node.
func NewServer(l *Log, proj *Projection, registry *schema.Registry, instanceName string) *Server {
	return &Server{log: l, proj: proj, registry: registry, instanceName: instanceName}
}

// Handler returns the node's HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(api.PathOperations, s.handleSubmit)
	mux.HandleFunc(api.PathQuery, s.handleQuery)
	mux.HandleFunc(api.PathHealth, s.handleHealth)
	return mux
}

// handleSubmit handles POST /v1/operations.
// Returns 201 with the entry reference for a new entry, 200 for an entry
// already in the log, 422 for schema or signature failures and 400 for
// undecodable bodies.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var signed operation.SignedOperation
	if err := decodeBody(r, &signed); err != nil {
		s.reject(w, http.StatusBadRequest, api.CodeMalformed, err)
		return
	}

	if err := signed.Verify(); err != nil {
		s.reject(w, http.StatusUnprocessableEntity, api.CodeSignature, err)
		return
	}

	op, err := operation.Decode(signed.Payload, s.registry)
	if err != nil {
		var be *operation.BuildError
		if errors.As(err, &be) {
			s.reject(w, http.StatusUnprocessableEntity, api.CodeSchemaValidation, err)
		} else {
			s.reject(w, http.StatusBadRequest, api.CodeMalformed, err)
		}
		return
	}

	entry, created, err := s.log.Append(r.Context(), &signed, op.SchemaID)
	if errors.Is(err, ErrEntryConflict) {
		log.Printf("[Node] [WARN] %v", err)
		s.reject(w, http.StatusConflict, api.CodeConflict, err)
		return
	}
	if err != nil {
		log.Printf("[Node] [ERROR] Failed to append entry: %v", err)
		s.reject(w, http.StatusInternalServerError, api.CodeInternal, err)
		return
	}

	ref := operation.EntryReference{DocumentID: entry.Hash, ViewID: entry.Hash}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
		logEvent(s.instanceName, "entry_appended", map[string]interface{}{
			"hash":      entry.Hash,
			"author":    string(entry.Author),
			"seq":       entry.Seq,
			"schema_id": string(entry.SchemaID),
		})
	} else {
		logEvent(s.instanceName, "duplicate_entry", map[string]interface{}{
			"hash": entry.Hash,
		})
	}

	writeJSON(w, status, ref)
}

// handleQuery handles POST /v1/query.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var q query.Query
	if err := decodeBody(r, &q); err != nil {
		s.reject(w, http.StatusBadRequest, api.CodeMalformed, err)
		return
	}

	desc, ok := s.registry.Lookup(q.SchemaID)
	if !ok {
		s.reject(w, http.StatusUnprocessableEntity, api.CodeSchemaValidation, fmt.Errorf("schema %q is not deployed", q.SchemaID))
		return
	}
	if err := q.Validate(desc); err != nil {
		s.reject(w, http.StatusUnprocessableEntity, api.CodeInvalidQuery, err)
		return
	}

	rows, err := s.proj.Query(r.Context(), desc, q)
	if err != nil {
		log.Printf("[Node] [ERROR] Query failed: %v", err)
		s.reject(w, http.StatusInternalServerError, api.CodeInternal, err)
		return
	}

	writeJSON(w, http.StatusOK, api.QueryResponse{Documents: rows})
}

// handleHealth handles GET /healthz.
// Returns 200 if Redis and the projection are reachable, 503 otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.log.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, api.HealthResponse{Status: "unhealthy", Error: "redis: " + err.Error()})
		return
	}
	if err := s.proj.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, api.HealthResponse{Status: "unhealthy", Error: "projection: " + err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, api.HealthResponse{Status: "healthy"})
}

func (s *Server) reject(w http.ResponseWriter, status int, code string, err error) {
	logEvent(s.instanceName, "request_rejected", map[string]interface{}{
		"status": status,
		"code":   code,
		"error":  err.Error(),
	})
	writeJSON(w, status, api.Rejection{Code: code, Message: err.Error()})
}

func decodeBody(r *http.Request, v any) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes+1))
	if err != nil {
		return fmt.Errorf("failed to read body: %w", err)
	}
	if len(data) > maxRequestBytes {
		return fmt.Errorf("request body exceeds %d bytes", maxRequestBytes)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[Node] Failed to write response: %v", err)
	}
}
