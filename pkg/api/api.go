// Package api defines the JSON wire contract between stash clients and the
// node's submission and query endpoints.
package api

import (
	"github.com/dyluth/stash/pkg/document"
)

// Endpoint paths served by the node.
const (
	PathOperations = "/v1/operations"
	PathQuery      = "/v1/query"
	PathHealth     = "/healthz"
)

// Rejection codes returned with 4xx responses.
const (
	// CodeSchemaValidation means the operation does not conform to a
	// deployed schema, or names a schema the node does not serve.
	CodeSchemaValidation = "schema_validation"

	// CodeSignature means the signature does not verify against the
	// operation bytes and public key.
	CodeSignature = "signature"

	// CodeMalformed means the request body could not be decoded.
	CodeMalformed = "malformed"

	// CodeInvalidQuery means the query references unknown fields or uses a
	// predicate on a field of the wrong type.
	CodeInvalidQuery = "invalid_query"

	// CodeConflict means an entry with the same hash is present but could
	// not be read; the submission may be retried.
	CodeConflict = "conflict"

	// CodeInternal means the node failed to process a valid request.
	CodeInternal = "internal"
)

// Rejection is the structured error body returned by the node.
type Rejection struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// QueryResponse is the body of a successful query.
type QueryResponse struct {
	Documents []document.Row `json:"documents"`
}

// HealthResponse is the body of the health endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}
