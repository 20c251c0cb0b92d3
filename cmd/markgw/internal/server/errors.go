package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/markplatform/gateway/cmd/markgw/internal/auth"
	"github.com/markplatform/gateway/cmd/markgw/internal/routing"
)

// Error codes carried in GatewayError.Code.
const (
	CodeUnauthorized  = "unauthorized"
	CodeBadRequest    = "bad_request"
	CodeUpstreamError = "upstream_error"
	CodeInternalError = "internal_error"
)

// Generic messages. Transport and verification detail is logged, never sent.
const (
	msgUnauthorized  = "authentication required"
	msgBadRequest    = "request does not match any route"
	msgUpstreamError = "downstream service returned an error"
	msgInternalError = "downstream service unavailable"
)

// GatewayError is the body of every error the gateway produces.
type GatewayError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`

	// Detail is the downstream error body: raw JSON when it parses,
	// otherwise a string.
	Detail any `json:"detail,omitempty"`
}

// WriteError writes e as JSON with e.Status.
func WriteError(w http.ResponseWriter, e GatewayError) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(e.Status)
	_ = json.NewEncoder(w).Encode(e)
}

// errorFor maps a gateway-decided failure onto its response. Anything
// unrecognized is an internal error.
func errorFor(err error) GatewayError {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		return GatewayError{Status: http.StatusUnauthorized, Code: CodeUnauthorized, Message: msgUnauthorized}
	case errors.Is(err, routing.ErrNoRoute):
		return GatewayError{Status: http.StatusBadRequest, Code: CodeBadRequest, Message: msgBadRequest}
	case errors.Is(err, routing.ErrInvalidPath):
		return GatewayError{Status: http.StatusBadRequest, Code: CodeBadRequest, Message: "request path is invalid"}
	case errors.Is(err, routing.ErrEmptyPath):
		return GatewayError{Status: http.StatusBadRequest, Code: CodeBadRequest, Message: "request path is empty"}
	default:
		return GatewayError{Status: http.StatusInternalServerError, Code: CodeInternalError, Message: "internal gateway error"}
	}
}

// upstreamDetail keeps a JSON body as-is and falls back to the text.
func upstreamDetail(body []byte) any {
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	return string(body)
}
