package proxy

import (
	"net/http"
)

// Outcome classifies a downstream call. The set is closed; callers switch
// over it exhaustively.
type Outcome string

const (
	// OutcomeSuccess: the downstream answered with a non-error status.
	OutcomeSuccess Outcome = "success"
	// OutcomeTransportFailure: no usable response (refused, timeout, DNS,
	// reset, oversized body).
	OutcomeTransportFailure Outcome = "transport_failure"
	// OutcomeUpstreamError: error status with a body worth relaying.
	OutcomeUpstreamError Outcome = "upstream_error"
	// OutcomeUpstreamErrorNoBody: error status with an empty body.
	OutcomeUpstreamErrorNoBody Outcome = "upstream_error_no_body"
)

// Result is the outcome of one downstream call.
type Result struct {
	Outcome Outcome

	// StatusCode and Header are the downstream's; zero when no response arrived.
	StatusCode int
	Header     http.Header

	// Body is the downstream body for OutcomeSuccess and OutcomeUpstreamError.
	Body []byte

	// Err describes a transport failure. It is for logs only and must not
	// be shown to the caller.
	Err error
}

// ContentType returns the downstream Content-Type, if any.
func (r Result) ContentType() string {
	if r.Header == nil {
		return ""
	}
	return r.Header.Get("Content-Type")
}
