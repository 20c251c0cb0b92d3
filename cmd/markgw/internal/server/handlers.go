package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/markplatform/gateway/cmd/markgw/internal/auth"
	gwmiddleware "github.com/markplatform/gateway/cmd/markgw/internal/middleware"
	"github.com/markplatform/gateway/cmd/markgw/internal/proxy"
	"github.com/markplatform/gateway/cmd/markgw/internal/routing"
)

type infoResponse struct {
	Version int `json:"version"`
}

// infoHandler answers locally; it is never forwarded.
func infoHandler(version int) http.HandlerFunc {
	body, _ := json.Marshal(infoResponse{Version: version})
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}
}

// forwardHandler resolves the matched route group's target and relays the
// downstream result. Route matching and authentication have already run.
type forwardHandler struct {
	resolver  *routing.Resolver
	forwarder *proxy.Forwarder
	logger    *zap.Logger
}

func (h *forwardHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	group, ok := gwmiddleware.RouteGroupFromContext(r.Context())
	if !ok {
		h.fail(w, r, routing.ErrNoRoute)
		return
	}

	targetURL, err := h.resolver.Resolve(group, r.URL.EscapedPath(), r.URL.RawQuery)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	result := h.forwarder.Forward(r.Context(), r, group.Target, targetURL)
	h.relay(w, result)
}

// relay translates a forwarding Result into the caller's response.
func (h *forwardHandler) relay(w http.ResponseWriter, result proxy.Result) {
	switch result.Outcome {
	case proxy.OutcomeSuccess:
		for key, values := range result.Header {
			w.Header()[key] = values
		}
		w.WriteHeader(result.StatusCode)
		_, _ = w.Write(result.Body)

	case proxy.OutcomeUpstreamError:
		WriteError(w, GatewayError{
			Status:  http.StatusInternalServerError,
			Code:    CodeUpstreamError,
			Message: msgUpstreamError,
			Detail:  upstreamDetail(result.Body),
		})

	case proxy.OutcomeUpstreamErrorNoBody:
		WriteError(w, GatewayError{
			Status:  http.StatusInternalServerError,
			Code:    CodeInternalError,
			Message: msgUpstreamError,
		})

	case proxy.OutcomeTransportFailure:
		WriteError(w, GatewayError{
			Status:  http.StatusInternalServerError,
			Code:    CodeInternalError,
			Message: msgInternalError,
		})

	default:
		h.logger.Error("unknown forwarding outcome", zap.String("outcome", string(result.Outcome)))
		WriteError(w, errorFor(nil))
	}
}

// fail writes the response for a failure decided inside the gateway.
func (h *forwardHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	fields := []zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	}
	if errors.Is(err, auth.ErrUnauthenticated) || errors.Is(err, routing.ErrNoRoute) ||
		errors.Is(err, routing.ErrInvalidPath) {
		h.logger.Debug("request rejected", fields...)
	} else {
		h.logger.Warn("request failed", fields...)
	}
	WriteError(w, errorFor(err))
}
