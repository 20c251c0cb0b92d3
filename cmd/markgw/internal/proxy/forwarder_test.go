package proxy

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/markplatform/gateway/cmd/markgw/internal/config"
	"github.com/markplatform/gateway/cmd/markgw/internal/routing"
	"github.com/markplatform/gateway/cmd/markgw/internal/telemetry"
)

func newForwarder(timeout time.Duration, maxBytes int64) *Forwarder {
	return New(Options{
		Client:           NewClient(config.ForwardConfig{MaxIdleConnsPerHost: 4}),
		Timeout:          timeout,
		MaxResponseBytes: maxBytes,
	})
}

func TestForward_Success(t *testing.T) {
	var gotMethod, gotPath, gotQuery, gotBody, gotCookie, gotAuth, gotReqID string
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		gotCookie = r.Header.Get("Cookie")
		gotAuth = r.Header.Get("Authorization")
		gotReqID = r.Header.Get("X-Request-Id")

		w.Header().Set("Content-Type", "application/vnd.mark+json")
		w.Header().Set("ETag", `"v1"`)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":7}`))
	}))
	defer downstream.Close()

	in := httptest.NewRequest(http.MethodPost, "/v1/oauth_consumers/keys?x=1", strings.NewReader(`{"name":"k"}`))
	in.Header.Set("Authorization", "Bearer abc")
	in.Header.Set("Cookie", "authentication=xyz")

	result := newForwarder(time.Second, 1<<20).Forward(context.Background(), in, routing.TargetLTICredentialManager, downstream.URL+"/keys?x=1")

	require.Equal(t, OutcomeSuccess, result.Outcome)
	assert.Equal(t, http.StatusCreated, result.StatusCode)
	assert.Equal(t, `{"id":7}`, string(result.Body))
	assert.Equal(t, "application/vnd.mark+json", result.ContentType())
	assert.Equal(t, `"v1"`, result.Header.Get("ETag"))
	assert.Empty(t, result.Header.Get("Content-Length"))
	assert.NoError(t, result.Err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/keys", gotPath)
	assert.Equal(t, "x=1", gotQuery)
	assert.Equal(t, `{"name":"k"}`, gotBody)
	assert.Equal(t, "authentication=xyz", gotCookie)
	assert.Equal(t, "Bearer abc", gotAuth)
	assert.NotEmpty(t, gotReqID)
}

func TestForward_KeepsInboundRequestID(t *testing.T) {
	var gotReqID string
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReqID = r.Header.Get("X-Request-Id")
	}))
	defer downstream.Close()

	in := httptest.NewRequest(http.MethodGet, "/v1/assignments", nil)
	in.Header.Set("X-Request-Id", "req-42")

	result := newForwarder(time.Second, 0).Forward(context.Background(), in, routing.TargetPrimaryAPI, downstream.URL+"/v1/assignments")
	require.Equal(t, OutcomeSuccess, result.Outcome)
	assert.Equal(t, "req-42", gotReqID)
}

func TestForward_RedirectIsRelayed(t *testing.T) {
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	}))
	defer downstream.Close()

	in := httptest.NewRequest(http.MethodGet, "/v1/a", nil)
	result := newForwarder(time.Second, 0).Forward(context.Background(), in, routing.TargetPrimaryAPI, downstream.URL+"/v1/a")

	require.Equal(t, OutcomeSuccess, result.Outcome)
	assert.Equal(t, http.StatusFound, result.StatusCode)
	assert.Equal(t, "/elsewhere", result.Header.Get("Location"))
}

func TestForward_UpstreamErrorWithBody(t *testing.T) {
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"db down"}`))
	}))
	defer downstream.Close()

	in := httptest.NewRequest(http.MethodGet, "/v1/assignments/42", nil)
	result := newForwarder(time.Second, 0).Forward(context.Background(), in, routing.TargetPrimaryAPI, downstream.URL+"/v1/assignments/42")

	require.Equal(t, OutcomeUpstreamError, result.Outcome)
	assert.Equal(t, http.StatusInternalServerError, result.StatusCode)
	assert.JSONEq(t, `{"message":"db down"}`, string(result.Body))
	assert.Equal(t, "application/json", result.ContentType())
}

func TestForward_UpstreamErrorIsLogged(t *testing.T) {
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte("already exists"))
	}))
	defer downstream.Close()

	core, logs := observer.New(zap.WarnLevel)
	f := New(Options{
		Client:           NewClient(config.ForwardConfig{MaxIdleConnsPerHost: 4}),
		Timeout:          time.Second,
		MaxResponseBytes: 1 << 20,
		Logger:           zap.New(core),
	})

	in := httptest.NewRequest(http.MethodPost, "/v1/oauth_consumers/keys", nil)
	result := f.Forward(context.Background(), in, routing.TargetLTICredentialManager, downstream.URL+"/keys")
	require.Equal(t, OutcomeUpstreamError, result.Outcome)

	entries := logs.FilterMessage("downstream returned error status").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "lti_credential_manager", fields["target"])
	assert.Equal(t, "text/plain", fields["content_type"])
	assert.EqualValues(t, http.StatusConflict, fields["status"])
}

func TestForward_UpstreamErrorWithoutBody(t *testing.T) {
	for _, body := range []string{"", "  \n"} {
		downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(body))
		}))

		in := httptest.NewRequest(http.MethodGet, "/v1/x", nil)
		result := newForwarder(time.Second, 0).Forward(context.Background(), in, routing.TargetPrimaryAPI, downstream.URL+"/v1/x")
		downstream.Close()

		assert.Equal(t, OutcomeUpstreamErrorNoBody, result.Outcome)
		assert.Equal(t, http.StatusBadGateway, result.StatusCode)
		assert.Nil(t, result.Body)
	}
}

func TestForward_Timeout(t *testing.T) {
	release := make(chan struct{})
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer downstream.Close()
	defer close(release)

	in := httptest.NewRequest(http.MethodGet, "/v1/slow", nil)
	start := time.Now()
	result := newForwarder(50*time.Millisecond, 0).Forward(context.Background(), in, routing.TargetPrimaryAPI, downstream.URL+"/v1/slow")

	assert.Equal(t, OutcomeTransportFailure, result.Outcome)
	assert.Less(t, time.Since(start), 5*time.Second)
	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "timeout")
	assert.Nil(t, result.Body)
}

func TestForward_CallerCancellation(t *testing.T) {
	started := make(chan struct{})
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	}))
	defer downstream.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	in := httptest.NewRequest(http.MethodGet, "/v1/slow", nil)
	result := newForwarder(10*time.Second, 0).Forward(ctx, in, routing.TargetPrimaryAPI, downstream.URL+"/v1/slow")

	assert.Equal(t, OutcomeTransportFailure, result.Outcome)
	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "caller canceled")
}

func TestForward_ConnectionRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	in := httptest.NewRequest(http.MethodGet, "/v1/x", nil)
	result := newForwarder(time.Second, 0).Forward(context.Background(), in, routing.TargetPrimaryAPI, "http://"+addr+"/v1/x")

	assert.Equal(t, OutcomeTransportFailure, result.Outcome)
	assert.Zero(t, result.StatusCode)
	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "unreachable")
}

func TestForward_ResponseTooLarge(t *testing.T) {
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("a", 64)))
	}))
	defer downstream.Close()

	in := httptest.NewRequest(http.MethodGet, "/v1/big", nil)
	result := newForwarder(time.Second, 16).Forward(context.Background(), in, routing.TargetPrimaryAPI, downstream.URL+"/v1/big")

	assert.Equal(t, OutcomeTransportFailure, result.Outcome)
	assert.ErrorIs(t, result.Err, ErrResponseTooLarge)
}

func TestForward_RecordsMetrics(t *testing.T) {
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer downstream.Close()

	reg := prometheus.NewRegistry()
	f := New(Options{
		Client:  NewClient(config.ForwardConfig{MaxIdleConnsPerHost: 2}),
		Timeout: time.Second,
		Metrics: telemetry.NewMetrics(reg),
	})

	in := httptest.NewRequest(http.MethodGet, "/v1/x", nil)
	f.Forward(context.Background(), in, routing.TargetPrimaryAPI, downstream.URL+"/v1/x")

	count, err := testutil.GatherAndCount(reg, "markgw_forward_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestForward_ConcurrentRequestsShareClient(t *testing.T) {
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.URL.Path))
	}))
	defer downstream.Close()

	f := newForwarder(time.Second, 0)
	const n = 20
	results := make(chan Result, n)
	for i := 0; i < n; i++ {
		go func() {
			in := httptest.NewRequest(http.MethodGet, "/v1/c", nil)
			results <- f.Forward(context.Background(), in, routing.TargetPrimaryAPI, downstream.URL+"/v1/c")
		}()
	}
	for i := 0; i < n; i++ {
		r := <-results
		assert.Equal(t, OutcomeSuccess, r.Outcome)
		assert.Equal(t, "/v1/c", string(r.Body))
	}
}
