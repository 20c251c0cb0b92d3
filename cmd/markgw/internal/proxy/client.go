package proxy

import (
	"net"
	"net/http"
	"time"

	"github.com/markplatform/gateway/cmd/markgw/internal/config"
)

// NewClient builds the outbound HTTP client shared by every in-flight
// request. Connections to each downstream base URL are pooled and reused.
//
// Redirects are not followed; a 3xx is relayed to the caller as-is.
// Compression is left to the two endpoints so Content-Encoding and the
// body pass through untouched.
func NewClient(cfg config.ForwardConfig) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          cfg.MaxIdleConnsPerHost * 4,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		DisableCompression:    true,
	}

	return &http.Client{
		Transport: transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
