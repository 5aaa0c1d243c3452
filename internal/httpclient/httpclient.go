// Package httpclient builds the outbound HTTP client shared by the
// transcription, extraction and issue-tracker integrations.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

// New returns a client with bounded dial and handshake times. A zero timeout
// leaves the overall request bounded only by its context.
func New(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// APIError is a non-2xx response from an upstream service.
type APIError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return e.Service + ": status " + http.StatusText(e.StatusCode)
	}
	return e.Service + ": status " + http.StatusText(e.StatusCode) + ": " + e.Body
}
