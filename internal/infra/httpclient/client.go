package httpclient

import (
	"net/http"
	"time"
)

// New returns a client with an overall request timeout. The classifier is
// the only outbound dependency, so the pool is kept small.
func New(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        8,
			MaxIdleConnsPerHost: 8,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
