package httpclient

import (
	"fmt"
	"net/http"
	"time"

	"doubtdesk/pkg/circuitbreaker"
)

// Client is a custom HTTP client that wraps the standard http.Client and
// provides built-in circuit breaking for outbound collaborator calls.
type Client struct {
	httpClient *http.Client
	breaker    circuitbreaker.CircuitBreaker
}

// New creates a Client with a per-request timeout and a circuit breaker that
// opens after failureThreshold consecutive failures.
func New(timeout time.Duration, failureThreshold uint32) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		breaker:    circuitbreaker.New(failureThreshold, 2, 30*time.Second),
	}
}

// Do executes an HTTP request with circuit breaker protection.
// Status codes >= 500 count as failures.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	var err error

	_, breakerErr := c.breaker.Execute(func() (interface{}, error) {
		resp, err = c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, fmt.Errorf("server error: received status code %d", resp.StatusCode)
		}
		return resp, nil
	})

	if breakerErr != nil {
		return nil, breakerErr
	}
	return resp, nil
}
