// Package testkit holds helpers shared across test suites.
package testkit

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// MockTransport implements http.RoundTripper, answering outgoing requests
// from registered stubs instead of the network.
//
//	mt := testkit.NewMockTransport()
//	mt.Stub("POST", "https://api.stripe.test/v1/payment_intents",
//		200, `{"id":"pi_1","status":"requires_confirmation"}`)
//	httpclient.DefaultClient.Transport = mt
//	defer httpclient.ResetTransport()
type MockTransport struct {
	mu    sync.Mutex
	stubs []*stub

	// Requests records every intercepted request in order, with its body
	// already read, so tests can assert on what was sent.
	Requests []RecordedRequest
}

type stub struct {
	method    string
	urlPrefix string
	status    int
	body      string
	header    http.Header
	err       error
	calls     int
}

// RecordedRequest is a snapshot of one intercepted request.
type RecordedRequest struct {
	Method string
	URL    string
	Header http.Header
	Body   string
}

// NewMockTransport creates an empty transport. Unstubbed requests fail.
func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

// Stub registers a canned response for requests matching method and a URL
// prefix. Stubs are matched in registration order; re-stubbing the same
// prefix appends, which lets a test script successive responses.
func (mt *MockTransport) Stub(method, urlPrefix string, status int, body string) *MockTransport {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.stubs = append(mt.stubs, &stub{
		method:    strings.ToUpper(method),
		urlPrefix: urlPrefix,
		status:    status,
		body:      body,
		header:    http.Header{"Content-Type": []string{"application/json"}},
	})
	return mt
}

// StubError makes matching requests fail at the transport level, simulating
// timeouts and connection resets.
func (mt *MockTransport) StubError(method, urlPrefix string, err error) *MockTransport {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.stubs = append(mt.stubs, &stub{
		method:    strings.ToUpper(method),
		urlPrefix: urlPrefix,
		err:       err,
	})
	return mt
}

// RoundTrip intercepts the outgoing request and returns a synthetic response.
func (mt *MockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
		req.Body.Close()
	}

	mt.mu.Lock()
	defer mt.mu.Unlock()

	mt.Requests = append(mt.Requests, RecordedRequest{
		Method: req.Method,
		URL:    req.URL.String(),
		Header: req.Header.Clone(),
		Body:   string(body),
	})

	s := mt.match(req)
	if s == nil {
		return nil, fmt.Errorf("testkit: no stub for %s %s", req.Method, req.URL)
	}
	s.calls++
	if s.err != nil {
		return nil, s.err
	}

	return &http.Response{
		StatusCode: s.status,
		Status:     http.StatusText(s.status),
		Header:     s.header.Clone(),
		Body:       io.NopCloser(bytes.NewReader([]byte(s.body))),
		Request:    req,
	}, nil
}

// match returns the first stub for the request, preferring uncalled stubs so
// scripted sequences play out in order.
func (mt *MockTransport) match(req *http.Request) *stub {
	url := req.URL.String()
	var fallback *stub
	for _, s := range mt.stubs {
		if s.method != req.Method || !strings.HasPrefix(url, s.urlPrefix) {
			continue
		}
		if s.calls == 0 {
			return s
		}
		fallback = s
	}
	return fallback
}

// Calls reports how many requests matched the given method and URL prefix.
func (mt *MockTransport) Calls(method, urlPrefix string) int {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	n := 0
	for _, r := range mt.Requests {
		if r.Method == strings.ToUpper(method) && strings.HasPrefix(r.URL, urlPrefix) {
			n++
		}
	}
	return n
}
