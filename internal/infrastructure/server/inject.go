package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
)

// InjectRequest describes a request served in-process without a socket.
type InjectRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
	Payload interface{} // encoded as JSON when Body is empty
}

// InjectResponse is the recorded result of Inject.
type InjectResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// JSON decodes the body into v.
func (r *InjectResponse) JSON(v interface{}) error {
	return json.Unmarshal(r.Body, v)
}

// String returns the body as text.
func (r *InjectResponse) String() string {
	return string(r.Body)
}

// Inject serves req through the instance handler.
func (a *App) Inject(ctx context.Context, req InjectRequest) (*InjectResponse, error) {
	a.core.mu.Lock()
	closed := a.core.closed
	a.core.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	url := req.URL
	if url == "" {
		url = "/"
	}

	body := req.Body
	if len(body) == 0 && req.Payload != nil {
		data, err := json.Marshal(req.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode payload: %w", err)
		}
		body = data
	}

	var reader io.Reader = http.NoBody
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("invalid inject request: %w", err)
	}
	httpReq.RemoteAddr = "127.0.0.1:80"
	httpReq.Host = "localhost:80"
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if req.Payload != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	a.core.handler.ServeHTTP(rec, httpReq)

	res := rec.Result()
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	return &InjectResponse{StatusCode: res.StatusCode, Header: res.Header, Body: data}, nil
}
