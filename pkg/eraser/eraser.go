// Package eraser calls the host's customer-data eraser for one contact address.
package eraser

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrRejected is returned when the host answers with a non-2xx status.
var ErrRejected = errors.New("eraser request rejected")

// Func adapts a plain function to the sweep's eraser contract.
type Func func(ctx context.Context, email string) error

func (f Func) Erase(ctx context.Context, email string) error {
	return f(ctx, email)
}

// Request is the body posted to the host.
type Request struct {
	Email string `json:"email"`
	Page  int    `json:"page"`
}

// Response mirrors the host eraser's reply.
type Response struct {
	ItemsRemoved  bool     `json:"items_removed"`
	ItemsRetained bool     `json:"items_retained"`
	Messages      []string `json:"messages"`
	Done          bool     `json:"done"`
}

// HTTPEraser posts erase requests to the host's customer-data eraser endpoint.
type HTTPEraser struct {
	endpoint string
	token    string
	client   *http.Client
}

// NewHTTPEraser returns an eraser for endpoint. A non-empty token is sent as a bearer token.
func NewHTTPEraser(endpoint, token string, timeout time.Duration) *HTTPEraser {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPEraser{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: timeout},
	}
}

// Erase asks the host to erase the customer data attached to email.
func (e *HTTPEraser) Erase(ctx context.Context, email string) error {
	_, err := e.erase(ctx, email)
	return err
}

func (e *HTTPEraser) erase(ctx context.Context, email string) (Response, error) {
	body, err := json.Marshal(Request{Email: email, Page: 1})
	if err != nil {
		return Response{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("eraser: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Response{}, fmt.Errorf("eraser: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Response{}, fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}

	var out Response
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return Response{}, fmt.Errorf("eraser: decode response: %w", err)
		}
	}
	return out, nil
}
