package replica

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sjperalta/khata-api/internal/models"
	"github.com/sjperalta/khata-api/internal/services"
)

// Remote is the authoritative store as the terminal sees it
type Remote interface {
	Snapshot(ctx context.Context, since time.Time) (*models.SyncSnapshot, error)
	CreateSale(ctx context.Context, input services.CreateSaleInput) (*models.Sale, error)
	DeleteSale(ctx context.Context, saleID uint) error
}

// ErrGone is returned when the server no longer has the record
var ErrGone = errors.New("record no longer exists on server")

// RejectedError is a business rejection. The request reached the server and
// retrying it unchanged will fail the same way.
type RejectedError struct {
	Status  int
	Message string
	Field   string
}

func (e *RejectedError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("rejected (%d): %s: %s", e.Status, e.Field, e.Message)
	}
	return fmt.Sprintf("rejected (%d): %s", e.Status, e.Message)
}

// HTTPRemote talks to the API over HTTP with a bearer token
type HTTPRemote struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPRemote(baseURL, token string, timeout time.Duration) *HTTPRemote {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPRemote{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

func (r *HTTPRemote) Snapshot(ctx context.Context, since time.Time) (*models.SyncSnapshot, error) {
	path := "/api/v1/sync/snapshot"
	if !since.IsZero() {
		path += "?since=" + url.QueryEscape(since.UTC().Format(time.RFC3339Nano))
	}

	var snapshot models.SyncSnapshot
	if err := r.do(ctx, http.MethodGet, path, nil, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (r *HTTPRemote) CreateSale(ctx context.Context, input services.CreateSaleInput) (*models.Sale, error) {
	var sale models.Sale
	if err := r.do(ctx, http.MethodPost, "/api/v1/sales", input, &sale); err != nil {
		return nil, err
	}
	return &sale, nil
}

func (r *HTTPRemote) DeleteSale(ctx context.Context, saleID uint) error {
	return r.do(ctx, http.MethodDelete, fmt.Sprintf("/api/v1/sales/%d", saleID), nil, nil)
}

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field"`
}

func (r *HTTPRemote) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || len(raw) == 0 {
			return nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	}

	var eb errorBody
	_ = json.Unmarshal(raw, &eb)
	if eb.Error == "" {
		eb.Error = http.StatusText(resp.StatusCode)
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", method, path, ErrGone)
	case http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity:
		return &RejectedError{Status: resp.StatusCode, Message: eb.Error, Field: eb.Field}
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%s %s: %w: %s", method, path, services.ErrUnauthorized, eb.Error)
	}
	return fmt.Errorf("%s %s: server returned %d: %s", method, path, resp.StatusCode, eb.Error)
}
