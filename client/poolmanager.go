// Package client holds HTTP clients for the gateway's synchronous
// collaborators. Remote API errors are passed through to the caller with
// their original status and code.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fuzzbed/gateway/apierr"
	"github.com/fuzzbed/gateway/model"
)

// PoolManager is the gateway's view of the pool-manager service. Pools are
// never cached; every call hits the remote.
type PoolManager interface {
	GetPool(ctx context.Context, poolID string) (*model.Pool, error)
	ListPools(ctx context.Context, userID string) ([]model.Pool, error)
	CreatePool(ctx context.Context, pool *model.Pool) (*model.Pool, error)
	UpdatePool(ctx context.Context, pool *model.Pool) (*model.Pool, error)
	DeletePool(ctx context.Context, poolID string) error
}

// HTTPPoolManager talks to the pool-manager over HTTP.
type HTTPPoolManager struct {
	base   string
	client *http.Client
}

// NewPoolManager builds a client for the given base URL.
func NewPoolManager(baseURL string, timeout time.Duration) *HTTPPoolManager {
	return &HTTPPoolManager{
		base:   strings.TrimRight(baseURL, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

func (p *HTTPPoolManager) GetPool(ctx context.Context, poolID string) (*model.Pool, error) {
	var pool model.Pool
	if err := p.do(ctx, http.MethodGet, "/pools/"+poolID, nil, &pool, apierr.ErrPoolNotFound); err != nil {
		return nil, err
	}
	return &pool, nil
}

func (p *HTTPPoolManager) ListPools(ctx context.Context, userID string) ([]model.Pool, error) {
	path := "/pools"
	if userID != "" {
		path += "?user_id=" + userID
	}
	pools := []model.Pool{}
	if err := p.do(ctx, http.MethodGet, path, nil, &pools, nil); err != nil {
		return nil, err
	}
	return pools, nil
}

func (p *HTTPPoolManager) CreatePool(ctx context.Context, pool *model.Pool) (*model.Pool, error) {
	var created model.Pool
	if err := p.do(ctx, http.MethodPost, "/pools", pool, &created, nil); err != nil {
		return nil, err
	}
	return &created, nil
}

func (p *HTTPPoolManager) UpdatePool(ctx context.Context, pool *model.Pool) (*model.Pool, error) {
	var updated model.Pool
	if err := p.do(ctx, http.MethodPut, "/pools/"+pool.ID, pool, &updated, apierr.ErrPoolNotFound); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (p *HTTPPoolManager) DeletePool(ctx context.Context, poolID string) error {
	return p.do(ctx, http.MethodDelete, "/pools/"+poolID, nil, nil, apierr.ErrPoolNotFound)
}

// do runs one request. Non-2xx responses carrying the standard error
// envelope are surfaced with their remote status and code; a 404 becomes
// notFound when set.
func (p *HTTPPoolManager) do(ctx context.Context, method, path string, in, out interface{}, notFound *apierr.Error) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.base+path, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling pool-manager: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding pool-manager response: %w", err)
		}
		return nil
	}
	if resp.StatusCode == http.StatusNotFound && notFound != nil {
		return notFound
	}

	var remote struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err := json.Unmarshal(raw, &remote); err == nil && remote.Code != "" {
		return apierr.New(resp.StatusCode, remote.Code, remote.Message)
	}
	return apierr.New(resp.StatusCode, apierr.ErrInternal.Code, fmt.Sprintf("pool-manager returned status %d", resp.StatusCode))
}
