// Package remotesync delivers local mutations to the remote pharmacy service
// through a durable outbox and reconciles local records against it.
package remotesync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"resty.dev/v3"

	"medipos/backend/internal/domain"
)

// RemoteError is a non-2xx answer from the remote service.
type RemoteError struct {
	Status int
	Detail string
}

func (e *RemoteError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("remote returned %d", e.Status)
	}
	return fmt.Sprintf("remote returned %d: %s", e.Status, e.Detail)
}

func statusOf(err error) int {
	var remoteErr *RemoteError
	if errors.As(err, &remoteErr) {
		return remoteErr.Status
	}
	return 0
}

// Remote is the REST contract consumed from the authoritative service.
type Remote interface {
	ListMedicines(ctx context.Context) ([]domain.Medicine, error)
	CreateMedicine(ctx context.Context, medicine domain.Medicine, idempotencyKey string) error
	UpdateMedicine(ctx context.Context, id string, patch any, idempotencyKey string) error
	DeleteMedicine(ctx context.Context, id string, idempotencyKey string) error
	ListSales(ctx context.Context) ([]domain.Sale, error)
	CreateSale(ctx context.Context, sale domain.Sale, idempotencyKey string) error
	UpdateSale(ctx context.Context, id string, sale domain.Sale, idempotencyKey string) error
	DeleteSale(ctx context.Context, id string, idempotencyKey string) error
	UpdateShop(ctx context.Context, shop domain.ShopProfile, idempotencyKey string) error
}

type Client struct {
	http *resty.Client
}

var _ Remote = (*Client)(nil)

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &Client{http: c}
}

func (c *Client) Close() error {
	return c.http.Close()
}

type errorBody struct {
	Detail string `json:"detail"`
	Error  string `json:"error"`
}

func (c *Client) do(ctx context.Context, method string, path string, idempotencyKey string, body any, result any) error {
	_, err := c.send(ctx, method, path, idempotencyKey, body, result)
	return err
}

func (c *Client) send(ctx context.Context, method string, path string, idempotencyKey string, body any, result any) (*resty.Response, error) {
	req := c.http.R().SetContext(ctx)
	if idempotencyKey != "" {
		req.SetHeader("Idempotency-Key", idempotencyKey)
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}
	var failure errorBody
	req.SetError(&failure)

	res, err := req.Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if res.IsError() {
		detail := failure.Detail
		if detail == "" {
			detail = failure.Error
		}
		if detail == "" {
			detail = strings.TrimSpace(res.String())
		}
		return res, &RemoteError{Status: res.StatusCode(), Detail: detail}
	}
	return res, nil
}

// list fetches a collection endpoint. Responses without a JSON content type
// are decoded from the raw body.
func (c *Client) list(ctx context.Context, path string, field string, out any) error {
	var raw json.RawMessage
	res, err := c.send(ctx, http.MethodGet, path, "", nil, &raw)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		raw = json.RawMessage(res.String())
	}
	if err := decodeList(raw, field, out); err != nil {
		return fmt.Errorf("decode %s: %w", field, err)
	}
	return nil
}

func (c *Client) ListMedicines(ctx context.Context) ([]domain.Medicine, error) {
	var medicines []domain.Medicine
	if err := c.list(ctx, "/api/medicines", "medicines", &medicines); err != nil {
		return nil, err
	}
	return medicines, nil
}

func (c *Client) CreateMedicine(ctx context.Context, medicine domain.Medicine, idempotencyKey string) error {
	return c.do(ctx, http.MethodPost, "/api/medicines", idempotencyKey, medicine, nil)
}

func (c *Client) UpdateMedicine(ctx context.Context, id string, patch any, idempotencyKey string) error {
	return c.do(ctx, http.MethodPut, "/api/medicines/"+url.PathEscape(id), idempotencyKey, patch, nil)
}

func (c *Client) DeleteMedicine(ctx context.Context, id string, idempotencyKey string) error {
	return c.do(ctx, http.MethodDelete, "/api/medicines/"+url.PathEscape(id), idempotencyKey, nil, nil)
}

func (c *Client) ListSales(ctx context.Context) ([]domain.Sale, error) {
	var sales []domain.Sale
	if err := c.list(ctx, "/api/sales", "sales", &sales); err != nil {
		return nil, err
	}
	return sales, nil
}

func (c *Client) CreateSale(ctx context.Context, sale domain.Sale, idempotencyKey string) error {
	return c.do(ctx, http.MethodPost, "/api/sales", idempotencyKey, sale, nil)
}

func (c *Client) UpdateSale(ctx context.Context, id string, sale domain.Sale, idempotencyKey string) error {
	return c.do(ctx, http.MethodPut, "/api/sales/"+url.PathEscape(id), idempotencyKey, sale, nil)
}

func (c *Client) DeleteSale(ctx context.Context, id string, idempotencyKey string) error {
	return c.do(ctx, http.MethodDelete, "/api/sales/"+url.PathEscape(id), idempotencyKey, nil, nil)
}

func (c *Client) UpdateShop(ctx context.Context, shop domain.ShopProfile, idempotencyKey string) error {
	return c.do(ctx, http.MethodPut, "/api/shop", idempotencyKey, shop, nil)
}

// decodeList accepts either a bare JSON array or an object holding the array
// under field.
func decodeList(raw json.RawMessage, field string, out any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] == '[' {
		return json.Unmarshal(trimmed, out)
	}
	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return err
	}
	inner, ok := wrapped[field]
	if !ok {
		return fmt.Errorf("missing %q field", field)
	}
	return json.Unmarshal(inner, out)
}
