package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ecocart/internal/core"
	"ecocart/pkg/domain"
)

// APIError is an error reported by the catalog service as {code, message}.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	// Detail carries the {"error": ...} shape the storefront server emits.
	Detail string `json:"error,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Detail != "" {
		return e.Detail
	}
	if e.Code != "" {
		return e.Code
	}
	return fmt.Sprintf("request failed (status %d)", e.Status)
}

// ReadError decodes a non-2xx response into an *APIError. Bodies that are
// not the service error shape keep only the status.
func ReadError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{Status: resp.StatusCode}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, apiErr); err != nil {
			apiErr.Code, apiErr.Message, apiErr.Detail = "", "", ""
		}
	}
	apiErr.Status = resp.StatusCode
	return apiErr
}

// Client calls the catalog service REST API.
type Client struct {
	base string
	http *http.Client
	opts core.Options
}

// NewClient builds a Client for baseURL. A nil httpClient uses a client with
// a 10 second timeout.
func NewClient(baseURL string, httpClient *http.Client, opts ...core.Option) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: httpClient,
		opts: core.ResolveOptions(opts...),
	}
}

// BaseURL is the catalog service root without a trailing slash.
func (c *Client) BaseURL() string { return c.base }

// ListProducts fetches one listing page for q.
func (c *Client) ListProducts(ctx context.Context, q Query) (page domain.Paginated[domain.Product], err error) {
	ctx, done := c.opts.Instrument(ctx, "catalog.list_products")
	defer func() { done(err) }()
	params := q.Values()
	size := q.PageSize
	if size <= 0 {
		size = PageSize
	}
	params.Set("pageSize", strconv.Itoa(size))
	if err = c.doJSON(ctx, http.MethodGet, "/api/products?"+params.Encode(), "", nil, &page); err != nil {
		return domain.Paginated[domain.Product]{}, err
	}
	if page.Items == nil {
		page.Items = []domain.Product{}
	}
	if page.TotalPages < 1 {
		page.TotalPages = 1
	}
	return page, nil
}

// GetProduct fetches a single product.
func (c *Client) GetProduct(ctx context.Context, id int64) (p domain.Product, err error) {
	ctx, done := c.opts.Instrument(ctx, "catalog.get_product")
	defer func() { done(err) }()
	err = c.doJSON(ctx, http.MethodGet, "/api/products/"+strconv.FormatInt(id, 10), "", nil, &p)
	return p, err
}

// ListCategories fetches every category.
func (c *Client) ListCategories(ctx context.Context) (cats []domain.Category, err error) {
	ctx, done := c.opts.Instrument(ctx, "catalog.list_categories")
	defer func() { done(err) }()
	if err = c.doJSON(ctx, http.MethodGet, "/api/categories", "", nil, &cats); err != nil {
		return nil, err
	}
	if cats == nil {
		cats = []domain.Category{}
	}
	return cats, nil
}

// Login exchanges credentials for tokens directly with the catalog service.
// Browser-facing clients go through the storefront session exchange instead.
func (c *Client) Login(ctx context.Context, creds domain.Credentials) (resp domain.LoginResponse, err error) {
	ctx, done := c.opts.Instrument(ctx, "catalog.login")
	defer func() { done(err) }()
	err = c.doJSON(ctx, http.MethodPost, "/api/auth/login", "", creds, &resp)
	return resp, err
}

// Registered is the register endpoint result.
type Registered struct {
	ID string `json:"id"`
}

// UnmarshalJSON accepts numeric and string ids.
func (r *Registered) UnmarshalJSON(b []byte) error {
	var wire struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	id, err := domain.DecodeID(wire.ID)
	if err != nil {
		return err
	}
	r.ID = id
	return nil
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, reg domain.Registration) (out Registered, err error) {
	ctx, done := c.opts.Instrument(ctx, "catalog.register")
	defer func() { done(err) }()
	err = c.doJSON(ctx, http.MethodPost, "/api/auth/register", "", reg, &out)
	return out, err
}

func (c *Client) doJSON(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, token, out)
}

func (c *Client) send(req *http.Request, token string, out any) error {
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("catalog %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ReadError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

// ResolveImageURL joins a relative image reference onto base. Absolute
// http(s) URLs pass through and an empty ref stays empty.
func ResolveImageURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	if u, err := url.Parse(ref); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return ref
	}
	if !strings.HasPrefix(ref, "/") {
		ref = "/" + ref
	}
	return strings.TrimRight(base, "/") + ref
}
