// Package domain defines the storefront entities shared by the client stores,
// the catalog client, and the storefront server.
package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Product is a catalog item as served by the catalog service.
type Product struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	CategoryID  int64   `json:"category_id"`
	Stock       int     `json:"stock"`
	ImageURL    string  `json:"image_url,omitempty"`
}

// Category groups products in the catalog.
type Category struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// CartProduct is the product snapshot stored on a cart line. It is captured at
// add time and never refreshed from the catalog.
type CartProduct struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	ImageURL string  `json:"image_url,omitempty"`
}

// CartItem is a single line in the cart. Quantity is always at least 1.
type CartItem struct {
	Product  CartProduct `json:"product"`
	Quantity int         `json:"quantity"`
}

// Subtotal returns price times quantity for the line.
func (c CartItem) Subtotal() float64 {
	return c.Product.Price * float64(c.Quantity)
}

// SnapshotOf captures the cart-relevant fields of a catalog product.
func SnapshotOf(p Product) CartProduct {
	return CartProduct{ID: p.ID, Name: p.Name, Price: p.Price, ImageURL: p.ImageURL}
}

// Order is the receipt produced by the checkout stub.
type Order struct {
	Lines    []CartItem `json:"lines"`
	Total    float64    `json:"total"`
	PlacedAt time.Time  `json:"placed_at"`
}

// Role values understood by the route guard.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User is the account summary returned by the catalog service on login.
// Account ids are opaque strings (UUIDs on the catalog service).
type User struct {
	ID        string     `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	Role      string     `json:"role"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// UnmarshalJSON accepts numeric ids, which older payloads carried.
func (u *User) UnmarshalJSON(b []byte) error {
	type plain User
	var wire struct {
		plain
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	id, err := DecodeID(wire.ID)
	if err != nil {
		return fmt.Errorf("user id: %w", err)
	}
	*u = User(wire.plain)
	u.ID = id
	return nil
}

// DecodeID reads an id sent either as a JSON string or a JSON number.
// Absent and null ids decode to "".
func DecodeID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("unsupported id %s", raw)
	}
	return n.String(), nil
}

// Credentials are submitted to the login endpoint.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration is submitted to the register endpoint.
type Registration struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is the payload of a successful login.
type LoginResponse struct {
	User         User   `json:"user"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// DefaultTokenLifetime applies when a login response omits expires_in.
const DefaultTokenLifetime = 3600 * time.Second

// Lifetime returns the token lifetime, falling back to DefaultTokenLifetime.
func (r LoginResponse) Lifetime() time.Duration {
	if r.ExpiresIn <= 0 {
		return DefaultTokenLifetime
	}
	return time.Duration(r.ExpiresIn) * time.Second
}

// SessionToken is the client-side view of an authenticated session.
type SessionToken struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	// ExpiresAt is in epoch seconds.
	ExpiresAt int64  `json:"expires_at"`
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
}

// Expired reports whether the token expiry has passed at now.
func (t SessionToken) Expired(now time.Time) bool {
	return t.ExpiresAt > 0 && now.Unix() >= t.ExpiresAt
}

// Paginated is a single page of results from the catalog service.
type Paginated[T any] struct {
	Items      []T `json:"items"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalPages int `json:"total_pages"`
}
