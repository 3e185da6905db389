// Package billing implements a client for the Stripe subscription API.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.stripe.com/v1"
	defaultTimeout = 15 * time.Second
)

// ErrNoCustomer is returned when no customer matches an email lookup.
var ErrNoCustomer = errors.New("no customer for email")

// Customer is the subset of customer fields the app reads.
type Customer struct {
	ID       string            `json:"id"`
	Email    string            `json:"email"`
	Metadata map[string]string `json:"metadata"`
}

// Subscription is the subset of subscription fields the app reads.
type Subscription struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Active reports whether the subscription currently grants access.
func (s Subscription) Active() bool {
	return s.Status == "active" || s.Status == "trialing"
}

// Client communicates with the payment provider's REST API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client with the given secret API key.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// NewClientWithBaseURL creates a client pointing at a custom base URL (for testing).
func NewClientWithBaseURL(apiKey, baseURL string) *Client {
	c := NewClient(apiKey)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// FindCustomerByEmail returns the first customer whose email matches.
func (c *Client) FindCustomerByEmail(ctx context.Context, email string) (Customer, error) {
	q := url.Values{}
	q.Set("query", fmt.Sprintf("email:%q", email))
	q.Set("limit", "1")

	var result struct {
		Data []Customer `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/customers/search?"+q.Encode(), nil, &result); err != nil {
		return Customer{}, err
	}
	if len(result.Data) == 0 {
		return Customer{}, ErrNoCustomer
	}
	return result.Data[0], nil
}

// GetCustomer fetches a customer by id.
func (c *Client) GetCustomer(ctx context.Context, id string) (Customer, error) {
	var cust Customer
	if err := c.do(ctx, http.MethodGet, "/customers/"+url.PathEscape(id), nil, &cust); err != nil {
		return Customer{}, err
	}
	return cust, nil
}

// UpdateCustomerMetadata sets metadata keys on a customer.
func (c *Client) UpdateCustomerMetadata(ctx context.Context, id string, metadata map[string]string) error {
	form := url.Values{}
	for k, v := range metadata {
		form.Set("metadata["+k+"]", v)
	}
	return c.do(ctx, http.MethodPost, "/customers/"+url.PathEscape(id), form, nil)
}

// ListSubscriptions returns up to 10 subscriptions for a customer,
// including canceled ones.
func (c *Client) ListSubscriptions(ctx context.Context, customerID string) ([]Subscription, error) {
	q := url.Values{}
	q.Set("customer", customerID)
	q.Set("status", "all")
	q.Set("limit", "10")

	var result struct {
		Data []Subscription `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/subscriptions?"+q.Encode(), nil, &result); err != nil {
		return nil, err
	}
	return result.Data, nil
}

// IsPro reports whether the customer holds a currently active subscription.
func (c *Client) IsPro(ctx context.Context, customerID string) (bool, error) {
	subs, err := c.ListSubscriptions(ctx, customerID)
	if err != nil {
		return false, err
	}
	for _, s := range subs {
		if s.Active() {
			return true, nil
		}
	}
	return false, nil
}

// CheckoutParams configures a new checkout session.
type CheckoutParams struct {
	CustomerEmail string
	PriceID       string
	SuccessURL    string
	CancelURL     string
}

// CreateCheckoutSession creates a subscription checkout session and
// returns its hosted URL.
func (c *Client) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (string, error) {
	form := url.Values{}
	form.Set("mode", "subscription")
	form.Set("customer_email", p.CustomerEmail)
	form.Set("line_items[0][price]", p.PriceID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("success_url", p.SuccessURL)
	form.Set("cancel_url", p.CancelURL)

	var result struct {
		URL string `json:"url"`
	}
	if err := c.do(ctx, http.MethodPost, "/checkout/sessions", form, &result); err != nil {
		return "", err
	}
	return result.URL, nil
}

// CreatePortalSession creates a billing-portal session for an existing
// customer and returns its hosted URL.
func (c *Client) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	form := url.Values{}
	form.Set("customer", customerID)
	form.Set("return_url", returnURL)

	var result struct {
		URL string `json:"url"`
	}
	if err := c.do(ctx, http.MethodPost, "/billing_portal/sessions", form, &result); err != nil {
		return "", err
	}
	return result.URL, nil
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values, out any) error {
	if c.apiKey == "" {
		return errors.New("api key not configured")
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("provider returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
