package billing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFindCustomerByEmail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/customers/search" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if q := r.URL.Query().Get("query"); q != `email:"dana@example.com"` {
			t.Errorf("unexpected query %q", q)
		}
		w.Write([]byte(`{"data":[{"id":"cus_123","email":"dana@example.com"}]}`))
	}))
	defer server.Close()

	client := NewClientWithBaseURL("sk_test", server.URL)
	cust, err := client.FindCustomerByEmail(context.Background(), "dana@example.com")
	if err != nil {
		t.Fatalf("find customer: %v", err)
	}
	if cust.ID != "cus_123" {
		t.Errorf("got customer %q", cust.ID)
	}
}

func TestFindCustomerByEmail_NoMatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	client := NewClientWithBaseURL("sk_test", server.URL)
	_, err := client.FindCustomerByEmail(context.Background(), "nobody@example.com")
	if !errors.Is(err, ErrNoCustomer) {
		t.Fatalf("expected ErrNoCustomer, got %v", err)
	}
}

func TestIsPro(t *testing.T) {
	cases := []struct {
		name string
		body string
		want bool
	}{
		{"active", `{"data":[{"id":"sub_1","status":"active"}]}`, true},
		{"trialing", `{"data":[{"id":"sub_1","status":"trialing"}]}`, true},
		{"canceled", `{"data":[{"id":"sub_1","status":"canceled"}]}`, false},
		{"mixed", `{"data":[{"id":"sub_1","status":"canceled"},{"id":"sub_2","status":"active"}]}`, true},
		{"none", `{"data":[]}`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if got := r.URL.Query().Get("status"); got != "all" {
					t.Errorf("expected status=all, got %q", got)
				}
				w.Write([]byte(tc.body))
			}))
			defer server.Close()

			client := NewClientWithBaseURL("sk_test", server.URL)
			pro, err := client.IsPro(context.Background(), "cus_123")
			if err != nil {
				t.Fatalf("is pro: %v", err)
			}
			if pro != tc.want {
				t.Errorf("IsPro = %v, want %v", pro, tc.want)
			}
		})
	}
}

func TestCreateCheckoutSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/checkout/sessions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parsing form: %v", err)
		}
		if got := r.PostForm.Get("mode"); got != "subscription" {
			t.Errorf("mode = %q", got)
		}
		if got := r.PostForm.Get("line_items[0][price]"); got != "price_abc" {
			t.Errorf("price = %q", got)
		}
		if got := r.PostForm.Get("customer_email"); got != "dana@example.com" {
			t.Errorf("customer_email = %q", got)
		}
		w.Write([]byte(`{"id":"cs_1","url":"https://checkout.example.com/cs_1"}`))
	}))
	defer server.Close()

	client := NewClientWithBaseURL("sk_test", server.URL)
	u, err := client.CreateCheckoutSession(context.Background(), CheckoutParams{
		CustomerEmail: "dana@example.com",
		PriceID:       "price_abc",
		SuccessURL:    "https://gtj.example.com/?upgraded=1",
		CancelURL:     "https://gtj.example.com/",
	})
	if err != nil {
		t.Fatalf("create checkout: %v", err)
	}
	if u != "https://checkout.example.com/cs_1" {
		t.Errorf("got url %q", u)
	}
}

func TestCreatePortalSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/billing_portal/sessions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		r.ParseForm()
		if got := r.PostForm.Get("customer"); got != "cus_123" {
			t.Errorf("customer = %q", got)
		}
		w.Write([]byte(`{"url":"https://portal.example.com/s_1"}`))
	}))
	defer server.Close()

	client := NewClientWithBaseURL("sk_test", server.URL)
	u, err := client.CreatePortalSession(context.Background(), "cus_123", "https://gtj.example.com/")
	if err != nil {
		t.Fatalf("create portal: %v", err)
	}
	if u != "https://portal.example.com/s_1" {
		t.Errorf("got url %q", u)
	}
}

func TestDo_ErrorStatusSurfacesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"No such price"}}`))
	}))
	defer server.Close()

	client := NewClientWithBaseURL("sk_test", server.URL)
	_, err := client.CreateCheckoutSession(context.Background(), CheckoutParams{PriceID: "bad"})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestDo_MissingAPIKey(t *testing.T) {
	client := NewClient("")
	if _, err := client.GetCustomer(context.Background(), "cus_1"); err == nil {
		t.Fatal("expected error without api key")
	}
}
