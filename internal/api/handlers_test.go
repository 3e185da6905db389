package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gtjio/gtj/internal/acceptance"
	"github.com/gtjio/gtj/internal/billing"
	"github.com/gtjio/gtj/internal/proposal"
	"github.com/gtjio/gtj/internal/ratelimit"
	"github.com/gtjio/gtj/internal/render"
	"github.com/gtjio/gtj/internal/storage"
	"github.com/gtjio/gtj/internal/token"
)

// fakeMailer captures sent email instead of delivering it.
type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	fail bool
}

type sentMail struct {
	to, subject, html string
}

func (f *fakeMailer) Send(_ context.Context, to, subject, html string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return context.DeadlineExceeded
	}
	f.sent = append(f.sent, sentMail{to: to, subject: subject, html: html})
	return nil
}

func (f *fakeMailer) last(t *testing.T) sentMail {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("no email was sent")
	}
	return f.sent[len(f.sent)-1]
}

// fakeBilling scripts payment-provider responses.
type fakeBilling struct {
	customer    billing.Customer
	customerErr error
	pro         bool
	checkoutURL string
	portalURL   string
}

func (f *fakeBilling) IsPro(_ context.Context, _ string) (bool, error) {
	return f.pro, nil
}

func (f *fakeBilling) FindCustomerByEmail(_ context.Context, _ string) (billing.Customer, error) {
	if f.customerErr != nil {
		return billing.Customer{}, f.customerErr
	}
	return f.customer, nil
}

func (f *fakeBilling) CreateCheckoutSession(_ context.Context, _ billing.CheckoutParams) (string, error) {
	return f.checkoutURL, nil
}

func (f *fakeBilling) CreatePortalSession(_ context.Context, _, _ string) (string, error) {
	return f.portalURL, nil
}

func newTestDeps(t *testing.T) (Deps, *storage.Store) {
	t.Helper()

	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	codec, err := token.NewCodec("handler-test-secret")
	if err != nil {
		t.Fatalf("creating codec: %v", err)
	}
	pages, err := render.NewPages()
	if err != nil {
		t.Fatalf("parsing templates: %v", err)
	}

	return Deps{
		Store:          store,
		Generator:      proposal.New(store, nil, nil, 30*24*time.Hour),
		Accept:         acceptance.NewService(store),
		Limiter:        ratelimit.NewNoopLimiter(),
		Codec:          codec,
		Pages:          pages,
		BaseURL:        "http://localhost:4000",
		FreeLimit:      3,
		AcceptTokenTTL: 7 * 24 * time.Hour,
		PriceID:        "price_test",
	}, store
}

func postForm(t *testing.T, h http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func generateFields() url.Values {
	return url.Values{
		"trade":         {"electrician"},
		"client_name":   {"Dana Smith"},
		"service_type":  {"Switchboard upgrade"},
		"scope":         {"- replace board\n- test circuits"},
		"price":         {"$1,800"},
		"timeframe":     {"2 days"},
		"your_business": {"Volt Electrical"},
	}
}

func TestHealth(t *testing.T) {
	deps, _ := newTestDeps(t)
	h := NewHandler(deps)

	w := get(t, h, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestHome(t *testing.T) {
	deps, _ := newTestDeps(t)
	h := NewHandler(deps)

	w := get(t, h, "/")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "electrician") {
		t.Error("home page should list known trades")
	}
}

func TestGenerate_FallbackWithoutProvider(t *testing.T) {
	deps, _ := newTestDeps(t)
	h := NewHandler(deps)

	w := postForm(t, h, "/generate", generateFields())
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}
	body := w.Body.String()
	if !strings.Contains(body, "Proposal for: Dana Smith") {
		t.Errorf("expected fallback document in preview, got:\n%s", body)
	}

	// A device cookie is minted for returning identities.
	var gotDevice bool
	for _, c := range w.Result().Cookies() {
		if c.Name == "gtj_device" && c.Value != "" {
			gotDevice = true
		}
	}
	if !gotDevice {
		t.Error("expected a device cookie to be set")
	}
}

func TestGenerate_ValidationFailure(t *testing.T) {
	deps, _ := newTestDeps(t)
	h := NewHandler(deps)

	form := generateFields()
	form.Del("client_name")
	w := postForm(t, h, "/generate", form)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestGenerate_FreeLimitBlocks(t *testing.T) {
	deps, _ := newTestDeps(t)
	deps.FreeLimit = 1
	h := NewHandler(deps)

	// First generation passes and consumes the single free credit; the
	// identity falls back to the request IP since no device cookie is sent.
	w := postForm(t, h, "/generate", generateFields())
	if w.Code != http.StatusOK {
		t.Fatalf("first generate: status = %d", w.Code)
	}

	w = postForm(t, h, "/generate", generateFields())
	if w.Code != http.StatusOK {
		t.Fatalf("blocked generate: status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), freeLimitMessage) {
		t.Errorf("expected free-limit block, got:\n%s", w.Body.String())
	}
}

func TestGenerate_RateLimited(t *testing.T) {
	deps, _ := newTestDeps(t)
	deps.Limiter = ratelimit.NewSlidingWindow(time.Minute, 1)
	h := NewHandler(deps)

	if w := postForm(t, h, "/generate", generateFields()); w.Code != http.StatusOK {
		t.Fatalf("first generate: status = %d", w.Code)
	}
	w := postForm(t, h, "/generate", generateFields())
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
}

func TestSend_EmailsAcceptanceLink(t *testing.T) {
	deps, store := newTestDeps(t)
	mailer := &fakeMailer{}
	deps.Mail = mailer
	h := NewHandler(deps)

	w := postForm(t, h, "/send", url.Values{
		"proposal_text": {"1. Overview\nRewire the garage."},
		"client_email":  {"client@example.com"},
		"your_business": {"Volt Electrical"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "Proposal sent") {
		t.Errorf("unexpected body:\n%s", w.Body.String())
	}

	sent := mailer.last(t)
	if sent.to != "client@example.com" {
		t.Errorf("sent to %q", sent.to)
	}
	if !strings.Contains(sent.subject, "Volt Electrical") {
		t.Errorf("subject = %q", sent.subject)
	}
	if !strings.Contains(sent.html, "/p/") || !strings.Contains(sent.html, "token=") {
		t.Errorf("email should carry the tokenised link:\n%s", sent.html)
	}

	// The saved proposal carries the same single-use token as the link.
	proposals, err := store.RecentProposals(1)
	if err != nil || len(proposals) != 1 {
		t.Fatalf("recent proposals: %v (%d)", err, len(proposals))
	}
	if !strings.Contains(sent.html, proposals[0].AcceptToken) {
		t.Error("emailed token does not match the stored one")
	}
}

func TestSend_MailFailureStillSaves(t *testing.T) {
	deps, store := newTestDeps(t)
	deps.Mail = &fakeMailer{fail: true}
	h := NewHandler(deps)

	w := postForm(t, h, "/send", url.Values{
		"proposal_text": {"text"},
		"client_email":  {"client@example.com"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Share this link") {
		t.Errorf("expected share-link fallback, got:\n%s", w.Body.String())
	}

	proposals, err := store.RecentProposals(1)
	if err != nil || len(proposals) != 1 {
		t.Fatalf("proposal should be saved despite mail failure: %v (%d)", err, len(proposals))
	}
}

func TestSend_RejectsBadEmail(t *testing.T) {
	deps, _ := newTestDeps(t)
	h := NewHandler(deps)

	w := postForm(t, h, "/send", url.Values{
		"proposal_text": {"text"},
		"client_email":  {"not-an-email"},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func saveTestProposal(t *testing.T, store *storage.Store) storage.Proposal {
	t.Helper()
	expires := time.Now().Add(7 * 24 * time.Hour)
	p := storage.Proposal{
		ID:              storage.NewProposalID(),
		CreatedAt:       time.Now(),
		BusinessName:    "Volt Electrical",
		ClientEmail:     "client@example.com",
		ProposalText:    "1. Overview\nRewire the garage.",
		ProposalHash:    storage.ComputeProposalHash("1. Overview\nRewire the garage.", "Volt Electrical"),
		Status:          storage.StatusPending,
		AcceptToken:     storage.NewAcceptToken(),
		AcceptExpiresAt: &expires,
	}
	if err := store.SaveProposal(p); err != nil {
		t.Fatalf("saving proposal: %v", err)
	}
	return p
}

func TestProposalAcceptFlow(t *testing.T) {
	deps, store := newTestDeps(t)
	h := NewHandler(deps)
	p := saveTestProposal(t, store)

	// Pending proposal is viewable with its token.
	w := get(t, h, "/p/"+p.ID+"?token="+p.AcceptToken)
	if w.Code != http.StatusOK {
		t.Fatalf("view: status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Rewire the garage.") {
		t.Error("proposal text missing from view")
	}

	// Without the token the pending proposal is hidden.
	if w := get(t, h, "/p/"+p.ID); w.Code != http.StatusForbidden {
		t.Fatalf("tokenless view of pending proposal: status = %d", w.Code)
	}

	// Accept redirects to the now-public proposal page.
	w = postForm(t, h, "/p/"+p.ID+"/accept", url.Values{
		"token": {p.AcceptToken},
		"name":  {"Dana Smith"},
	})
	if w.Code != http.StatusSeeOther {
		t.Fatalf("accept: status = %d, body: %s", w.Code, w.Body.String())
	}
	if loc := w.Header().Get("Location"); loc != "/p/"+p.ID {
		t.Errorf("redirect location = %q", loc)
	}

	// Resolved proposals are public.
	w = get(t, h, "/p/"+p.ID)
	if w.Code != http.StatusOK {
		t.Fatalf("resolved view: status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "accepted") {
		t.Error("resolved view should show the accepted status")
	}

	// Replaying the link conflicts.
	w = postForm(t, h, "/p/"+p.ID+"/accept", url.Values{
		"token": {p.AcceptToken},
		"name":  {"Dana Smith"},
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("replayed accept: status = %d", w.Code)
	}
}

func TestDeclineFlow(t *testing.T) {
	deps, store := newTestDeps(t)
	h := NewHandler(deps)
	p := saveTestProposal(t, store)

	w := postForm(t, h, "/p/"+p.ID+"/decline", url.Values{
		"token":  {p.AcceptToken},
		"reason": {"Budget blew out"},
	})
	if w.Code != http.StatusSeeOther {
		t.Fatalf("decline: status = %d", w.Code)
	}

	got, err := store.GetProposal(p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != storage.StatusDeclined {
		t.Errorf("status = %q", got.Status)
	}
	if got.DeclineReason != "Budget blew out" {
		t.Errorf("reason = %q", got.DeclineReason)
	}
}

func TestViewProposal_NotFound(t *testing.T) {
	deps, _ := newTestDeps(t)
	h := NewHandler(deps)

	if w := get(t, h, "/p/missing"); w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestPDF(t *testing.T) {
	deps, store := newTestDeps(t)
	h := NewHandler(deps)
	p := saveTestProposal(t, store)

	w := get(t, h, "/pdf/"+p.ID+"?token="+p.AcceptToken)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("content type = %q", ct)
	}
	if !strings.HasPrefix(w.Body.String(), "%PDF-") {
		t.Error("body is not a PDF document")
	}
}

func TestCheckout_RedirectsToProvider(t *testing.T) {
	deps, _ := newTestDeps(t)
	deps.Billing = &fakeBilling{checkoutURL: "https://checkout.example.com/cs_1"}
	h := NewHandler(deps)

	w := postForm(t, h, "/billing/checkout", url.Values{"email": {"dana@example.com"}})
	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}
	if loc := w.Header().Get("Location"); loc != "https://checkout.example.com/cs_1" {
		t.Errorf("location = %q", loc)
	}
}

func TestCheckout_UnavailableWithoutBilling(t *testing.T) {
	deps, _ := newTestDeps(t)
	h := NewHandler(deps)

	w := postForm(t, h, "/billing/checkout", url.Values{"email": {"dana@example.com"}})
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestRestoreFlow(t *testing.T) {
	deps, _ := newTestDeps(t)
	mailer := &fakeMailer{}
	deps.Mail = mailer
	deps.Billing = &fakeBilling{
		customer: billing.Customer{ID: "cus_123", Email: "dana@example.com"},
		pro:      true,
	}
	h := NewHandler(deps)

	// Request a magic link; the response is always neutral.
	w := postForm(t, h, "/billing/restore", url.Values{"email": {"dana@example.com"}})
	if w.Code != http.StatusOK {
		t.Fatalf("restore request: status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Check your email") {
		t.Errorf("unexpected body:\n%s", w.Body.String())
	}

	sent := mailer.last(t)
	link := extractRestoreToken(t, sent.html)

	// Following the link with an active subscription sets the customer cookie.
	w = get(t, h, "/billing/restore?token="+link)
	if w.Code != http.StatusOK {
		t.Fatalf("restore: status = %d, body: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "Pro restored") {
		t.Errorf("unexpected body:\n%s", w.Body.String())
	}
	var gotCustomer bool
	for _, c := range w.Result().Cookies() {
		if c.Name == "gtj_customer" && c.Value != "" {
			gotCustomer = true
		}
	}
	if !gotCustomer {
		t.Error("expected customer cookie after restore")
	}
}

func TestRestore_NoSubscription(t *testing.T) {
	deps, _ := newTestDeps(t)
	mailer := &fakeMailer{}
	deps.Mail = mailer
	deps.Billing = &fakeBilling{customerErr: billing.ErrNoCustomer}
	h := NewHandler(deps)

	postForm(t, h, "/billing/restore", url.Values{"email": {"nobody@example.com"}})
	link := extractRestoreToken(t, mailer.last(t).html)

	w := get(t, h, "/billing/restore?token="+link)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "No active Pro subscription") {
		t.Errorf("unexpected body:\n%s", w.Body.String())
	}
	for _, c := range w.Result().Cookies() {
		if c.Name == "gtj_customer" {
			t.Error("no customer cookie should be set without a subscription")
		}
	}
}

func TestRestore_GarbageToken(t *testing.T) {
	deps, _ := newTestDeps(t)
	h := NewHandler(deps)

	if w := get(t, h, "/billing/restore?token=garbage"); w.Code != http.StatusForbidden {
		t.Fatalf("status = %d", w.Code)
	}
}

// extractRestoreToken pulls the token query value out of the emailed link.
func extractRestoreToken(t *testing.T, html string) string {
	t.Helper()
	i := strings.Index(html, "token=")
	if i < 0 {
		t.Fatalf("no token in email:\n%s", html)
	}
	rest := html[i+len("token="):]
	if j := strings.IndexByte(rest, '"'); j >= 0 {
		rest = rest[:j]
	}
	tok, err := url.QueryUnescape(rest)
	if err != nil {
		t.Fatalf("unescaping token: %v", err)
	}
	return url.QueryEscape(tok)
}
