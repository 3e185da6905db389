// Package api exposes the web surface: proposal generation, delivery,
// token-gated acceptance, and billing routes.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/gtjio/gtj/internal/acceptance"
	"github.com/gtjio/gtj/internal/billing"
	"github.com/gtjio/gtj/internal/events"
	"github.com/gtjio/gtj/internal/proposal"
	"github.com/gtjio/gtj/internal/ratelimit"
	"github.com/gtjio/gtj/internal/render"
	"github.com/gtjio/gtj/internal/storage"
	"github.com/gtjio/gtj/internal/token"
)

const (
	maxFormBodySize = 64 << 10 // 64KB

	freeLimitMessage = "Free limit reached"
	rateLimitMessage = "Too many requests. Please wait a minute and try again."
)

var validate = validator.New()

// PageRenderer produces markup from a page name and payload.
// Implemented by render.Pages.
type PageRenderer interface {
	Render(w io.Writer, page string, data any) error
}

// BillingClient is the slice of the payment provider the handlers use.
// Implemented by billing.Client.
type BillingClient interface {
	IsPro(ctx context.Context, customerID string) (bool, error)
	FindCustomerByEmail(ctx context.Context, email string) (billing.Customer, error)
	CreateCheckoutSession(ctx context.Context, p billing.CheckoutParams) (string, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
}

// Mailer sends transactional email. Implemented by mail.Client.
type Mailer interface {
	Send(ctx context.Context, to, subject, html string) error
}

// Deps holds the injected collaborators for the HTTP surface.
type Deps struct {
	Store     *storage.Store
	Generator *proposal.Generator
	Accept    *acceptance.Service
	Limiter   ratelimit.Limiter
	Codec     *token.Codec
	Billing   BillingClient
	Mail      Mailer
	Pages     PageRenderer
	Events    events.Sink

	BaseURL        string
	FreeLimit      int
	AcceptTokenTTL time.Duration
	PriceID        string
}

// NewHandler builds the chi router over the injected dependencies.
func NewHandler(deps Deps) http.Handler {
	if deps.Events == nil {
		deps.Events = events.Noop{}
	}

	r := chi.NewRouter()

	r.Get("/", handleHome(deps))
	r.Post("/generate", handleGenerate(deps))
	r.Post("/send", handleSend(deps))

	r.Get("/p/{id}", handleViewProposal(deps))
	r.Post("/p/{id}/accept", handleAccept(deps))
	r.Post("/p/{id}/decline", handleDecline(deps))
	r.Get("/pdf/{id}", handlePDF(deps))

	r.Post("/billing/checkout", handleCheckout(deps))
	r.Post("/billing/portal", handlePortal(deps))
	r.Post("/billing/restore", handleRestoreRequest(deps))
	r.Get("/billing/restore", handleRestore(deps))

	r.Get("/health", handleHealth)

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type homeData struct {
	Trades         []string
	Blocked        bool
	BlockedMessage string
}

func handleHome(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		renderPage(w, deps, "home", homeData{Trades: proposal.KnownTrades()})
	}
}

type generateForm struct {
	Trade       string `validate:"omitempty,max=40"`
	ClientName  string `validate:"required,max=120"`
	ServiceType string `validate:"required,max=160"`
	Scope       string `validate:"max=4000"`
	Price       string `validate:"max=120"`
	Tone        string `validate:"omitempty,max=40"`
	Timeframe   string `validate:"max=200"`
	Business    string `validate:"required,max=160"`
	ABN         string `validate:"omitempty,max=20"`
}

type previewData struct {
	ProposalText   string
	BusinessName   string
	Used           int
	Pro            bool
	Blocked        bool
	BlockedMessage string
}

func handleGenerate(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Abuse guard keys on client IP, independent of the usage ledger.
		if !deps.Limiter.Allow(clientIP(r)) {
			deps.Events.Record("rate_limited", "ip", clientIP(r))
			renderMessage(w, deps, http.StatusTooManyRequests, "Slow down", rateLimitMessage, true)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxFormBodySize)
		if err := r.ParseForm(); err != nil {
			renderMessage(w, deps, http.StatusBadRequest, "Invalid request", "The form could not be read.", true)
			return
		}

		form := generateForm{
			Trade:       r.PostFormValue("trade"),
			ClientName:  r.PostFormValue("client_name"),
			ServiceType: r.PostFormValue("service_type"),
			Scope:       r.PostFormValue("scope"),
			Price:       r.PostFormValue("price"),
			Tone:        r.PostFormValue("tone"),
			Timeframe:   r.PostFormValue("timeframe"),
			Business:    r.PostFormValue("your_business"),
			ABN:         r.PostFormValue("abn"),
		}
		if err := validate.Struct(form); err != nil {
			renderMessage(w, deps, http.StatusBadRequest, "Invalid request",
				"Please fill in the client, service, and business fields.", true)
			return
		}

		identity, deviceTok := deps.resolveIdentity(r)
		pro := deps.isPro(r)

		used := 0
		if !pro {
			count, err := deps.Store.FreeUsage(identity)
			if err != nil {
				slog.Warn("free usage lookup failed", "error", err)
			}
			// The signed cookie backstops the ledger when the identity
			// changed (e.g. cookie cleared but count carried over).
			if cookieCount := deps.usageFromCookie(r); cookieCount > count {
				count = cookieCount
			}
			used = count
			if count >= deps.FreeLimit {
				deps.Events.Record("free_limit_blocked", "identity", identity)
				setSignedCookie(w, deps.Codec, deviceTok)
				renderPage(w, deps, "preview", previewData{
					Blocked:        true,
					BlockedMessage: freeLimitMessage,
				})
				return
			}
		}

		in := proposal.Input{
			Trade:       form.Trade,
			ClientName:  form.ClientName,
			ServiceType: form.ServiceType,
			Scope:       form.Scope,
			Price:       form.Price,
			Tone:        form.Tone,
			Timeframe:   form.Timeframe,
			Business:    form.Business,
			ABN:         form.ABN,
		}
		text, source := deps.Generator.Build(r.Context(), in)
		slog.Info("proposal generated", "source", string(source), "trade", proposal.NormalizeTrade(form.Trade))

		if !pro {
			if err := deps.Store.IncrementFreeUsage(identity, time.Now()); err != nil {
				slog.Warn("free usage increment failed", "error", err)
			}
			used++
			setSignedCookie(w, deps.Codec, deps.usageCookie(used))
		}
		setSignedCookie(w, deps.Codec, deviceTok)

		renderPage(w, deps, "preview", previewData{
			ProposalText: text,
			BusinessName: form.Business,
			Used:         used,
			Pro:          pro,
		})
	}
}

type sendForm struct {
	ProposalText string `validate:"required,max=40000"`
	ClientEmail  string `validate:"required,email,max=254"`
	Business     string `validate:"max=160"`
}

func handleSend(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxFormBodySize)
		if err := r.ParseForm(); err != nil {
			renderMessage(w, deps, http.StatusBadRequest, "Invalid request", "The form could not be read.", true)
			return
		}

		form := sendForm{
			ProposalText: r.PostFormValue("proposal_text"),
			ClientEmail:  r.PostFormValue("client_email"),
			Business:     r.PostFormValue("your_business"),
		}
		if err := validate.Struct(form); err != nil {
			renderMessage(w, deps, http.StatusBadRequest, "Invalid request",
				"A proposal and a valid client email address are required.", true)
			return
		}

		now := time.Now()
		expiresAt := now.Add(deps.AcceptTokenTTL)
		p := storage.Proposal{
			ID:              storage.NewProposalID(),
			CreatedAt:       now,
			BusinessName:    form.Business,
			ClientEmail:     form.ClientEmail,
			ProposalText:    form.ProposalText,
			ProposalHash:    storage.ComputeProposalHash(form.ProposalText, form.Business),
			Status:          storage.StatusPending,
			AcceptToken:     storage.NewAcceptToken(),
			AcceptExpiresAt: &expiresAt,
		}
		if err := deps.Store.SaveProposal(p); err != nil {
			slog.Error("saving proposal failed", "error", err)
			renderMessage(w, deps, http.StatusInternalServerError, "Something went wrong",
				"The proposal could not be saved. Please try again.", true)
			return
		}
		deps.Events.Record("proposal_sent", "id", p.ID)

		link := fmt.Sprintf("%s/p/%s?token=%s", deps.BaseURL, p.ID, p.AcceptToken)
		if err := deps.sendProposalEmail(r.Context(), p, link); err != nil {
			// Delivery failure must not fail the request; the proposal is
			// saved and the link can be re-sent.
			slog.Warn("proposal email failed", "id", p.ID, "error", err)
			renderMessage(w, deps, http.StatusOK, "Proposal saved",
				"The proposal was saved but the email could not be sent. Share this link directly: "+link, false)
			return
		}

		renderMessage(w, deps, http.StatusOK, "Proposal sent",
			"Your client has been emailed a link to review and accept the proposal.", false)
	}
}

func (deps Deps) sendProposalEmail(ctx context.Context, p storage.Proposal, link string) error {
	if deps.Mail == nil {
		return fmt.Errorf("mail client not configured")
	}
	business := p.BusinessName
	if business == "" {
		business = "your contractor"
	}
	subject := "Proposal from " + business
	html := fmt.Sprintf(
		`<p>%s has sent you a proposal.</p><p><a href="%s">Review and respond to the proposal</a></p><p>This link expires on %s.</p>`,
		business, link, p.AcceptExpiresAt.Format("2 January 2006"))
	return deps.Mail.Send(ctx, p.ClientEmail, subject, html)
}

type proposalData struct {
	ID            string
	BusinessName  string
	ProposalText  string
	Status        string
	Token         string
	RespondedName string
	RespondedAt   string
}

func handleViewProposal(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		tok := r.URL.Query().Get("token")

		p, err := deps.Accept.View(id, tok)
		if err != nil {
			renderAcceptanceError(w, deps, err)
			return
		}

		data := proposalData{
			ID:           p.ID,
			BusinessName: businessOrDefault(p.BusinessName),
			ProposalText: p.ProposalText,
			Status:       string(p.Status),
		}
		if !p.Resolved() {
			data.Token = tok
		}
		if p.RespondedAt != nil {
			data.RespondedAt = p.RespondedAt.Format("2 January 2006")
			data.RespondedName = p.RespondedName
		}
		renderPage(w, deps, "proposal", data)
	}
}

func handleAccept(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		r.Body = http.MaxBytesReader(w, r.Body, maxFormBodySize)
		if err := r.ParseForm(); err != nil {
			renderMessage(w, deps, http.StatusBadRequest, "Invalid request", "The form could not be read.", true)
			return
		}

		err := deps.Accept.Accept(id, r.PostFormValue("token"), r.PostFormValue("name"), clientIP(r))
		if err != nil {
			renderAcceptanceError(w, deps, err)
			return
		}
		deps.Events.Record("proposal_accepted", "id", id)

		// Resolved proposals are publicly viewable, no token needed.
		http.Redirect(w, r, "/p/"+id, http.StatusSeeOther)
	}
}

func handleDecline(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		r.Body = http.MaxBytesReader(w, r.Body, maxFormBodySize)
		if err := r.ParseForm(); err != nil {
			renderMessage(w, deps, http.StatusBadRequest, "Invalid request", "The form could not be read.", true)
			return
		}

		err := deps.Accept.Decline(id, r.PostFormValue("token"), r.PostFormValue("reason"), clientIP(r))
		if err != nil {
			renderAcceptanceError(w, deps, err)
			return
		}
		deps.Events.Record("proposal_declined", "id", id)

		http.Redirect(w, r, "/p/"+id, http.StatusSeeOther)
	}
}

func handlePDF(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		tok := r.URL.Query().Get("token")

		p, err := deps.Accept.View(id, tok)
		if err != nil {
			renderAcceptanceError(w, deps, err)
			return
		}

		doc := render.Document(p.BusinessName, p.ProposalText)
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "proposal-"+p.ID+".pdf"))
		w.Write(doc)
	}
}

func renderAcceptanceError(w http.ResponseWriter, deps Deps, err error) {
	switch err {
	case acceptance.ErrNotFound:
		renderMessage(w, deps, http.StatusNotFound, "Not found", "That proposal does not exist.", true)
	case acceptance.ErrTokenMismatch, acceptance.ErrTokenExpired:
		renderMessage(w, deps, http.StatusForbidden, "Link invalid",
			"This proposal link is invalid or has expired. Please ask for a new one.", true)
	case acceptance.ErrAlreadyResolved:
		renderMessage(w, deps, http.StatusConflict, "Already responded",
			"This proposal has already been responded to.", true)
	case acceptance.ErrNameRequired:
		renderMessage(w, deps, http.StatusBadRequest, "Name required",
			"Please type your full name to accept the proposal.", true)
	case acceptance.ErrReasonTooLong:
		renderMessage(w, deps, http.StatusBadRequest, "Reason too long",
			"The decline reason is too long.", true)
	default:
		slog.Error("acceptance operation failed", "error", err)
		renderMessage(w, deps, http.StatusInternalServerError, "Something went wrong",
			"Please try again shortly.", true)
	}
}

type messageData struct {
	Title   string
	Message string
	IsError bool
}

func renderMessage(w http.ResponseWriter, deps Deps, status int, title, message string, isError bool) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := deps.Pages.Render(w, "message", messageData{Title: title, Message: message, IsError: isError}); err != nil {
		slog.Error("rendering message page failed", "error", err)
	}
}

func renderPage(w http.ResponseWriter, deps Deps, page string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := deps.Pages.Render(w, page, data); err != nil {
		slog.Error("rendering page failed", "page", page, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func businessOrDefault(name string) string {
	if name == "" {
		return "your contractor"
	}
	return name
}
