package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"net/url"
	"time"

	"github.com/gtjio/gtj/internal/billing"
	"github.com/gtjio/gtj/internal/token"
)

// magicLinkTTL bounds how long an emailed restore link stays valid.
const magicLinkTTL = 30 * time.Minute

func handleCheckout(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxFormBodySize)
		if err := r.ParseForm(); err != nil {
			renderMessage(w, deps, http.StatusBadRequest, "Invalid request", "The form could not be read.", true)
			return
		}

		email := r.PostFormValue("email")
		if _, err := mail.ParseAddress(email); err != nil {
			renderMessage(w, deps, http.StatusBadRequest, "Invalid email", "Please enter a valid email address.", true)
			return
		}
		if deps.Billing == nil || deps.PriceID == "" {
			renderMessage(w, deps, http.StatusServiceUnavailable, "Unavailable",
				"Upgrades are not available right now.", true)
			return
		}

		checkoutURL, err := deps.Billing.CreateCheckoutSession(r.Context(), billing.CheckoutParams{
			CustomerEmail: email,
			PriceID:       deps.PriceID,
			SuccessURL:    deps.BaseURL + "/?checkout=success",
			CancelURL:     deps.BaseURL + "/",
		})
		if err != nil {
			slog.Error("creating checkout session failed", "error", err)
			renderMessage(w, deps, http.StatusBadGateway, "Unavailable",
				"The payment provider could not be reached. Please try again.", true)
			return
		}
		deps.Events.Record("checkout_started")

		http.Redirect(w, r, checkoutURL, http.StatusSeeOther)
	}
}

func handlePortal(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customerID := deps.customerID(r)
		if customerID == "" || deps.Billing == nil {
			renderMessage(w, deps, http.StatusForbidden, "Not signed in",
				"Use the sign-in link from your email to manage your subscription.", true)
			return
		}

		portalURL, err := deps.Billing.CreatePortalSession(r.Context(), customerID, deps.BaseURL+"/")
		if err != nil {
			slog.Error("creating portal session failed", "error", err)
			renderMessage(w, deps, http.StatusBadGateway, "Unavailable",
				"The payment provider could not be reached. Please try again.", true)
			return
		}

		http.Redirect(w, r, portalURL, http.StatusSeeOther)
	}
}

// handleRestoreRequest emails a time-boxed magic link asserting control of
// the address. The response never reveals whether the address is known.
func handleRestoreRequest(deps Deps) http.HandlerFunc {
	const neutral = "If that address has a Pro subscription, a sign-in link is on its way."

	return func(w http.ResponseWriter, r *http.Request) {
		if !deps.Limiter.Allow(clientIP(r)) {
			renderMessage(w, deps, http.StatusTooManyRequests, "Slow down", rateLimitMessage, true)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxFormBodySize)
		if err := r.ParseForm(); err != nil {
			renderMessage(w, deps, http.StatusBadRequest, "Invalid request", "The form could not be read.", true)
			return
		}

		email := r.PostFormValue("email")
		if _, err := mail.ParseAddress(email); err != nil {
			renderMessage(w, deps, http.StatusBadRequest, "Invalid email", "Please enter a valid email address.", true)
			return
		}

		payload := token.WithExpiry(map[string]any{"email": email}, time.Now().Add(magicLinkTTL))
		link, err := deps.Codec.Encode(token.PurposeMagicLink, payload)
		if err != nil {
			slog.Error("encoding magic link failed", "error", err)
			renderMessage(w, deps, http.StatusOK, "Check your email", neutral, false)
			return
		}

		if deps.Mail != nil {
			restoreURL := fmt.Sprintf("%s/billing/restore?token=%s", deps.BaseURL, url.QueryEscape(link))
			html := fmt.Sprintf(`<p><a href="%s">Restore your Pro access</a></p><p>This link expires in 30 minutes.</p>`, restoreURL)
			if err := deps.Mail.Send(r.Context(), email, "Restore your Pro access", html); err != nil {
				slog.Warn("magic link email failed", "error", err)
			}
		}

		renderMessage(w, deps, http.StatusOK, "Check your email", neutral, false)
	}
}

// handleRestore verifies a magic link, confirms an active subscription for
// the linked email, and sets the signed customer cookie.
func handleRestore(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := r.URL.Query().Get("token")
		payload, err := deps.Codec.Decode(raw, token.PurposeMagicLink)
		if err != nil {
			renderMessage(w, deps, http.StatusForbidden, "Link invalid",
				"This sign-in link is invalid. Please request a new one.", true)
			return
		}
		expiresAt, ok := token.Expiry(payload)
		if !ok || time.Now().After(expiresAt) {
			renderMessage(w, deps, http.StatusForbidden, "Link expired",
				"This sign-in link has expired. Please request a new one.", true)
			return
		}
		email, _ := payload["email"].(string)
		if email == "" || deps.Billing == nil {
			renderMessage(w, deps, http.StatusForbidden, "Link invalid",
				"This sign-in link is invalid. Please request a new one.", true)
			return
		}

		customer, err := deps.Billing.FindCustomerByEmail(r.Context(), email)
		if err != nil {
			slog.Warn("customer lookup failed", "error", err)
			renderMessage(w, deps, http.StatusOK, "No subscription found",
				"No active Pro subscription was found for that address.", true)
			return
		}
		pro, err := deps.Billing.IsPro(r.Context(), customer.ID)
		if err != nil || !pro {
			renderMessage(w, deps, http.StatusOK, "No subscription found",
				"No active Pro subscription was found for that address.", true)
			return
		}

		setSignedCookie(w, deps.Codec, customerCookie(customer.ID))
		deps.Events.Record("pro_restored")
		renderMessage(w, deps, http.StatusOK, "Pro restored",
			"Your Pro access has been restored on this device.", false)
	}
}
