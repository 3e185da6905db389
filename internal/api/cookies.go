package api

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gtjio/gtj/internal/token"
)

// Cookie names. All values are signed tokens; an unreadable or tampered
// cookie downgrades silently to the unauthenticated default.
const (
	cookieDevice   = "gtj_device"
	cookieUsage    = "gtj_usage"
	cookieCustomer = "gtj_customer"
)

const (
	deviceCookieAge   = 365 * 24 * time.Hour
	usageCookieAge    = 365 * 24 * time.Hour
	customerCookieAge = 30 * 24 * time.Hour
)

type signedCookie struct {
	name    string
	purpose token.Purpose
	payload map[string]any
	maxAge  time.Duration
}

func setSignedCookie(w http.ResponseWriter, codec *token.Codec, c signedCookie) {
	value, err := codec.Encode(c.purpose, c.payload)
	if err != nil {
		slog.Warn("encoding cookie failed", "cookie", c.name, "error", err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     c.name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(c.maxAge / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// readSignedCookie decodes a purpose-bound cookie. Missing, tampered, or
// wrong-purpose cookies read as absent.
func readSignedCookie(r *http.Request, codec *token.Codec, name string, purpose token.Purpose) (map[string]any, bool) {
	c, err := r.Cookie(name)
	if err != nil || c.Value == "" {
		return nil, false
	}
	payload, err := codec.Decode(c.Value, purpose)
	if err != nil {
		return nil, false
	}
	return payload, true
}

// resolveIdentity returns the quota identity for this request and the
// device cookie to (re-)set. The device UUID is authoritative when its
// cookie verifies; otherwise the client IP identifies this request and a
// fresh device id is minted for subsequent ones.
func (deps Deps) resolveIdentity(r *http.Request) (string, signedCookie) {
	if payload, ok := readSignedCookie(r, deps.Codec, cookieDevice, token.PurposeDevice); ok {
		if id, _ := payload["device_id"].(string); id != "" {
			return id, signedCookie{
				name:    cookieDevice,
				purpose: token.PurposeDevice,
				payload: map[string]any{"device_id": id},
				maxAge:  deviceCookieAge,
			}
		}
	}

	fresh := uuid.NewString()
	return clientIP(r), signedCookie{
		name:    cookieDevice,
		purpose: token.PurposeDevice,
		payload: map[string]any{"device_id": fresh},
		maxAge:  deviceCookieAge,
	}
}

// usageFromCookie reads the signed usage counter, 0 when absent.
func (deps Deps) usageFromCookie(r *http.Request) int {
	payload, ok := readSignedCookie(r, deps.Codec, cookieUsage, token.PurposeUsage)
	if !ok {
		return 0
	}
	// JSON numbers decode as float64.
	if n, ok := payload["count"].(float64); ok && n > 0 {
		return int(n)
	}
	return 0
}

func (deps Deps) usageCookie(count int) signedCookie {
	return signedCookie{
		name:    cookieUsage,
		purpose: token.PurposeUsage,
		payload: map[string]any{"count": count},
		maxAge:  usageCookieAge,
	}
}

func customerCookie(customerID string) signedCookie {
	return signedCookie{
		name:    cookieCustomer,
		purpose: token.PurposeBilling,
		payload: map[string]any{"customer_id": customerID},
		maxAge:  customerCookieAge,
	}
}

// customerID returns the signed customer id, "" when absent.
func (deps Deps) customerID(r *http.Request) string {
	payload, ok := readSignedCookie(r, deps.Codec, cookieCustomer, token.PurposeBilling)
	if !ok {
		return ""
	}
	id, _ := payload["customer_id"].(string)
	return id
}

// isPro reports whether the request carries a verified customer with an
// active subscription. Provider failures downgrade to "not pro".
func (deps Deps) isPro(r *http.Request) bool {
	id := deps.customerID(r)
	if id == "" || deps.Billing == nil {
		return false
	}
	pro, err := deps.Billing.IsPro(r.Context(), id)
	if err != nil {
		slog.Warn("pro status check failed", "error", err)
		return false
	}
	return pro
}

// clientIP extracts the requester IP, preferring the first X-Forwarded-For
// hop when present.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
