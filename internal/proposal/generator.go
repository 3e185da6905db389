// Package proposal generates trade-business proposal documents, preferring
// a cached or freshly generated completion and falling back to a
// deterministic template when generation is unavailable.
package proposal

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/gtjio/gtj/internal/ai"
	"github.com/gtjio/gtj/internal/events"
	"github.com/gtjio/gtj/internal/storage"
)

// Source identifies which path produced the proposal text.
type Source string

const (
	SourceCache    Source = "cache"
	SourceAI       Source = "ai"
	SourceFallback Source = "fallback"
)

// Completer abstracts the external completion provider.
type Completer interface {
	Complete(ctx context.Context, req ai.Request) (string, error)
}

// CacheStore is the slice of storage the generator needs.
// Implemented by storage.Store.
type CacheStore interface {
	CacheLookup(inputHash string) (storage.CacheEntry, error)
	CacheStore(e storage.CacheEntry) error
	CacheTouch(inputHash string, now time.Time) error
	CacheEvict(olderThan time.Time) (int64, error)
}

// Generator orchestrates cache lookup, two-pass generation, and fallback.
type Generator struct {
	store    CacheStore
	ai       Completer
	events   events.Sink
	evictAge time.Duration
	now      func() time.Time
	group    singleflight.Group
}

// New creates a Generator. evictAge bounds how long unused cache entries
// survive; entries older than it are opportunistically swept on lookups.
func New(store CacheStore, completer Completer, sink events.Sink, evictAge time.Duration) *Generator {
	if sink == nil {
		sink = events.Noop{}
	}
	return &Generator{
		store:    store,
		ai:       completer,
		events:   sink,
		evictAge: evictAge,
		now:      time.Now,
	}
}

// Build returns proposal text for the input. It never fails: when both the
// cache and the provider come up empty the deterministic fallback document
// is returned, so callers always receive a usable proposal.
func (g *Generator) Build(ctx context.Context, in Input) (string, Source) {
	in = in.Trim()
	trade := NormalizeTrade(in.Trade)
	key := CacheKey(in)

	// Opportunistic eviction; failures never block the request.
	if _, err := g.store.CacheEvict(g.now().Add(-g.evictAge)); err != nil {
		slog.Warn("cache eviction failed", "error", err)
	}

	entry, err := g.store.CacheLookup(key)
	if err == nil {
		if err := g.store.CacheTouch(key, g.now()); err != nil {
			slog.Warn("cache touch failed", "error", err)
		}
		g.events.Record("ai_cache_hit", "trade", trade)
		return entry.ProposalText, SourceCache
	}
	if err != storage.ErrNotFound {
		slog.Warn("cache lookup failed", "error", err)
	}

	// Collapse concurrent identical generations onto one provider call.
	result, genErr, _ := g.group.Do(key, func() (any, error) {
		return g.generate(ctx, in, trade)
	})
	if genErr != nil {
		g.events.Record("ai_failed", "trade", trade, "error", genErr.Error())
		g.events.Record("fallback_used", "trade", trade)
		return Fallback(in), SourceFallback
	}

	text := result.(string)
	now := g.now()
	if err := g.store.CacheStore(storage.CacheEntry{
		InputHash:    key,
		ProposalText: text,
		Trade:        trade,
		CreatedAt:    now,
		LastUsedAt:   now,
	}); err != nil {
		slog.Warn("cache store failed", "error", err)
	}
	g.events.Record("ai_used", "trade", trade)
	return text, SourceAI
}

// generate runs the two-pass protocol: derive a locked scope bullet list,
// then produce the full document around it.
func (g *Generator) generate(ctx context.Context, in Input, trade string) (string, error) {
	if g.ai == nil {
		return "", fmt.Errorf("completion provider not configured")
	}

	bullets, err := g.scopeBullets(ctx, in)
	if err != nil {
		// Degrade to a mechanical conversion of the raw scope lines
		// rather than aborting the whole generation.
		bullets = MechanicalBullets(in.Scope)
	}

	text, err := g.fullDocument(ctx, in, trade, bullets)
	if err != nil {
		return "", err
	}
	return text, nil
}

// scopeBullets is pass 1: a bullet list strictly constrained to the
// caller's scope notes. Temperature is pinned to 0 so identical notes
// produce identical bullets.
func (g *Generator) scopeBullets(ctx context.Context, in Input) ([]string, error) {
	if strings.TrimSpace(in.Scope) == "" {
		return nil, nil
	}

	out, err := g.ai.Complete(ctx, ai.Request{
		Instructions: "You convert raw tradesperson scope notes into a clean bullet list. " +
			"Output only bullet lines starting with '- '. " +
			"Use only the information in the notes. Do not add, merge, or invent scope items.",
		Input:           "Scope notes:\n" + in.Scope,
		Temperature:     0,
		MaxOutputTokens: 300,
	})
	if err != nil {
		return nil, fmt.Errorf("scope bullet pass: %w", err)
	}

	bullets := MechanicalBullets(out)
	if len(bullets) == 0 {
		return nil, fmt.Errorf("scope bullet pass returned no bullets")
	}
	return bullets, nil
}

// fullDocument is pass 2: the complete proposal, with the pass-1 bullets
// as a locked section the model may not add to or remove from.
func (g *Generator) fullDocument(ctx context.Context, in Input, trade string, bullets []string) (string, error) {
	instructions := Profile(trade) + "\n" +
		"You write clear, professional proposals for small service businesses. " +
		"Use plain language. Be concise. Do not mention AI. " +
		"Write in Australian English."

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Business: %s\n", orDefault(in.Business, "Your Business"))
	fmt.Fprintf(&prompt, "Client: %s\n", orDefault(in.ClientName, "Client"))
	fmt.Fprintf(&prompt, "Service: %s\n\n", orDefault(in.ServiceType, "Service"))

	if len(bullets) > 0 {
		prompt.WriteString("Scope of Work (use exactly these bullet points; do not add or remove any):\n")
		for _, b := range bullets {
			prompt.WriteString("- " + b + "\n")
		}
		prompt.WriteString("\n")
	}

	if in.Timeframe != "" {
		fmt.Fprintf(&prompt, "Timeframe: %s\n", in.Timeframe)
	}
	fmt.Fprintf(&prompt, "Price: %s\n", orDefault(in.Price, "To be confirmed"))
	fmt.Fprintf(&prompt, "Tone: %s\n\n", orDefault(in.Tone, "Professional"))

	prompt.WriteString(`Produce a proposal with these exact sections:
1) Overview
2) Scope of Work (bullet points)
3) Timeline
4) Pricing
5) Payment Terms
6) Acceptance / Next Steps

Do not invent scope items. Display the price exactly as supplied; never invent a number.
If information is missing, use reasonable placeholders.`)

	text, err := g.ai.Complete(ctx, ai.Request{
		Instructions:    instructions,
		Input:           prompt.String(),
		Temperature:     0.3,
		MaxOutputTokens: 900,
	})
	if err != nil {
		return "", fmt.Errorf("document pass: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", ai.ErrEmptyCompletion
	}
	return text, nil
}
