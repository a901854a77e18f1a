// Package draw resolves one draw request into a terminal outcome.
//
// A draw is gated by the rate limiter and the shared hand capacity, then
// succeeds or misses according to the configured probability. The first draw
// for a user always succeeds. Results are plain data; rendering belongs to
// the messaging layer.
package draw

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/louisbranch/arcana.cards/internal/catalog"
	"github.com/louisbranch/arcana.cards/internal/hand"
	"github.com/louisbranch/arcana.cards/internal/milestone"
	"github.com/louisbranch/arcana.cards/internal/platform/keylock"
	"github.com/louisbranch/arcana.cards/internal/ratelimit"
	"github.com/louisbranch/arcana.cards/internal/telemetry"
)

const tracerName = "github.com/louisbranch/arcana.cards/internal/draw"

// ErrEmptyUserID indicates a draw request without a user.
var ErrEmptyUserID = errors.New("user id is required")

// Status is the terminal state of one draw request.
type Status int

const (
	// StatusUnspecified represents an invalid draw status.
	StatusUnspecified Status = iota
	// StatusGated means the draw was refused before resolving; nothing was
	// mutated.
	StatusGated
	// StatusSuccess means a new card joined the user's hand.
	StatusSuccess
	// StatusMiss means the draw resolved without a card; only the cooldown
	// was started.
	StatusMiss
	// StatusDeckExhausted means the user already holds every catalog card.
	StatusDeckExhausted
)

func (s Status) String() string {
	switch s {
	case StatusGated:
		return "Gated"
	case StatusSuccess:
		return "Success"
	case StatusMiss:
		return "Miss"
	case StatusDeckExhausted:
		return "DeckExhausted"
	default:
		return "Unspecified"
	}
}

// GateReason explains a StatusGated result.
type GateReason string

const (
	// ReasonNone applies to non-gated results.
	ReasonNone GateReason = ""
	// ReasonTooSoon means the user is still in the draw cooldown window.
	ReasonTooSoon GateReason = "too soon"
	// ReasonHandFull means the hand is at the shared capacity.
	ReasonHandFull GateReason = "hand full"
)

// Result is the terminal outcome of one draw request.
type Result struct {
	Status   Status
	Reason   GateReason
	Card     catalog.CardDefinition
	HandSize int
}

// Config tunes draw resolution.
type Config struct {
	// SuccessProbability is the chance a non-first draw succeeds, in [0, 1].
	// The first draw for a user always succeeds regardless.
	SuccessProbability float64
}

// Engine orchestrates the limiter, hand registry, and milestone tracker to
// resolve draws. Draws for the same user run to completion in sequence.
type Engine struct {
	deck       *catalog.Catalog
	hands      *hand.Registry
	limiter    *ratelimit.Limiter
	milestones *milestone.Tracker
	emitter    *telemetry.Emitter

	probability float64
	randFloat   func() float64
	randIndex   func(n int) int

	locks  *keylock.Set
	tracer trace.Tracer
}

// NewEngine creates a draw engine. emitter may be nil.
func NewEngine(deck *catalog.Catalog, hands *hand.Registry, limiter *ratelimit.Limiter, milestones *milestone.Tracker, emitter *telemetry.Emitter, cfg Config) *Engine {
	probability := cfg.SuccessProbability
	if probability < 0 {
		probability = 0
	}
	if probability > 1 {
		probability = 1
	}
	return &Engine{
		deck:        deck,
		hands:       hands,
		limiter:     limiter,
		milestones:  milestones,
		emitter:     emitter,
		probability: probability,
		randFloat:   rand.Float64,
		randIndex:   rand.IntN,
		locks:       keylock.NewSet(),
		tracer:      otel.Tracer(tracerName),
	}
}

// Draw resolves one draw request for user.
func (e *Engine) Draw(ctx context.Context, user string) (Result, error) {
	if user == "" {
		return Result{}, ErrEmptyUserID
	}

	ctx, span := e.tracer.Start(ctx, "Draw", trace.WithAttributes(attribute.String("user.id", user)))
	defer span.End()

	unlock := e.locks.Lock(user)
	defer unlock()

	result, err := e.resolve(ctx, user)
	if err != nil {
		span.RecordError(err)
		return Result{}, err
	}
	span.SetAttributes(attribute.String("draw.status", result.Status.String()))
	return result, nil
}

func (e *Engine) resolve(ctx context.Context, user string) (Result, error) {
	limited, err := e.limiter.IsLimited(ctx, user)
	if err != nil {
		return Result{}, fmt.Errorf("check rate limit for %s: %w", user, err)
	}
	if limited {
		return Result{Status: StatusGated, Reason: ReasonTooSoon}, nil
	}

	held, err := e.hands.Hand(ctx, user)
	if err != nil {
		return Result{}, fmt.Errorf("read hand for %s: %w", user, err)
	}
	capacity, err := e.milestones.Capacity(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("read capacity: %w", err)
	}
	if len(held) >= capacity {
		return Result{Status: StatusGated, Reason: ReasonHandFull, HandSize: len(held)}, nil
	}

	// The cooldown starts before resolution so misses bound the retry rate
	// just like successes.
	if err := e.limiter.StartCooldown(ctx, user); err != nil {
		return Result{}, fmt.Errorf("start cooldown for %s: %w", user, err)
	}

	firstDraw := len(held) == 0
	if !firstDraw && e.randFloat() >= e.probability {
		e.emit(ctx, "draw.miss", user, "")
		return Result{Status: StatusMiss, HandSize: len(held)}, nil
	}

	pool := e.candidatePool(held)
	if len(pool) == 0 {
		e.emit(ctx, "draw.deck_exhausted", user, "")
		return Result{Status: StatusDeckExhausted, HandSize: len(held)}, nil
	}

	cardID := pool[e.randIndex(len(pool))]
	if err := e.hands.AddCard(ctx, user, cardID); err != nil {
		return Result{}, fmt.Errorf("append %q for %s: %w", cardID, user, err)
	}

	population, err := e.hands.Count(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("count hands: %w", err)
	}
	if err := e.milestones.Observe(ctx, population); err != nil {
		return Result{}, fmt.Errorf("observe milestones: %w", err)
	}

	card, err := e.deck.Lookup(cardID)
	if err != nil {
		return Result{}, fmt.Errorf("resolve drawn card: %w", err)
	}
	e.emit(ctx, "draw.success", user, cardID)
	return Result{Status: StatusSuccess, Card: card, HandSize: len(held) + 1}, nil
}

func (e *Engine) candidatePool(held []string) []string {
	holding := make(map[string]bool, len(held))
	for _, cardID := range held {
		holding[cardID] = true
	}
	var pool []string
	for _, cardID := range e.deck.IDs() {
		if !holding[cardID] {
			pool = append(pool, cardID)
		}
	}
	return pool
}

func (e *Engine) emit(ctx context.Context, name, user, cardID string) {
	attrs := map[string]string{"user": user}
	if cardID != "" {
		attrs["card"] = cardID
	}
	if err := e.emitter.Emit(ctx, telemetry.Event{Name: name, Attrs: attrs}); err != nil {
		log.Printf("draw: emit %s: %v", name, err)
	}
}
