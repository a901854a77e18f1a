// Package trade implements the two-party card trade negotiation protocol.
//
// Each responder has one trade slot: NoTrade -> Pending -> {Accepted,
// Rejected, Expired} -> NoTrade. A new offer to the same responder
// unconditionally replaces the pending one (last offer wins). Whichever of
// accept, reject, or expiry runs first for a slot wins; the others observe
// no pending trade.
//
// Expiry safety rests on a per-slot epoch counter incremented on every
// transition: a timer captures the epoch it was armed under and is a no-op
// once the slot has moved on, so a stale timer can never destroy a newer
// offer.
package trade

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/louisbranch/arcana.cards/internal/hand"
	"github.com/louisbranch/arcana.cards/internal/notify"
	"github.com/louisbranch/arcana.cards/internal/platform/id"
	"github.com/louisbranch/arcana.cards/internal/platform/keylock"
	"github.com/louisbranch/arcana.cards/internal/telemetry"
	"github.com/louisbranch/arcana.cards/internal/trade/history"
)

const tracerName = "github.com/louisbranch/arcana.cards/internal/trade"

var (
	// ErrEmptyUserID indicates a missing proposer or responder ID.
	ErrEmptyUserID = errors.New("user id is required")
	// ErrEmptyCardID indicates a missing card ID.
	ErrEmptyCardID = errors.New("card id is required")
	// ErrSelfTrade indicates a proposer offering a trade to themselves.
	ErrSelfTrade = errors.New("cannot trade with yourself")
	// ErrCardNotOwned indicates a referenced card is not in its user's hand.
	ErrCardNotOwned = errors.New("card not owned")
	// ErrNoPendingTrade indicates no live trade exists for the responder.
	ErrNoPendingTrade = errors.New("no pending trade")
)

// PendingTrade is one live offer occupying a responder's slot.
type PendingTrade struct {
	ID            string
	Proposer      string
	ProposerCard  string
	Responder     string
	ResponderCard string
	CreatedAt     time.Time
}

// Scheduler arms the expiration timer. Tests drive callbacks manually.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func())
}

type timerScheduler struct{}

func (timerScheduler) AfterFunc(d time.Duration, fn func()) {
	time.AfterFunc(d, fn)
}

type slotState struct {
	trade *PendingTrade
	epoch uint64
}

// Negotiator owns the per-responder trade slots. Pending trades live only in
// memory: a crash loses in-flight offers, which is acceptable since they are
// ephemeral.
type Negotiator struct {
	hands     *hand.Registry
	log       history.Store
	notifier  notify.Notifier
	emitter   *telemetry.Emitter
	scheduler Scheduler
	ttl       time.Duration
	clock     func() time.Time
	newID     func() (string, error)

	locks *keylock.Set

	// slotsMu guards the slots map itself; the per-responder lock in locks
	// guards each slot's state transitions.
	slotsMu sync.Mutex
	slots   map[string]*slotState

	tracer trace.Tracer
}

// NewNegotiator creates a negotiator. log and emitter may be nil; scheduler
// defaults to real timers.
func NewNegotiator(hands *hand.Registry, log history.Store, notifier notify.Notifier, emitter *telemetry.Emitter, scheduler Scheduler, ttl time.Duration) *Negotiator {
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	if scheduler == nil {
		scheduler = timerScheduler{}
	}
	return &Negotiator{
		hands:     hands,
		log:       log,
		notifier:  notifier,
		emitter:   emitter,
		scheduler: scheduler,
		ttl:       ttl,
		clock:     time.Now,
		newID:     id.NewID,
		locks:     keylock.NewSet(),
		slots:     make(map[string]*slotState),
		tracer:    otel.Tracer(tracerName),
	}
}

// Initiate proposes swapping proposerCard for responderCard. Any pending
// offer for the responder is replaced, and an expiration timer is armed for
// this specific offer.
func (n *Negotiator) Initiate(ctx context.Context, proposer, proposerCard, responder, responderCard string) (PendingTrade, error) {
	proposer, responder = strings.TrimSpace(proposer), strings.TrimSpace(responder)
	if proposer == "" || responder == "" {
		return PendingTrade{}, ErrEmptyUserID
	}
	proposerCard, responderCard = strings.TrimSpace(proposerCard), strings.TrimSpace(responderCard)
	if proposerCard == "" || responderCard == "" {
		return PendingTrade{}, ErrEmptyCardID
	}
	if proposer == responder {
		return PendingTrade{}, ErrSelfTrade
	}

	ctx, span := n.startSpan(ctx, "InitiateTrade", responder)
	defer span.End()

	if err := n.checkOwnership(ctx, proposer, proposerCard); err != nil {
		return PendingTrade{}, err
	}
	if err := n.checkOwnership(ctx, responder, responderCard); err != nil {
		return PendingTrade{}, err
	}

	tradeID, err := n.newID()
	if err != nil {
		return PendingTrade{}, fmt.Errorf("generate trade id: %w", err)
	}
	offer := PendingTrade{
		ID:            tradeID,
		Proposer:      proposer,
		ProposerCard:  proposerCard,
		Responder:     responder,
		ResponderCard: responderCard,
		CreatedAt:     n.now(),
	}

	unlock := n.locks.Lock(responder)
	slot := n.slot(responder)
	slot.trade = &offer
	slot.epoch++
	armedEpoch := slot.epoch
	unlock()

	if n.ttl > 0 {
		expireCtx := context.WithoutCancel(ctx)
		n.scheduler.AfterFunc(n.ttl, func() {
			n.expire(expireCtx, responder, armedEpoch)
		})
	}

	if err := n.notifier.PromptTrade(ctx, notify.PromptTradeInput{
		ResponderID:   responder,
		ProposerID:    proposer,
		ProposerCard:  proposerCard,
		ResponderCard: responderCard,
	}); err != nil {
		log.Printf("trade: prompt %s: %v", responder, err)
	}
	n.emit(ctx, "trade.initiated", offer)
	return offer, nil
}

// Accept executes the trade pending for responder. Ownership is re-validated
// against current hands, since cards may have moved since initiation.
func (n *Negotiator) Accept(ctx context.Context, responder string) (PendingTrade, error) {
	responder = strings.TrimSpace(responder)
	if responder == "" {
		return PendingTrade{}, ErrEmptyUserID
	}

	ctx, span := n.startSpan(ctx, "AcceptTrade", responder)
	defer span.End()

	unlock := n.locks.Lock(responder)
	defer unlock()

	slot := n.slot(responder)
	if slot.trade == nil {
		return PendingTrade{}, ErrNoPendingTrade
	}
	offer := *slot.trade

	err := n.hands.Swap(ctx, offer.Proposer, offer.ProposerCard, offer.Responder, offer.ResponderCard)
	if err != nil {
		if errors.Is(err, hand.ErrCardNotHeld) || errors.Is(err, hand.ErrDuplicateCard) {
			// Ownership drifted since initiation; the offer is dead.
			slot.trade = nil
			slot.epoch++
			return PendingTrade{}, fmt.Errorf("%w: %v", ErrCardNotOwned, err)
		}
		return PendingTrade{}, fmt.Errorf("swap cards: %w", err)
	}

	slot.trade = nil
	slot.epoch++

	now := n.now()
	n.record(ctx, history.Record{
		UserID:       offer.Proposer,
		Counterparty: offer.Responder,
		CardGiven:    offer.ProposerCard,
		CardReceived: offer.ResponderCard,
		Outcome:      history.OutcomeAccepted,
		Timestamp:    now,
	})
	n.record(ctx, history.Record{
		UserID:       offer.Responder,
		Counterparty: offer.Proposer,
		CardGiven:    offer.ResponderCard,
		CardReceived: offer.ProposerCard,
		Outcome:      history.OutcomeAccepted,
		Timestamp:    now,
	})
	n.emit(ctx, "trade.accepted", offer)
	return offer, nil
}

// Reject discards the trade pending for responder without touching hands.
func (n *Negotiator) Reject(ctx context.Context, responder string) (PendingTrade, error) {
	responder = strings.TrimSpace(responder)
	if responder == "" {
		return PendingTrade{}, ErrEmptyUserID
	}

	ctx, span := n.startSpan(ctx, "RejectTrade", responder)
	defer span.End()

	unlock := n.locks.Lock(responder)
	defer unlock()

	slot := n.slot(responder)
	if slot.trade == nil {
		return PendingTrade{}, ErrNoPendingTrade
	}
	offer := *slot.trade
	slot.trade = nil
	slot.epoch++

	n.record(ctx, history.Record{
		UserID:       offer.Responder,
		Counterparty: offer.Proposer,
		Outcome:      history.OutcomeRejected,
		Timestamp:    n.now(),
	})
	n.emit(ctx, "trade.rejected", offer)
	return offer, nil
}

// Pending returns the live offer for responder, if any.
func (n *Negotiator) Pending(ctx context.Context, responder string) (PendingTrade, bool) {
	unlock := n.locks.Lock(strings.TrimSpace(responder))
	defer unlock()
	slot := n.slot(strings.TrimSpace(responder))
	if slot.trade == nil {
		return PendingTrade{}, false
	}
	return *slot.trade, true
}

func (n *Negotiator) expire(ctx context.Context, responder string, armedEpoch uint64) {
	unlock := n.locks.Lock(responder)
	defer unlock()

	slot := n.slot(responder)
	// The slot moved on (newer offer, accept, or reject) since this timer
	// was armed; firing now would destroy state that is not ours.
	if slot.epoch != armedEpoch || slot.trade == nil {
		return
	}
	offer := *slot.trade
	slot.trade = nil
	slot.epoch++

	n.record(ctx, history.Record{
		UserID:       offer.Responder,
		Counterparty: offer.Proposer,
		Outcome:      history.OutcomeExpired,
		Timestamp:    n.now(),
	})
	if err := n.notifier.Notify(ctx, offer.Proposer, "your trade offer expired"); err != nil {
		log.Printf("trade: notify %s: %v", offer.Proposer, err)
	}
	n.emit(ctx, "trade.expired", offer)
}

func (n *Negotiator) checkOwnership(ctx context.Context, user, cardID string) error {
	held, err := n.hands.Hand(ctx, user)
	if err != nil {
		return fmt.Errorf("read hand for %s: %w", user, err)
	}
	for _, ownedCard := range held {
		if ownedCard == cardID {
			return nil
		}
	}
	return fmt.Errorf("%s does not hold %q: %w", user, cardID, ErrCardNotOwned)
}

// slot fetches or creates the responder's slot. Callers must hold the
// responder's lock before touching the returned state.
func (n *Negotiator) slot(responder string) *slotState {
	n.slotsMu.Lock()
	defer n.slotsMu.Unlock()
	state, ok := n.slots[responder]
	if !ok {
		state = &slotState{}
		n.slots[responder] = state
	}
	return state
}

func (n *Negotiator) record(ctx context.Context, record history.Record) {
	if n.log == nil {
		return
	}
	if err := n.log.AppendTradeRecord(ctx, record); err != nil {
		log.Printf("trade: append history for %s: %v", record.UserID, err)
	}
}

func (n *Negotiator) emit(ctx context.Context, name string, offer PendingTrade) {
	if err := n.emitter.Emit(ctx, telemetry.Event{
		Name: name,
		Attrs: map[string]string{
			"trade":     offer.ID,
			"proposer":  offer.Proposer,
			"responder": offer.Responder,
		},
	}); err != nil {
		log.Printf("trade: emit %s: %v", name, err)
	}
}

func (n *Negotiator) startSpan(ctx context.Context, name, responder string) (context.Context, trace.Span) {
	return n.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("trade.responder", responder)))
}

func (n *Negotiator) now() time.Time {
	if n.clock == nil {
		return time.Now().UTC()
	}
	return n.clock().UTC()
}
