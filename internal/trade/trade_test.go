package trade

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/louisbranch/arcana.cards/internal/hand"
	"github.com/louisbranch/arcana.cards/internal/kv"
	"github.com/louisbranch/arcana.cards/internal/kv/memory"
	"github.com/louisbranch/arcana.cards/internal/notify"
	"github.com/louisbranch/arcana.cards/internal/trade/history"
)

type manualScheduler struct {
	mu      sync.Mutex
	pending []func()
}

func (s *manualScheduler) AfterFunc(d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, fn)
}

// fire runs the i-th armed timer.
func (s *manualScheduler) fire(t *testing.T, i int) {
	t.Helper()
	s.mu.Lock()
	if i >= len(s.pending) {
		s.mu.Unlock()
		t.Fatalf("no timer %d armed (%d total)", i, len(s.pending))
	}
	fn := s.pending[i]
	s.mu.Unlock()
	fn()
}

type memoryHistory struct {
	mu      sync.Mutex
	records []history.Record
}

func (h *memoryHistory) AppendTradeRecord(ctx context.Context, record history.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, record)
	return nil
}

func (h *memoryHistory) ListByUser(ctx context.Context, userID string) ([]history.Record, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []history.Record
	for _, record := range h.records {
		if record.UserID == userID {
			out = append(out, record)
		}
	}
	return out, nil
}

type fixture struct {
	negotiator *Negotiator
	hands      *hand.Registry
	scheduler  *manualScheduler
	history    *memoryHistory
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	hands := hand.NewRegistry(kv.NewStore(memory.NewStore()))
	scheduler := &manualScheduler{}
	log := &memoryHistory{}
	negotiator := NewNegotiator(hands, log, notify.LogNotifier{}, nil, scheduler, time.Hour)
	return fixture{negotiator: negotiator, hands: hands, scheduler: scheduler, history: log}
}

func (f fixture) deal(t *testing.T, user string, cards ...string) {
	t.Helper()
	for _, cardID := range cards {
		if err := f.hands.AddCard(context.Background(), user, cardID); err != nil {
			t.Fatalf("AddCard(%s, %s): %v", user, cardID, err)
		}
	}
}

func (f fixture) wantHand(t *testing.T, user string, want ...string) {
	t.Helper()
	got, err := f.hands.Hand(context.Background(), user)
	if err != nil {
		t.Fatalf("Hand(%s): %v", user, err)
	}
	if len(got) != len(want) {
		t.Fatalf("hand for %s = %v, want %v", user, got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("hand for %s = %v, want %v", user, got, want)
		}
	}
}

func TestAcceptSwapsExactlyTheNamedCards(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	f.deal(t, "alice", "the_fool", "the_moon")
	f.deal(t, "bob", "the_star", "the_sun")

	if _, err := f.negotiator.Initiate(ctx, "alice", "the_fool", "bob", "the_star"); err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	offer, err := f.negotiator.Accept(ctx, "bob")
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if offer.Proposer != "alice" || offer.ProposerCard != "the_fool" {
		t.Fatalf("accepted offer = %+v", offer)
	}

	f.wantHand(t, "alice", "the_moon", "the_star")
	f.wantHand(t, "bob", "the_sun", "the_fool")

	got, err := f.history.ListByUser(ctx, "alice")
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(got) != 1 || got[0].Outcome != history.OutcomeAccepted || got[0].CardReceived != "the_star" {
		t.Fatalf("alice history = %+v", got)
	}
}

func TestInitiateValidatesOwnership(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	f.deal(t, "alice", "the_fool")
	f.deal(t, "bob", "the_star")

	if _, err := f.negotiator.Initiate(ctx, "alice", "the_tower", "bob", "the_star"); !errors.Is(err, ErrCardNotOwned) {
		t.Fatalf("Initiate with unowned proposer card: %v, want ErrCardNotOwned", err)
	}
	if _, err := f.negotiator.Initiate(ctx, "alice", "the_fool", "bob", "the_moon"); !errors.Is(err, ErrCardNotOwned) {
		t.Fatalf("Initiate with unowned responder card: %v, want ErrCardNotOwned", err)
	}
	if _, err := f.negotiator.Initiate(ctx, "alice", "the_fool", "alice", "the_fool"); !errors.Is(err, ErrSelfTrade) {
		t.Fatalf("self trade: %v, want ErrSelfTrade", err)
	}
}

func TestRejectLeavesHandsUntouched(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	f.deal(t, "alice", "the_fool")
	f.deal(t, "bob", "the_star")

	if _, err := f.negotiator.Initiate(ctx, "alice", "the_fool", "bob", "the_star"); err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if _, err := f.negotiator.Reject(ctx, "bob"); err != nil {
		t.Fatalf("Reject: %v", err)
	}

	f.wantHand(t, "alice", "the_fool")
	f.wantHand(t, "bob", "the_star")

	if _, err := f.negotiator.Accept(ctx, "bob"); !errors.Is(err, ErrNoPendingTrade) {
		t.Fatalf("Accept after reject: %v, want ErrNoPendingTrade", err)
	}

	got, err := f.history.ListByUser(ctx, "bob")
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(got) != 1 || got[0].Outcome != history.OutcomeRejected {
		t.Fatalf("bob history = %+v", got)
	}
}

func TestExpiryClearsTheOfferItArmed(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	f.deal(t, "alice", "the_fool")
	f.deal(t, "bob", "the_star")

	if _, err := f.negotiator.Initiate(ctx, "alice", "the_fool", "bob", "the_star"); err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	f.scheduler.fire(t, 0)

	f.wantHand(t, "alice", "the_fool")
	f.wantHand(t, "bob", "the_star")
	if _, err := f.negotiator.Accept(ctx, "bob"); !errors.Is(err, ErrNoPendingTrade) {
		t.Fatalf("Accept after expiry: %v, want ErrNoPendingTrade", err)
	}

	got, err := f.history.ListByUser(ctx, "bob")
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(got) != 1 || got[0].Outcome != history.OutcomeExpired {
		t.Fatalf("bob history = %+v", got)
	}
}

func TestStaleTimerCannotDestroyNewerOffer(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	f.deal(t, "alice", "the_fool")
	f.deal(t, "carol", "the_moon")
	f.deal(t, "bob", "the_star")

	if _, err := f.negotiator.Initiate(ctx, "alice", "the_fool", "bob", "the_star"); err != nil {
		t.Fatalf("Initiate first: %v", err)
	}
	second, err := f.negotiator.Initiate(ctx, "carol", "the_moon", "bob", "the_star")
	if err != nil {
		t.Fatalf("Initiate second: %v", err)
	}

	// The first offer's timer fires after being replaced.
	f.scheduler.fire(t, 0)

	pending, ok := f.negotiator.Pending(ctx, "bob")
	if !ok {
		t.Fatal("pending trade destroyed by stale timer")
	}
	if pending.ID != second.ID || pending.Proposer != "carol" {
		t.Fatalf("pending = %+v, want second offer", pending)
	}

	// The live offer's own timer still works.
	f.scheduler.fire(t, 1)
	if _, ok := f.negotiator.Pending(ctx, "bob"); ok {
		t.Fatal("second offer should have expired")
	}
}

func TestAcceptFailsWhenOwnershipDrifted(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	f.deal(t, "alice", "the_fool")
	f.deal(t, "bob", "the_star")
	f.deal(t, "carol", "the_moon")

	if _, err := f.negotiator.Initiate(ctx, "alice", "the_fool", "bob", "the_star"); err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	// Alice trades the promised card away before bob accepts.
	if _, err := f.negotiator.Initiate(ctx, "alice", "the_fool", "carol", "the_moon"); err != nil {
		t.Fatalf("Initiate side trade: %v", err)
	}
	if _, err := f.negotiator.Accept(ctx, "carol"); err != nil {
		t.Fatalf("Accept side trade: %v", err)
	}

	if _, err := f.negotiator.Accept(ctx, "bob"); !errors.Is(err, ErrCardNotOwned) {
		t.Fatalf("Accept drifted trade: %v, want ErrCardNotOwned", err)
	}
	// The dead offer is cleared.
	if _, ok := f.negotiator.Pending(ctx, "bob"); ok {
		t.Fatal("drifted offer should be cleared")
	}
	f.wantHand(t, "bob", "the_star")
}

func TestConcurrentOffersToDistinctResponders(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	cards := []string{
		"the_fool", "the_magician", "the_high_priestess", "the_empress",
		"the_emperor", "the_hierophant", "the_lovers", "the_chariot",
	}
	f.deal(t, "alice", "the_star")
	for i, cardID := range cards {
		f.deal(t, fmt.Sprintf("responder-%d", i), cardID)
	}

	var wg sync.WaitGroup
	for i, cardID := range cards {
		wg.Add(1)
		go func() {
			defer wg.Done()
			responder := fmt.Sprintf("responder-%d", i)
			if _, err := f.negotiator.Initiate(ctx, "alice", "the_star", responder, cardID); err != nil {
				t.Errorf("Initiate for %s: %v", responder, err)
			}
		}()
	}
	wg.Wait()

	for i, cardID := range cards {
		responder := fmt.Sprintf("responder-%d", i)
		pending, ok := f.negotiator.Pending(ctx, responder)
		if !ok {
			t.Fatalf("no pending trade for %s", responder)
		}
		if pending.ResponderCard != cardID {
			t.Fatalf("pending for %s asks for %q, want %q", responder, pending.ResponderCard, cardID)
		}
	}
}

func TestLastOfferWins(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	f.deal(t, "alice", "the_fool", "the_moon")
	f.deal(t, "bob", "the_star")

	if _, err := f.negotiator.Initiate(ctx, "alice", "the_fool", "bob", "the_star"); err != nil {
		t.Fatalf("Initiate first: %v", err)
	}
	if _, err := f.negotiator.Initiate(ctx, "alice", "the_moon", "bob", "the_star"); err != nil {
		t.Fatalf("Initiate second: %v", err)
	}

	offer, err := f.negotiator.Accept(ctx, "bob")
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if offer.ProposerCard != "the_moon" {
		t.Fatalf("accepted card = %q, want the_moon (last offer)", offer.ProposerCard)
	}
	f.wantHand(t, "alice", "the_fool", "the_star")
	f.wantHand(t, "bob", "the_moon")
}
