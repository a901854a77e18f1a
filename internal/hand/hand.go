// Package hand tracks per-user ordered card holdings.
//
// A hand is an ordered list of distinct card IDs; insertion order is draw
// order. Hands are created implicitly on first draw, grow by append, and
// only ever shrink as one half of a trade swap, which preserves size.
package hand

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/louisbranch/arcana.cards/internal/kv"
	"github.com/louisbranch/arcana.cards/internal/platform/keylock"
)

const (
	keyPrefix = "hand:"
	indexKey  = "hand_index"
)

var (
	// ErrEmptyUserID indicates a missing user ID.
	ErrEmptyUserID = errors.New("user id is required")
	// ErrEmptyCardID indicates a missing card ID.
	ErrEmptyCardID = errors.New("card id is required")
	// ErrDuplicateCard indicates an append that would duplicate a held card.
	ErrDuplicateCard = errors.New("card already in hand")
	// ErrCardNotHeld indicates an operation on a card the user does not hold.
	ErrCardNotHeld = errors.New("card not in hand")
)

// UserHand pairs one user with their current hand, for export to the
// external sync layer.
type UserHand struct {
	UserID string
	Cards  []string
}

// Registry reads and mutates hands through the key-value store.
//
// Mutations serialize per user via keyed locks; this, together with the draw
// cooldown window, is the guard against overlapping read-modify-write cycles
// on one user's hand.
type Registry struct {
	store *kv.Store
	locks *keylock.Set
}

// NewRegistry creates a registry over store.
func NewRegistry(store *kv.Store) *Registry {
	return &Registry{store: store, locks: keylock.NewSet()}
}

// Hand returns the user's current hand, empty when none is on record.
func (r *Registry) Hand(ctx context.Context, user string) ([]string, error) {
	user = strings.TrimSpace(user)
	if user == "" {
		return nil, ErrEmptyUserID
	}
	unlock := r.locks.Lock(user)
	defer unlock()
	return r.readHand(ctx, user)
}

// AddCard appends cardID to the user's hand, creating the hand on first use.
func (r *Registry) AddCard(ctx context.Context, user, cardID string) error {
	user = strings.TrimSpace(user)
	if user == "" {
		return ErrEmptyUserID
	}
	cardID = strings.TrimSpace(cardID)
	if cardID == "" {
		return ErrEmptyCardID
	}

	unlock := r.locks.Lock(user)
	defer unlock()

	cards, err := r.readHand(ctx, user)
	if err != nil {
		return err
	}
	if slices.Contains(cards, cardID) {
		return fmt.Errorf("add %q to %s: %w", cardID, user, ErrDuplicateCard)
	}
	isNewHand := len(cards) == 0

	if err := r.writeHand(ctx, user, append(cards, cardID)); err != nil {
		return err
	}
	if isNewHand {
		return r.indexUser(ctx, user)
	}
	return nil
}

// Swap atomically exchanges cardA held by userA with cardB held by userB.
// Both hands keep their size; the received card is appended at the end. No
// intermediate state is observable through the registry.
func (r *Registry) Swap(ctx context.Context, userA, cardA, userB, cardB string) error {
	userA, userB = strings.TrimSpace(userA), strings.TrimSpace(userB)
	if userA == "" || userB == "" {
		return ErrEmptyUserID
	}
	cardA, cardB = strings.TrimSpace(cardA), strings.TrimSpace(cardB)
	if cardA == "" || cardB == "" {
		return ErrEmptyCardID
	}

	unlock := r.locks.LockPair(userA, userB)
	defer unlock()

	handA, err := r.readHand(ctx, userA)
	if err != nil {
		return err
	}
	handB, err := r.readHand(ctx, userB)
	if err != nil {
		return err
	}

	posA := slices.Index(handA, cardA)
	if posA < 0 {
		return fmt.Errorf("%s does not hold %q: %w", userA, cardA, ErrCardNotHeld)
	}
	posB := slices.Index(handB, cardB)
	if posB < 0 {
		return fmt.Errorf("%s does not hold %q: %w", userB, cardB, ErrCardNotHeld)
	}

	nextA := append(slices.Delete(slices.Clone(handA), posA, posA+1), cardB)
	nextB := append(slices.Delete(slices.Clone(handB), posB, posB+1), cardA)
	if countOf(nextA, cardB) > 1 {
		return fmt.Errorf("%s already holds %q: %w", userA, cardB, ErrDuplicateCard)
	}
	if countOf(nextB, cardA) > 1 {
		return fmt.Errorf("%s already holds %q: %w", userB, cardA, ErrDuplicateCard)
	}

	if err := r.writeHand(ctx, userA, nextA); err != nil {
		return err
	}
	return r.writeHand(ctx, userB, nextB)
}

// Count reports how many hands are on record. This is the population metric
// the milestone tracker observes on every draw.
func (r *Registry) Count(ctx context.Context) (int, error) {
	users, err := r.readIndex(ctx)
	if err != nil {
		return 0, err
	}
	return len(users), nil
}

// Hands returns every recorded hand, in first-draw order, for the external
// sync layer to export.
func (r *Registry) Hands(ctx context.Context) ([]UserHand, error) {
	users, err := r.readIndex(ctx)
	if err != nil {
		return nil, err
	}
	hands := make([]UserHand, 0, len(users))
	for _, user := range users {
		cards, err := r.Hand(ctx, user)
		if err != nil {
			return nil, err
		}
		hands = append(hands, UserHand{UserID: user, Cards: cards})
	}
	return hands, nil
}

func (r *Registry) readHand(ctx context.Context, user string) ([]string, error) {
	var cards []string
	if _, err := r.store.Get(ctx, keyPrefix+user, &cards, true); err != nil {
		return nil, fmt.Errorf("read hand for %s: %w", user, err)
	}
	return cards, nil
}

func (r *Registry) writeHand(ctx context.Context, user string, cards []string) error {
	if err := r.store.Set(ctx, keyPrefix+user, cards, kv.SetOptions{Persist: true}); err != nil {
		return fmt.Errorf("write hand for %s: %w", user, err)
	}
	return nil
}

func (r *Registry) indexUser(ctx context.Context, user string) error {
	unlock := r.locks.Lock(indexKey)
	defer unlock()

	users, err := r.readIndex(ctx)
	if err != nil {
		return err
	}
	if slices.Contains(users, user) {
		return nil
	}
	users = append(users, user)
	if err := r.store.Set(ctx, indexKey, users, kv.SetOptions{Persist: true}); err != nil {
		return fmt.Errorf("write hand index: %w", err)
	}
	return nil
}

func (r *Registry) readIndex(ctx context.Context) ([]string, error) {
	var users []string
	if _, err := r.store.Get(ctx, indexKey, &users, true); err != nil {
		return nil, fmt.Errorf("read hand index: %w", err)
	}
	return users, nil
}

func countOf(cards []string, cardID string) int {
	count := 0
	for _, card := range cards {
		if card == cardID {
			count++
		}
	}
	return count
}
