// Package catalog defines the immutable card catalog consumed by the engine.
//
// The catalog is an ordered collection of card definitions. Content is owned
// by an external service; this package only validates and indexes whatever
// deck it is given, and ships a default major-arcana deck for standalone use.
package catalog

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyCardID indicates a card definition without a stable ID.
	ErrEmptyCardID = errors.New("card id is required")
	// ErrDuplicateCardID indicates two definitions sharing one ID.
	ErrDuplicateCardID = errors.New("duplicate card id")
	// ErrCardNotFound indicates a lookup for an unknown card ID.
	ErrCardNotFound = errors.New("card not found in catalog")
)

// CardDefinition describes one collectible card.
type CardDefinition struct {
	ID           string
	Name         string
	Requirements string
	Flavor       FlavorText
}

// Catalog is an ordered, immutable set of card definitions.
type Catalog struct {
	cards []CardDefinition
	index map[string]int
}

// New builds a catalog from ordered definitions, rejecting blank or
// duplicate IDs.
func New(cards []CardDefinition) (*Catalog, error) {
	index := make(map[string]int, len(cards))
	ordered := make([]CardDefinition, 0, len(cards))
	for i, card := range cards {
		card.ID = strings.TrimSpace(card.ID)
		if card.ID == "" {
			return nil, fmt.Errorf("card %d: %w", i, ErrEmptyCardID)
		}
		if _, exists := index[card.ID]; exists {
			return nil, fmt.Errorf("card %q: %w", card.ID, ErrDuplicateCardID)
		}
		index[card.ID] = len(ordered)
		ordered = append(ordered, card)
	}
	return &Catalog{cards: ordered, index: index}, nil
}

// Len reports the number of cards in the catalog.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.cards)
}

// IDs returns card IDs in catalog order.
func (c *Catalog) IDs() []string {
	if c == nil {
		return nil
	}
	ids := make([]string, len(c.cards))
	for i, card := range c.cards {
		ids[i] = card.ID
	}
	return ids
}

// Lookup fetches one card definition by ID.
func (c *Catalog) Lookup(cardID string) (CardDefinition, error) {
	if c == nil {
		return CardDefinition{}, ErrCardNotFound
	}
	position, ok := c.index[strings.TrimSpace(cardID)]
	if !ok {
		return CardDefinition{}, fmt.Errorf("card %q: %w", cardID, ErrCardNotFound)
	}
	return c.cards[position], nil
}

// Contains reports whether the catalog defines cardID.
func (c *Catalog) Contains(cardID string) bool {
	if c == nil {
		return false
	}
	_, ok := c.index[strings.TrimSpace(cardID)]
	return ok
}

// Cards returns a copy of the ordered definitions.
func (c *Catalog) Cards() []CardDefinition {
	if c == nil {
		return nil
	}
	return append([]CardDefinition(nil), c.cards...)
}
