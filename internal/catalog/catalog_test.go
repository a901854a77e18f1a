package catalog

import (
	"errors"
	"strings"
	"testing"
)

func TestNewRejectsDuplicateIDs(t *testing.T) {
	t.Parallel()

	_, err := New([]CardDefinition{
		{ID: "the_fool", Name: "The Fool"},
		{ID: "the_fool", Name: "The Fool Again"},
	})
	if !errors.Is(err, ErrDuplicateCardID) {
		t.Fatalf("expected ErrDuplicateCardID, got %v", err)
	}
}

func TestNewRejectsBlankID(t *testing.T) {
	t.Parallel()

	_, err := New([]CardDefinition{{ID: "  ", Name: "Nameless"}})
	if !errors.Is(err, ErrEmptyCardID) {
		t.Fatalf("expected ErrEmptyCardID, got %v", err)
	}
}

func TestLookupAndOrder(t *testing.T) {
	t.Parallel()

	deck, err := New([]CardDefinition{
		{ID: "the_star", Name: "The Star"},
		{ID: "the_moon", Name: "The Moon"},
	})
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}

	card, err := deck.Lookup("the_moon")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if card.Name != "The Moon" {
		t.Fatalf("expected The Moon, got %q", card.Name)
	}

	if _, err := deck.Lookup("the_tower"); !errors.Is(err, ErrCardNotFound) {
		t.Fatalf("expected ErrCardNotFound, got %v", err)
	}

	ids := deck.IDs()
	if len(ids) != 2 || ids[0] != "the_star" || ids[1] != "the_moon" {
		t.Fatalf("unexpected id order: %v", ids)
	}
}

func TestLoadJSONFlavorForms(t *testing.T) {
	t.Parallel()

	manifest := `[
	  {"id": "the_sun", "name": "The Sun", "requirements": "celebrate", "flavor": "it works."},
	  {"id": "the_cryptid", "name": "The Cryptid", "flavor": ["blurry photo.", "footprints end mid-field."]}
	]`

	deck, err := LoadJSON(strings.NewReader(manifest))
	if err != nil {
		t.Fatalf("load manifest: %v", err)
	}
	if deck.Len() != 2 {
		t.Fatalf("expected 2 cards, got %d", deck.Len())
	}

	sun, err := deck.Lookup("the_sun")
	if err != nil {
		t.Fatalf("lookup the_sun: %v", err)
	}
	if sun.Flavor.String() != "it works." {
		t.Fatalf("unexpected string flavor: %q", sun.Flavor)
	}

	cryptid, err := deck.Lookup("the_cryptid")
	if err != nil {
		t.Fatalf("lookup the_cryptid: %v", err)
	}
	if cryptid.Flavor.String() != "blurry photo. footprints end mid-field." {
		t.Fatalf("unexpected list flavor: %q", cryptid.Flavor)
	}
}

func TestLoadJSONRejectsInvalidFlavor(t *testing.T) {
	t.Parallel()

	_, err := LoadJSON(strings.NewReader(`[{"id": "x", "flavor": 7}]`))
	if err == nil {
		t.Fatal("expected error for numeric flavor")
	}
}

func TestDefaultDeck(t *testing.T) {
	t.Parallel()

	deck := DefaultDeck()
	if deck.Len() != 22 {
		t.Fatalf("expected 22 major arcana, got %d", deck.Len())
	}
	for _, id := range []string{"the_fool", "the_cryptid", "the_monolith", "the_world"} {
		if !deck.Contains(id) {
			t.Fatalf("expected deck to contain %q", id)
		}
	}
	if deck.Contains("the_tower") {
		t.Fatal("the_tower should not be in this deck")
	}
}
