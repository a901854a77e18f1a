package catalog

// DefaultDeck returns the built-in major-arcana deck in draw-pool order.
func DefaultDeck() *Catalog {
	deck, err := New(defaultCards())
	if err != nil {
		// The built-in deck is static data; a validation failure here is a
		// programming error.
		panic(err)
	}
	return deck
}

func defaultCards() []CardDefinition {
	return []CardDefinition{
		{ID: "the_fool", Name: "The Fool", Requirements: "start something you are not ready for", Flavor: "ooooh! what's this deck of cards doing here?"},
		{ID: "the_magician", Name: "The Magician", Requirements: "ship a demo held together with tape", Flavor: "as above, so below."},
		{ID: "the_high_priestess", Name: "The High Priestess", Requirements: "read the docs before asking", Flavor: "she already knows how it ends."},
		{ID: "the_empress", Name: "The Empress", Requirements: "grow a project past its first user", Flavor: "everything planted here blooms."},
		{ID: "the_emperor", Name: "The Emperor", Requirements: "write the rules down", Flavor: "order is a kind of shelter."},
		{ID: "the_hierophant", Name: "The Hierophant", Requirements: "teach someone what you just learned", Flavor: "tradition is a patch that stuck."},
		{ID: "the_lovers", Name: "The Lovers", Requirements: "merge two branches without regret", Flavor: "a choice, not a feeling."},
		{ID: "the_chariot", Name: "The Chariot", Requirements: "finish what you said you would", Flavor: "momentum answers to no one."},
		{ID: "strength", Name: "Strength", Requirements: "debug calmly at 2am", Flavor: "the gentlest hand holds the lion."},
		{ID: "the_hermit", Name: "The Hermit", Requirements: "work a week with notifications off", Flavor: "the lantern lights one step at a time."},
		{ID: "wheel_of_fortune", Name: "Wheel of Fortune", Requirements: "get lucky and admit it", Flavor: "the wheel turns whether you push or not."},
		{ID: "justice", Name: "Justice", Requirements: "credit the person who actually fixed it", Flavor: "the scales do not round up."},
		{ID: "the_hanged_man", Name: "The Hanged Man", Requirements: "abandon a week of work on purpose", Flavor: "a new angle costs everything."},
		{ID: "death", Name: "Death", Requirements: "delete the old version for good", Flavor: "endings are just unreleased beginnings."},
		{ID: "temperance", Name: "Temperance", Requirements: "balance scope against the deadline", Flavor: "pour slowly."},
		{ID: "the_cryptid", Name: "The Cryptid", Requirements: "be seen once, clearly, then vanish", Flavor: "blurry photo. footprints end mid-field."},
		{ID: "the_monolith", Name: "The Monolith", Requirements: "build the thing nobody can explain", Flavor: "it was already here when we arrived."},
		{ID: "the_star", Name: "The Star", Requirements: "keep going after the launch flops", Flavor: "hope is a renewable resource."},
		{ID: "the_moon", Name: "The Moon", Requirements: "ship while doubting everything", Flavor: "not everything that glows is true."},
		{ID: "the_sun", Name: "The Sun", Requirements: "celebrate loudly", Flavor: "it works. it actually works."},
		{ID: "judgement", Name: "Judgement", Requirements: "answer for the code you wrote", Flavor: "the changelog remembers."},
		{ID: "the_world", Name: "The World", Requirements: "collect every other card", Flavor: "the circle closes."},
	}
}
