package catalog

import (
	"encoding/json"
	"fmt"
	"io"
)

type cardManifest struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Requirements string     `json:"requirements"`
	Flavor       FlavorText `json:"flavor"`
}

// LoadJSON reads an ordered card manifest from r.
//
// The manifest is a JSON array of card objects. The flavor field accepts a
// string or a list of strings.
func LoadJSON(r io.Reader) (*Catalog, error) {
	var manifests []cardManifest
	decoder := json.NewDecoder(r)
	if err := decoder.Decode(&manifests); err != nil {
		return nil, fmt.Errorf("decode card manifest: %w", err)
	}

	cards := make([]CardDefinition, 0, len(manifests))
	for _, manifest := range manifests {
		cards = append(cards, CardDefinition{
			ID:           manifest.ID,
			Name:         manifest.Name,
			Requirements: manifest.Requirements,
			Flavor:       manifest.Flavor,
		})
	}
	return New(cards)
}
