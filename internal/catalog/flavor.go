package catalog

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FlavorText is a card's flavor copy. Content manifests may provide either a
// single string or a list of strings; a list is treated as equivalent to the
// lines joined with spaces. The engine never evaluates flavor content.
type FlavorText string

// UnmarshalJSON accepts both the string and list-of-strings manifest forms.
func (f *FlavorText) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*f = FlavorText(single)
		return nil
	}
	var lines []string
	if err := json.Unmarshal(data, &lines); err != nil {
		return fmt.Errorf("flavor must be a string or list of strings: %w", err)
	}
	*f = FlavorText(strings.Join(lines, " "))
	return nil
}

// String returns the normalized flavor copy.
func (f FlavorText) String() string {
	return string(f)
}
