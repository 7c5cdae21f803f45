package pricing

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

type fileTable struct {
	Likes       uint64 `toml:"likes"`
	Reposts     uint64 `toml:"reposts"`
	Quotes      uint64 `toml:"quotes"`
	Replies     uint64 `toml:"replies"`
	Bookmarks   uint64 `toml:"bookmarks"`
	Impressions uint64 `toml:"impressions"`
}

// LoadCostTable reads a per-counter unit price table from a TOML file.
// Counters omitted from the file default to a zero unit price.
func LoadCostTable(path string) (CostTable, error) {
	if strings.TrimSpace(path) == "" {
		return CostTable{}, errors.New("pricing: cost table path required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return CostTable{}, fmt.Errorf("pricing: read cost table: %w", err)
	}
	var parsed fileTable
	if err := toml.Unmarshal(data, &parsed); err != nil {
		return CostTable{}, fmt.Errorf("pricing: parse cost table: %w", err)
	}
	return CostTable{
		Likes:       parsed.Likes,
		Reposts:     parsed.Reposts,
		Quotes:      parsed.Quotes,
		Replies:     parsed.Replies,
		Bookmarks:   parsed.Bookmarks,
		Impressions: parsed.Impressions,
	}, nil
}
