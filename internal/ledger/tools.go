package ledger

import (
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
)

// Draft is what a tool hands over when it saves a lineup
type Draft struct {
	Name            string
	Picks           []Pick
	EntryAmount     decimal.Decimal
	ProjectedPayout decimal.Decimal

	// Confidence is the lineup confidence, 0-100. PrizePicks ignores it and
	// averages the pick confidences instead.
	Confidence float64
}

type toolProfile struct {
	source string
	tags   []string
}

var toolProfiles = map[Category]toolProfile{
	CategoryMoneyMaker: {source: "Money Maker Pro", tags: []string{"ai-generated", "money-maker"}},
	CategoryPrizePicks: {source: "PrizePicks Pro", tags: []string{"props", "prizepicks"}},
	CategoryPropOllama: {source: "PropOllama AI", tags: []string{"ai-analysis", "llm-generated"}},
}

// MoneyMakerLineup builds an active Money Maker lineup
func MoneyMakerLineup(d Draft) NewLineup {
	return toolLineup(CategoryMoneyMaker, d, d.Confidence)
}

// PrizePicksLineup builds an active PrizePicks lineup whose confidence is the
// mean pick confidence
func PrizePicksLineup(d Draft) NewLineup {
	return toolLineup(CategoryPrizePicks, d, MeanPickConfidence(d.Picks))
}

// PropOllamaLineup builds an active PropOllama lineup
func PropOllamaLineup(d Draft) NewLineup {
	return toolLineup(CategoryPropOllama, d, d.Confidence)
}

// ToolLineup dispatches to the constructor for category
func ToolLineup(category Category, d Draft) (NewLineup, error) {
	switch category {
	case CategoryMoneyMaker:
		return MoneyMakerLineup(d), nil
	case CategoryPrizePicks:
		return PrizePicksLineup(d), nil
	case CategoryPropOllama:
		return PropOllamaLineup(d), nil
	}
	return NewLineup{}, fmt.Errorf("%w: %q", ErrInvalidCategory, category)
}

// MeanPickConfidence averages pick confidence, counting unset values as 0.
// No picks yields 0.
func MeanPickConfidence(picks []Pick) float64 {
	if len(picks) == 0 {
		return 0
	}
	var sum float64
	for _, p := range picks {
		if p.Confidence != nil {
			sum += *p.Confidence
		}
	}
	return sum / float64(len(picks))
}

func toolLineup(category Category, d Draft, confidence float64) NewLineup {
	profile := toolProfiles[category]
	return NewLineup{
		Name:            d.Name,
		Category:        category,
		Picks:           d.Picks,
		EntryAmount:     d.EntryAmount,
		ProjectedPayout: d.ProjectedPayout,
		Status:          StatusActive,
		Metadata: &Metadata{
			Confidence: confidence,
			Source:     profile.source,
			Tags:       slices.Clone(profile.tags),
		},
	}
}
