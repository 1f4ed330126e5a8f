package ledger

import (
	"github.com/shopspring/decimal"
)

// NoCategory is reported as BestPerformingType when there are no lineups
const NoCategory = "none"

// Stats aggregates the ledger. WinRate and ROI are fractions (0.5 is 50%).
type Stats struct {
	TotalLineups       int             `json:"totalLineups"`
	ActiveLineups      int             `json:"activeLineups"`
	CompletedLineups   int             `json:"completedLineups"`
	TotalWinnings      decimal.Decimal `json:"totalWinnings"`
	TotalLosses        decimal.Decimal `json:"totalLosses"`
	TotalRisked        decimal.Decimal `json:"totalRisked"`
	AverageConfidence  float64         `json:"averageConfidence"`
	WinRate            float64         `json:"winRate"`
	ROI                float64         `json:"roi"`
	BestPerformingType string          `json:"bestPerformingType"`
}

// Stats computes the aggregates over every stored lineup
func (l *Ledger) Stats() Stats {
	return computeStats(l.List(Filter{}))
}

// computeStats expects lineups newest first; that order breaks ties for
// BestPerformingType.
//
// Money figures only count completed lineups. A lineup wins when its result
// exceeds its entry; a push-only result equal to the entry is neither a win
// nor a loss.
func computeStats(lineups []Lineup) Stats {
	st := Stats{
		TotalLineups:       len(lineups),
		TotalWinnings:      decimal.Zero,
		TotalLosses:        decimal.Zero,
		TotalRisked:        decimal.Zero,
		BestPerformingType: NoCategory,
	}
	if len(lineups) == 0 {
		return st
	}

	var (
		winners    int
		confidence float64
		order      []Category
		perf       = map[Category]*[2]int{} // total, won
	)
	for i := range lineups {
		lineup := &lineups[i]

		if lineup.Metadata != nil {
			confidence += lineup.Metadata.Confidence
		}

		p, ok := perf[lineup.Category]
		if !ok {
			p = new([2]int)
			perf[lineup.Category] = p
			order = append(order, lineup.Category)
		}
		p[0]++
		if lineup.Won() {
			p[1]++
		}

		switch lineup.Status {
		case StatusActive:
			st.ActiveLineups++
		case StatusCompleted:
			st.CompletedLineups++
			result := lineup.Result()
			st.TotalWinnings = st.TotalWinnings.Add(result)
			st.TotalRisked = st.TotalRisked.Add(lineup.EntryAmount)
			if result.LessThan(lineup.EntryAmount) {
				st.TotalLosses = st.TotalLosses.Add(lineup.EntryAmount.Sub(result))
			}
			if lineup.Won() {
				winners++
			}
		}
	}

	st.AverageConfidence = confidence / float64(len(lineups))
	if st.CompletedLineups > 0 {
		st.WinRate = float64(winners) / float64(st.CompletedLineups)
	}
	if st.TotalRisked.IsPositive() {
		st.ROI = st.TotalWinnings.Sub(st.TotalRisked).Div(st.TotalRisked).InexactFloat64()
	}

	best, bestRate := order[0], -1.0
	for _, c := range order {
		p := perf[c]
		rate := float64(p[1]) / float64(p[0])
		if rate > bestRate {
			best, bestRate = c, rate
		}
	}
	st.BestPerformingType = string(best)

	return st
}
