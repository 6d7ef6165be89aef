package reporting

import (
	"math"
	"sort"

	"solana-infra-watch/internal/domain"
)

// TradeStats is the aggregate view over a run's closed trades, embedded in
// summary.json. Money fields are in base-token units, return fields in
// percent of entry cost.
type TradeStats struct {
	TotalTrades int `json:"total_trades"`
	TotalTokens int `json:"total_tokens"`
	Wins        int `json:"wins"`
	Losses      int `json:"losses"`

	WinRate      float64 `json:"win_rate"`
	TokenWinRate float64 `json:"token_win_rate"`

	NetPnlBase      float64 `json:"net_pnl_base"`
	GrossProfitBase float64 `json:"gross_profit_base"`
	GrossLossBase   float64 `json:"gross_loss_base"`
	ExpectancyBase  float64 `json:"expectancy_base"`

	ReturnMeanPct   float64 `json:"return_mean_pct"`
	ReturnMedianPct float64 `json:"return_median_pct"`
	ReturnP10Pct    float64 `json:"return_p10_pct"`
	ReturnP90Pct    float64 `json:"return_p90_pct"`
	ReturnStddevPct float64 `json:"return_stddev_pct"`
	ReturnMinPct    float64 `json:"return_min_pct"`
	ReturnMaxPct    float64 `json:"return_max_pct"`
	SharpeRatio     float64 `json:"sharpe_ratio"`

	AvgHoldingSlots      float64 `json:"avg_holding_slots"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`
}

// ComputeTradeStats calculates all aggregate metrics from closed trades.
// Trades are sorted by (ExitSlot, EntrySlot, TradeID) before the
// order-dependent metrics (consecutive losses) so the result does not depend
// on input order.
func ComputeTradeStats(trades []domain.VirtualTrade) TradeStats {
	n := len(trades)
	if n == 0 {
		return TradeStats{}
	}

	sorted := make([]domain.VirtualTrade, n)
	copy(sorted, trades)
	sortTrades(sorted)

	var stats TradeStats
	stats.TotalTrades = n

	returns := make([]float64, n)
	holdingSum := 0.0
	for i, t := range sorted {
		returns[i] = t.ReturnPct
		holdingSum += float64(t.HoldingSlots)

		stats.NetPnlBase += t.RealizedPnl
		if t.RealizedPnl > 0 {
			stats.Wins++
			stats.GrossProfitBase += t.RealizedPnl
		} else {
			stats.Losses++
			stats.GrossLossBase += t.RealizedPnl
		}
	}

	stats.WinRate = computeWinRate(stats.Wins, n)
	stats.TotalTokens, stats.TokenWinRate = computeTokenWinRate(sorted)
	stats.ExpectancyBase = stats.NetPnlBase / float64(n)
	stats.AvgHoldingSlots = holdingSum / float64(n)
	stats.MaxConsecutiveLosses = computeMaxConsecutiveLosses(sorted)

	sortedReturns := make([]float64, n)
	copy(sortedReturns, returns)
	sort.Float64s(sortedReturns)

	mean := computeMean(returns)
	stddev := computeStddev(returns, mean)

	stats.ReturnMeanPct = mean
	stats.ReturnMedianPct = computePercentile(sortedReturns, 0.50)
	stats.ReturnP10Pct = computePercentile(sortedReturns, 0.10)
	stats.ReturnP90Pct = computePercentile(sortedReturns, 0.90)
	stats.ReturnStddevPct = stddev
	stats.ReturnMinPct = sortedReturns[0]
	stats.ReturnMaxPct = sortedReturns[n-1]
	if stddev > 0 {
		stats.SharpeRatio = mean / stddev
	}

	return stats
}

// sortTrades orders trades by (ExitSlot, EntrySlot, TradeID), the stable key
// used for trades.csv rows and streak metrics.
func sortTrades(trades []domain.VirtualTrade) {
	sort.Slice(trades, func(i, j int) bool {
		if trades[i].ExitSlot != trades[j].ExitSlot {
			return trades[i].ExitSlot < trades[j].ExitSlot
		}
		if trades[i].EntrySlot != trades[j].EntrySlot {
			return trades[i].EntrySlot < trades[j].EntrySlot
		}
		return trades[i].TradeID < trades[j].TradeID
	})
}

// computeTokenWinRate groups trades by token mint. A token counts as winning
// when at least one of its trades closed positive.
func computeTokenWinRate(trades []domain.VirtualTrade) (int, float64) {
	if len(trades) == 0 {
		return 0, 0
	}

	tokenWon := make(map[string]bool)
	for _, t := range trades {
		if t.RealizedPnl > 0 {
			tokenWon[t.TokenMint] = true
		} else if _, seen := tokenWon[t.TokenMint]; !seen {
			tokenWon[t.TokenMint] = false
		}
	}

	totalTokens := len(tokenWon)
	winners := 0
	for _, won := range tokenWon {
		if won {
			winners++
		}
	}
	return totalTokens, float64(winners) / float64(totalTokens)
}

// computeWinRate calculates win rate as wins / total.
func computeWinRate(wins, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(wins) / float64(total)
}

// computeMean calculates the arithmetic mean.
func computeMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// computeStddev calculates sample standard deviation (n-1 denominator).
func computeStddev(values []float64, mean float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	sumSq := 0.0
	for _, v := range values {
		diff := v - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(n-1))
}

// computePercentile uses linear interpolation over a pre-sorted slice.
// p is the percentile as a fraction (0.10 = 10th percentile).
func computePercentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// computeMaxConsecutiveLosses finds the longest streak of non-positive
// trades. Trades must be in chronological order.
func computeMaxConsecutiveLosses(trades []domain.VirtualTrade) int {
	maxStreak := 0
	currentStreak := 0

	for _, t := range trades {
		if t.RealizedPnl <= 0 {
			currentStreak++
			if currentStreak > maxStreak {
				maxStreak = currentStreak
			}
		} else {
			currentStreak = 0
		}
	}
	return maxStreak
}
