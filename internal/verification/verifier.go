// Package verification checks that the replay sandbox is reproducible. A
// second run over the same dataset, configuration and seed must agree with
// the first on every trade, every wallet profile, every summary number and
// every artifact byte. A divergence means hidden state leaked into the run,
// such as a wall-clock read, an unseeded random source, or iteration over an
// unordered map, and the report names the exact fields that moved.
package verification

import (
	"fmt"

	"solana-infra-watch/internal/domain"
	"solana-infra-watch/internal/reporting"
)

// FieldDivergence is one value that differed between the two runs.
type FieldDivergence struct {
	Field  string
	First  interface{}
	Second interface{}
}

// Report is the outcome of comparing two runs of the same replay.
type Report struct {
	TradesTotal     int // trades in the first run
	TradesMatched   int
	TradesDivergent int

	// Divergences holds every field that moved, across the summary, the
	// trade list and the wallet list.
	Divergences []FieldDivergence

	// ArtifactsCompared counts the artifact files byte-compared between the
	// two output directories; ArtifactsDivergent names the ones that differ.
	ArtifactsCompared  int
	ArtifactsDivergent []string
}

// Deterministic reports whether the two runs were indistinguishable.
func (r *Report) Deterministic() bool {
	return len(r.Divergences) == 0 && len(r.ArtifactsDivergent) == 0
}

// CompareReports compares two finished runs field by field. Trades and
// wallets are matched by position: the report generator sorts both lists by
// a stable key, so on a reproducible run position i holds the same record
// in both.
func CompareReports(first, second *reporting.Report) *Report {
	rep := &Report{TradesTotal: len(first.Trades)}
	rep.Divergences = append(rep.Divergences, compareSummaries(first.Summary, second.Summary)...)

	if len(first.Trades) != len(second.Trades) {
		rep.Divergences = append(rep.Divergences, FieldDivergence{
			Field: "len(trades)", First: len(first.Trades), Second: len(second.Trades),
		})
	}
	for i := 0; i < len(first.Trades) && i < len(second.Trades); i++ {
		divs := CompareTrades(&first.Trades[i], &second.Trades[i])
		if len(divs) == 0 {
			rep.TradesMatched++
			continue
		}
		rep.TradesDivergent++
		for _, dv := range divs {
			dv.Field = fmt.Sprintf("trades[%d].%s", i, dv.Field)
			rep.Divergences = append(rep.Divergences, dv)
		}
	}

	if len(first.Wallets) != len(second.Wallets) {
		rep.Divergences = append(rep.Divergences, FieldDivergence{
			Field: "len(wallets)", First: len(first.Wallets), Second: len(second.Wallets),
		})
	}
	for i := 0; i < len(first.Wallets) && i < len(second.Wallets); i++ {
		for _, dv := range compareWallets(&first.Wallets[i], &second.Wallets[i]) {
			dv.Field = fmt.Sprintf("wallets[%d].%s", i, dv.Field)
			rep.Divergences = append(rep.Divergences, dv)
		}
	}

	if len(first.Errors) != len(second.Errors) {
		rep.Divergences = append(rep.Divergences, FieldDivergence{
			Field: "len(errors)", First: len(first.Errors), Second: len(second.Errors),
		})
	}
	for i := 0; i < len(first.Errors) && i < len(second.Errors); i++ {
		if first.Errors[i] != second.Errors[i] {
			rep.Divergences = append(rep.Divergences, FieldDivergence{
				Field: fmt.Sprintf("errors[%d]", i), First: first.Errors[i], Second: second.Errors[i],
			})
		}
	}

	return rep
}

// CompareTrades compares every field of two closed trades. Floats compare
// exactly: both runs execute the same arithmetic in the same order, so even
// a last-bit difference is a real divergence, not rounding noise.
func CompareTrades(first, second *domain.VirtualTrade) []FieldDivergence {
	d := &diff{}

	d.check("TradeID", first.TradeID, second.TradeID)
	d.check("SignalID", first.SignalID, second.SignalID)
	d.check("EventID", first.EventID, second.EventID)
	d.check("TokenMint", first.TokenMint, second.TokenMint)
	d.check("PoolAddress", first.PoolAddress, second.PoolAddress)
	d.check("Absorber", first.Absorber, second.Absorber)

	d.check("EntrySlot", first.EntrySlot, second.EntrySlot)
	d.check("EntryPrice", first.EntryPrice, second.EntryPrice)
	d.check("EntrySlippageBps", first.EntrySlippageBps, second.EntrySlippageBps)
	d.check("EntryFees", first.EntryFees, second.EntryFees)
	d.check("CostBase", first.CostBase, second.CostBase)
	d.check("AmountToken", first.AmountToken, second.AmountToken)

	d.check("ExitSlot", first.ExitSlot, second.ExitSlot)
	d.check("ExitPrice", first.ExitPrice, second.ExitPrice)
	d.check("ExitSlippageBps", first.ExitSlippageBps, second.ExitSlippageBps)
	d.check("ExitFees", first.ExitFees, second.ExitFees)
	d.check("ExitReason", first.ExitReason, second.ExitReason)

	d.check("RealizedPnl", first.RealizedPnl, second.RealizedPnl)
	d.check("ReturnPct", first.ReturnPct, second.ReturnPct)
	d.check("HoldingSlots", first.HoldingSlots, second.HoldingSlots)
	d.check("MAE", first.MAE, second.MAE)
	d.check("MFE", first.MFE, second.MFE)

	d.check("SignalStrength", first.SignalStrength, second.SignalStrength)
	d.check("StabilizationConfirmed", first.StabilizationConfirmed, second.StabilizationConfirmed)
	d.check("SellFractionOfPool", first.SellFractionOfPool, second.SellFractionOfPool)
	d.check("AbsorptionFraction", first.AbsorptionFraction, second.AbsorptionFraction)

	return d.out
}

// compareSummaries compares the summary.json payloads, the per-field view of
// everything the run aggregates.
func compareSummaries(first, second reporting.Summary) []FieldDivergence {
	d := &diff{prefix: "summary."}

	d.check("GeneratedAtMs", first.GeneratedAtMs, second.GeneratedAtMs)

	d.check("StartingCapitalBase", first.StartingCapitalBase, second.StartingCapitalBase)
	d.check("FinalCapitalBase", first.FinalCapitalBase, second.FinalCapitalBase)
	d.check("FinalEquityBase", first.FinalEquityBase, second.FinalEquityBase)
	d.check("PeakEquityBase", first.PeakEquityBase, second.PeakEquityBase)
	d.check("MaxDrawdownBase", first.MaxDrawdownBase, second.MaxDrawdownBase)
	d.check("MaxDrawdownPct", first.MaxDrawdownPct, second.MaxDrawdownPct)
	d.check("TotalFeesBase", first.TotalFeesBase, second.TotalFeesBase)

	d.check("SignalsEmitted", first.SignalsEmitted, second.SignalsEmitted)
	d.check("SignalsConfirmed", first.SignalsConfirmed, second.SignalsConfirmed)
	d.check("SignalsExpired", first.SignalsExpired, second.SignalsExpired)

	d.check("TrackedWallets", first.TrackedWallets, second.TrackedWallets)
	d.check("ClassifiedWallets", first.ClassifiedWallets, second.ClassifiedWallets)

	d.check("Coverage.EventsProcessed", first.Coverage.EventsProcessed, second.Coverage.EventsProcessed)
	d.check("Coverage.TokensSeen", first.Coverage.TokensSeen, second.Coverage.TokensSeen)
	d.check("Coverage.PoolsSeen", first.Coverage.PoolsSeen, second.Coverage.PoolsSeen)
	d.check("Coverage.FirstSlot", first.Coverage.FirstSlot, second.Coverage.FirstSlot)
	d.check("Coverage.LastSlot", first.Coverage.LastSlot, second.Coverage.LastSlot)

	d.check("Trades.TotalTrades", first.Trades.TotalTrades, second.Trades.TotalTrades)
	d.check("Trades.TotalTokens", first.Trades.TotalTokens, second.Trades.TotalTokens)
	d.check("Trades.Wins", first.Trades.Wins, second.Trades.Wins)
	d.check("Trades.Losses", first.Trades.Losses, second.Trades.Losses)
	d.check("Trades.WinRate", first.Trades.WinRate, second.Trades.WinRate)
	d.check("Trades.TokenWinRate", first.Trades.TokenWinRate, second.Trades.TokenWinRate)
	d.check("Trades.NetPnlBase", first.Trades.NetPnlBase, second.Trades.NetPnlBase)
	d.check("Trades.GrossProfitBase", first.Trades.GrossProfitBase, second.Trades.GrossProfitBase)
	d.check("Trades.GrossLossBase", first.Trades.GrossLossBase, second.Trades.GrossLossBase)
	d.check("Trades.ExpectancyBase", first.Trades.ExpectancyBase, second.Trades.ExpectancyBase)
	d.check("Trades.ReturnMeanPct", first.Trades.ReturnMeanPct, second.Trades.ReturnMeanPct)
	d.check("Trades.ReturnMedianPct", first.Trades.ReturnMedianPct, second.Trades.ReturnMedianPct)
	d.check("Trades.ReturnP10Pct", first.Trades.ReturnP10Pct, second.Trades.ReturnP10Pct)
	d.check("Trades.ReturnP90Pct", first.Trades.ReturnP90Pct, second.Trades.ReturnP90Pct)
	d.check("Trades.ReturnStddevPct", first.Trades.ReturnStddevPct, second.Trades.ReturnStddevPct)
	d.check("Trades.ReturnMinPct", first.Trades.ReturnMinPct, second.Trades.ReturnMinPct)
	d.check("Trades.ReturnMaxPct", first.Trades.ReturnMaxPct, second.Trades.ReturnMaxPct)
	d.check("Trades.SharpeRatio", first.Trades.SharpeRatio, second.Trades.SharpeRatio)
	d.check("Trades.AvgHoldingSlots", first.Trades.AvgHoldingSlots, second.Trades.AvgHoldingSlots)
	d.check("Trades.MaxConsecutiveLosses", first.Trades.MaxConsecutiveLosses, second.Trades.MaxConsecutiveLosses)

	d.check("len(EquityCurve)", len(first.EquityCurve), len(second.EquityCurve))
	for i := 0; i < len(first.EquityCurve) && i < len(second.EquityCurve); i++ {
		p := fmt.Sprintf("EquityCurve[%d].", i)
		d.check(p+"Slot", first.EquityCurve[i].Slot, second.EquityCurve[i].Slot)
		d.check(p+"TimestampMs", first.EquityCurve[i].TimestampMs, second.EquityCurve[i].TimestampMs)
		d.check(p+"Capital", first.EquityCurve[i].Capital, second.EquityCurve[i].Capital)
		d.check(p+"Equity", first.EquityCurve[i].Equity, second.EquityCurve[i].Equity)
		d.check(p+"DrawdownPct", first.EquityCurve[i].DrawdownPct, second.EquityCurve[i].DrawdownPct)
	}

	d.check("ErrorCount", first.ErrorCount, second.ErrorCount)

	return d.out
}

// compareWallets compares the fields of a wallet profile that reach
// wallet_performance.csv, plus the evidence log length.
func compareWallets(first, second *domain.WalletBehavior) []FieldDivergence {
	d := &diff{}

	d.check("Wallet", first.Wallet, second.Wallet)
	d.check("Classification", first.Classification, second.Classification)
	d.check("Status", first.Status, second.Status)
	d.check("Confidence", first.Confidence, second.Confidence)
	d.check("TotalAbsorptions", first.TotalAbsorptions, second.TotalAbsorptions)
	d.check("SuccessfulAbsorptions", first.SuccessfulAbsorptions, second.SuccessfulAbsorptions)
	d.check("StabilizationSuccessRate", first.StabilizationSuccessRate, second.StabilizationSuccessRate)
	d.check("len(UniqueTokens)", len(first.UniqueTokens), len(second.UniqueTokens))
	d.check("AvgAbsorptionFraction", first.AvgAbsorptionFraction, second.AvgAbsorptionFraction)
	d.check("AvgResponseLatency", first.AvgResponseLatency, second.AvgResponseLatency)
	d.check("SizeConsistency", first.SizeConsistency, second.SizeConsistency)
	d.check("ActivityPattern", first.ActivityPattern, second.ActivityPattern)
	d.check("FirstSeen", first.FirstSeen, second.FirstSeen)
	d.check("LastSeen", first.LastSeen, second.LastSeen)
	d.check("len(EvidenceLog)", len(first.EvidenceLog), len(second.EvidenceLog))

	return d.out
}

// diff accumulates divergences under a field-name prefix.
type diff struct {
	prefix string
	out    []FieldDivergence
}

func (d *diff) check(field string, first, second interface{}) {
	if first != second {
		d.out = append(d.out, FieldDivergence{Field: d.prefix + field, First: first, Second: second})
	}
}
