package reporting

import (
	"fmt"
	"strings"

	"solana-infra-watch/internal/domain"
)

// RenderTradesCSV renders closed trades as CSV. Rows keep the input order;
// the generator sorts by (exit_slot, entry_slot, trade_id) before rendering.
// Prices and base amounts are printed with 8 fractional digits.
func RenderTradesCSV(trades []domain.VirtualTrade) string {
	var sb strings.Builder

	sb.WriteString("trade_id,signal_id,event_id,token_mint,pool_address,absorber,")
	sb.WriteString("entry_slot,entry_price,entry_slippage_bps,entry_fees,cost_base,amount_token,")
	sb.WriteString("exit_slot,exit_price,exit_slippage_bps,exit_fees,exit_reason,")
	sb.WriteString("realized_pnl,return_pct,holding_slots,mae,mfe,")
	sb.WriteString("signal_strength,stabilization_confirmed,sell_fraction_of_pool,absorption_fraction\n")

	for _, t := range trades {
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%s,%s,%s,%d,%.8f,%.6f,%.8f,%.8f,%.8f,%d,%.8f,%.6f,%.8f,%s,%.8f,%.6f,%d,%.8f,%.8f,%.6f,%t,%.6f,%.6f\n",
			t.TradeID,
			t.SignalID,
			t.EventID,
			t.TokenMint,
			t.PoolAddress,
			t.Absorber,
			t.EntrySlot,
			t.EntryPrice,
			t.EntrySlippageBps,
			t.EntryFees,
			t.CostBase,
			t.AmountToken,
			t.ExitSlot,
			t.ExitPrice,
			t.ExitSlippageBps,
			t.ExitFees,
			t.ExitReason,
			t.RealizedPnl,
			t.ReturnPct,
			t.HoldingSlots,
			t.MAE,
			t.MFE,
			t.SignalStrength,
			t.StabilizationConfirmed,
			t.SellFractionOfPool,
			t.AbsorptionFraction,
		))
	}

	return sb.String()
}

// RenderWalletsCSV renders classified wallet profiles as CSV. Rows keep the
// input order; the generator sorts by (confidence desc, wallet asc).
func RenderWalletsCSV(wallets []domain.WalletBehavior) string {
	var sb strings.Builder

	sb.WriteString("wallet,classification,status,confidence,total_absorptions,successful_absorptions,")
	sb.WriteString("success_rate,unique_tokens,avg_absorption_fraction,avg_response_latency_slots,")
	sb.WriteString("size_consistency,activity_pattern,first_seen_ms,last_seen_ms\n")

	for _, w := range wallets {
		sb.WriteString(fmt.Sprintf("%s,%s,%s,%.2f,%d,%d,%.6f,%d,%.6f,%.2f,%.2f,%s,%d,%d\n",
			w.Wallet,
			w.Classification,
			w.Status,
			w.Confidence,
			w.TotalAbsorptions,
			w.SuccessfulAbsorptions,
			w.StabilizationSuccessRate,
			len(w.UniqueTokens),
			w.AvgAbsorptionFraction,
			w.AvgResponseLatency,
			w.SizeConsistency,
			w.ActivityPattern,
			w.FirstSeen,
			w.LastSeen,
		))
	}

	return sb.String()
}
