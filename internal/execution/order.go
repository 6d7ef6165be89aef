package execution

import (
	"context"
	"errors"
)

// ErrOrderRoutingDisabled is returned by VirtualOrderClient. Virtual runs
// fill through the Simulator and never route a real order.
var ErrOrderRoutingDisabled = errors.New("order routing disabled in virtual mode")

// Order statuses reported by Execute.
const (
	OrderStatusSuccess = "success"
	OrderStatusFailed  = "failed"
)

// OrderQuote is a priced, unsigned order produced by an aggregator quote.
type OrderQuote struct {
	TxBlob    string  // unsigned transaction, ready for signing
	RequestID string  // quote handle the aggregator expects back on Execute
	OutAmount float64 // quoted output amount in the output mint's units
}

// OrderResult reports the outcome of a routed order.
type OrderResult struct {
	Status    string
	Signature string // transaction signature, set when the order landed
}

// OrderClient routes real orders through an external aggregator. Only a live
// deployment that actually trades would carry an implementation; every run in
// this repository fills virtually.
type OrderClient interface {
	// GetOrder quotes a swap of amountBase from inputMint to outputMint on
	// behalf of taker and returns the unsigned transaction to sign.
	GetOrder(ctx context.Context, inputMint, outputMint string, amountBase float64, taker string) (*OrderQuote, error)

	// Execute submits the signed transaction under its quote's requestID.
	Execute(ctx context.Context, signedTxBlob, requestID string) (*OrderResult, error)
}

// VirtualOrderClient satisfies OrderClient for wiring that requires one.
// Both methods refuse: reaching the real order path from a virtual run is a
// bug, not a degraded mode.
type VirtualOrderClient struct{}

var _ OrderClient = VirtualOrderClient{}

func (VirtualOrderClient) GetOrder(context.Context, string, string, float64, string) (*OrderQuote, error) {
	return nil, ErrOrderRoutingDisabled
}

func (VirtualOrderClient) Execute(context.Context, string, string) (*OrderResult, error) {
	return nil, ErrOrderRoutingDisabled
}
