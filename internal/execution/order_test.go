package execution

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVirtualOrderClientRefusesBothMethods(t *testing.T) {
	var client OrderClient = VirtualOrderClient{}
	ctx := context.Background()

	quote, err := client.GetOrder(ctx, "So11111111111111111111111111111111111111112", "mint1", 5, "taker")
	require.ErrorIs(t, err, ErrOrderRoutingDisabled)
	require.Nil(t, quote)

	res, err := client.Execute(ctx, "signed-blob", "req-1")
	require.ErrorIs(t, err, ErrOrderRoutingDisabled)
	require.Nil(t, res)
}
