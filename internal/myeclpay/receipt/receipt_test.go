package receipt

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRenderProducesPDF(t *testing.T) {
	doc, err := New().Render(context.Background(), Data{
		TransactionID: "0b3c6f0e-8a7e-4f7e-9a51-2b8e1f0c9d11",
		Date:          "2026-03-01 12:00 UTC",
		Status:        "REFUNDED",
		CreditedName:  "Cafet",
		DebitedName:   "Jane Doe",
		Total:         FormatCents(500),
		Refund:        FormatCents(200),
		RefundDate:    "2026-03-02 09:00 UTC",
	})
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(doc, []byte("%PDF")))
}

func TestRenderHonorsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Render(ctx, Data{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestFormatCents(t *testing.T) {
	require.Equal(t, "12.50 €", FormatCents(1250))
	require.Equal(t, "0.05 €", FormatCents(5))
	require.Equal(t, "-3.00 €", FormatCents(-300))
}
