// Package receipt renders MyECLPay transaction receipts as PDF.
package receipt

import (
	"context"
	"fmt"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

type Data struct {
	TransactionID string
	Date          string
	Status        string
	CreditedName  string
	DebitedName   string
	Total         string
	// Refund is empty when the transaction was not refunded.
	Refund     string
	RefundDate string
}

type Renderer interface {
	Render(ctx context.Context, data Data) ([]byte, error)
}

type PDFRenderer struct{}

func New() Renderer {
	return &PDFRenderer{}
}

func (r *PDFRenderer) Render(ctx context.Context, data Data) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(20,
		text.NewCol(8, "MyECL Pay receipt", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, data.Date, props.Text{
			Size:  10,
			Align: align.Right,
			Top:   4,
		}),
	)
	m.AddRow(10,
		text.NewCol(12, "Transaction "+data.TransactionID, props.Text{Size: 9}),
	)
	m.AddRow(4, line.NewCol(12))

	m.AddRow(25,
		col.New(6).Add(
			text.New("Paid by", props.Text{Style: fontstyle.Bold}),
			text.New(data.DebitedName, props.Text{Top: 5}),
		),
		col.New(6).Add(
			text.New("Paid to", props.Text{Style: fontstyle.Bold}),
			text.New(data.CreditedName, props.Text{Top: 5}),
		),
	)

	m.AddRow(10,
		text.NewCol(8, "Status", props.Text{Size: 10}),
		text.NewCol(4, data.Status, props.Text{Size: 10, Align: align.Right}),
	)
	m.AddRow(10,
		text.NewCol(8, "Total", props.Text{Size: 12, Style: fontstyle.Bold}),
		text.NewCol(4, data.Total, props.Text{Size: 12, Style: fontstyle.Bold, Align: align.Right}),
	)
	if data.Refund != "" {
		m.AddRow(10,
			text.NewCol(8, "Refunded on "+data.RefundDate, props.Text{Size: 10}),
			text.NewCol(4, data.Refund, props.Text{Size: 10, Align: align.Right}),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate receipt: %w", err)
	}
	return doc.GetBytes(), nil
}

// FormatCents renders an amount of cents as euros, e.g. 1250 -> "12.50 €".
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d €", sign, cents/100, cents%100)
}
