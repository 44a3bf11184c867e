package invoices

import (
	"fmt"
	"strings"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	mconfig "github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/shopspring/decimal"

	"github.com/prepmood/prepmood-backend/pkg/enums"
)

// renderPDF lays out a stored snapshot. Nothing is read from live tables.
func renderPDF(doc *Document) ([]byte, error) {
	snap := doc.Snapshot
	cfg := mconfig.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()
	m := maroto.New(cfg)

	title := "Invoice"
	if snap.DocumentType == enums.InvoiceTypeCreditNote {
		title = "Credit Note"
	}
	m.AddRow(12, text.NewCol(12, title, props.Text{Size: 20, Style: fontstyle.Bold, Align: align.Left}))

	meta := col.New(6).Add(
		text.New("Number: "+snap.Number, props.Text{Top: 0}),
		text.New("Issued: "+snap.IssuedAt.Format("2006-01-02 15:04 MST"), props.Text{Top: 4}),
		text.New("Order: "+snap.OrderNumber, props.Text{Top: 8}),
	)
	if snap.RelatedInvoiceNumber != "" {
		meta.Add(text.New("Original invoice: "+snap.RelatedInvoiceNumber, props.Text{Top: 12}))
	}
	m.AddRow(20, meta, col.New(6))

	m.AddRow(36,
		col.New(4).Add(
			text.New(snap.Issuer.Name, props.Text{Style: fontstyle.Bold}),
			text.New(snap.Issuer.Address, props.Text{Top: 5}),
			text.New(taxIDLine(snap.Issuer.TaxID), props.Text{Top: 14}),
			text.New(snap.Issuer.Email, props.Text{Top: 19}),
		),
		partyCol("Bill to", snap.Billing),
		partyCol("Ship to", snap.Shipping),
	)

	if snap.Reason != "" {
		m.AddRow(10, text.NewCol(12, "Reason: "+snap.Reason, props.Text{Size: 9}))
	}

	m.AddRow(10,
		text.NewCol(6, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Qty", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Unit price", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	for _, item := range snap.Items {
		m.AddRow(8,
			text.NewCol(6, describe(item), props.Text{Size: 9}),
			text.NewCol(2, fmt.Sprintf("%d", item.Quantity), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, money(item.UnitPrice, snap.Currency), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, money(item.Subtotal, snap.Currency), props.Text{Size: 9, Align: align.Right}),
		)
	}

	totalRow(m, "Net", money(snap.Amounts.Net, snap.Currency), false)
	totalRow(m, "Tax", money(snap.Amounts.Tax, snap.Currency), false)
	totalRow(m, "Total", money(snap.Amounts.Total, snap.Currency), true)

	m.AddRow(10, text.NewCol(12, "Document hash: "+doc.PayloadHash, props.Text{Size: 7, Top: 4}))

	out, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return out.GetBytes(), nil
}

func partyCol(label string, party Party) core.Col {
	lines := []string{party.Address.Line1, party.Address.Line2, strings.TrimSpace(party.Address.PostalCode + " " + party.Address.City), party.Address.Country}
	c := col.New(4).Add(
		text.New(label, props.Text{Style: fontstyle.Bold}),
		text.New(party.Name, props.Text{Top: 5}),
	)
	top := 9.0
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		c.Add(text.New(line, props.Text{Top: top}))
		top += 4
	}
	if party.Email != "" {
		c.Add(text.New(party.Email, props.Text{Top: top}))
	}
	return c
}

func totalRow(m core.Maroto, label, value string, bold bool) {
	style := fontstyle.Normal
	if bold {
		style = fontstyle.Bold
	}
	m.AddRow(8,
		col.New(8),
		text.NewCol(2, label, props.Text{Size: 9, Style: style}),
		text.NewCol(2, value, props.Text{Size: 9, Style: style, Align: align.Right}),
	)
}

func describe(item LineItem) string {
	parts := []string{item.ProductName}
	if item.Size != nil && *item.Size != "" {
		parts = append(parts, *item.Size)
	}
	if item.Color != nil && *item.Color != "" {
		parts = append(parts, *item.Color)
	}
	return strings.Join(parts, " / ")
}

func taxIDLine(taxID string) string {
	if taxID == "" {
		return ""
	}
	return "Tax ID: " + taxID
}

func money(amount decimal.Decimal, currency enums.Currency) string {
	places := int32(2)
	if currency == enums.CurrencyKRW || currency == enums.CurrencyJPY {
		places = 0
	}
	return currency.String() + " " + amount.StringFixed(places)
}
