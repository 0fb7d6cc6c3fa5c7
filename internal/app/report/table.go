// Package report renders public records for humans.
package report

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"github.com/coachpo/assetproof/errs"
	"github.com/coachpo/assetproof/internal/domain/schema"
)

// WriteTable renders record as an aligned table: a header block followed by one row per
// exchange and asset, sorted by exchange then asset. Balances are printed as exact decimals.
func WriteTable(w io.Writer, record schema.PublicRecord) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	status := errs.Code(record.Status)
	fmt.Fprintf(tw, "project\t%s\n", record.ProjectID)
	fmt.Fprintf(tw, "version\t%s\n", record.Version)
	fmt.Fprintf(tw, "status\t%d (%s)\n", record.Status, status)
	fmt.Fprintf(tw, "attestations\t%d\n", len(record.AttestationMeta))
	fmt.Fprintln(tw, "\t")
	fmt.Fprintln(tw, "EXCHANGE\tASSET\tBALANCE")

	for _, row := range Rows(record) {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", row.Exchange, row.Asset, row.Balance.String())
	}
	return tw.Flush()
}

// Row is one rendered ledger entry.
type Row struct {
	Exchange string
	Asset    string
	Balance  decimal.Decimal
}

// Rows flattens the record ledgers in rendering order.
func Rows(record schema.PublicRecord) []Row {
	exchanges := make([]string, 0, len(record.AssetBalance))
	for exchange := range record.AssetBalance {
		exchanges = append(exchanges, exchange)
	}
	sort.Strings(exchanges)

	rows := make([]Row, 0)
	for _, exchange := range exchanges {
		ledger := record.AssetBalance[exchange]
		assets := make([]string, 0, len(ledger))
		for asset := range ledger {
			assets = append(assets, asset)
		}
		sort.Strings(assets)
		for _, asset := range assets {
			rows = append(rows, Row{Exchange: exchange, Asset: asset, Balance: decimal.NewFromFloat(ledger[asset])})
		}
	}
	return rows
}
