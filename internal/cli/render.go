package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/btcsim/internal/domain"
	"github.com/vadiminshakov/btcsim/internal/ledger"
	"github.com/vadiminshakov/btcsim/pkg/format"
)

var (
	subtle  = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	special = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	danger  = lipgloss.AdaptiveColor{Light: "#D7263D", Dark: "#FF5F5F"}

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(subtle).
			Padding(0, 2)

	labelStyle = lipgloss.NewStyle().Width(16).Foreground(lipgloss.Color("245"))
	titleStyle = lipgloss.NewStyle().Bold(true).MarginBottom(1)
	gainStyle  = lipgloss.NewStyle().Foreground(special).Bold(true)
	lossStyle  = lipgloss.NewStyle().Foreground(danger).Bold(true)
)

// renderStatus draws the portfolio card.
func renderStatus(pair domain.Pair, m ledger.Metrics, sample domain.PriceSample, trades int, now time.Time) string {
	price := "unknown"
	if m.Price.Valid {
		price = format.Currency(m.Price.Decimal)
		if abs, pct, ok := sample.Change(); ok {
			plus := ""
			if !abs.IsNegative() {
				plus = "+"
			}
			price += " " + signed(pct, fmt.Sprintf("%s%s (%s)", plus, format.Number(abs, 2), format.Percentage(pct)))
		}
	}

	updated := "never"
	if !sample.UpdatedAt.IsZero() {
		updated = format.RelativeTime(sample.UpdatedAt, now)
	}
	if sample.Err != nil {
		updated += lossStyle.Render(" (stale)")
	}

	rows := [][2]string{
		{"Price", price},
		{"Updated", updated},
		{"Cash", format.Currency(m.Cash)},
		{"BTC", format.BTC(m.Asset)},
		{"Value", format.Currency(m.PortfolioValue)},
		{"P/L", signed(m.ProfitLoss, fmt.Sprintf("%s (%s)", format.Currency(m.ProfitLoss), format.Percentage(m.ProfitLossPercentage)))},
		{"Trades", fmt.Sprintf("%d", trades)},
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(pair.String()))
	b.WriteString("\n")
	for i, row := range rows {
		b.WriteString(labelStyle.Render(row[0]))
		b.WriteString(row[1])
		if i < len(rows)-1 {
			b.WriteString("\n")
		}
	}

	return boxStyle.Render(b.String())
}

func signed(v decimal.Decimal, s string) string {
	if v.IsNegative() {
		return lossStyle.Render(s)
	}

	return gainStyle.Render(s)
}

// tradesMarkdown renders trades as a markdown table, newest first.
func tradesMarkdown(title string, trades []domain.Trade, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n", title)

	if len(trades) == 0 {
		b.WriteString("_No trades yet._\n")
		return b.String()
	}

	b.WriteString("| When | Side | BTC | Price | USD |\n")
	b.WriteString("|---|---|---:|---:|---:|\n")
	for _, t := range trades {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
			format.RelativeTime(t.Timestamp, now),
			strings.ToUpper(t.Kind.String()),
			format.BTC(t.AssetAmount),
			format.Currency(t.Price),
			format.Currency(t.CashAmount),
		)
	}

	return b.String()
}

// renderMarkdown styles md for the terminal, falling back to the raw text.
func renderMarkdown(md string) string {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}

	return out
}
