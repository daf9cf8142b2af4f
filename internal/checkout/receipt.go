package checkout

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ReceiptFormatter renders orders as plain-text till receipts.
type ReceiptFormatter struct {
	printer  *message.Printer
	currency string
	decimal  string
	width    int
}

// NewReceiptFormatter builds a formatter for the BCP 47 locale. Unknown
// locales fall back to English.
func NewReceiptFormatter(locale, currency string) *ReceiptFormatter {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	printer := message.NewPrinter(tag)
	sep := strings.Trim(printer.Sprintf("%.1f", 0.5), "05")
	if sep == "" {
		sep = "."
	}
	return &ReceiptFormatter{printer: printer, currency: strings.ToUpper(currency), decimal: sep, width: 40}
}

// Amount formats d with locale grouping and two decimals. Rounding happens
// on the decimal value, half away from zero.
func (f *ReceiptFormatter) Amount(d decimal.Decimal) string {
	fixed := d.StringFixed(2)
	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign, fixed = "-", fixed[1:]
	}
	whole, frac, _ := strings.Cut(fixed, ".")
	if n, err := strconv.ParseInt(whole, 10, 64); err == nil {
		whole = f.printer.Sprintf("%d", n)
	}
	amount := sign + whole + f.decimal + frac
	if f.currency == "" {
		return amount
	}
	return f.currency + " " + amount
}

// Format renders the receipt.
func (f *ReceiptFormatter) Format(o Order) string {
	var b strings.Builder
	rule := strings.Repeat("-", f.width)
	b.WriteString(o.Number + "\n")
	b.WriteString(o.CreatedAt.Format("2006-01-02 15:04") + "\n")
	b.WriteString(rule + "\n")
	for _, l := range o.Lines {
		b.WriteString(l.Name + "\n")
		f.row(&b, f.printer.Sprintf("  %d x %s", l.Quantity, f.Amount(l.UnitPrice)), f.Amount(l.Total))
		if l.Discount.IsPositive() {
			f.row(&b, "  discount", "-"+f.Amount(l.Discount))
		}
	}
	b.WriteString(rule + "\n")
	f.row(&b, "Subtotal", f.Amount(o.Totals.Subtotal))
	if o.Totals.TotalDiscount.IsPositive() {
		f.row(&b, "Discount", "-"+f.Amount(o.Totals.TotalDiscount))
	}
	f.row(&b, "Tax", f.Amount(o.Totals.Tax))
	f.row(&b, "TOTAL", f.Amount(o.Totals.GrandTotal))
	f.row(&b, "Tendered", f.Amount(o.Tendered))
	f.row(&b, "Change", f.Amount(o.Change))
	if o.PaymentStatus != PaymentPaid {
		f.row(&b, "Status", strings.ToUpper(strings.ReplaceAll(string(o.PaymentStatus), "_", " ")))
	}
	if o.LoyaltyPoints > 0 {
		f.row(&b, "Points earned", f.printer.Sprintf("%d", o.LoyaltyPoints))
	}
	return b.String()
}

func (f *ReceiptFormatter) row(b *strings.Builder, label, value string) {
	pad := f.width - len([]rune(label)) - len([]rune(value))
	if pad < 1 {
		pad = 1
	}
	b.WriteString(label + strings.Repeat(" ", pad) + value + "\n")
}
