package service

import (
	"strings"

	"github.com/shopspring/decimal"

	"edumarket_bff/internals/constants"
	"edumarket_bff/internals/features/payments/dto"
	"edumarket_bff/internals/upstream"
)

var (
	hundred = decimal.NewFromInt(100)

	// DefaultSplit is used when the split config cannot be loaded.
	DefaultSplit = upstream.SplitConfig{
		TutorShare:       decimal.NewFromInt(95),
		InstitutionShare: decimal.NewFromInt(95),
	}
)

var currencySymbols = map[string]string{
	"NGN": "₦",
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"GHS": "GH₵",
	"KES": "KSh",
	"ZAR": "R",
	"CAD": "C$",
	"AUD": "A$",
	"INR": "₹",
}

func normalizeCurrency(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return "NGN"
	}
	return code
}

// CurrencySymbol falls back to the code followed by a space.
func CurrencySymbol(code string) string {
	code = normalizeCurrency(code)
	if sym, ok := currencySymbols[code]; ok {
		return sym
	}
	return code + " "
}

// FormatMoney renders an amount with its symbol, grouped thousands and at most two decimals.
func FormatMoney(currency string, d decimal.Decimal) string {
	s := d.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(s, ".")
	frac = strings.TrimRight(frac, "0")

	var b strings.Builder
	if d.IsNegative() {
		b.WriteByte('-')
	}
	b.WriteString(CurrencySymbol(currency))
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if frac != "" {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}

// CreatorShare is the creator's percentage for an item kind, clamped to 0..100.
func CreatorShare(itemType string, cfg upstream.SplitConfig) decimal.Decimal {
	share := cfg.TutorShare
	if itemType == constants.ItemDiploma {
		share = cfg.InstitutionShare
	}
	if share.IsNegative() {
		return decimal.Zero
	}
	if share.GreaterThan(hundred) {
		return hundred
	}
	return share
}

// Split is the display breakdown of total. Activations go entirely to the platform.
// The platform amount is rounded first and the creator gets the remainder.
func Split(itemType string, total decimal.Decimal, cfg upstream.SplitConfig) dto.Breakdown {
	if itemType == constants.ItemActivation {
		return dto.Breakdown{
			PlatformPercent: hundred,
			PlatformAmount:  total.Round(2),
			CreatorPercent:  decimal.Zero,
			CreatorAmount:   decimal.Zero,
		}
	}
	creator := CreatorShare(itemType, cfg)
	platformPct := hundred.Sub(creator)
	platformAmt := total.Mul(platformPct).Div(hundred).Round(2)
	return dto.Breakdown{
		PlatformPercent: platformPct,
		PlatformAmount:  platformAmt,
		CreatorPercent:  creator,
		CreatorAmount:   total.Sub(platformAmt).Round(2),
	}
}

func quoteDisplay(v dto.QuoteView) dto.QuoteDisplay {
	d := dto.QuoteDisplay{
		Subtotal:    FormatMoney(v.Currency, v.Subtotal),
		PlatformFee: FormatMoney(v.Currency, v.Breakdown.PlatformAmount),
		Total:       FormatMoney(v.Currency, v.Total),
	}
	if v.Discount.IsPositive() {
		d.Discount = "- " + FormatMoney(v.Currency, v.Discount)
	}
	if v.ItemType != constants.ItemActivation {
		d.CreatorGets = FormatMoney(v.Currency, v.Breakdown.CreatorAmount)
	}
	return d
}
