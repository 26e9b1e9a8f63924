// Package types provides the value types shared by every policymaker package.
package types

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// Money is an amount in the smallest unit of a currency.
// Premium math never touches floating point; every operation is integer-only.
//
//	USD(2000) is $20.00, New(500, "jpy") is ¥500.
//
// Ether amounts use currency "eth" and are counted in gwei (1e9 wei), so
// New(100*GweiPerEther, "eth") is 100 ETH. The largest representable amount
// is about 9.2e9 ETH; sub-gwei precision is not kept.
type Money struct {
	Amount   int64  `json:"amount"`   // smallest unit (cents, pence, yen, gwei)
	Currency string `json:"currency"` // ISO 4217, lowercase
}

// DefaultCurrency is used when policy terms do not name one.
const DefaultCurrency = "usd"

// GweiPerEther is the number of "eth" minor units in one ether.
const GweiPerEther = 1_000_000_000

// USD creates a Money value in US Dollars (cents).
func USD(cents int64) Money { return Money{Amount: cents, Currency: "usd"} }

// EUR creates a Money value in Euros (cents).
func EUR(cents int64) Money { return Money{Amount: cents, Currency: "eur"} }

// New creates a Money value in an arbitrary currency.
func New(amount int64, currency string) Money {
	return Money{Amount: amount, Currency: NormalizeCurrency(currency)}
}

// Zero returns a zero amount in currency.
func Zero(currency string) Money { return Money{Currency: NormalizeCurrency(currency)} }

// NormalizeCurrency lowercases and trims a currency code, falling back to DefaultCurrency.
func NormalizeCurrency(currency string) string {
	c := strings.ToLower(strings.TrimSpace(currency))
	if c == "" {
		return DefaultCurrency
	}
	return c
}

// Subtract subtracts other from m. Panics on currency mismatch.
// The caller guarantees the difference fits.
func (m Money) Subtract(other Money) Money {
	m.assertSameCurrency(other)
	return Money{Amount: m.Amount - other.Amount, Currency: m.Currency}
}

// MulDiv returns m*mul/div computed without intermediate overflow. The quotient
// truncates toward zero. ok is false when div is zero or the result does not
// fit in an int64.
func (m Money) MulDiv(mul, div int64) (result Money, ok bool) {
	if div == 0 {
		return Money{Currency: m.Currency}, false
	}
	n := new(big.Int).Mul(big.NewInt(m.Amount), big.NewInt(mul))
	n.Quo(n, big.NewInt(div))
	if !n.IsInt64() {
		return Money{Currency: m.Currency}, false
	}
	return Money{Amount: n.Int64(), Currency: m.Currency}, true
}

// CheckedAdd adds other to m, reporting overflow instead of wrapping.
func (m Money) CheckedAdd(other Money) (Money, bool) {
	m.assertSameCurrency(other)
	sum := m.Amount + other.Amount
	if (other.Amount > 0 && sum < m.Amount) || (other.Amount < 0 && sum > m.Amount) {
		return Money{Currency: m.Currency}, false
	}
	return Money{Amount: sum, Currency: m.Currency}, true
}

// IsPositive reports whether the amount is greater than zero.
func (m Money) IsPositive() bool { return m.Amount > 0 }

// LessThan reports m < other. Panics on currency mismatch.
func (m Money) LessThan(other Money) bool {
	m.assertSameCurrency(other)
	return m.Amount < other.Amount
}

// GreaterOrEqual reports m >= other. Panics on currency mismatch.
func (m Money) GreaterOrEqual(other Money) bool {
	m.assertSameCurrency(other)
	return m.Amount >= other.Amount
}

// FormatMajor renders the amount in major units without a symbol:
// "49.00" for USD(4900), "100" for New(100, "jpy").
func (m Money) FormatMajor() string {
	decimals := currencyDecimals(m.Currency)
	if decimals == 0 {
		return strconv.FormatInt(m.Amount, 10)
	}

	divisor := int64(1)
	for i := 0; i < decimals; i++ {
		divisor *= 10
	}

	negative := m.Amount < 0
	abs := m.Amount
	if negative {
		abs = -abs
	}

	result := fmt.Sprintf("%d.%0*d", abs/divisor, decimals, abs%divisor)
	if negative {
		return "-" + result
	}
	return result
}

// String renders the amount with its currency symbol, e.g. "$49.00".
func (m Money) String() string {
	return currencySymbol(m.Currency) + m.FormatMajor()
}

// MarshalJSON adds a display string next to the raw amount.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Display  string `json:"display"`
	}{
		Amount:   m.Amount,
		Currency: m.Currency,
		Display:  m.String(),
	})
}

// UnmarshalJSON accepts the shape produced by MarshalJSON; display is ignored.
func (m *Money) UnmarshalJSON(data []byte) error {
	var raw struct {
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Amount = raw.Amount
	m.Currency = NormalizeCurrency(raw.Currency)
	return nil
}

func (m Money) assertSameCurrency(other Money) {
	if m.Currency != other.Currency {
		panic(fmt.Sprintf("money: currency mismatch: %s != %s", m.Currency, other.Currency))
	}
}

var symbols = map[string]string{
	"usd": "$",
	"eur": "€",
	"gbp": "£",
	"jpy": "¥",
	"cad": "C$",
	"aud": "A$",
	"chf": "CHF ",
}

func currencySymbol(currency string) string {
	if sym, ok := symbols[strings.ToLower(currency)]; ok {
		return sym
	}
	return strings.ToUpper(currency) + " "
}

// minor-unit digits for currencies that do not use two
var minorDigits = map[string]int{
	"jpy": 0,
	"krw": 0,
	"vnd": 0,
	"clp": 0,
	"idr": 0,
	"eth": 9,
}

func currencyDecimals(currency string) int {
	if d, ok := minorDigits[strings.ToLower(currency)]; ok {
		return d
	}
	return 2
}
