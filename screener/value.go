package screener

import (
	"math"

	"defensive-screener/models"

	"github.com/shopspring/decimal"
)

// grahamMultiplier is the P/E limit times the P/B limit (15 x 1.5)
var grahamMultiplier = decimal.RequireFromString("22.5")

// GrahamNumber returns sqrt(22.5 x EPS x book value per share), the highest
// price at which both the P/E and P/B limits can hold together.
// EPS is the trailing 3-year average. The result is invalid when either
// input is missing or not positive.
func GrahamNumber(p models.CompanyFinancialProfile) decimal.NullDecimal {
	p.DeriveEPSAverages()
	if !p.TrailingAvgEPS.Valid || !p.BookValuePerShare.Valid {
		return decimal.NullDecimal{}
	}

	eps := p.TrailingAvgEPS.Decimal
	book := p.BookValuePerShare.Decimal
	if !eps.IsPositive() || !book.IsPositive() {
		return decimal.NullDecimal{}
	}

	product := grahamMultiplier.Mul(eps).Mul(book)
	root := math.Sqrt(product.InexactFloat64())
	return decimal.NewNullDecimal(decimal.NewFromFloat(root).Round(2))
}

// MarginOfSafety returns (graham number - price) / graham number.
// Positive values mean the price sits below the Graham number.
func MarginOfSafety(p models.CompanyFinancialProfile) decimal.NullDecimal {
	graham := GrahamNumber(p)
	if !graham.Valid || !p.Price.Valid || graham.Decimal.IsZero() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(graham.Decimal.Sub(p.Price.Decimal).Div(graham.Decimal).Round(4))
}
