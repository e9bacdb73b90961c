package pricing

import (
	"github.com/shopspring/decimal"
)

var (
	weightRate  = decimal.RequireFromString("0.5")
	contentRate = decimal.RequireFromString("0.01")
)

// Cost считает стоимость доставки по формуле из ТЗ:
// стоимость = (вес_кг * 0.5 + стоимость_в_долларах * 0.01) * курс_USD_RUB.
// Результат округляется до копеек (2 знака, половина — вверх).
func Cost(weightKg, contentUSD, usdRub decimal.Decimal) decimal.Decimal {
	base := weightKg.Mul(weightRate).Add(contentUSD.Mul(contentRate))
	return base.Mul(usdRub).Round(2)
}
