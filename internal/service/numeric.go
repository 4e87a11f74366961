package service

import (
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(2))
	return n
}

// NumericToDecimal converts a stored money value. Invalid values read as zero.
func NumericToDecimal(n pgtype.Numeric) decimal.Decimal { return numericToDecimal(n) }

// DecimalToNumeric converts a money value to its stored form with two
// fractional digits.
func DecimalToNumeric(d decimal.Decimal) pgtype.Numeric { return decimalToNumeric(d) }

// toMinorUnits converts an amount to cents, rounding half away from zero.
func toMinorUnits(d decimal.Decimal) int64 {
	return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
