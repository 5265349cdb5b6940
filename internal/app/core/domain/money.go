package domain

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// MinorUnitExponent 所有幣別皆固定為小數點後 2 位
// 注意: 尚未驗證零位小數幣別 (如 JPY)，目前視為前提假設
const MinorUnitExponent = 2

// decimalPattern 僅接受一般十進位寫法，不接受科學記號 (1e3) 與千分位
var decimalPattern = regexp.MustCompile(`^-?[0-9]+(\.[0-9]+)?$`)

var (
	maxMoney = decimal.NewFromInt(math.MaxInt64)
)

// Money 以最小貨幣單位 (分) 表示的金額，全程使用整數運算
// 例: 100.50 USD 存為 10050
type Money int64

// FromMinorUnits 直接以最小單位建立金額
func FromMinorUnits(units int64) Money {
	return Money(units)
}

// FromDecimal 解析十進位字串 (如 "100.50") 為最小單位金額
//
// 參數:
//
//	s: 十進位字串
//
// 回傳:
//
//	Money: 金額
//	error: 負數、非數字、超過 2 位小數或溢位時回傳 ErrInvalidAmount
func FromDecimal(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: amount is required", ErrInvalidAmount)
	}
	if !decimalPattern.MatchString(s) {
		return 0, fmt.Errorf("%w: %q is not a decimal number", ErrInvalidAmount, s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	return fromDecimal(d)
}

// FromNumber 解析 JSON 數字 (float64)，規則與 FromDecimal 相同
func FromNumber(f float64) (Money, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: amount is not a finite number", ErrInvalidAmount)
	}
	return fromDecimal(decimal.NewFromFloat(f))
}

func fromDecimal(d decimal.Decimal) (Money, error) {
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: amount must not be negative", ErrInvalidAmount)
	}
	minor := d.Shift(MinorUnitExponent)
	if !minor.IsInteger() {
		return 0, fmt.Errorf("%w: at most %d decimal places allowed", ErrInvalidAmount, MinorUnitExponent)
	}
	if minor.GreaterThan(maxMoney) {
		return 0, fmt.Errorf("%w: amount is too large", ErrInvalidAmount)
	}
	return Money(minor.IntPart()), nil
}

// MinorUnits 回傳最小單位整數值
func (m Money) MinorUnits() int64 {
	return int64(m)
}

// IsPositive 金額是否嚴格大於 0
func (m Money) IsPositive() bool {
	return m > 0
}

// IsNegative 金額是否小於 0
func (m Money) IsNegative() bool {
	return m < 0
}

// Add 整數加法，溢位時回傳 ErrInvalidAmount
func (m Money) Add(other Money) (Money, error) {
	if other > 0 && m > math.MaxInt64-other {
		return 0, fmt.Errorf("%w: balance overflow", ErrInvalidAmount)
	}
	if other < 0 && m < math.MinInt64-other {
		return 0, fmt.Errorf("%w: balance overflow", ErrInvalidAmount)
	}
	return m + other, nil
}

// Subtract 整數減法，結果可能為負數 (由呼叫端決定是否接受)
func (m Money) Subtract(other Money) (Money, error) {
	if other == math.MinInt64 {
		return 0, fmt.Errorf("%w: balance overflow", ErrInvalidAmount)
	}
	return m.Add(-other)
}

// String 以兩位小數格式輸出，例: 7550 -> "75.50"
func (m Money) String() string {
	return decimal.New(int64(m), -MinorUnitExponent).StringFixed(MinorUnitExponent)
}
