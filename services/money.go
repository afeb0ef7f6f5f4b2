package services

import "github.com/shopspring/decimal"

// Gateway amounts are integer minor units; carts and the order read model
// use major units with two decimal places.
const minorUnitExp = 2

// maxUnitPrice is the largest unit price the gateway accepts (99999999 minor units).
const maxUnitPrice = 999999.99

func toMinor(major float64) int64 {
	return decimal.NewFromFloat(major).Shift(minorUnitExp).Round(0).IntPart()
}

func toMajor(minor int64) float64 {
	return decimal.New(minor, -minorUnitExp).InexactFloat64()
}

// percentOff turns a discount fraction into a coupon percentage, rounded to
// two places.
func percentOff(fraction float64) float64 {
	return decimal.NewFromFloat(fraction).Shift(2).Round(2).InexactFloat64()
}
