package utils

import "github.com/shopspring/decimal"

const satoshiExp = 8

func SatoshiToBtc(satoshi int64) decimal.Decimal {
	return decimal.New(satoshi, -satoshiExp)
}

func BtcToSatoshi(btc decimal.Decimal) int64 {
	return btc.Shift(satoshiExp).IntPart()
}
