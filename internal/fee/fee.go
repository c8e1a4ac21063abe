// Package fee вычисляет комиссию платформы с суммы заказа.
package fee

import "github.com/shopspring/decimal"

// MinCents задаёт минимальную комиссию платформы в минимальных единицах валюты.
const MinCents int64 = 150

// Rate задаёт долю комиссии платформы от суммы заказа (6%).
var Rate = decimal.New(6, -2)

// Compute возвращает комиссию: max(round(totalCents*Rate), MinCents).
// Половинки округляются от нуля.
func Compute(totalCents int64) int64 {
	fee := decimal.NewFromInt(totalCents).Mul(Rate).Round(0).IntPart()
	if fee < MinCents {
		return MinCents
	}
	return fee
}
