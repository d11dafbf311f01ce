/*
split.go - Two-installment split allocation

PURPOSE:
  A split payment divides one purchase into two installments billed in
  consecutive months. The second installment is half the total truncated
  DOWN to the nearest 100 currency units; the first installment absorbs
  the remainder. The asymmetry is a fixed business rule, not rounding
  noise - splitAmount(20001) is exactly (10001, 10000).
*/
package billing

// splitRoundingUnit is the granularity the second installment is
// truncated to.
const splitRoundingUnit = 100

// SplitAmount divides a non-negative total into the two installments of
// a split payment. first + second == total always holds, and second is
// always a multiple of 100.
func SplitAmount(total int64) (first, second int64) {
	second = total / 2 / splitRoundingUnit * splitRoundingUnit
	first = total - second
	return first, second
}

// InstallmentAmount returns the amount of one part of a split of total.
func InstallmentAmount(total int64, part SplitPart) int64 {
	first, second := SplitAmount(total)
	if part == SplitSecond {
		return second
	}
	return first
}
