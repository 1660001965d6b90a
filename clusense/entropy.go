package clusense

import "math"

// CalculateEntropy converts a minor allele fraction t into the binary
// entropy -t ln t - (1-t) ln(1-t) that a column must exceed to be treated as
// a variant. It is symmetric: CalculateEntropy(t) == CalculateEntropy(1-t).
func CalculateEntropy(t float64) float64 {
	if t <= 0 || t >= 1 {
		return 0
	}
	return -t*math.Log(t) - (1-t)*math.Log(1-t)
}
