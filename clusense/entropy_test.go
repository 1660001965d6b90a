package clusense

import (
	"math"
	"testing"

	"github.com/grailbio/testutil/expect"
)

func TestCalculateEntropy(t *testing.T) {
	for _, th := range []float64{0.001, 0.05, 0.1, 0.25, 0.3, 0.5, 0.61, 0.9, 0.999} {
		expect.True(t, math.Abs(CalculateEntropy(th)-CalculateEntropy(1-th)) < 1e-12, "t=%v", th)
	}
	expect.True(t, math.Abs(CalculateEntropy(0.5)-math.Log(2)) < 1e-12)
	expect.True(t, math.Abs(CalculateEntropy(0.1)-0.3250829733914482) < 1e-12)
	expect.True(t, CalculateEntropy(0.2) > CalculateEntropy(0.1))
	expect.EQ(t, CalculateEntropy(0), 0.0)
	expect.EQ(t, CalculateEntropy(1), 0.0)
	expect.EQ(t, CalculateEntropy(-0.5), 0.0)
}
