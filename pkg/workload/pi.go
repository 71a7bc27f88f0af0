package workload

import (
	"context"
	"math"
	"math/big"
)

// piTerms is the number of BBP series terms summed, independent of precision.
const piTerms = 100

// Pi computes pi to parameter decimal digits with the Bailey–Borwein–Plouffe
// series on arbitrary-precision floats.
type Pi struct{}

func (Pi) Name() string { return "pi" }

func (Pi) Run(ctx context.Context, parameter int) error {
	_, err := ComputePi(ctx, parameter)
	return err
}

// ComputePi returns pi evaluated at a precision of digits decimal places.
func ComputePi(ctx context.Context, digits int) (*big.Float, error) {
	if digits < 1 {
		digits = 1
	}
	prec := uint(math.Ceil(float64(digits)*math.Log2(10))) + 64

	newF := func(v int64) *big.Float {
		return new(big.Float).SetPrec(prec).SetInt64(v)
	}

	sum := newF(0)
	sixteenK := newF(1) // 16^k
	sixteen := newF(16)

	term := new(big.Float).SetPrec(prec)
	part := new(big.Float).SetPrec(prec)
	for k := int64(0); k < piTerms; k++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// 4/(8k+1) - 2/(8k+4) - 1/(8k+5) - 1/(8k+6)
		term.Quo(newF(4), newF(8*k+1))
		term.Sub(term, part.Quo(newF(2), newF(8*k+4)))
		term.Sub(term, part.Quo(newF(1), newF(8*k+5)))
		term.Sub(term, part.Quo(newF(1), newF(8*k+6)))

		term.Quo(term, sixteenK)
		sum.Add(sum, term)
		sixteenK.Mul(sixteenK, sixteen)
	}
	return sum, nil
}
