package peerschedule

import (
	"math/bits"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// QuorumPolicy decides whether a weight is enough to finalize something.
type QuorumPolicy interface {
	IsQuorum(weight, totalWeight uint64) bool
}

// FractionQuorum is reached by any weight strictly greater than
// Numerator/Denominator of the total weight.
type FractionQuorum struct {
	Numerator   uint64
	Denominator uint64
}

// DefaultQuorum is the classic BFT two thirds quorum.
var DefaultQuorum = FractionQuorum{Numerator: 2, Denominator: 3}

// IsQuorum implements QuorumPolicy. Both products are compared as 128-bit
// numbers so stake weights may use the whole uint64 range.
func (q FractionQuorum) IsQuorum(weight, totalWeight uint64) bool {
	return greaterProduct(weight, q.Denominator, totalWeight, q.Numerator)
}

// greaterProduct returns whether a*b > c*d.
func greaterProduct(a, b, c, d uint64) bool {
	hi1, lo1 := bits.Mul64(a, b)
	hi2, lo2 := bits.Mul64(c, d)
	return hi1 > hi2 || (hi1 == hi2 && lo1 > lo2)
}

func (q FractionQuorum) String() string {
	return strconv.FormatUint(q.Numerator, 10) + "/" + strconv.FormatUint(q.Denominator, 10)
}

// ParseFractionQuorum parses a fraction of the form "num/den".
func ParseFractionQuorum(s string) (FractionQuorum, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return FractionQuorum{}, errors.Errorf("quorum %q is not of the form num/den", s)
	}
	numerator, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 32)
	if err != nil {
		return FractionQuorum{}, errors.Wrapf(err, "malformed quorum numerator in %q", s)
	}
	denominator, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 32)
	if err != nil {
		return FractionQuorum{}, errors.Wrapf(err, "malformed quorum denominator in %q", s)
	}
	if denominator == 0 || numerator >= denominator || numerator*2 < denominator {
		return FractionQuorum{}, errors.Errorf("quorum %q must be a fraction in [1/2, 1)", s)
	}
	return FractionQuorum{Numerator: numerator, Denominator: denominator}, nil
}
