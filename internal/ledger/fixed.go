package ledger

import (
	"fmt"

	"github.com/holiman/uint256"
)

// ScaleDecimals is the number of decimal places carried by PerUnit values.
const ScaleDecimals = 18

// Scale is the fixed-point denominator of PerUnit (1e18).
var Scale = uint256.NewInt(1_000_000_000_000_000_000)

// PerUnit is a reward amount per unit of deposit, stored multiplied by Scale.
// Every conversion back to whole reward units floors toward zero, so a single
// conversion under-pays by less than one reward unit.
type PerUnit struct {
	v uint256.Int
}

// PerUnitFromRatio returns floor(num * Scale / den). A zero den yields zero.
func PerUnitFromRatio(num, den *uint256.Int) (PerUnit, error) {
	if den == nil || den.IsZero() || num == nil {
		return PerUnit{}, nil
	}
	var p PerUnit
	if _, overflow := p.v.MulDivOverflow(num, Scale, den); overflow {
		return PerUnit{}, fmt.Errorf("per-unit ratio %s/%s: %w", num.Dec(), den.Dec(), ErrOverflow)
	}
	return p, nil
}

// ParsePerUnit parses the raw scaled decimal representation.
func ParsePerUnit(s string) (PerUnit, error) {
	var p PerUnit
	if err := p.v.SetFromDecimal(s); err != nil {
		return PerUnit{}, fmt.Errorf("parse per-unit %q: %w", s, err)
	}
	return p, nil
}

// Add returns p + o.
func (p PerUnit) Add(o PerUnit) (PerUnit, error) {
	var r PerUnit
	if _, overflow := r.v.AddOverflow(&p.v, &o.v); overflow {
		return PerUnit{}, fmt.Errorf("per-unit add: %w", ErrOverflow)
	}
	return r, nil
}

// Sub returns p - o, saturating at zero.
func (p PerUnit) Sub(o PerUnit) PerUnit {
	var r PerUnit
	if _, underflow := r.v.SubOverflow(&p.v, &o.v); underflow {
		return PerUnit{}
	}
	return r
}

// Apply returns floor(amount * p / Scale).
func (p PerUnit) Apply(amount *uint256.Int) (*uint256.Int, error) {
	out := new(uint256.Int)
	if amount == nil || amount.IsZero() || p.v.IsZero() {
		return out, nil
	}
	if _, overflow := out.MulDivOverflow(amount, &p.v, Scale); overflow {
		return nil, fmt.Errorf("apply per-unit to %s: %w", amount.Dec(), ErrOverflow)
	}
	return out, nil
}

func (p PerUnit) Cmp(o PerUnit) int {
	return p.v.Cmp(&o.v)
}

func (p PerUnit) IsZero() bool {
	return p.v.IsZero()
}

// Raw returns a copy of the scaled integer.
func (p PerUnit) Raw() *uint256.Int {
	return p.v.Clone()
}

// String returns the raw scaled integer in decimal.
func (p PerUnit) String() string {
	return p.v.Dec()
}

func (p PerUnit) MarshalText() ([]byte, error) {
	return []byte(p.v.Dec()), nil
}

func (p *PerUnit) UnmarshalText(data []byte) error {
	parsed, err := ParsePerUnit(string(data))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
