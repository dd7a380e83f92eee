package ledger

import (
	"encoding/json"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestPerUnitFloors(t *testing.T) {
	p, err := PerUnitFromRatio(uint256.NewInt(1), uint256.NewInt(3))
	require.NoError(t, err)
	require.Equal(t, "333333333333333333", p.String())

	got, err := p.Apply(uint256.NewInt(3))
	require.NoError(t, err)
	require.True(t, got.IsZero(), "expected floor to zero, got %s", got.Dec())
}

func TestPerUnitZeroDenominator(t *testing.T) {
	p, err := PerUnitFromRatio(uint256.NewInt(5), new(uint256.Int))
	require.NoError(t, err)
	require.True(t, p.IsZero())
}

func TestPerUnitOverflow(t *testing.T) {
	max := new(uint256.Int).SetAllOne()
	_, err := PerUnitFromRatio(max, uint256.NewInt(1))
	require.ErrorIs(t, err, ErrOverflow)

	a, err := PerUnitFromRatio(max, Scale)
	require.NoError(t, err)
	_, err = a.Add(a)
	require.ErrorIs(t, err, ErrOverflow)
}

func TestPerUnitSubSaturates(t *testing.T) {
	small, err := PerUnitFromRatio(uint256.NewInt(1), uint256.NewInt(2))
	require.NoError(t, err)
	big, err := PerUnitFromRatio(uint256.NewInt(3), uint256.NewInt(2))
	require.NoError(t, err)

	require.True(t, small.Sub(big).IsZero())
	require.Equal(t, "1000000000000000000", big.Sub(small).String())
}

func TestPerUnitJSONIsDecimalString(t *testing.T) {
	p, err := PerUnitFromRatio(uint256.NewInt(7), uint256.NewInt(2))
	require.NoError(t, err)
	data, err := json.Marshal(struct {
		V PerUnit `json:"v"`
	}{V: p})
	require.NoError(t, err)
	require.JSONEq(t, `{"v":"3500000000000000000"}`, string(data))
}

func TestParseAmount(t *testing.T) {
	cases := map[string]string{
		"0":      "0",
		"42":     "42",
		"100e18": "100000000000000000000",
		" 1E3 ":  "1000",
		"5e0":    "5",
	}
	for input, want := range cases {
		got, err := ParseAmount(input)
		require.NoError(t, err, "parse %q", input)
		require.Equal(t, want, got.Dec(), "parse %q", input)
	}
}

func TestParseAmountInvalid(t *testing.T) {
	for _, input := range []string{"", "-1", "1.5", "abc", "1e", "1e99"} {
		_, err := ParseAmount(input)
		require.Error(t, err, "input %q", input)
	}
}
