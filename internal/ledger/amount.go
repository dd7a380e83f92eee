package ledger

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ParseAmount parses a non-negative integer amount. Besides plain decimal it
// accepts an integer mantissa with a decimal exponent, e.g. "100e18".
func ParseAmount(input string) (*uint256.Int, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, fmt.Errorf("empty amount")
	}

	mantissa, exponent := input, ""
	idx := strings.IndexAny(input, "eE")
	if idx >= 0 {
		mantissa, exponent = input[:idx], input[idx+1:]
	}

	value, err := uint256.FromDecimal(mantissa)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", input, err)
	}
	if idx < 0 {
		return value, nil
	}

	exp, err := strconv.ParseUint(exponent, 10, 8)
	if err != nil {
		return nil, fmt.Errorf("invalid amount exponent %q: %w", input, err)
	}
	ten := uint256.NewInt(10)
	for i := uint64(0); i < exp; i++ {
		if _, overflow := value.MulOverflow(value, ten); overflow {
			return nil, fmt.Errorf("amount %q: %w", input, ErrOverflow)
		}
	}
	return value, nil
}

// ParseAddress converts a hex string into common.Address.
func ParseAddress(input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid address: %q", input)
	}
	return common.HexToAddress(input), nil
}
