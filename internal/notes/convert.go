// convert.go - Checked conversions between big integers and fixed-width amounts.

package notes

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

var (
	// ErrNegative is returned when a negative value is converted to an unsigned width.
	ErrNegative = errors.New("value is negative")
	// ErrOverflow is returned when a value does not fit the requested width.
	ErrOverflow = errors.New("value overflows target width")
)

var maxU128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// ToU128 converts v to a uint256 whose upper 128 bits are zero.
func ToU128(v *big.Int) (*uint256.Int, error) {
	if v == nil || v.Sign() < 0 {
		return nil, ErrNegative
	}
	if v.Cmp(maxU128) > 0 {
		return nil, fmt.Errorf("%w: %s exceeds u128", ErrOverflow, v)
	}
	u, _ := uint256.FromBig(v)
	return u, nil
}

// ToU256 converts v to a uint256, failing loudly instead of wrapping.
func ToU256(v *big.Int) (*uint256.Int, error) {
	if v == nil || v.Sign() < 0 {
		return nil, ErrNegative
	}
	u, overflow := uint256.FromBig(v)
	if overflow {
		return nil, fmt.Errorf("%w: %s exceeds u256", ErrOverflow, v)
	}
	return u, nil
}

// Uint64 converts v to a uint64.
func Uint64(v *big.Int) (uint64, error) {
	if v == nil || v.Sign() < 0 {
		return 0, ErrNegative
	}
	if !v.IsUint64() {
		return 0, fmt.Errorf("%w: %s exceeds u64", ErrOverflow, v)
	}
	return v.Uint64(), nil
}

// ParseAmount parses a non-negative decimal amount that fits u128.
func ParseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, fmt.Errorf("invalid decimal amount %q", s)
	}
	if _, err := ToU128(v); err != nil {
		return nil, err
	}
	return v, nil
}

// ParseHexOrDecimal accepts "0x"-prefixed hex or plain decimal.
func ParseHexOrDecimal(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s, base = s[2:], 16
	}
	if s == "" {
		return nil, errors.New("empty numeric string")
	}
	v, ok := new(big.Int).SetString(s, base)
	if !ok {
		return nil, fmt.Errorf("invalid numeric string %q", s)
	}
	return v, nil
}

// Hex formats v as 0x-prefixed lowercase hex.
func Hex(v *big.Int) string {
	if v == nil {
		return "0x0"
	}
	return fmt.Sprintf("0x%x", v)
}
