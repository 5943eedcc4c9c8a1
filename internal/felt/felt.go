// Package felt encodes values as Starknet field elements (felt252) for calldata.
package felt

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Prime is the felt252 modulus 2^251 + 17*2^192 + 1.
var Prime = func() *big.Int {
	p := new(big.Int).Lsh(big.NewInt(1), 251)
	p.Add(p, new(big.Int).Mul(big.NewInt(17), new(big.Int).Lsh(big.NewInt(1), 192)))
	return p.Add(p, big.NewInt(1))
}()

var (
	mask250 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 250), big.NewInt(1))
	mask128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
)

// ErrOutOfRange is returned for values outside [0, Prime).
var ErrOutOfRange = errors.New("value is not a valid felt252")

// Parse reads a felt from 0x-prefixed hex or decimal.
func Parse(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	base := 10
	digits := s
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base, digits = 16, s[2:]
	}
	v, ok := new(big.Int).SetString(digits, base)
	if !ok || digits == "" {
		return nil, fmt.Errorf("invalid felt %q", s)
	}
	if err := Check(v); err != nil {
		return nil, err
	}
	return v, nil
}

// MustParse is Parse for constants.
func MustParse(s string) *big.Int {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Check reports whether v is in [0, Prime).
func Check(v *big.Int) error {
	if v == nil || v.Sign() < 0 || v.Cmp(Prime) >= 0 {
		return fmt.Errorf("%w: %v", ErrOutOfRange, v)
	}
	return nil
}

// Reduce returns v mod Prime and whether a reduction happened.
func Reduce(v *big.Int) (*big.Int, bool) {
	if v.Sign() >= 0 && v.Cmp(Prime) < 0 {
		return v, false
	}
	return new(big.Int).Mod(v, Prime), true
}

// Hex formats v as 0x-prefixed lowercase hex.
func Hex(v *big.Int) string {
	return fmt.Sprintf("0x%x", v)
}

// HexAll formats a calldata slice.
func HexAll(vs []*big.Int) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = Hex(v)
	}
	return out
}

// SplitU256 returns the (low, high) 128-bit limbs of a u256.
func SplitU256(v *big.Int) (low, high *big.Int, err error) {
	if v == nil || v.Sign() < 0 {
		return nil, nil, fmt.Errorf("u256 split of negative value %v", v)
	}
	u, overflow := uint256.FromBig(v)
	if overflow {
		return nil, nil, fmt.Errorf("u256 split: %s overflows 256 bits", v)
	}
	low = new(big.Int).And(u.ToBig(), mask128)
	high = new(big.Int).Rsh(u.ToBig(), 128)
	return low, high, nil
}

// JoinU256 is the inverse of SplitU256.
func JoinU256(low, high *big.Int) *big.Int {
	v := new(big.Int).Lsh(high, 128)
	return v.Or(v, low)
}

// FromInt32 encodes a signed 32-bit value. Negative values map to Prime - |v|.
func FromInt32(v int32) *big.Int {
	if v >= 0 {
		return big.NewInt(int64(v))
	}
	return new(big.Int).Sub(Prime, big.NewInt(-int64(v)))
}

// ToInt32 decodes a felt produced by FromInt32.
func ToInt32(v *big.Int) (int32, error) {
	if v.IsInt64() && v.Int64() <= 1<<31-1 && v.Sign() >= 0 {
		return int32(v.Int64()), nil
	}
	neg := new(big.Int).Sub(Prime, v)
	if neg.Sign() > 0 && neg.IsInt64() && neg.Int64() <= 1<<31 {
		return int32(-neg.Int64()), nil
	}
	return 0, fmt.Errorf("felt %s is not an i32", Hex(v))
}

// FromBool encodes true as 1 and false as 0.
func FromBool(b bool) *big.Int {
	if b {
		return big.NewInt(1)
	}
	return big.NewInt(0)
}

// Selector returns starknet_keccak(name): keccak256 truncated to 250 bits.
func Selector(name string) *big.Int {
	h := new(big.Int).SetBytes(crypto.Keccak256([]byte(name)))
	return h.And(h, mask250)
}

// Array returns [len(vs), vs...].
func Array(vs []*big.Int) []*big.Int {
	out := make([]*big.Int, 0, len(vs)+1)
	out = append(out, big.NewInt(int64(len(vs))))
	return append(out, vs...)
}
