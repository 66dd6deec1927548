// Package validation provides input parsing and validation for fundme.
package validation

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/mod/semver"
)

var (
	// Wei is one wei.
	Wei = big.NewInt(1)
	// Gwei is 1e9 wei.
	Gwei = big.NewInt(1_000_000_000)
	// Ether is 1e18 wei.
	Ether = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
)

// ValidateAddress validates an Ethereum address
func ValidateAddress(addr string) error {
	if len(addr) != 42 {
		return errors.New("invalid address length: must be 42 characters (0x + 40 hex)")
	}
	if !strings.HasPrefix(addr, "0x") && !strings.HasPrefix(addr, "0X") {
		return errors.New("invalid address: must start with 0x")
	}
	if !common.IsHexAddress(addr) {
		return errors.New("invalid address: contains non-hex characters")
	}
	return nil
}

// ParseAddress validates and converts an address string.
func ParseAddress(addr string) (common.Address, error) {
	if err := ValidateAddress(addr); err != nil {
		return common.Address{}, err
	}
	return common.HexToAddress(addr), nil
}

// ValidateChainID validates a chain ID
func ValidateChainID(chainID int) error {
	if chainID <= 0 {
		return errors.New("chain ID must be positive")
	}
	return nil
}

// ParseAmount parses an amount of the native asset into wei.
//
// Accepted forms:
//
//	"1000000000000000000"  wei
//	"1eth", "0.03 ether"   ether, up to 18 fractional digits
//	"5gwei"                gwei, up to 9 fractional digits
func ParseAmount(s string) (*big.Int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return nil, errors.New("amount cannot be empty")
	}

	unit, decimals := Wei, 0
	for _, suffix := range []struct {
		name     string
		unit     *big.Int
		decimals int
	}{
		{"ether", Ether, 18},
		{"eth", Ether, 18},
		{"gwei", Gwei, 9},
		{"wei", Wei, 0},
	} {
		if strings.HasSuffix(s, suffix.name) {
			s = strings.TrimSpace(strings.TrimSuffix(s, suffix.name))
			unit, decimals = suffix.unit, suffix.decimals
			break
		}
	}

	if strings.HasPrefix(s, "-") {
		return nil, errors.New("amount must not be negative")
	}

	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return nil, fmt.Errorf("invalid amount: %q", s)
	}
	if hasFrac && len(frac) > decimals {
		return nil, fmt.Errorf("invalid amount: too many decimal places (max %d)", decimals)
	}

	if !isDigits(whole) || !isDigits(frac) {
		return nil, fmt.Errorf("invalid amount: %q", s)
	}
	if whole == "" {
		whole = "0"
	}
	w, ok := new(big.Int).SetString(whole, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount: %q", s)
	}
	result := new(big.Int).Mul(w, unit)

	if frac != "" {
		padded := frac + strings.Repeat("0", decimals-len(frac))
		f, ok := new(big.Int).SetString(padded, 10)
		if !ok {
			return nil, fmt.Errorf("invalid amount: %q", s)
		}
		result.Add(result, f)
	}
	return result, nil
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// FormatEther renders a wei amount as a decimal ether string without
// trailing zeros, e.g. 30000000000000000 -> "0.03".
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	sign := ""
	v := new(big.Int).Set(wei)
	if v.Sign() < 0 {
		sign = "-"
		v.Neg(v)
	}
	q, r := new(big.Int).QuoRem(v, Ether, new(big.Int))
	if r.Sign() == 0 {
		return sign + q.String()
	}
	digits := r.String()
	frac := strings.TrimRight(strings.Repeat("0", 18-len(digits))+digits, "0")
	return sign + q.String() + "." + frac
}

// NormalizeVersion normalizes a version string (strips leading 'v')
func NormalizeVersion(v string) string {
	return strings.TrimPrefix(v, "v")
}

// CompatibleVersions reports whether a client and server version share a
// semver major version. Unparseable versions (e.g. "dev") are treated as
// compatible with everything.
func CompatibleVersions(client, server string) bool {
	c := "v" + NormalizeVersion(client)
	s := "v" + NormalizeVersion(server)
	if !semver.IsValid(c) || !semver.IsValid(s) {
		return true
	}
	return semver.Major(c) == semver.Major(s)
}
