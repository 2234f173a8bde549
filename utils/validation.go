package utils

import (
	"encoding/base64"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
	"github.com/vitwit/bando/types"
)

var (
	hexPattern    = regexp.MustCompile("^[0-9a-fA-F]+$")
	base58Pattern = regexp.MustCompile("^[1-9A-HJ-NP-Za-km-z]+$")
)

// ValidateAmount checks if an amount string is a valid non-negative decimal
func ValidateAmount(amount string) (*decimal.Decimal, error) {
	if amount == "" {
		return nil, fmt.Errorf("amount cannot be empty")
	}

	dec, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount format: %w", err)
	}

	if dec.IsNegative() {
		return nil, fmt.Errorf("amount cannot be negative")
	}

	return &dec, nil
}

// ParseHexValue decodes a hex encoded unsigned integer such as the value of
// an EVM transaction request. Empty values and "0x" decode to zero.
func ParseHexValue(value string) (*big.Int, error) {
	v := strings.TrimSpace(value)
	if v == "" || v == "0x" || v == "0X" {
		return new(big.Int), nil
	}
	if !strings.HasPrefix(v, "0x") && !strings.HasPrefix(v, "0X") {
		return nil, fmt.Errorf("value %q is not 0x prefixed", value)
	}
	// hexutil rejects leading zero digits, big.Int does not
	n, ok := new(big.Int).SetString(v[2:], 16)
	if !ok {
		return nil, fmt.Errorf("value %q is not a hex integer", value)
	}
	if n.Sign() < 0 {
		return nil, fmt.Errorf("value %q is negative", value)
	}
	return n, nil
}

// ParseHexData decodes EVM call data. Empty data and "0x" decode to nil.
func ParseHexData(data string) ([]byte, error) {
	d := strings.TrimSpace(data)
	if d == "" || d == "0x" {
		return nil, nil
	}
	if !strings.HasPrefix(d, "0x") {
		d = "0x" + d
	}
	return hexutil.Decode(d)
}

// ValidateTransactionHash validates a transaction identifier for the family.
func ValidateTransactionHash(hash string, family types.ChainFamily) error {
	if hash == "" {
		return fmt.Errorf("transaction hash cannot be empty")
	}

	switch family {
	case types.ChainEVM:
		// 0x + 64 hex
		if !strings.HasPrefix(hash, "0x") {
			return fmt.Errorf("EVM transaction hash must start with 0x")
		}
		if len(hash) != 66 {
			return fmt.Errorf("EVM transaction hash must be 66 characters long")
		}
		if !hexPattern.MatchString(hash[2:]) {
			return fmt.Errorf("EVM transaction hash must be valid hex")
		}

	case types.ChainSolana:
		// base58 encoded 64 byte signature
		if len(hash) < 80 || len(hash) > 90 {
			return fmt.Errorf("solana transaction signature has invalid length")
		}
		if !base58Pattern.MatchString(hash) {
			return fmt.Errorf("solana transaction signature must be valid base58")
		}

	default:
		return fmt.Errorf("unsupported chain family %q", family)
	}

	return nil
}

// ValidateAddressForFamily validates a wallet or token address.
func ValidateAddressForFamily(address string, family types.ChainFamily) error {
	if address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	switch family {
	case types.ChainEVM:
		if !strings.HasPrefix(address, "0x") || !common.IsHexAddress(address) {
			return fmt.Errorf("invalid EVM address %q", address)
		}

	case types.ChainSolana:
		if len(address) < 32 || len(address) > 44 {
			return fmt.Errorf("solana address has invalid length")
		}
		if !base58Pattern.MatchString(address) {
			return fmt.Errorf("solana address must be valid base58")
		}

	default:
		return fmt.Errorf("unsupported chain family %q", family)
	}

	return nil
}

// ValidateBase64 checks that s is standard base64 and returns the bytes.
func ValidateBase64(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("invalid base64: %w", err)
	}
	if len(b) == 0 {
		return nil, fmt.Errorf("empty payload")
	}
	return b, nil
}

// FormatAmountFromBigInt formats a raw integer amount with the given decimals.
func FormatAmountFromBigInt(amount *big.Int, decimals int) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -int32(decimals))
}

// ParseAmountWithDecimals parses a decimal amount string and converts it to
// a raw integer with the given decimals.
func ParseAmountWithDecimals(amount string, decimals int) (*big.Int, error) {
	dec, err := ValidateAmount(amount)
	if err != nil {
		return nil, err
	}
	return dec.Shift(int32(decimals)).BigInt(), nil
}
