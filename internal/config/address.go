package config

import (
	"fmt"
	"strings"
)

const bech32Charset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

var (
	paymentPrefixes = []string{"addr", "addr_test"}
	stakePrefixes   = []string{"stake", "stake_test"}
)

// ValidateAddress checks that input is a bech32 Shelley payment address.
func ValidateAddress(input string) error {
	hrp, err := checkBech32(input)
	if err != nil {
		return fmt.Errorf("invalid address %s: %w", input, err)
	}
	if !hasPrefix(paymentPrefixes, hrp) {
		return fmt.Errorf("invalid address %s: unexpected prefix %q", input, hrp)
	}
	return nil
}

// ValidateStakeAddress checks that input is a bech32 reward address.
func ValidateStakeAddress(input string) error {
	hrp, err := checkBech32(input)
	if err != nil {
		return fmt.Errorf("invalid stake address %s: %w", input, err)
	}
	if !hasPrefix(stakePrefixes, hrp) {
		return fmt.Errorf("invalid stake address %s: unexpected prefix %q", input, hrp)
	}
	return nil
}

func hasPrefix(prefixes []string, hrp string) bool {
	for _, p := range prefixes {
		if hrp == p {
			return true
		}
	}
	return false
}

// checkBech32 verifies the character set and checksum and returns the human-readable part.
// Cardano addresses exceed the 90 character limit of BIP-173, so length is not checked.
func checkBech32(input string) (string, error) {
	if input != strings.ToLower(input) {
		return "", fmt.Errorf("mixed case")
	}
	sep := strings.LastIndexByte(input, '1')
	if sep < 1 || sep+7 > len(input) {
		return "", fmt.Errorf("missing separator or checksum")
	}
	hrp := input[:sep]
	data := make([]byte, 0, len(input)-sep-1)
	for _, r := range input[sep+1:] {
		idx := strings.IndexRune(bech32Charset, r)
		if idx < 0 {
			return "", fmt.Errorf("invalid character %q", r)
		}
		data = append(data, byte(idx))
	}
	if bech32Polymod(append(hrpExpand(hrp), data...)) != 1 {
		return "", fmt.Errorf("checksum mismatch")
	}
	return hrp, nil
}

func hrpExpand(hrp string) []byte {
	out := make([]byte, 0, len(hrp)*2+1)
	for i := 0; i < len(hrp); i++ {
		out = append(out, hrp[i]>>5)
	}
	out = append(out, 0)
	for i := 0; i < len(hrp); i++ {
		out = append(out, hrp[i]&31)
	}
	return out
}

func bech32Polymod(values []byte) uint32 {
	gen := [5]uint32{0x3b6a57b2, 0x26508e6d, 0x1ea119fa, 0x3d4233dd, 0x2a1462b3}
	chk := uint32(1)
	for _, v := range values {
		top := chk >> 25
		chk = (chk&0x1ffffff)<<5 ^ uint32(v)
		for i := 0; i < 5; i++ {
			if (top>>uint(i))&1 == 1 {
				chk ^= gen[i]
			}
		}
	}
	return chk
}
