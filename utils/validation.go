// Package utils contains small shared helpers.
package utils

import (
	"fmt"
	"regexp"
	"strings"
)

var txHashRe = regexp.MustCompile(`^0x[0-9a-f]{64}$`)

// NormalizeTxHash canonicalizes a user-supplied transaction hash: trims
// whitespace, lowercases, and adds the 0x prefix when it was omitted.
// Anything that is not 32 bytes of hex is rejected.
func NormalizeTxHash(raw string) (string, error) {
	h := strings.ToLower(strings.TrimSpace(raw))
	if h == "" {
		return "", fmt.Errorf("transaction hash is empty")
	}
	if !strings.HasPrefix(h, "0x") {
		h = "0x" + h
	}
	if !txHashRe.MatchString(h) {
		return "", fmt.Errorf("invalid transaction hash %q", raw)
	}
	return h, nil
}

// NormalizeAddress lowercases an EVM address for case-insensitive
// comparison. It does not validate checksums.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
