package clients

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"
	"strings"
	"unicode/utf8"
)

// DecodeUint8Return decodes a single ABI-encoded uint8 return value
// (one 32-byte word, value in the last byte).
func DecodeUint8Return(out []byte) (uint8, error) {
	if len(out) < 32 {
		return 0, fmt.Errorf("short return data: %d bytes", len(out))
	}
	word := out[:32]
	for _, b := range word[:31] {
		if b != 0 {
			return 0, fmt.Errorf("uint8 return overflows a byte")
		}
	}
	return word[31], nil
}

// DecodeStringReturn decodes an ABI-encoded string return value. Most
// tokens return a dynamic string (offset word, length word, data); a few
// old contracts (e.g. MKR, SAI) return a right-padded bytes32 instead, so
// that layout is accepted too.
func DecodeStringReturn(out []byte) (string, error) {
	if len(out) == 32 {
		return decodeBytes32String(out), nil
	}
	if len(out) < 64 {
		return "", fmt.Errorf("short return data: %d bytes", len(out))
	}

	// The offset and length words come straight from the contract, so the
	// comparisons must not involve any addition that could wrap.
	total := uint64(len(out))
	offset := binary.BigEndian.Uint64(out[24:32])
	if offset > total-32 {
		return "", fmt.Errorf("string offset %d out of range", offset)
	}
	length := binary.BigEndian.Uint64(out[offset+24 : offset+32])
	start := offset + 32
	if length > total-start {
		return "", fmt.Errorf("string length %d out of range", length)
	}

	s := string(out[start : start+length])
	if !utf8.ValidString(s) {
		return "", fmt.Errorf("string return is not valid UTF-8")
	}
	return s, nil
}

func decodeBytes32String(word []byte) string {
	trimmed := bytes.TrimRight(word, "\x00")
	if !utf8.Valid(trimmed) {
		return ""
	}
	return string(trimmed)
}

// DecodeLogAmount interprets the data field of a Transfer log as a uint256
// amount. RPC gateways disagree on the representation, so raw bytes, 0x-hex
// strings and already-decoded integers are all accepted; anything else
// decodes to zero rather than failing the whole resolution. Empty data also
// decodes to zero (some deflationary tokens emit it).
func DecodeLogAmount(v any) *big.Int {
	switch data := v.(type) {
	case []byte:
		return new(big.Int).SetBytes(data)
	case string:
		s := strings.TrimPrefix(strings.TrimSpace(data), "0x")
		if n, ok := new(big.Int).SetString(s, 16); ok {
			return n
		}
	case *big.Int:
		if data != nil {
			return new(big.Int).Set(data)
		}
	case uint64:
		return new(big.Int).SetUint64(data)
	case int64:
		return big.NewInt(data)
	case int:
		return big.NewInt(int64(data))
	}
	return new(big.Int)
}
