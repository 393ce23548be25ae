package crypto

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/sha3"
)

// EIP55 computes the checksummed hex address string from a 20-byte raw address.
func EIP55(addr20 []byte) string {
	hexaddr := hex.EncodeToString(addr20)
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(hexaddr))
	hash := h.Sum(nil)

	out := make([]byte, 2+len(hexaddr))
	copy(out, "0x")
	for i, c := range []byte(hexaddr) {
		if c >= '0' && c <= '9' {
			out[2+i] = c
			continue
		}
		// i>>1 picks the hash byte, even/odd picks the high/low nibble
		nibble := hash[i>>1] & 0x0f
		if i%2 == 0 {
			nibble = hash[i>>1] >> 4
		}
		if nibble >= 8 {
			c -= 'a' - 'A'
		}
		out[2+i] = c
	}
	return string(out)
}

// ChecksumHex validates a 0x-prefixed 20-byte hex address and returns its
// EIP-55 form. Mixed-case input must already carry a valid checksum.
func ChecksumHex(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) != 42 || !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return "", false
	}
	raw, err := hex.DecodeString(s[2:])
	if err != nil {
		return "", false
	}
	sum := EIP55(raw)

	body := s[2:]
	if body != strings.ToLower(body) && body != strings.ToUpper(body) && sum[2:] != body {
		return "", false
	}
	return sum, true
}
