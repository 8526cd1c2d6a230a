package transport

import (
	"encoding/base32"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/crypto/sha3"
)

const onionSuffix = ".onion"

var onionV3Pattern = regexp.MustCompile(`^[a-z2-7]{56}\.onion$`)

// IsOnionHost reports whether the host of rawURL ends in .onion.
func IsOnionHost(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Hostname()), onionSuffix)
}

// IsValidV3Address validates a v3 onion hostname, including its checksum.
// The address is base32(pubkey[32] | checksum[2] | version[1]) + ".onion"
// where checksum = SHA3-256(".onion checksum" | pubkey | version)[:2].
func IsValidV3Address(address string) bool {
	address = strings.ToLower(address)
	if !onionV3Pattern.MatchString(address) {
		return false
	}

	decoded, err := base32.StdEncoding.DecodeString(strings.ToUpper(strings.TrimSuffix(address, onionSuffix)))
	if err != nil || len(decoded) != 35 {
		return false
	}

	pubkey, checksum, version := decoded[:32], decoded[32:34], decoded[34]
	if version != 0x03 {
		return false
	}
	expected := v3Checksum(pubkey, version)
	return checksum[0] == expected[0] && checksum[1] == expected[1]
}

func v3Checksum(pubkey []byte, version byte) []byte {
	data := make([]byte, 0, 15+len(pubkey)+1)
	data = append(data, ".onion checksum"...)
	data = append(data, pubkey...)
	data = append(data, version)
	sum := sha3.Sum256(data)
	return sum[:2]
}

// V3AddressFromPublicKey derives the onion hostname of an ed25519 public key.
func V3AddressFromPublicKey(pubkey []byte) (string, bool) {
	if len(pubkey) != 32 {
		return "", false
	}
	raw := make([]byte, 35)
	copy(raw, pubkey)
	copy(raw[32:], v3Checksum(pubkey, 0x03))
	raw[34] = 0x03
	return strings.ToLower(base32.StdEncoding.EncodeToString(raw)) + onionSuffix, true
}
