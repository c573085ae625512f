// This package wraps the secp256k1 keys used for device identities and termination credentials, keccak-256
// hashing, and the sealing of payloads between two key holders.
package crypto

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/sha3"
)

// A secp256k1 private key.
type Key struct {
	priv *secp256k1.PrivateKey
}

func GenerateKey() (*Key, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	return &Key{priv}, nil
}

// Parse a hex encoded private key, with or without a 0x prefix.
func KeyFromHex(s string) (*Key, error) {
	b, err := decodeHex(s)
	if err != nil {
		return nil, err
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("crypto: expected 32 byte private key, got %d", len(b))
	}
	return &Key{secp256k1.PrivKeyFromBytes(b)}, nil
}

// Private key as 0x-prefixed hex.
func (k *Key) PrivateKeyHex() string {
	return "0x" + hex.EncodeToString(k.priv.Serialize())
}

// Compressed public key as hex, without prefix.
func (k *Key) PublicKeyHex() string {
	return hex.EncodeToString(k.priv.PubKey().SerializeCompressed())
}

// Checksummed account address of the key.
func (k *Key) Address() string {
	return ChecksumAddress(addressBytes(k.priv.PubKey()))
}

func (k *Key) sharedSecret(peer *secp256k1.PublicKey) []byte {
	return secp256k1.GenerateSharedSecret(k.priv, peer)
}

// Parse a hex encoded compressed or uncompressed public key.
func ParsePublicKey(s string) (*secp256k1.PublicKey, error) {
	b, err := decodeHex(s)
	if err != nil {
		return nil, err
	}
	pub, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid public key: %w", err)
	}
	return pub, nil
}

// Public key fields used by identities.
func CompressedPublicKey(pub *secp256k1.PublicKey) string {
	return hex.EncodeToString(pub.SerializeCompressed())
}

func PublicKeyAddress(pub *secp256k1.PublicKey) string {
	return ChecksumAddress(addressBytes(pub))
}

func addressBytes(pub *secp256k1.PublicKey) []byte {
	uncompressed := pub.SerializeUncompressed()
	return Keccak256(uncompressed[1:])[12:]
}

func Keccak256(parts ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

// Hash of deployed contract code, as lowercase hex without prefix. This is the form chat types are
// registered under.
func CodeHash(code []byte) string {
	return hex.EncodeToString(Keccak256(code))
}

// EIP-55 mixed-case address.
func ChecksumAddress(addr []byte) string {
	lower := hex.EncodeToString(addr)
	hash := hex.EncodeToString(Keccak256([]byte(lower)))
	out := make([]byte, len(lower))
	for i := range lower {
		c := lower[i]
		if c >= 'a' && c <= 'f' && hash[i] >= '8' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return "0x" + string(out)
}

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid hex: %w", err)
	}
	return b, nil
}
