package crypto

import (
	"crypto/cipher"
	crypto_rand "crypto/rand"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// Seal encrypts msg for the holder of peerPublicKey. The shared key is the secp256k1 ECDH secret of the two
// keys hashed with keccak-256; the returned nonce must travel with the ciphertext.
func (k *Key) Seal(peerPublicKey string, msg, ad []byte) (nonce, sealed []byte, err error) {
	aead, err := k.aead(peerPublicKey)
	if err != nil {
		return nil, nil, err
	}
	nonce = make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := io.ReadFull(crypto_rand.Reader, nonce); err != nil {
		return nil, nil, err
	}
	return nonce, aead.Seal(nil, nonce, msg, ad), nil
}

// Open reverses Seal for a payload sent by the holder of peerPublicKey.
func (k *Key) Open(peerPublicKey string, nonce, sealed, ad []byte) ([]byte, error) {
	if len(nonce) != chacha20poly1305.NonceSizeX {
		return nil, errors.New("crypto: wrong nonce length")
	}
	aead, err := k.aead(peerPublicKey)
	if err != nil {
		return nil, err
	}
	return aead.Open(nil, nonce, sealed, ad)
}

func (k *Key) aead(peerPublicKey string) (cipher.AEAD, error) {
	pub, err := ParsePublicKey(peerPublicKey)
	if err != nil {
		return nil, err
	}
	return chacha20poly1305.NewX(Keccak256(k.sharedSecret(pub)))
}
