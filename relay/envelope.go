package relay

import (
	"github.com/meow-io/go-hush/bencode"
	"github.com/meow-io/go-hush/crypto"
)

var associatedData = []byte("hush/invite/1")

// The body of an invite delivery.
type envelope struct {
	From  string `bencode:"f"`
	Nonce []byte `bencode:"n"`
	Body  []byte `bencode:"b"`
}

// Seal invite from key for peer.
func sealInvite(key *crypto.Key, peer, invite string) ([]byte, error) {
	nonce, sealed, err := key.Seal(peer, []byte(invite), associatedData)
	if err != nil {
		return nil, err
	}
	return bencode.Serialize(&envelope{From: key.PublicKeyHex(), Nonce: nonce, Body: sealed})
}

// Open a delivery addressed to key, returning the sender and the invite.
func openInvite(key *crypto.Key, b []byte) (string, string, error) {
	e := &envelope{}
	if err := bencode.Deserialize(b, e); err != nil {
		return "", "", err
	}
	invite, err := key.Open(e.From, e.Nonce, e.Body, associatedData)
	if err != nil {
		return "", "", err
	}
	return e.From, string(invite), nil
}
