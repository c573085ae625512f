// This package defines the identity of a chat member. An identity is derived from a secp256k1 public key and
// is compared by its id, the lowercase hex of the compressed key.
package identity

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/meow-io/go-hush/crypto"
)

type Identity struct {
	id      string
	address string
}

// Create an identity from a hex public key, compressed or not, with or without a 0x prefix.
func New(publicKey string) (Identity, error) {
	pub, err := crypto.ParsePublicKey(publicKey)
	if err != nil {
		return Identity{}, fmt.Errorf("identity: %w", err)
	}
	return Identity{
		id:      crypto.CompressedPublicKey(pub),
		address: crypto.PublicKeyAddress(pub),
	}, nil
}

func FromKey(k *crypto.Key) Identity {
	return Identity{id: k.PublicKeyHex(), address: k.Address()}
}

func MustNew(publicKey string) Identity {
	i, err := New(publicKey)
	if err != nil {
		panic(err)
	}
	return i
}

func (i Identity) ID() string {
	return i.id
}

// The compressed public key. Identical to ID, named for the call sites which hand it to peers.
func (i Identity) PublicKey() string {
	return i.id
}

// Checksummed address.
func (i Identity) Address() string {
	return i.address
}

// Lowercase address, the form contracts are handed.
func (i Identity) Account() string {
	return strings.ToLower(i.address)
}

func (i Identity) IsZero() bool {
	return i.id == ""
}

func (i Identity) Equal(o Identity) bool {
	return i.id == o.id
}

func (i Identity) String() string {
	return i.address
}

// Field resolves a named property of the identity for chat type templates such as `member0.account`.
func (i Identity) Field(name string) (interface{}, bool) {
	switch name {
	case "id", "publicKey":
		return i.id, true
	case "account":
		return i.Account(), true
	case "address", "checksum-account":
		return i.address, true
	default:
		return nil, false
	}
}

func (i Identity) MarshalJSON() ([]byte, error) {
	return json.Marshal(i.id)
}

func (i *Identity) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := New(s)
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

func Compare(a, b Identity) int {
	return strings.Compare(a.id, b.id)
}

type ByID []Identity

func (s ByID) Len() int           { return len(s) }
func (s ByID) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }
func (s ByID) Less(i, j int) bool { return s[i].id < s[j].id }

// Dedupe returns the identities with repeats removed, keeping the first occurrence of each.
func Dedupe(list []Identity) []Identity {
	seen := make(map[string]bool, len(list))
	out := make([]Identity, 0, len(list))
	for _, i := range list {
		if seen[i.id] {
			continue
		}
		seen[i.id] = true
		out = append(out, i)
	}
	return out
}

func Contains(list []Identity, i Identity) bool {
	for _, l := range list {
		if l.id == i.id {
			return true
		}
	}
	return false
}
