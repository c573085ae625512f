// Package invite encodes the token one member hands another to join a chat: the chat's content coordinate and
// its conversation class, bencoded and base64url encoded.
package invite

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/meow-io/go-hush/bencode"
	"github.com/meow-io/go-hush/contentid"
)

type Invite struct {
	ID        contentid.ContentID `bencode:"id"`
	ClassType string              `bencode:"t"`
}

func Serialize(i Invite) (string, error) {
	if err := i.ID.Validate(); err != nil {
		return "", err
	}
	b, err := bencode.Serialize(&i)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func Parse(s string) (Invite, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Invite{}, errors.New("invite: empty")
	}
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Invite{}, fmt.Errorf("invite: malformed encoding: %w", err)
	}
	i := Invite{}
	if err := bencode.Deserialize(b, &i); err != nil {
		return Invite{}, fmt.Errorf("invite: malformed body: %w", err)
	}
	if err := i.ID.Validate(); err != nil {
		return Invite{}, fmt.Errorf("invite: %w", err)
	}
	return i, nil
}
