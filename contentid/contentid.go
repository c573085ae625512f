// This package defines the content coordinate of a conversation: the chain it lives on, the address
// of its authorization contract and the provider endpoint hosting its store.
package contentid

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

type ContentID struct {
	Chain    int    `json:"chain" bencode:"chain"`
	Contract string `json:"contract" bencode:"contract"`
	Provider string `json:"provider" bencode:"provider"`
}

func New(chain int, contract, provider string) (ContentID, error) {
	id := ContentID{Chain: chain, Contract: contract, Provider: provider}
	return id, id.Validate()
}

// Validate checks all three fields are well formed.
func (c ContentID) Validate() error {
	if c.Chain <= 0 {
		return fmt.Errorf("contentid: invalid chain %d", c.Chain)
	}
	if !IsAddress(c.Contract) {
		return fmt.Errorf("contentid: invalid contract address %q", c.Contract)
	}
	if c.Provider == "" {
		return errors.New("contentid: missing provider")
	}
	u, err := url.Parse(c.Provider)
	if err != nil {
		return fmt.Errorf("contentid: invalid provider: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("contentid: unsupported provider scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("contentid: provider %q has no host", c.Provider)
	}
	return nil
}

// ConversationID is the id a conversation backed by this coordinate is known by within a session.
func (c ContentID) ConversationID() string {
	return fmt.Sprintf("%d-%s", c.Chain, c.Contract)
}

func (c ContentID) String() string {
	return fmt.Sprintf("%d:%s@%s", c.Chain, c.Contract, c.Provider)
}

func IsAddress(s string) bool {
	return addressPattern.MatchString(s)
}
