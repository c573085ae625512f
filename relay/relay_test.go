package relay

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/meow-io/go-hush/config"
	"github.com/meow-io/go-hush/crypto"
	"github.com/stretchr/testify/require"
)

func newKey(t *testing.T) *crypto.Key {
	k, err := crypto.GenerateKey()
	require.NoError(t, err)
	return k
}

func newRelay(t *testing.T, key *crypto.Key, join JoinFunc) *Relay {
	r, err := New(config.NewConfig(config.WithLogWriter(nil)), key, join)
	require.NoError(t, err)
	return r
}

func TestEnvelope(t *testing.T) {
	require := require.New(t)
	alice, bob, eve := newKey(t), newKey(t), newKey(t)

	b, err := sealInvite(alice, bob.PublicKeyHex(), "invite-string")
	require.NoError(err)

	from, invite, err := openInvite(bob, b)
	require.NoError(err)
	require.Equal(alice.PublicKeyHex(), from)
	require.Equal("invite-string", invite)

	_, _, err = openInvite(eve, b)
	require.Error(err)
	_, _, err = openInvite(bob, []byte("garbage"))
	require.Error(err)
}

func TestInstance(t *testing.T) {
	require := require.New(t)
	k := newKey(t)
	a, err := Instance(k.PublicKeyHex())
	require.NoError(err)
	require.Len(a, 16)
	_, err = Instance("nope")
	require.Error(err)
}

func TestDeliverToHandler(t *testing.T) {
	require := require.New(t)
	alice, bob := newKey(t), newKey(t)

	received := make(chan string, 1)
	receiver := newRelay(t, bob, func(ctx context.Context, invite string) error {
		if invite == "reject" {
			return errors.New("already a member")
		}
		received <- invite
		return nil
	})
	server := httptest.NewTLSServer(receiver.Handler())
	defer server.Close()

	sender := newRelay(t, alice, nil)
	body, err := sealInvite(alice, bob.PublicKeyHex(), "the-invite")
	require.NoError(err)
	require.NoError(sender.deliver(context.Background(), server.URL, body))
	require.Equal("the-invite", <-received)

	body, err = sealInvite(alice, bob.PublicKeyHex(), "reject")
	require.NoError(err)
	require.ErrorContains(sender.deliver(context.Background(), server.URL, body), "422")

	resp, err := server.Client().Post(server.URL+invitePath, contentType, bytes.NewReader([]byte("d1:fe")))
	require.NoError(err)
	require.Equal(http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()

	resp, err = server.Client().Get(server.URL + invitePath)
	require.NoError(err)
	require.Equal(http.StatusMethodNotAllowed, resp.StatusCode)
	_ = resp.Body.Close()
}
