package hush

import (
	"context"
	"errors"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/meow-io/go-hush/chat"
	"github.com/meow-io/go-hush/chattype"
	"github.com/meow-io/go-hush/config"
	"github.com/meow-io/go-hush/contentid"
	"github.com/meow-io/go-hush/crypto"
	"github.com/stretchr/testify/require"
)

func TestNewSessionValidation(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)
	s := h.session(t)
	require.Equal("84531-default", s.ID())
	require.Equal(StateClosed, s.State())
	require.Equal(h.key.PublicKeyHex(), s.Self().ID())

	_, err := NewSession(h.config, 1, h.key, Collaborators{Wallet: h.wallet})
	var verr *ValidationError
	require.ErrorAs(err, &verr)
	require.Equal("factory", verr.Field)

	_, err = NewSession(h.config, 1, nil, Collaborators{})
	require.ErrorAs(err, &verr)
	require.Equal("deviceKey", verr.Field)
}

func TestOpenBootstrapsDefaultChat(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)
	s := h.open(t)
	require.Equal(StateOpen, s.State())

	chats := s.Chats()
	require.Len(chats, 1)
	c := chats[0].(*fakeConversation)
	require.Equal(publicType.ID, c.Type().ID)
	require.Equal(testContentID(testPublicBubble), c.ContentID())
	require.Equal([]string{"initialise"}, c.Calls())
	require.Len(h.sink.Value(KeyChats), 1)
	require.True(s.Settings().MonitorForRequests)
	require.Equal(1, h.monitor().started)

	st := h.persistence.state(t, s.ID())
	require.Len(st.Conversations, 1)
	require.True(st.Settings.MonitorForRequests)

	// reopening reconstructs the same chat without bootstrapping again
	s2 := h.open(t)
	require.Len(s2.Chats(), 1)
	require.Equal(c.ID(), s2.Chats()[0].ID())
	require.Len(h.factory.Built(), 2)
	require.Equal([]string{"initialise"}, s2.Chats()[0].(*fakeConversation).Calls())
	require.Empty(s2.RecoveryWarnings())
}

func TestOpenEmptyPersistedState(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)
	require.NoError(h.persistence.Write("5-default", `{"settings":{"monitorForRequests":false},"conversations":[]}`))

	s := h.sessionOn(t, 5)
	require.Equal("5-default", s.ID())
	require.NoError(s.Open(context.Background()))
	require.Empty(s.Chats())
	require.Nil(h.monitor())
	require.False(s.Settings().MonitorForRequests)
	require.Empty(h.factory.Built())
}

func TestOpenDropsBadRecords(t *testing.T) {
	require := require.New(t)
	h := newHarness(t, config.WithDenyList("84531-0x00000000000000000000000000000000000000aa"))
	good := testContentID(nextAddress())
	state := fmt.Sprintf(`{"conversations":[
		{"id":%q,"chatType":{"category":"group","bytecodeHash":%q},"classType":"PrivateChat","bubbleId":{"chain":84531,"contract":%q,"provider":%q}},
		{"id":%q,"chatType":{"category":"group","bytecodeHash":%q},"classType":"PrivateChat","bubbleId":{"chain":84531,"contract":%q,"provider":%q}},
		{"id":"bad","chatType":{"category":"group"},"classType":"PrivateChat","bubbleId":{"chain":84531,"contract":"0x12","provider":%q}},
		{"id":"84531-0x00000000000000000000000000000000000000aa","chatType":{"category":"group","bytecodeHash":%q},"classType":"PrivateChat","bubbleId":{"chain":84531,"contract":"0x00000000000000000000000000000000000000aa","provider":%q}},
		{"id":"unknown","chatType":{"category":"custom","bytecodeHash":"00"},"classType":"PrivateChat","bubbleId":{"chain":84531,"contract":%q,"provider":%q}},
		7
	]}`, good.ConversationID(), groupType.ID.BytecodeHash, good.Contract, good.Provider,
		good.ConversationID(), groupType.ID.BytecodeHash, good.Contract, good.Provider,
		testProvider, groupType.ID.BytecodeHash, testProvider, nextAddress(), testProvider)
	require.NoError(h.persistence.Write("84531-default", state))

	s := h.open(t)
	require.Len(s.Chats(), 1)
	require.Equal(good.ConversationID(), s.Chats()[0].ID())
	require.True(s.Settings().MonitorForRequests)

	reasons := []string{}
	for _, w := range s.RecoveryWarnings() {
		reasons = append(reasons, w.Reason)
	}
	require.ElementsMatch([]string{reasonDuplicate, reasonContentID, reasonDenied, reasonConstruct, reasonDecode}, reasons)

	// the one held copy is all that is persisted and removed
	require.Len(h.factory.Built(), 2)
	require.Empty(h.factory.Built()[1].Calls())
	require.NoError(s.LeaveChat(context.Background(), s.Chats()[0]))
	require.Empty(s.Chats())
	require.Empty(h.persistence.state(t, s.ID()).Conversations)
}

func TestOpenFailures(t *testing.T) {
	require := require.New(t)

	h := newHarness(t)
	require.NoError(h.persistence.Write("84531-default", "{not json"))
	s := h.session(t)
	require.Error(s.Open(context.Background()))
	require.Equal(StateFailed, s.State())

	h = newHarness(t, config.WithDefaultChat(contentid.ContentID{}))
	s = h.session(t)
	var verr *ValidationError
	require.ErrorAs(s.Open(context.Background()), &verr)
	require.Equal("defaultChat", verr.Field)

	h = newHarness(t)
	boom := errors.New("boom")
	h.factory.configure = func(c *fakeConversation) { c.errs["initialise"] = boom }
	s = h.session(t)
	require.ErrorIs(s.Open(context.Background()), boom)
	require.Equal(StateFailed, s.State())
}

func TestLoadInitialiseFailureDoesNotAbort(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)
	s := h.open(t)
	h.createGroup(t, s)
	h.createGroup(t, s)

	boom := errors.New("boom")
	n := 0
	h.factory.configure = func(c *fakeConversation) {
		n++
		if n == 2 {
			c.errs["initialise"] = boom
		}
	}
	s2 := h.open(t)
	require.Len(s2.Chats(), 3)
	for _, c := range s2.Chats() {
		require.Equal([]string{"initialise"}, c.(*fakeConversation).Calls())
	}
}

func TestUnreadAndNewMessages(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)
	s := h.open(t)
	a := h.createGroup(t, s)
	b := h.createGroup(t, s)
	def := s.Chats()[0].(*fakeConversation)

	a.setUnread(3)
	require.Equal(3, h.sink.Value(KeyTotalUnread))
	b.setUnread(4)
	def.setUnread(1)
	require.Equal(8, h.sink.Value(KeyTotalUnread))
	a.setUnread(0)
	require.Equal(5, h.sink.Value(KeyTotalUnread))

	a.emit(chat.EventNewMessage)
	b.emit(chat.EventNewMessage)
	require.Equal(2, h.sink.Value(KeyNewMessages))
	require.Equal(2, s.NewMessageCount())
}

func TestTerminatedEvent(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)
	s := h.open(t)
	a := h.createGroup(t, s)
	require.Len(s.Chats(), 2)

	a.emit(chat.EventTerminated)
	require.Len(s.Chats(), 1)
	require.Len(h.persistence.state(t, s.ID()).Conversations, 1)
	require.Len(h.sink.Value(KeyChats), 1)

	writes := h.persistence.Writes()
	a.emit(chat.EventTerminated)
	a.emit(chat.EventNewMessage)
	require.Equal(writes, h.persistence.Writes())
	require.Equal(0, s.NewMessageCount())
}

func TestLeaveChat(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)
	s := h.open(t)
	a := h.createGroup(t, s)

	require.NoError(s.LeaveChat(context.Background(), a))
	require.Len(s.Chats(), 1)
	require.Empty(h.wallet.Sends())

	writes := h.persistence.Writes()
	require.ErrorIs(s.LeaveChat(context.Background(), a), ErrNoSuchChat)
	require.Equal(writes, h.persistence.Writes())

	stranger := &fakeConversation{id: "84531-0x0000000000000000000000000000000000000001"}
	require.ErrorIs(s.LeaveChat(context.Background(), stranger), ErrNoSuchChat)
	require.Equal(writes, h.persistence.Writes())
}

func TestRegisterRollsBackOnWriteFailure(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)
	s := h.open(t)
	h.persistence.err = errors.New("disk full")

	_, err := s.Create(context.Background(), CreateRequest{
		Chain: Chain{ID: testChain, PublicBubble: testPublicBubble},
		Host:  Host{Chains: map[int]HostChain{testChain: {URL: testProvider}}},
		Type:  groupType,
	})
	var serr *StepError
	require.ErrorAs(err, &serr)
	require.Equal("register", serr.Step)
	require.Len(s.Chats(), 1)
}

func TestReconnectAndClose(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)
	s := h.open(t)
	a := h.createGroup(t, s)
	boom := errors.New("boom")
	a.errs["reconnect"] = boom

	require.ErrorIs(s.Reconnect(context.Background()), boom)
	require.Equal(StateOpen, s.State())
	require.Equal(1, h.monitor().reconnect)
	require.Contains(a.Calls(), "reconnect")

	require.NoError(s.Close())
	require.Equal(StateClosed, s.State())
	require.Contains(a.Calls(), "close")
	require.Equal(1, h.monitor().closed)
	require.NoError(s.Close())

	require.ErrorIs(s.Open(context.Background()), ErrSessionClosed)
	require.ErrorIs(s.Join(context.Background(), "x"), ErrSessionClosed)

	a.setUnread(5)
	require.Nil(h.sink.Value(KeyTotalUnread))
}

func TestSetMonitorForRequests(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)
	s := h.open(t)
	m := h.monitor()

	require.NoError(s.SetMonitorForRequests(context.Background(), false))
	require.Equal(1, m.closed)
	require.False(h.persistence.state(t, s.ID()).Settings.MonitorForRequests)

	require.NoError(s.SetMonitorForRequests(context.Background(), true))
	require.NotSame(m, h.monitor())
	require.Equal(1, h.monitor().started)

	require.NoError(s.SetMonitorForRequests(context.Background(), true))
	require.Equal(1, h.monitor().started)
}

func TestHasConnectionWith(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)
	s := h.open(t)
	peer := newTestKey(t)
	a := h.createGroup(t, s)
	require.False(s.HasConnectionWith(peer.PublicKeyHex()))

	m := a.Metadata()
	m.Title = peer.Address()
	require.NoError(a.SetMetadata(context.Background(), m))
	require.True(s.HasConnectionWith(peer.PublicKeyHex()))
	require.False(s.HasConnectionWith("not a key"))

	other, err := crypto.GenerateKey()
	require.NoError(err)
	require.False(s.HasConnectionWith(other.PublicKeyHex()))
}

func TestOpenRetryClosesStaleConversations(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)
	boom := errors.New("boom")
	first := true
	h.factory.configure = func(c *fakeConversation) {
		if first {
			c.errs["initialise"] = boom
			first = false
		}
	}
	s := h.session(t)
	require.ErrorIs(s.Open(context.Background()), boom)
	require.Equal(StateFailed, s.State())
	stale := h.factory.Built()[0]

	require.NoError(s.Open(context.Background()))
	require.Equal(StateOpen, s.State())
	fresh := h.conversation(t, s, stale.ID())
	require.NotSame(stale, fresh)
	require.Equal([]string{"initialise", "close"}, stale.Calls())

	stale.emit(chat.EventNewMessage)
	stale.emit(chat.EventTerminated)
	require.Equal(0, s.NewMessageCount())
	require.Len(s.Chats(), 1)

	fresh.emit(chat.EventNewMessage)
	require.Equal(1, s.NewMessageCount())
}

func TestOpenRetryAfterBootstrapWriteFailure(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)
	h.persistence.err = errors.New("disk full")
	s := h.session(t)
	require.ErrorIs(s.Open(context.Background()), h.persistence.err)
	require.Empty(s.Chats())

	h.persistence.lock.Lock()
	h.persistence.err = nil
	h.persistence.lock.Unlock()
	require.NoError(s.Open(context.Background()))
	require.Len(s.Chats(), 1)
	require.Len(h.persistence.state(t, s.ID()).Conversations, 1)
}

func TestListenerAttachedBeforeAnnounce(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)
	s := h.open(t)

	var unheard []string
	h.sink.onDispatch = func(key string, value interface{}) {
		if key != KeyChats {
			return
		}
		for _, c := range value.([]chat.Conversation) {
			if fc := c.(*fakeConversation); fc.listening() == 0 {
				unheard = append(unheard, fc.ID())
			}
		}
	}
	h.createGroup(t, s)
	inv, _ := newInvite(t, h, groupCode, chattype.ClassPrivateChat)
	require.NoError(s.Join(context.Background(), inv))
	require.Len(s.Chats(), 3)
	require.Empty(unheard)
}

// Events from several conversations race a create, a terminate and a terminated event.
func TestEventsRaceOperations(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)
	s := h.open(t)
	def := s.Chats()[0].(*fakeConversation)
	ended := h.createGroup(t, s)
	terminated := h.createGroup(t, s)
	kept := h.createGroup(t, s)

	var (
		wg                      sync.WaitGroup
		created                 contentid.ContentID
		createErr, terminateErr error
	)
	for _, c := range []*fakeConversation{def, ended, terminated, kept} {
		wg.Add(1)
		go func(c *fakeConversation) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				c.setUnread(i)
			}
		}(c)
	}
	for _, c := range []*fakeConversation{def, kept} {
		wg.Add(1)
		go func(c *fakeConversation) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				c.emit(chat.EventNewMessage)
			}
		}(c)
	}
	wg.Add(3)
	go func() {
		defer wg.Done()
		created, createErr = s.Create(context.Background(), groupRequest(chattype.Params{"title": "late"}))
	}()
	go func() {
		defer wg.Done()
		ended.emit(chat.EventTerminated)
	}()
	go func() {
		defer wg.Done()
		terminateErr = s.Terminate(context.Background(), terminated)
	}()
	wg.Wait()

	require.NoError(createErr)
	require.NoError(terminateErr)
	require.Equal(40, s.NewMessageCount())
	require.Equal(40, h.sink.Value(KeyNewMessages))

	want := []string{def.ID(), kept.ID(), created.ConversationID()}
	held := []string{}
	for _, c := range s.Chats() {
		held = append(held, c.ID())
	}
	require.Equal(want, held)
	persisted := []string{}
	for _, raw := range h.persistence.state(t, s.ID()).Conversations {
		rec := &chat.Record{}
		require.NoError(json.Unmarshal(raw, rec))
		persisted = append(persisted, rec.ID)
	}
	require.Equal(want, persisted)
	require.Len(h.sink.Value(KeyChats), 3)

	def.setUnread(1)
	require.Equal(1+19, h.sink.Value(KeyTotalUnread))
}
