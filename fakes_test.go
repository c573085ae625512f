package hush

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/meow-io/go-hush/chat"
	"github.com/meow-io/go-hush/chattype"
	"github.com/meow-io/go-hush/config"
	"github.com/meow-io/go-hush/contentid"
	"github.com/meow-io/go-hush/crypto"
	"github.com/meow-io/go-hush/identity"
	"github.com/meow-io/go-hush/invite"
	"github.com/stretchr/testify/require"
)

const (
	testChain        = 84531
	testPublicBubble = "0x1287afe7Fe61A9A7e5F846673051b00ecb82379b"
	testProvider     = "https://vault.example.com"
)

var (
	publicCode = []byte("public-code")
	groupCode  = []byte("group-code")
	directCode = []byte("direct-code")

	testABI = chattype.ABI{{"name": "setUsers", "type": "function"}, {"name": "terminate", "type": "function"}}

	publicType = &chattype.Descriptor{
		Title:     "Public Chat",
		ID:        chattype.ID{Category: "original-hushbubble-public-chat", BytecodeHash: crypto.CodeHash(publicCode)},
		ClassType: chattype.ClassPublicChat,
		Metadata:  map[string]string{"title": "title", "icon": "icon"},
	}
	groupType = &chattype.Descriptor{
		Title:             "Private Group Chat",
		ID:                chattype.ID{Category: chattype.CategoryGroup, BytecodeHash: crypto.CodeHash(groupCode)},
		ClassType:         chattype.ClassPrivateChat,
		SourceCode:        &chattype.SourceCode{ABI: testABI, Bytecode: "0x6060"},
		ConstructorParams: []chattype.Param{{Path: "members.account"}, {Path: "terminateToken"}},
		Metadata:          map[string]string{"title": "title", "icon": "icon", "members": "members"},
		Actions: chattype.Actions{
			CanConstruct:  true,
			AddMembers:    &chattype.Action{Method: "setUsers", Params: []chattype.Param{{Path: "members.account"}, {Path: "true"}}},
			RemoveMembers: &chattype.Action{Method: "setUsers", Params: []chattype.Param{{Path: "members.account"}, {Path: "false"}}},
		},
	}
	directType = &chattype.Descriptor{
		Title:             "One-to-One Chat",
		ID:                chattype.ID{Category: chattype.CategoryOneToOne, BytecodeHash: crypto.CodeHash(directCode)},
		ClassType:         chattype.ClassOneToOneChat,
		SourceCode:        &chattype.SourceCode{ABI: testABI, Bin: "0x6061"},
		ConstructorParams: []chattype.Param{{Path: "member0.account"}, {Path: "member1.account"}, {Path: "terminateToken"}},
		Metadata:          map[string]string{"member0": "member0.id", "member1": "member1.id"},
		Actions:           chattype.Actions{CanConstruct: true},
	}
)

func testCatalog() *chattype.Catalog {
	return chattype.NewCatalog(publicType, groupType, directType)
}

func newTestKey(t *testing.T) *crypto.Key {
	k, err := crypto.GenerateKey()
	require.NoError(t, err)
	return k
}

func newTestIdentity(t *testing.T) identity.Identity {
	return identity.FromKey(newTestKey(t))
}

var addressCounter struct {
	sync.Mutex
	n int
}

func nextAddress() string {
	addressCounter.Lock()
	defer addressCounter.Unlock()
	addressCounter.n++
	return fmt.Sprintf("0x%040x", addressCounter.n)
}

func testContentID(address string) contentid.ContentID {
	return contentid.ContentID{Chain: testChain, Contract: address, Provider: testProvider}
}

type fakeUsers struct {
	lock    sync.Mutex
	users   []identity.Identity
	added   []string
	removed []string
	err     error
}

func (u *fakeUsers) Users() []identity.Identity {
	u.lock.Lock()
	defer u.lock.Unlock()
	return append([]identity.Identity{}, u.users...)
}

func (u *fakeUsers) AddUser(ctx context.Context, publicKey string) error {
	u.lock.Lock()
	defer u.lock.Unlock()
	if u.err != nil {
		return u.err
	}
	u.added = append(u.added, publicKey)
	return nil
}

func (u *fakeUsers) RemoveUser(ctx context.Context, publicKey string, opts chat.RemoveOptions) error {
	u.lock.Lock()
	defer u.lock.Unlock()
	if u.err != nil {
		return u.err
	}
	if !opts.Silent {
		return errors.New("expected silent removal")
	}
	u.removed = append(u.removed, publicKey)
	return nil
}

type fakeConversation struct {
	lock         sync.Mutex
	id           string
	contentID    contentid.ContentID
	typ          *chattype.Descriptor
	classType    string
	metadata     chat.Metadata
	unread       int
	users        *fakeUsers
	listeners    []chat.Listener
	terminateKey string
	valid        bool
	calls        []string
	errs         map[string]error
	hooks        map[string]func()
}

func (c *fakeConversation) call(name string) error {
	c.lock.Lock()
	c.calls = append(c.calls, name)
	err, hook := c.errs[name], c.hooks[name]
	c.lock.Unlock()
	if hook != nil {
		hook()
	}
	return err
}

func (c *fakeConversation) Calls() []string {
	c.lock.Lock()
	defer c.lock.Unlock()
	return append([]string{}, c.calls...)
}

func (c *fakeConversation) ID() string                     { return c.id }
func (c *fakeConversation) ContentID() contentid.ContentID { return c.contentID }
func (c *fakeConversation) Type() *chattype.Descriptor     { return c.typ }
func (c *fakeConversation) Users() chat.UserManager        { return c.users }
func (c *fakeConversation) TerminateKey() string           { return c.terminateKey }

func (c *fakeConversation) Metadata() chat.Metadata {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.metadata.Copy()
}

func (c *fakeConversation) UnreadCount() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.unread
}

func (c *fakeConversation) setUnread(n int) {
	c.lock.Lock()
	c.unread = n
	c.lock.Unlock()
	c.emit(chat.EventUnreadChange)
}

func (c *fakeConversation) IsValid() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.valid
}

func (c *fakeConversation) Initialise(ctx context.Context) error { return c.call("initialise") }
func (c *fakeConversation) Join(ctx context.Context) error       { return c.call("join") }
func (c *fakeConversation) Reconnect(ctx context.Context) error  { return c.call("reconnect") }
func (c *fakeConversation) Close() error                         { return c.call("close") }
func (c *fakeConversation) Terminate(ctx context.Context) error  { return c.call("terminate") }

func (c *fakeConversation) Create(ctx context.Context, opts chat.CreateOptions) error {
	if !opts.Silent {
		return errors.New("expected silent creation")
	}
	if err := c.call("create"); err != nil {
		return err
	}
	c.lock.Lock()
	c.metadata = opts.Metadata.Copy()
	c.lock.Unlock()
	return nil
}

func (c *fakeConversation) SetMetadata(ctx context.Context, m chat.Metadata) error {
	if err := c.call("setMetadata"); err != nil {
		return err
	}
	c.lock.Lock()
	c.metadata = m.Copy()
	c.lock.Unlock()
	return nil
}

func (c *fakeConversation) Serialize() (*chat.Record, error) {
	return &chat.Record{ID: c.id, ChatType: c.typ.ID, ClassType: c.classType, ContentID: c.contentID}, nil
}

func (c *fakeConversation) Invite() (string, error) {
	return invite.Serialize(invite.Invite{ID: c.contentID, ClassType: c.classType})
}

func (c *fakeConversation) On(l chat.Listener) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.listeners = append(c.listeners, l)
}

func (c *fakeConversation) listening() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return len(c.listeners)
}

func (c *fakeConversation) emit(kind string) {
	c.lock.Lock()
	listeners := append([]chat.Listener{}, c.listeners...)
	c.lock.Unlock()
	for _, l := range listeners {
		l(chat.Event{Kind: kind, Chat: c})
	}
}

type fakeFactory struct {
	catalog      *chattype.Catalog
	lock         sync.Mutex
	built        []*fakeConversation
	constructErr error
	configure    func(*fakeConversation)
}

func (f *fakeFactory) ParamsAsArray(template []chattype.Param, params chattype.Params) ([]interface{}, error) {
	return chattype.ResolveArgs(template, params)
}

func (f *fakeFactory) Params(template map[string]string, params chattype.Params) (map[string]interface{}, error) {
	return chattype.ResolveFields(template, params)
}

func (f *fakeFactory) Construct(req chat.ConstructRequest) (chat.Conversation, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.constructErr != nil {
		return nil, f.constructErr
	}
	typ := f.catalog.ByID(req.TypeID)
	if typ == nil {
		return nil, fmt.Errorf("unknown type %v", req.TypeID)
	}
	c := &fakeConversation{
		id:           req.ContentID.ConversationID(),
		contentID:    req.ContentID,
		typ:          typ,
		classType:    req.ClassType,
		users:        &fakeUsers{},
		terminateKey: req.TerminateKey,
		valid:        true,
		errs:         map[string]error{},
		hooks:        map[string]func(){},
	}
	if req.Metadata != nil {
		c.metadata = req.Metadata.Copy()
		for _, m := range req.Metadata.Members {
			if !m.Equal(req.Self) {
				c.users.users = append(c.users.users, m)
			}
		}
	}
	if f.configure != nil {
		f.configure(c)
	}
	f.built = append(f.built, c)
	return c, nil
}

func (f *fakeFactory) Built() []*fakeConversation {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]*fakeConversation{}, f.built...)
}

type sendCall struct {
	Contract string
	Method   string
	Args     []interface{}
}

type fakeWallet struct {
	lock     sync.Mutex
	chain    int
	code     map[string][]byte
	calls    []string
	sends    []sendCall
	deployed []string
	errs     map[string]error
}

func newFakeWallet() *fakeWallet {
	return &fakeWallet{chain: 1, code: map[string][]byte{}, errs: map[string]error{}}
}

func (w *fakeWallet) record(name string) error {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.calls = append(w.calls, name)
	return w.errs[name]
}

func (w *fakeWallet) Calls() []string {
	w.lock.Lock()
	defer w.lock.Unlock()
	return append([]string{}, w.calls...)
}

func (w *fakeWallet) Sends() []sendCall {
	w.lock.Lock()
	defer w.lock.Unlock()
	return append([]sendCall{}, w.sends...)
}

func (w *fakeWallet) Chain() int {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.chain
}

func (w *fakeWallet) SwitchChain(ctx context.Context, chain int) error {
	if err := w.record("switchChain"); err != nil {
		return err
	}
	w.lock.Lock()
	w.chain = chain
	w.lock.Unlock()
	return nil
}

func (w *fakeWallet) Deploy(ctx context.Context, code *chattype.SourceCode, args []interface{}) (string, error) {
	if err := w.record("deploy"); err != nil {
		return "", err
	}
	address := nextAddress()
	w.lock.Lock()
	w.deployed = append(w.deployed, address)
	w.lock.Unlock()
	return address, nil
}

func (w *fakeWallet) Send(ctx context.Context, contract string, abi chattype.ABI, method string, args []interface{}) error {
	if err := w.record("send"); err != nil {
		return err
	}
	w.lock.Lock()
	defer w.lock.Unlock()
	w.sends = append(w.sends, sendCall{Contract: contract, Method: method, Args: args})
	return nil
}

func (w *fakeWallet) GetCode(ctx context.Context, address string) ([]byte, error) {
	if err := w.record("getCode"); err != nil {
		return nil, err
	}
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.code[address], nil
}

type memPersistence struct {
	lock   sync.Mutex
	values map[string]string
	writes int
	err    error
}

func newMemPersistence() *memPersistence {
	return &memPersistence{values: map[string]string{}}
}

func (p *memPersistence) Read(key string) (string, bool, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	v, ok := p.values[key]
	return v, ok, nil
}

func (p *memPersistence) Write(key, value string) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.err != nil {
		return p.err
	}
	p.writes++
	p.values[key] = value
	return nil
}

func (p *memPersistence) Writes() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.writes
}

func (p *memPersistence) state(t *testing.T, key string) *persistedState {
	p.lock.Lock()
	defer p.lock.Unlock()
	st := &persistedState{}
	require.NoError(t, json.Unmarshal([]byte(p.values[key]), st))
	return st
}

type recordingSink struct {
	lock       sync.Mutex
	values     map[string]interface{}
	counts     map[string]int
	onDispatch func(key string, value interface{})
}

func newRecordingSink() *recordingSink {
	return &recordingSink{values: map[string]interface{}{}, counts: map[string]int{}}
}

func (s *recordingSink) Dispatch(key string, value interface{}) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.values[key] = value
	s.counts[key]++
	if s.onDispatch != nil {
		s.onDispatch(key, value)
	}
}

func (s *recordingSink) Value(key string) interface{} {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.values[key]
}

type notification struct {
	Peer   string
	Invite string
}

type fakeMonitor struct {
	lock      sync.Mutex
	join      JoinFunc
	started   int
	closed    int
	reconnect int
	notified  []notification
	notifyErr error
}

func (m *fakeMonitor) Monitor(ctx context.Context) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.started++
	return nil
}

func (m *fakeMonitor) Reconnect(ctx context.Context) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.reconnect++
	return nil
}

func (m *fakeMonitor) Notify(ctx context.Context, peer, inv string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.notified = append(m.notified, notification{Peer: peer, Invite: inv})
	return m.notifyErr
}

func (m *fakeMonitor) Close() error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.closed++
	return nil
}

type fakeChecker struct {
	lock  sync.Mutex
	calls int
	err   error
}

func (c *fakeChecker) Check(ctx context.Context, chain int, url, publicBubble string) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.calls++
	return c.err
}

type harness struct {
	config      *config.Config
	key         *crypto.Key
	wallet      *fakeWallet
	factory     *fakeFactory
	persistence *memPersistence
	sink        *recordingSink
	checker     *fakeChecker
	monitors    []*fakeMonitor
	lock        sync.Mutex
}

func newHarness(t *testing.T, opts ...config.Option) *harness {
	opts = append([]config.Option{
		config.WithLogWriter(nil),
		config.WithDefaultChat(testContentID(testPublicBubble)),
	}, opts...)
	return &harness{
		config:      config.NewConfig(opts...),
		key:         newTestKey(t),
		wallet:      newFakeWallet(),
		factory:     &fakeFactory{catalog: testCatalog()},
		persistence: newMemPersistence(),
		sink:        newRecordingSink(),
		checker:     &fakeChecker{},
	}
}

func (h *harness) session(t *testing.T) *Session {
	return h.sessionOn(t, testChain)
}

func (h *harness) sessionOn(t *testing.T, chain int) *Session {
	s, err := NewSession(h.config, chain, h.key, Collaborators{
		Wallet:      h.wallet,
		Factory:     h.factory,
		Persistence: h.persistence,
		Sink:        h.sink,
		Catalog:     testCatalog(),
		Providers:   h.checker,
		Monitors: func(key *crypto.Key, join JoinFunc) (RequestMonitor, error) {
			m := &fakeMonitor{join: join}
			h.lock.Lock()
			h.monitors = append(h.monitors, m)
			h.lock.Unlock()
			return m, nil
		},
	})
	require.NoError(t, err)
	return s
}

func (h *harness) open(t *testing.T) *Session {
	s := h.session(t)
	require.NoError(t, s.Open(context.Background()))
	return s
}

func (h *harness) monitor() *fakeMonitor {
	h.lock.Lock()
	defer h.lock.Unlock()
	if len(h.monitors) == 0 {
		return nil
	}
	return h.monitors[len(h.monitors)-1]
}

func (h *harness) conversation(t *testing.T, s *Session, id string) *fakeConversation {
	c, ok := s.Chat(id)
	require.True(t, ok, id)
	return c.(*fakeConversation)
}

func (h *harness) createGroup(t *testing.T, s *Session, members ...identity.Identity) *fakeConversation {
	id, err := s.Create(context.Background(), CreateRequest{
		Chain:  Chain{ID: testChain, PublicBubble: testPublicBubble},
		Host:   Host{Name: "test", Chains: map[int]HostChain{testChain: {URL: testProvider}}},
		Type:   groupType,
		Params: chattype.Params{"title": "group", "members": members},
	})
	require.NoError(t, err)
	return h.conversation(t, s, id.ConversationID())
}
