// This package provides a messaging session: the chats a user holds on one chain, each backed by a contract
// and a content store. A Session creates, joins, manages and terminates chats, persists what it holds and
// forwards chat events to a process wide sink.
package hush

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/meow-io/go-hush/chat"
	"github.com/meow-io/go-hush/chattype"
	"github.com/meow-io/go-hush/config"
	"github.com/meow-io/go-hush/crypto"
	"github.com/meow-io/go-hush/identity"
	"github.com/meow-io/go-hush/provider"
	"github.com/meow-io/go-hush/relay"
	"github.com/meow-io/go-hush/wallet"
	"go.uber.org/zap"
)

const (
	StateClosed           = "closed"
	StateNew              = "new"
	StateContractDeployed = "contract-deployed"
	StateOpen             = "open"
	StateConnecting       = "connecting"
	StateFailed           = "failed"
)

// Sink keys.
const (
	KeyChats       = "chats"
	KeyNewMessages = "new-message-notification"
	KeyTotalUnread = "total-unread"
)

// Durable string storage keyed by session id.
type Persistence interface {
	Read(key string) (string, bool, error)
	Write(key, value string) error
}

type Sink interface {
	Dispatch(key string, value interface{})
}

// Listens for invites from peers and delivers ours to them.
type RequestMonitor interface {
	Monitor(ctx context.Context) error
	Reconnect(ctx context.Context) error
	Notify(ctx context.Context, peerPublicKey, invite string) error
	Close() error
}

type JoinFunc func(ctx context.Context, invite string) error

type MonitorFactory func(key *crypto.Key, join JoinFunc) (RequestMonitor, error)

type ProviderChecker interface {
	Check(ctx context.Context, chain int, url, publicBubble string) error
}

// Everything a session talks to. Providers and Monitors default to the provider and relay packages.
type Collaborators struct {
	Wallet      wallet.Wallet
	Factory     chat.Factory
	Persistence Persistence
	Sink        Sink
	Catalog     *chattype.Catalog
	Providers   ProviderChecker
	Monitors    MonitorFactory
}

// RelayMonitors returns a MonitorFactory backed by the local network relay.
func RelayMonitors(c *config.Config) MonitorFactory {
	return func(key *crypto.Key, join JoinFunc) (RequestMonitor, error) {
		return relay.New(c, key, relay.JoinFunc(join))
	}
}

type Settings struct {
	MonitorForRequests bool `json:"monitorForRequests"`
}

type Session struct {
	id          string
	config      *config.Config
	log         *zap.SugaredLogger
	chain       int
	deviceKey   *crypto.Key
	self        identity.Identity
	wallet      wallet.Wallet
	factory     chat.Factory
	catalog     *chattype.Catalog
	persistence Persistence
	sink        Sink
	providers   ProviderChecker
	monitors    MonitorFactory

	// opLock serialises operations. lock guards the fields below it and is never held while calling out to a
	// conversation, except to read its unread count or serialize it.
	opLock          sync.Mutex
	requestMonitor  RequestMonitor
	lock            sync.Mutex
	state           string
	settings        Settings
	conversations   []chat.Conversation
	newMessageCount int
	warnings        []*RecoveryWarning
	closed          bool
}

func NewSession(c *config.Config, chainID int, deviceKey *crypto.Key, deps Collaborators) (*Session, error) {
	switch {
	case chainID <= 0:
		return nil, &ValidationError{Field: "chain", Reason: fmt.Sprintf("%d is not a chain id", chainID)}
	case deviceKey == nil:
		return nil, &ValidationError{Field: "deviceKey", Reason: "required"}
	case deps.Wallet == nil:
		return nil, &ValidationError{Field: "wallet", Reason: "required"}
	case deps.Factory == nil:
		return nil, &ValidationError{Field: "factory", Reason: "required"}
	case deps.Persistence == nil:
		return nil, &ValidationError{Field: "persistence", Reason: "required"}
	case deps.Sink == nil:
		return nil, &ValidationError{Field: "sink", Reason: "required"}
	case deps.Catalog == nil:
		return nil, &ValidationError{Field: "catalog", Reason: "required"}
	}
	if deps.Providers == nil {
		deps.Providers = provider.NewChecker(c)
	}
	if deps.Monitors == nil {
		deps.Monitors = RelayMonitors(c)
	}
	id := SessionID(chainID)
	return &Session{
		id:          id,
		config:      c,
		log:         c.Logger("session").With("session", id),
		chain:       chainID,
		deviceKey:   deviceKey,
		self:        identity.FromKey(deviceKey),
		wallet:      deps.Wallet,
		factory:     deps.Factory,
		catalog:     deps.Catalog,
		persistence: deps.Persistence,
		sink:        deps.Sink,
		providers:   deps.Providers,
		monitors:    deps.Monitors,
		state:       StateClosed,
		settings:    Settings{MonitorForRequests: c.MonitorForRequests},
	}, nil
}

// SessionID is the persistence key of the session on chainID.
func SessionID(chainID int) string {
	return fmt.Sprintf("%d-default", chainID)
}

func (s *Session) ID() string {
	return s.id
}

// Own identity, derived from the device key.
func (s *Session) Self() identity.Identity {
	return s.self
}

func (s *Session) State() string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.state
}

func (s *Session) Settings() Settings {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.settings
}

func (s *Session) Chats() []chat.Conversation {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]chat.Conversation{}, s.conversations...)
}

func (s *Session) Chat(id string) (chat.Conversation, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return nil, false
	}
	return s.conversations[i], true
}

// Conversations dropped during the last open.
func (s *Session) RecoveryWarnings() []*RecoveryWarning {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]*RecoveryWarning{}, s.warnings...)
}

func (s *Session) NewMessageCount() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.newMessageCount
}

// Open loads persisted state, or starts a new session with the default public chat, then starts listening for
// requests if the settings ask for it.
func (s *Session) Open(ctx context.Context) error {
	s.opLock.Lock()
	defer s.opLock.Unlock()
	if s.isClosed() {
		return ErrSessionClosed
	}
	if st := s.State(); st == StateOpen || st == StateConnecting {
		return nil
	}
	s.setState(StateNew)
	s.log.Debugf("opening session")

	err := s.open(ctx)
	if err != nil {
		s.log.Warnf("error opening session: %v", err)
		s.setState(StateFailed)
		return err
	}
	s.lock.Lock()
	s.state = StateOpen
	s.dispatchChatsLocked()
	s.lock.Unlock()
	return nil
}

func (s *Session) open(ctx context.Context) error {
	exists, err := s.loadState(ctx)
	if err != nil {
		return err
	}
	if !exists {
		if err := s.bootstrap(ctx); err != nil {
			return err
		}
	}
	if s.Settings().MonitorForRequests {
		return s.startMonitor(ctx)
	}
	return nil
}

func (s *Session) bootstrap(ctx context.Context) error {
	typ := s.catalog.DefaultPublic()
	if typ == nil {
		return errors.New("hush: catalog has no public chat type")
	}
	if s.config.DefaultChat.Chain == 0 {
		return &ValidationError{Field: "defaultChat", Reason: "no default chat configured"}
	}
	if err := s.config.DefaultChat.Validate(); err != nil {
		return &ValidationError{Field: "defaultChat", Reason: err.Error()}
	}
	s.log.Debugf("bootstrapping with %s", s.config.DefaultChat)
	conv, err := s.factory.Construct(chat.ConstructRequest{
		TypeID:    typ.ID,
		ClassType: typ.ClassType,
		ContentID: s.config.DefaultChat,
		Self:      s.self,
		DeviceKey: s.deviceKey,
	})
	if err != nil {
		return fmt.Errorf("hush: error constructing default chat: %w", err)
	}
	conv.On(s.handleEvent)
	s.lock.Lock()
	s.conversations = append(s.conversations, conv)
	if err := s.saveLocked(); err != nil {
		s.conversations = s.conversations[:len(s.conversations)-1]
		s.lock.Unlock()
		return err
	}
	s.lock.Unlock()
	return conv.Initialise(ctx)
}

func (s *Session) startMonitor(ctx context.Context) error {
	if s.requestMonitor != nil {
		return nil
	}
	m, err := s.monitors(s.deviceKey, s.Join)
	if err != nil {
		return fmt.Errorf("hush: error making request monitor: %w", err)
	}
	if err := m.Monitor(ctx); err != nil {
		return fmt.Errorf("hush: error starting request monitor: %w", err)
	}
	s.requestMonitor = m
	return nil
}

func (s *Session) stopMonitor() error {
	if s.requestMonitor == nil {
		return nil
	}
	err := s.requestMonitor.Close()
	s.requestMonitor = nil
	return err
}

// Reconnect every conversation and the request monitor.
func (s *Session) Reconnect(ctx context.Context) error {
	s.opLock.Lock()
	defer s.opLock.Unlock()
	if s.isClosed() {
		return ErrSessionClosed
	}
	s.setState(StateConnecting)
	errs := fanOut(s.Chats(), func(c chat.Conversation) error {
		if err := c.Reconnect(ctx); err != nil {
			return fmt.Errorf("reconnecting %s: %w", c.ID(), err)
		}
		return nil
	})
	if s.requestMonitor != nil {
		if err := s.requestMonitor.Reconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("reconnecting request monitor: %w", err))
		}
	}
	s.setState(StateOpen)
	return errors.Join(errs...)
}

// Close every conversation and stop the request monitor. A closed session cannot be reopened.
func (s *Session) Close() error {
	s.opLock.Lock()
	defer s.opLock.Unlock()
	s.lock.Lock()
	if s.closed {
		s.lock.Unlock()
		return nil
	}
	s.closed = true
	convs := append([]chat.Conversation{}, s.conversations...)
	s.lock.Unlock()

	errs := fanOut(convs, func(c chat.Conversation) error {
		if err := c.Close(); err != nil {
			return fmt.Errorf("closing %s: %w", c.ID(), err)
		}
		return nil
	})
	if err := s.stopMonitor(); err != nil {
		errs = append(errs, fmt.Errorf("closing request monitor: %w", err))
	}
	s.setState(StateClosed)
	return errors.Join(errs...)
}

// SetMonitorForRequests persists the setting and starts or stops the request monitor to match.
func (s *Session) SetMonitorForRequests(ctx context.Context, on bool) error {
	s.opLock.Lock()
	defer s.opLock.Unlock()
	if s.isClosed() {
		return ErrSessionClosed
	}
	s.lock.Lock()
	previous := s.settings
	s.settings.MonitorForRequests = on
	if err := s.saveLocked(); err != nil {
		s.settings = previous
		s.lock.Unlock()
		return err
	}
	open := s.state == StateOpen
	s.lock.Unlock()

	if !open {
		return nil
	}
	if on {
		return s.startMonitor(ctx)
	}
	return s.stopMonitor()
}

// HasConnectionWith reports whether a chat is titled with the address of publicKey.
func (s *Session) HasConnectionWith(publicKey string) bool {
	peer, err := identity.New(publicKey)
	if err != nil {
		return false
	}
	for _, c := range s.Chats() {
		if c.Metadata().Title == peer.Address() {
			return true
		}
	}
	return false
}

// LeaveChat forgets conv locally. Nothing remote is changed.
func (s *Session) LeaveChat(ctx context.Context, conv chat.Conversation) error {
	s.opLock.Lock()
	defer s.opLock.Unlock()
	if s.isClosed() {
		return ErrSessionClosed
	}
	if conv == nil {
		return &ValidationError{Field: "chat", Reason: "required"}
	}
	return s.removeChat(conv)
}

func (s *Session) isClosed() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.closed
}

func (s *Session) setState(state string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.state = state
}

// Runs f for each conversation concurrently, returning every error.
func fanOut(convs []chat.Conversation, f func(chat.Conversation) error) []error {
	var (
		wg   sync.WaitGroup
		lock sync.Mutex
		errs []error
	)
	for _, c := range convs {
		wg.Add(1)
		go func(c chat.Conversation) {
			defer wg.Done()
			if err := f(c); err != nil {
				lock.Lock()
				errs = append(errs, err)
				lock.Unlock()
			}
		}(c)
	}
	wg.Wait()
	return errs
}
