package hush

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/meow-io/go-hush/chat"
	"github.com/meow-io/go-hush/metrics"
)

const (
	reasonDecode    = "decode"
	reasonContentID = "invalid-content-id"
	reasonDenied    = "denied"
	reasonConstruct = "construct"
	reasonDuplicate = "duplicate"
)

type persistedState struct {
	Settings      *Settings         `json:"settings,omitempty"`
	Conversations []json.RawMessage `json:"conversations"`
}

// loadState rebuilds the conversations from persisted state and initialises them. It reports false if no
// state has been persisted. A record which cannot be rebuilt is dropped with a warning.
func (s *Session) loadState(ctx context.Context) (bool, error) {
	raw, ok, err := s.persistence.Read(s.id)
	if err != nil {
		return false, fmt.Errorf("hush: error reading state: %w", err)
	}
	if !ok || raw == "" {
		return false, nil
	}
	state := &persistedState{}
	if err := json.Unmarshal([]byte(raw), state); err != nil {
		return false, fmt.Errorf("hush: persisted state is corrupt: %w", err)
	}

	loaded := []chat.Conversation{}
	warnings := []*RecoveryWarning{}
	seen := map[string]bool{}
	for i, rawRecord := range state.Conversations {
		conv, w := s.restore(i, rawRecord)
		if w == nil && seen[conv.ID()] {
			w = &RecoveryWarning{RecordID: conv.ID(), Reason: reasonDuplicate, Err: fmt.Errorf("record #%d repeats an earlier conversation", i)}
		}
		if w != nil {
			s.log.Warnf("%v", w)
			metrics.IncRecoveryWarning(w.Reason)
			warnings = append(warnings, w)
			continue
		}
		seen[conv.ID()] = true
		conv.On(s.handleEvent)
		loaded = append(loaded, conv)
	}

	s.lock.Lock()
	if state.Settings != nil {
		s.settings = *state.Settings
	}
	previous := s.conversations
	s.conversations = loaded
	s.warnings = warnings
	metrics.SetConversations(s.id, len(s.conversations))
	s.lock.Unlock()
	s.closeAll(previous)

	fanOut(loaded, func(c chat.Conversation) error {
		if err := c.Initialise(ctx); err != nil {
			s.log.Warnf("failed to initialise conversation %s: %v", c.ID(), err)
			return err
		}
		if !c.IsValid() {
			s.log.Warnf("conversation %s is invalid", c.ID())
		}
		return nil
	})
	return true, nil
}

func (s *Session) restore(index int, raw json.RawMessage) (chat.Conversation, *RecoveryWarning) {
	rec := &chat.Record{}
	if err := json.Unmarshal(raw, rec); err != nil {
		return nil, &RecoveryWarning{RecordID: fmt.Sprintf("#%d", index), Reason: reasonDecode, Err: err}
	}
	if err := rec.ContentID.Validate(); err != nil {
		return nil, &RecoveryWarning{RecordID: rec.ID, Reason: reasonContentID, Err: err}
	}
	if s.config.Denied(rec.ID) || s.config.Denied(rec.ContentID.ConversationID()) {
		return nil, &RecoveryWarning{RecordID: rec.ID, Reason: reasonDenied, Err: errors.New("conversation is on the deny list")}
	}
	conv, err := s.factory.Construct(chat.ConstructRequest{
		TypeID:    rec.ChatType,
		ClassType: rec.ClassType,
		ContentID: rec.ContentID,
		Self:      s.self,
		DeviceKey: s.deviceKey,
	})
	if err != nil {
		return nil, &RecoveryWarning{RecordID: rec.ID, Reason: reasonConstruct, Err: err}
	}
	return conv, nil
}

// saveLocked writes settings and every conversation. The caller must hold lock.
func (s *Session) saveLocked() error {
	state := &persistedState{
		Settings:      &s.settings,
		Conversations: make([]json.RawMessage, 0, len(s.conversations)),
	}
	for _, c := range s.conversations {
		rec, err := c.Serialize()
		if err != nil {
			return fmt.Errorf("hush: error serializing %s: %w", c.ID(), err)
		}
		b, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("hush: error encoding %s: %w", c.ID(), err)
		}
		state.Conversations = append(state.Conversations, b)
	}
	b, err := json.Marshal(state)
	if err != nil {
		return err
	}
	if err := s.persistence.Write(s.id, string(b)); err != nil {
		return fmt.Errorf("hush: error writing state: %w", err)
	}
	return nil
}

func (s *Session) indexOf(id string) int {
	for i, c := range s.conversations {
		if c.ID() == id {
			return i
		}
	}
	return -1
}

// held reports whether c itself, not just a conversation with its id, is in the set. The caller must hold
// lock.
func (s *Session) held(c chat.Conversation) bool {
	i := s.indexOf(c.ID())
	return i >= 0 && s.conversations[i] == c
}

// closeAll closes conversations left over from an earlier failed open.
func (s *Session) closeAll(convs []chat.Conversation) {
	for _, err := range fanOut(convs, func(c chat.Conversation) error {
		if err := c.Close(); err != nil {
			return fmt.Errorf("%s: %w", c.ID(), err)
		}
		return nil
	}) {
		s.log.Warnf("error closing stale conversation: %v", err)
	}
}

func (s *Session) hasChat(id string) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.indexOf(id) >= 0
}

// addNewConversation registers a created or joined conversation, persists and announces it.
func (s *Session) addNewConversation(conv chat.Conversation) error {
	if !conv.IsValid() {
		return ErrChatInvalid
	}
	// events of a rejected conv are ignored since it is never held
	conv.On(s.handleEvent)
	s.lock.Lock()
	if s.indexOf(conv.ID()) >= 0 {
		s.lock.Unlock()
		return ErrAlreadyMember
	}
	s.conversations = append(s.conversations, conv)
	if err := s.saveLocked(); err != nil {
		s.conversations = s.conversations[:len(s.conversations)-1]
		s.lock.Unlock()
		return err
	}
	s.dispatchChatsLocked()
	s.lock.Unlock()
	return nil
}

// removeChat drops conv, persists and announces the change. It is an error if conv is not held.
func (s *Session) removeChat(conv chat.Conversation) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.removeLocked(conv.ID())
}

func (s *Session) removeLocked(id string) error {
	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w %s", ErrNoSuchChat, id)
	}
	removed := s.conversations[i]
	s.conversations = append(append([]chat.Conversation{}, s.conversations[:i]...), s.conversations[i+1:]...)
	if err := s.saveLocked(); err != nil {
		s.conversations = append(s.conversations[:i], append([]chat.Conversation{removed}, s.conversations[i:]...)...)
		return err
	}
	s.dispatchChatsLocked()
	return nil
}

func (s *Session) dispatchChatsLocked() {
	metrics.SetConversations(s.id, len(s.conversations))
	s.sink.Dispatch(KeyChats, append([]chat.Conversation{}, s.conversations...))
}
