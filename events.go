package hush

import (
	"github.com/meow-io/go-hush/chat"
)

// handleEvent is the listener attached to every held conversation. Events from conversations no longer held,
// superseded by another instance with the same id, or arriving after close, are ignored.
func (s *Session) handleEvent(e chat.Event) {
	if e.Chat == nil {
		return
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed || !s.held(e.Chat) {
		return
	}
	switch e.Kind {
	case chat.EventNewMessage:
		s.newMessageCount++
		s.sink.Dispatch(KeyNewMessages, s.newMessageCount)
	case chat.EventUnreadChange:
		total := 0
		for _, c := range s.conversations {
			total += c.UnreadCount()
		}
		s.sink.Dispatch(KeyTotalUnread, total)
	case chat.EventTerminated:
		if err := s.removeLocked(e.Chat.ID()); err != nil {
			s.log.Warnf("error removing terminated chat %s: %v", e.Chat.ID(), err)
		}
	default:
		s.log.Debugf("ignoring %s from %s", e.Kind, e.Chat.ID())
	}
}
