package hush

import (
	"context"
	"fmt"

	"github.com/meow-io/go-hush/chat"
	"github.com/meow-io/go-hush/chattype"
	"github.com/meow-io/go-hush/crypto"
	"github.com/meow-io/go-hush/invite"
)

// Join the chat an invite points at. The chat type is decided by the code deployed at the invite's contract,
// never by the class type the invite claims.
func (s *Session) Join(ctx context.Context, inviteStr string) error {
	s.opLock.Lock()
	defer s.opLock.Unlock()
	if s.isClosed() {
		return ErrSessionClosed
	}
	w := s.newWorkflow("join")
	return w.finish(s.join(ctx, w, inviteStr))
}

func (s *Session) join(ctx context.Context, w *workflow, inviteStr string) error {
	var inv invite.Invite
	if err := w.step("parse-invite", func() (err error) {
		if inv, err = invite.Parse(inviteStr); err != nil {
			return &InviteError{Kind: ErrInvalidInvite, Err: err}
		}
		return nil
	}); err != nil {
		return err
	}

	var code []byte
	if err := w.step("fetch-code", func() (err error) {
		code, err = s.wallet.GetCode(ctx, inv.ID.Contract)
		return
	}); err != nil {
		return err
	}

	var typ *chattype.Descriptor
	if err := w.step("match-type", func() error {
		hash := crypto.CodeHash(code)
		w.log.Debugf("invite contract hash: %s", hash)
		if typ = s.catalog.ByBytecodeHash(hash); typ == nil {
			return &InviteError{Kind: ErrUnsupportedChatType, Err: fmt.Errorf("no chat type has code hash %s", hash)}
		}
		return nil
	}); err != nil {
		return err
	}

	var conv chat.Conversation
	if err := w.step("construct", func() (err error) {
		if conv, err = s.factory.Construct(chat.ConstructRequest{
			TypeID:    typ.ID,
			ClassType: inv.ClassType,
			ContentID: inv.ID,
			Self:      s.self,
			DeviceKey: s.deviceKey,
		}); err != nil {
			return &InviteError{Kind: ErrInvalidInvite, Err: err}
		}
		return nil
	}); err != nil {
		return err
	}

	if err := w.step("check-membership", func() error {
		if s.hasChat(conv.ID()) {
			return ErrAlreadyMember
		}
		return nil
	}); err != nil {
		return err
	}

	if err := w.step("join", func() error {
		return conv.Join(ctx)
	}); err != nil {
		return err
	}

	return w.step("register", func() error {
		return s.addNewConversation(conv)
	})
}
