package hush

import (
	"context"
	"errors"

	"github.com/meow-io/go-hush/chat"
	"github.com/meow-io/go-hush/chattype"
)

// Terminate ends conv for every member: the contract is terminated with the chat's termination key, the
// conversation cleans up, and the session forgets it.
func (s *Session) Terminate(ctx context.Context, conv chat.Conversation) error {
	s.opLock.Lock()
	defer s.opLock.Unlock()
	if s.isClosed() {
		return ErrSessionClosed
	}
	if conv == nil {
		return &ValidationError{Field: "chat", Reason: "required"}
	}
	if !s.hasChat(conv.ID()) {
		return ErrNoSuchChat
	}
	w := s.newWorkflow("terminate")
	return w.finish(s.terminate(ctx, w, conv))
}

func (s *Session) terminate(ctx context.Context, w *workflow, conv chat.Conversation) error {
	if err := w.step("terminate-contract", func() error {
		key := conv.TerminateKey()
		method, args := "terminate", []interface{}{key}
		if typ := conv.Type(); typ != nil && typ.Actions.Terminate != nil {
			action := typ.Actions.Terminate
			var err error
			if args, err = s.factory.ParamsAsArray(action.Params, chattype.Params{"terminateKey": key, "my": s.self}); err != nil {
				return err
			}
			method = action.Method
		}
		return s.wallet.Send(ctx, conv.ContentID().Contract, s.abiFor(conv.Type()), method, args)
	}); err != nil {
		return err
	}

	if err := w.step("terminate-chat", func() error {
		return conv.Terminate(ctx)
	}); err != nil {
		return err
	}

	return w.step("remove", func() error {
		// a terminated event may already have removed it
		if err := s.removeChat(conv); err != nil && !errors.Is(err, ErrNoSuchChat) {
			return err
		}
		return nil
	})
}
