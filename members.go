package hush

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/meow-io/go-hush/chat"
	"github.com/meow-io/go-hush/chattype"
	"github.com/meow-io/go-hush/identity"
)

// ManageMembers adds and removes members of conv: the contract first, then the members' files, then the
// chat's metadata. Steps already done are not undone when a later one fails.
func (s *Session) ManageMembers(ctx context.Context, conv chat.Conversation, added, removed []identity.Identity) error {
	s.opLock.Lock()
	defer s.opLock.Unlock()
	if s.isClosed() {
		return ErrSessionClosed
	}
	w := s.newWorkflow("manage-members")
	return w.finish(s.manageMembers(ctx, w, conv, added, removed))
}

func (s *Session) manageMembers(ctx context.Context, w *workflow, conv chat.Conversation, added, removed []identity.Identity) error {
	var typ *chattype.Descriptor
	if err := w.step("validate", func() error {
		if conv == nil {
			return &ValidationError{Field: "chat", Reason: "required"}
		}
		typ = conv.Type()
		if typ == nil {
			return &ValidationError{Field: "chat.chatType", Reason: "required"}
		}
		if identity.Contains(removed, s.self) {
			return &ValidationError{Field: "removedMembers", Reason: "cannot remove yourself"}
		}
		if len(added) > 0 && typ.Actions.AddMembers == nil {
			return &ValidationError{Field: "chat.chatType.actions.addMembers", Reason: "chat type cannot add members"}
		}
		if len(removed) > 0 && typ.Actions.RemoveMembers == nil {
			return &ValidationError{Field: "chat.chatType.actions.removeMembers", Reason: "chat type cannot remove members"}
		}
		return nil
	}); err != nil {
		return err
	}

	current := conv.Metadata()
	newMembers := make([]identity.Identity, 0, len(current.Members)+len(added))
	for _, m := range current.Members {
		if !identity.Contains(removed, m) {
			newMembers = append(newMembers, m)
		}
	}
	newMembers = append(newMembers, added...)
	w.log.Debugf("%s setting new members %v", conv.ID(), newMembers)

	if err := w.step("add-members", func() error {
		return s.sendMembers(ctx, conv, typ.Actions.AddMembers, added)
	}); err != nil {
		return err
	}
	if err := w.step("remove-members", func() error {
		return s.sendMembers(ctx, conv, typ.Actions.RemoveMembers, removed)
	}); err != nil {
		return err
	}

	users := conv.Users()
	if err := w.step("write-user-files", func() error {
		return eachMember(added, func(m identity.Identity) error {
			return users.AddUser(ctx, m.PublicKey())
		})
	}); err != nil {
		return err
	}
	if err := w.step("remove-user-files", func() error {
		return eachMember(removed, func(m identity.Identity) error {
			return users.RemoveUser(ctx, m.PublicKey(), chat.RemoveOptions{Silent: true})
		})
	}); err != nil {
		return err
	}

	return w.step("set-metadata", func() error {
		m := current.Copy()
		m.Members = newMembers
		return conv.SetMetadata(ctx, m)
	})
}

func (s *Session) sendMembers(ctx context.Context, conv chat.Conversation, action *chattype.Action, members []identity.Identity) error {
	if len(members) == 0 {
		return nil
	}
	args, err := s.factory.ParamsAsArray(action.Params, chattype.Params{"members": members})
	if err != nil {
		return err
	}
	return s.wallet.Send(ctx, conv.ContentID().Contract, s.abiFor(conv.Type()), action.Method, args)
}

func (s *Session) abiFor(typ *chattype.Descriptor) chattype.ABI {
	if typ != nil && typ.SourceCode != nil {
		return typ.SourceCode.ABI
	}
	if pub := s.catalog.DefaultPublic(); pub != nil && pub.SourceCode != nil {
		return pub.SourceCode.ABI
	}
	return nil
}

func eachMember(members []identity.Identity, f func(identity.Identity) error) error {
	var (
		wg   sync.WaitGroup
		lock sync.Mutex
		errs []error
	)
	for _, m := range members {
		wg.Add(1)
		go func(m identity.Identity) {
			defer wg.Done()
			if err := f(m); err != nil {
				lock.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", m.Address(), err))
				lock.Unlock()
			}
		}(m)
	}
	wg.Wait()
	return errors.Join(errs...)
}
