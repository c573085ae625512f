package hush

import (
	"context"
	"fmt"
	"regexp"

	"github.com/meow-io/go-hush/chat"
	"github.com/meow-io/go-hush/chattype"
	"github.com/meow-io/go-hush/contentid"
	"github.com/meow-io/go-hush/crypto"
	"github.com/meow-io/go-hush/identity"
)

var hexPattern = regexp.MustCompile(`^0x[0-9a-fA-F]+$`)

// The chain a chat is deployed to. PublicBubble is the chain's public chat, used to check providers.
type Chain struct {
	ID           int
	PublicBubble string
}

type HostChain struct {
	URL string
}

// A content provider and the chains it serves.
type Host struct {
	Name   string
	Chains map[int]HostChain
}

type CreateRequest struct {
	Chain  Chain
	Host   Host
	Type   *chattype.Descriptor
	Params chattype.Params
}

func validateCreate(req *CreateRequest) error {
	switch {
	case req.Chain.ID <= 0:
		return &ValidationError{Field: "chain.id", Reason: "must be a positive number"}
	case !hexPattern.MatchString(req.Chain.PublicBubble):
		return &ValidationError{Field: "chain.publicBubble", Reason: "must be a hex string"}
	case req.Host.Chains == nil:
		return &ValidationError{Field: "host.chains", Reason: "required"}
	}
	hc, ok := req.Host.Chains[req.Chain.ID]
	if !ok {
		return &ValidationError{Field: fmt.Sprintf("host.chains for chain id %d", req.Chain.ID), Reason: "required"}
	}
	switch {
	case hc.URL == "":
		return &ValidationError{Field: "host.chains[].url", Reason: "required"}
	case req.Type == nil:
		return &ValidationError{Field: "bubbleType", Reason: "required"}
	case req.Type.SourceCode == nil:
		return &ValidationError{Field: "bubbleType.sourceCode", Reason: "required"}
	case req.Type.SourceCode.ABI == nil:
		return &ValidationError{Field: "bubbleType.sourceCode.abi", Reason: "required"}
	case !hexPattern.MatchString(req.Type.SourceCode.Code()):
		return &ValidationError{Field: "bubbleType.sourceCode.bin (or bubbleType.sourceCode.bytecode)", Reason: "must be a hex string"}
	case !req.Type.AllowedOn(req.Chain.ID):
		return &ValidationError{Field: "bubbleType.limitToChains", Reason: fmt.Sprintf("chain %d is not supported", req.Chain.ID)}
	}
	return nil
}

// Create deploys a new chat contract, creates the chat's store on the host and registers the chat. A one to
// one chat is offered to the other member through the request monitor.
func (s *Session) Create(ctx context.Context, req CreateRequest) (contentid.ContentID, error) {
	if err := validateCreate(&req); err != nil {
		return contentid.ContentID{}, err
	}
	s.opLock.Lock()
	defer s.opLock.Unlock()
	if s.isClosed() {
		return contentid.ContentID{}, ErrSessionClosed
	}
	w := s.newWorkflow("create")
	id, err := s.create(ctx, w, &req)
	return id, w.finish(err)
}

func (s *Session) create(ctx context.Context, w *workflow, req *CreateRequest) (contentid.ContentID, error) {
	url := req.Host.Chains[req.Chain.ID].URL
	w.log.Debugf("deploying %s to chain %d and provider %s", req.Type.ClassType, req.Chain.ID, req.Host.Name)

	var terminateKey *crypto.Key
	if err := w.step("generate-terminate-key", func() (err error) {
		terminateKey, err = crypto.GenerateKey()
		return
	}); err != nil {
		return contentid.ContentID{}, err
	}

	params := make(chattype.Params, len(req.Params)+3)
	for k, v := range req.Params {
		params[k] = v
	}
	params["terminateKey"] = terminateKey.PrivateKeyHex()
	params["terminateToken"] = identity.FromKey(terminateKey).Account()
	params["my"] = s.self

	var (
		args   []interface{}
		fields map[string]interface{}
	)
	if err := w.step("resolve-params", func() (err error) {
		if args, err = s.factory.ParamsAsArray(req.Type.ConstructorParams, params); err != nil {
			return err
		}
		fields, err = s.factory.Params(req.Type.Metadata, params)
		return err
	}); err != nil {
		return contentid.ContentID{}, err
	}

	var metadata chat.Metadata
	if err := w.step("compute-members", func() (err error) {
		metadata, err = chat.MetadataFromFields(s.self, fields)
		return
	}); err != nil {
		return contentid.ContentID{}, err
	}

	if err := w.step("check-provider", func() error {
		return s.providers.Check(ctx, req.Chain.ID, url, req.Chain.PublicBubble)
	}); err != nil {
		return contentid.ContentID{}, err
	}

	if err := w.step("switch-chain", func() error {
		if s.wallet.Chain() == req.Chain.ID {
			return nil
		}
		return s.wallet.SwitchChain(ctx, req.Chain.ID)
	}); err != nil {
		return contentid.ContentID{}, err
	}

	var address string
	if err := w.step("deploy", func() (err error) {
		address, err = s.wallet.Deploy(ctx, req.Type.SourceCode, args)
		return
	}); err != nil {
		return contentid.ContentID{}, err
	}
	w.log.Debugf("contract deployed with address %s", address)

	var (
		id   contentid.ContentID
		conv chat.Conversation
	)
	if err := w.step("create-remote", func() (err error) {
		if id, err = contentid.New(req.Chain.ID, address, url); err != nil {
			return err
		}
		if conv, err = s.factory.Construct(chat.ConstructRequest{
			TypeID:       req.Type.ID,
			ClassType:    req.Type.ClassType,
			ContentID:    id,
			Self:         s.self,
			DeviceKey:    s.deviceKey,
			TerminateKey: terminateKey.PrivateKeyHex(),
			Metadata:     &metadata,
		}); err != nil {
			return err
		}
		return conv.Create(ctx, chat.CreateOptions{Metadata: metadata, Silent: true})
	}); err != nil {
		return contentid.ContentID{}, err
	}

	if err := w.step("register", func() error {
		return s.addNewConversation(conv)
	}); err != nil {
		return contentid.ContentID{}, err
	}

	if req.Type.ID.Category == chattype.CategoryOneToOne && s.requestMonitor != nil {
		// failures are logged only
		_ = w.step("notify-peer", func() error {
			return s.notifyPeer(ctx, conv)
		})
	}
	return id, nil
}

func (s *Session) notifyPeer(ctx context.Context, conv chat.Conversation) error {
	var peer identity.Identity
	for _, u := range conv.Users().Users() {
		if !u.Equal(s.self) {
			peer = u
			break
		}
	}
	if peer.IsZero() {
		return fmt.Errorf("hush: %s has no other member", conv.ID())
	}
	inv, err := conv.Invite()
	if err != nil {
		return err
	}
	return s.requestMonitor.Notify(ctx, peer.PublicKey(), inv)
}
