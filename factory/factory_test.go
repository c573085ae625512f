package factory

import (
	"testing"

	"github.com/meow-io/go-hush/chat"
	"github.com/meow-io/go-hush/chattype"
	"github.com/meow-io/go-hush/contentid"
	"github.com/stretchr/testify/require"
)

func TestConstruct(t *testing.T) {
	require := require.New(t)
	catalog := chattype.DefaultCatalog()
	f := New(catalog)
	group := catalog.ByBytecodeHash("eca0e2dbb39f268cfff4c54f90d8c0d3e8e69aa731e7deee941cd08b47345d3b")
	id := contentid.ContentID{Chain: 1, Contract: "0x1287afe7Fe61A9A7e5F846673051b00ecb82379b", Provider: "https://p.example.com"}

	_, err := f.Construct(chat.ConstructRequest{TypeID: group.ID, ContentID: id})
	require.ErrorIs(err, ErrUnknownClass)

	var got chat.ConstructRequest
	var gotType *chattype.Descriptor
	f.Register(chattype.ClassPrivateChat, func(typ *chattype.Descriptor, req chat.ConstructRequest) (chat.Conversation, error) {
		got, gotType = req, typ
		return nil, nil
	})

	_, err = f.Construct(chat.ConstructRequest{TypeID: group.ID, ContentID: id})
	require.NoError(err)
	require.Equal(chattype.ClassPrivateChat, got.ClassType)
	require.Same(group, gotType)

	_, err = f.Construct(chat.ConstructRequest{TypeID: chattype.ID{Category: "group", BytecodeHash: "00"}, ContentID: id})
	require.ErrorIs(err, ErrUnknownType)

	_, err = f.Construct(chat.ConstructRequest{TypeID: group.ID, ContentID: contentid.ContentID{Chain: 1}})
	require.Error(err)

	_, err = f.Construct(chat.ConstructRequest{TypeID: group.ID, ClassType: "Other", ContentID: id})
	require.ErrorIs(err, ErrUnknownClass)
}

func TestParams(t *testing.T) {
	require := require.New(t)
	f := New(chattype.DefaultCatalog())
	args, err := f.ParamsAsArray([]chattype.Param{{Path: "terminateToken"}, {Path: "false"}}, chattype.Params{"terminateToken": "0xabc"})
	require.NoError(err)
	require.Equal([]interface{}{"0xabc", false}, args)

	fields, err := f.Params(map[string]string{"title": "title"}, chattype.Params{})
	require.NoError(err)
	require.Empty(fields)
}
