// Package wallet describes the signing backend a session deploys and calls chat contracts through.
package wallet

import (
	"context"

	"github.com/meow-io/go-hush/chattype"
)

type Wallet interface {
	// The chain the wallet is currently connected to.
	Chain() int
	SwitchChain(ctx context.Context, chain int) error
	// Deploy a contract and return its address.
	Deploy(ctx context.Context, code *chattype.SourceCode, args []interface{}) (string, error)
	// Send a transaction calling method on contract.
	Send(ctx context.Context, contract string, abi chattype.ABI, method string, args []interface{}) error
	// The runtime bytecode at address.
	GetCode(ctx context.Context, address string) ([]byte, error)
}
