// Package factory builds conversations for a catalog of chat types. Conversation classes register a
// constructor under their class type.
package factory

import (
	"errors"
	"fmt"
	"sync"

	"github.com/meow-io/go-hush/chat"
	"github.com/meow-io/go-hush/chattype"
)

var (
	ErrUnknownType  = errors.New("factory: unknown chat type")
	ErrUnknownClass = errors.New("factory: unknown class type")
)

// Builds a conversation of one class. typ is the catalog entry for req.TypeID.
type Constructor func(typ *chattype.Descriptor, req chat.ConstructRequest) (chat.Conversation, error)

type Factory struct {
	catalog      *chattype.Catalog
	lock         sync.RWMutex
	constructors map[string]Constructor
}

func New(catalog *chattype.Catalog) *Factory {
	return &Factory{
		catalog:      catalog,
		constructors: map[string]Constructor{},
	}
}

func (f *Factory) Register(classType string, c Constructor) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.constructors[classType] = c
}

func (f *Factory) ParamsAsArray(template []chattype.Param, params chattype.Params) ([]interface{}, error) {
	return chattype.ResolveArgs(template, params)
}

func (f *Factory) Params(template map[string]string, params chattype.Params) (map[string]interface{}, error) {
	return chattype.ResolveFields(template, params)
}

func (f *Factory) Construct(req chat.ConstructRequest) (chat.Conversation, error) {
	typ := f.catalog.ByID(req.TypeID)
	if typ == nil {
		return nil, fmt.Errorf("%w %s/%s", ErrUnknownType, req.TypeID.Category, req.TypeID.BytecodeHash)
	}
	classType := req.ClassType
	if classType == "" {
		classType = typ.ClassType
	}
	f.lock.RLock()
	c, ok := f.constructors[classType]
	f.lock.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrUnknownClass, classType)
	}
	if err := req.ContentID.Validate(); err != nil {
		return nil, fmt.Errorf("factory: %w", err)
	}
	req.ClassType = classType
	return c(typ, req)
}
