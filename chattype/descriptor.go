// This package describes the kinds of chat a session can create or join. A descriptor binds a contract (its
// source and bytecode hash) to a conversation class, the templates used to build its constructor arguments
// and metadata, and the contract methods behind member management and termination.
package chattype

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

const (
	CategoryOneToOne = "one-to-one"
	CategoryGroup    = "group"
	CategoryPublic   = "public"

	ClassPublicChat   = "PublicChat"
	ClassOneToOneChat = "OneToOneChat"
	ClassPrivateChat  = "PrivateChat"
)

// The identity of a chat type. Persisted with every conversation record.
type ID struct {
	Category     string `json:"category" yaml:"category"`
	BytecodeHash string `json:"bytecodeHash" yaml:"bytecodeHash"`
}

// A contract ABI, kept as decoded JSON.
type ABI []map[string]interface{}

type SourceCode struct {
	ABI      ABI    `json:"abi" yaml:"abi"`
	Bytecode string `json:"bytecode,omitempty" yaml:"bytecode"`
	Bin      string `json:"bin,omitempty" yaml:"bin"`
}

// The deployable bytecode, whichever field holds it.
func (s *SourceCode) Code() string {
	if s.Bin != "" {
		return s.Bin
	}
	return s.Bytecode
}

// A template for one argument. Either a path such as `member0.account` or a user supplied parameter
// identified by ID.
type Param struct {
	Path     string `json:"path,omitempty" yaml:"-"`
	ID       string `json:"id,omitempty" yaml:"id"`
	Type     string `json:"type,omitempty" yaml:"type"`
	Title    string `json:"title,omitempty" yaml:"title"`
	Subtitle string `json:"subtitle,omitempty" yaml:"subtitle"`
}

func (p *Param) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		*p = Param{Path: value.Value}
		return nil
	}
	type raw Param
	r := raw{}
	if err := value.Decode(&r); err != nil {
		return err
	}
	if r.ID == "" {
		return fmt.Errorf("chattype: line %d: parameter needs an id", value.Line)
	}
	*p = Param(r)
	return nil
}

// A contract method bound to a chat action.
type Action struct {
	Method string  `json:"method" yaml:"method"`
	Params []Param `json:"params" yaml:"params"`
}

// A permission which is either a plain flag or decided by calling a contract method.
type Permission struct {
	Allowed bool    `json:"allowed"`
	Action  *Action `json:"action,omitempty"`
}

func (p *Permission) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var b bool
		if err := value.Decode(&b); err != nil {
			return err
		}
		*p = Permission{Allowed: b}
		return nil
	}
	a := &Action{}
	if err := value.Decode(a); err != nil {
		return err
	}
	*p = Permission{Allowed: true, Action: a}
	return nil
}

type Actions struct {
	CanConstruct     bool        `json:"canConstruct" yaml:"canConstruct"`
	CanLeave         *Permission `json:"canLeave,omitempty" yaml:"canLeave"`
	CanDelete        *Permission `json:"canDelete,omitempty" yaml:"canDelete"`
	CanWrite         *Action     `json:"canWrite,omitempty" yaml:"canWrite"`
	AddMembers       *Action     `json:"addMembers,omitempty" yaml:"addMembers"`
	RemoveMembers    *Action     `json:"removeMembers,omitempty" yaml:"removeMembers"`
	Terminate        *Action     `json:"terminate,omitempty" yaml:"terminate"`
	RequiresDelegate bool        `json:"requiresDelegate,omitempty" yaml:"requiresDelegate"`
}

type Descriptor struct {
	Title             string            `json:"title" yaml:"title"`
	Description       string            `json:"description" yaml:"description"`
	Details           string            `json:"details,omitempty" yaml:"details"`
	ID                ID                `json:"id" yaml:"id"`
	ClassType         string            `json:"classType" yaml:"classType"`
	SourceCode        *SourceCode       `json:"sourceCode,omitempty" yaml:"sourceCode"`
	ConstructorParams []Param           `json:"constructorParams" yaml:"constructorParams"`
	Metadata          map[string]string `json:"metadata" yaml:"metadata"`
	Actions           Actions           `json:"actions" yaml:"actions"`
	Icon              string            `json:"icon,omitempty" yaml:"icon"`
	LimitToChains     []int             `json:"limitToChains,omitempty" yaml:"limitToChains"`
	Disabled          bool              `json:"disabled,omitempty" yaml:"disabled"`
}

// Deployable reports whether the descriptor carries what is needed to deploy its contract.
func (d *Descriptor) Deployable() bool {
	return d.SourceCode != nil && d.SourceCode.Code() != ""
}

// AllowedOn reports whether chats of this type may be created on the given chain.
func (d *Descriptor) AllowedOn(chain int) bool {
	if len(d.LimitToChains) == 0 {
		return true
	}
	for _, c := range d.LimitToChains {
		if c == chain {
			return true
		}
	}
	return false
}

func (d *Descriptor) String() string {
	b, err := json.Marshal(d.ID)
	if err != nil {
		return d.Title
	}
	return fmt.Sprintf("%s %s", d.Title, b)
}
