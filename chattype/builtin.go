package chattype

import (
	"bytes"
	_ "embed"
)

//go:embed builtin.yaml
var builtinYAML []byte

// DefaultCatalog returns the chat types every session knows about.
func DefaultCatalog() *Catalog {
	c, err := LoadCatalog(bytes.NewReader(builtinYAML))
	if err != nil {
		panic(err)
	}
	return c
}
