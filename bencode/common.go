// This package defines a small bencode encoding/decoding library. Struct fields are mapped to dictionary
// keys with `bencode:".."` tags; fields without a tag are ignored. Dictionary keys are always written in
// sorted order so two equal values always encode to the same bytes.
//
// Supported kinds are strings, byte slices, fixed-size byte arrays, integers, booleans, slices, arrays,
// maps with string keys, structs and pointers to any of these.
package bencode

import (
	"reflect"
	"sort"
	"strings"
)

const (
	numberStart    = 'i'
	dictStart      = 'd'
	listStart      = 'l'
	bencodeEnd     = 'e'
	bytesLengthSep = ':'
)

type field struct {
	key   string
	index int
}

// tagged fields for a struct type, sorted by key
func structFields(t reflect.Type) []field {
	fields := make([]field, 0, t.NumField())
	for i := 0; i != t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag, ok := f.Tag.Lookup("bencode")
		if !ok {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")
		if name == "" || name == "-" {
			continue
		}
		fields = append(fields, field{key: name, index: i})
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].key < fields[j].key })
	return fields
}

func isByteSequence(t reflect.Type) bool {
	return (t.Kind() == reflect.Slice || t.Kind() == reflect.Array) && t.Elem().Kind() == reflect.Uint8
}
