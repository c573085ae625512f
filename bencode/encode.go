package bencode

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
)

// Serialize a ptr to a bencode-encoded byte-slice.
func Serialize(s interface{}) ([]byte, error) {
	val := reflect.ValueOf(s)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return nil, errors.New("bencode: expected a non-nil pointer")
	}
	w := &writer{}
	if err := w.writeValue(val.Elem()); err != nil {
		return nil, err
	}
	return w.buf.Bytes(), nil
}

type writer struct {
	buf bytes.Buffer
}

func (w *writer) writeBytes(b []byte) {
	w.buf.WriteString(strconv.Itoa(len(b)))
	w.buf.WriteByte(bytesLengthSep)
	w.buf.Write(b)
}

func (w *writer) writeInt(i int64) {
	w.buf.WriteByte(numberStart)
	w.buf.WriteString(strconv.FormatInt(i, 10))
	w.buf.WriteByte(bencodeEnd)
}

func (w *writer) writeUint(i uint64) {
	w.buf.WriteByte(numberStart)
	w.buf.WriteString(strconv.FormatUint(i, 10))
	w.buf.WriteByte(bencodeEnd)
}

func (w *writer) writeValue(v reflect.Value) error {
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface:
		if v.IsNil() {
			return fmt.Errorf("bencode: cannot encode nil %s", v.Type())
		}
		return w.writeValue(v.Elem())
	case reflect.String:
		w.writeBytes([]byte(v.String()))
	case reflect.Bool:
		if v.Bool() {
			w.writeInt(1)
		} else {
			w.writeInt(0)
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		w.writeInt(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		w.writeUint(v.Uint())
	case reflect.Slice, reflect.Array:
		if isByteSequence(v.Type()) {
			b := make([]byte, v.Len())
			for i := range b {
				b[i] = byte(v.Index(i).Uint())
			}
			w.writeBytes(b)
			return nil
		}
		w.buf.WriteByte(listStart)
		for i := 0; i != v.Len(); i++ {
			if err := w.writeValue(v.Index(i)); err != nil {
				return err
			}
		}
		w.buf.WriteByte(bencodeEnd)
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return fmt.Errorf("bencode: map keys must be strings, got %s", v.Type().Key())
		}
		keys := v.MapKeys()
		sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
		w.buf.WriteByte(dictStart)
		for _, k := range keys {
			w.writeBytes([]byte(k.String()))
			if err := w.writeValue(v.MapIndex(k)); err != nil {
				return err
			}
		}
		w.buf.WriteByte(bencodeEnd)
	case reflect.Struct:
		w.buf.WriteByte(dictStart)
		for _, f := range structFields(v.Type()) {
			w.writeBytes([]byte(f.key))
			if err := w.writeValue(v.Field(f.index)); err != nil {
				return fmt.Errorf("bencode: field %s: %w", f.key, err)
			}
		}
		w.buf.WriteByte(bencodeEnd)
	default:
		return fmt.Errorf("bencode: cannot encode kind %s", v.Kind())
	}
	return nil
}
