package bencode

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
)

type DecodeError struct {
	msg string
}

func newDecodeError(msg string, vars ...interface{}) *DecodeError {
	return &DecodeError{fmt.Sprintf(msg, vars...)}
}

func (e *DecodeError) Error() string {
	return e.msg
}

// Given the target pointer, decode the byte slice into it. Unknown dictionary keys are skipped.
func Deserialize(buf []byte, t interface{}) error {
	val := reflect.ValueOf(t)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return errors.New("bencode: expected a non-nil pointer")
	}
	r := &reader{buf: buf}
	if err := r.readValue(val.Elem()); err != nil {
		return err
	}
	if !r.isAtEnd() {
		return newDecodeError("expected to be at end of buffer, %d bytes remaining", len(r.buf)-r.pos)
	}
	return nil
}

type reader struct {
	buf []byte
	pos int
}

func (r *reader) isAtEnd() bool {
	return r.pos == len(r.buf)
}

func (r *reader) peek() (byte, error) {
	if r.isAtEnd() {
		return 0, newDecodeError("unexpected end of buffer at pos %d", r.pos)
	}
	return r.buf[r.pos], nil
}

func (r *reader) expectByte(b byte) error {
	c, err := r.peek()
	if err != nil {
		return err
	}
	if c != b {
		return newDecodeError("expected 0x%x at pos %d, got 0x%x", b, r.pos, c)
	}
	r.pos++
	return nil
}

func (r *reader) readInt() (int64, error) {
	if err := r.expectByte(numberStart); err != nil {
		return 0, err
	}
	start := r.pos
	for {
		c, err := r.peek()
		if err != nil {
			return 0, err
		}
		if c == bencodeEnd {
			break
		}
		r.pos++
	}
	n, err := strconv.ParseInt(string(r.buf[start:r.pos]), 10, 64)
	if err != nil {
		return 0, newDecodeError("invalid integer at pos %d: %s", start, err)
	}
	r.pos++
	return n, nil
}

func (r *reader) readBytes() ([]byte, error) {
	start := r.pos
	for {
		c, err := r.peek()
		if err != nil {
			return nil, err
		}
		if c == bytesLengthSep {
			break
		}
		if c < '0' || c > '9' {
			return nil, newDecodeError("expected length digit at pos %d, got 0x%x", r.pos, c)
		}
		r.pos++
	}
	l, err := strconv.Atoi(string(r.buf[start:r.pos]))
	if err != nil {
		return nil, newDecodeError("invalid length at pos %d: %s", start, err)
	}
	r.pos++
	if l > len(r.buf)-r.pos {
		return nil, newDecodeError("length %d at pos %d exceeds buffer", l, start)
	}
	b := r.buf[r.pos : r.pos+l]
	r.pos += l
	return b, nil
}

func (r *reader) readUntilEnd(each func() error) error {
	for {
		c, err := r.peek()
		if err != nil {
			return err
		}
		if c == bencodeEnd {
			r.pos++
			return nil
		}
		if err := each(); err != nil {
			return err
		}
	}
}

func (r *reader) skip() error {
	c, err := r.peek()
	if err != nil {
		return err
	}
	switch c {
	case numberStart:
		_, err := r.readInt()
		return err
	case listStart:
		r.pos++
		return r.readUntilEnd(r.skip)
	case dictStart:
		r.pos++
		return r.readUntilEnd(func() error {
			if _, err := r.readBytes(); err != nil {
				return err
			}
			return r.skip()
		})
	default:
		_, err := r.readBytes()
		return err
	}
}

func (r *reader) readValue(v reflect.Value) error {
	switch v.Kind() {
	case reflect.Ptr:
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		return r.readValue(v.Elem())
	case reflect.String:
		b, err := r.readBytes()
		if err != nil {
			return err
		}
		v.SetString(string(b))
	case reflect.Bool:
		n, err := r.readInt()
		if err != nil {
			return err
		}
		v.SetBool(n != 0)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := r.readInt()
		if err != nil {
			return err
		}
		if v.OverflowInt(n) {
			return newDecodeError("%d overflows %s", n, v.Type())
		}
		v.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := r.readInt()
		if err != nil {
			return err
		}
		if n < 0 || v.OverflowUint(uint64(n)) {
			return newDecodeError("%d overflows %s", n, v.Type())
		}
		v.SetUint(uint64(n))
	case reflect.Slice:
		if isByteSequence(v.Type()) {
			b, err := r.readBytes()
			if err != nil {
				return err
			}
			v.SetBytes(append([]byte{}, b...))
			return nil
		}
		if err := r.expectByte(listStart); err != nil {
			return err
		}
		s := reflect.MakeSlice(v.Type(), 0, 0)
		if err := r.readUntilEnd(func() error {
			e := reflect.New(v.Type().Elem()).Elem()
			if err := r.readValue(e); err != nil {
				return err
			}
			s = reflect.Append(s, e)
			return nil
		}); err != nil {
			return err
		}
		v.Set(s)
	case reflect.Array:
		if isByteSequence(v.Type()) {
			b, err := r.readBytes()
			if err != nil {
				return err
			}
			if len(b) != v.Len() {
				return newDecodeError("expected %d bytes for %s, got %d", v.Len(), v.Type(), len(b))
			}
			for i := range b {
				v.Index(i).SetUint(uint64(b[i]))
			}
			return nil
		}
		if err := r.expectByte(listStart); err != nil {
			return err
		}
		i := 0
		if err := r.readUntilEnd(func() error {
			if i >= v.Len() {
				return newDecodeError("too many elements for %s", v.Type())
			}
			i++
			return r.readValue(v.Index(i - 1))
		}); err != nil {
			return err
		}
		if i != v.Len() {
			return newDecodeError("expected %d elements for %s, got %d", v.Len(), v.Type(), i)
		}
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return newDecodeError("map keys must be strings, got %s", v.Type().Key())
		}
		if err := r.expectByte(dictStart); err != nil {
			return err
		}
		m := reflect.MakeMap(v.Type())
		if err := r.readUntilEnd(func() error {
			k, err := r.readBytes()
			if err != nil {
				return err
			}
			e := reflect.New(v.Type().Elem()).Elem()
			if err := r.readValue(e); err != nil {
				return err
			}
			m.SetMapIndex(reflect.ValueOf(string(k)).Convert(v.Type().Key()), e)
			return nil
		}); err != nil {
			return err
		}
		v.Set(m)
	case reflect.Struct:
		if err := r.expectByte(dictStart); err != nil {
			return err
		}
		fields := make(map[string]int)
		for _, f := range structFields(v.Type()) {
			fields[f.key] = f.index
		}
		return r.readUntilEnd(func() error {
			k, err := r.readBytes()
			if err != nil {
				return err
			}
			idx, ok := fields[string(k)]
			if !ok {
				return r.skip()
			}
			return r.readValue(v.Field(idx))
		})
	default:
		return newDecodeError("cannot decode into kind %s", v.Kind())
	}
	return nil
}
