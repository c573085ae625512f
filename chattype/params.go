package chattype

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

var ErrMissingParam = errors.New("chattype: missing parameter")

// Raw parameters a chat is built from, keyed by template root.
type Params map[string]interface{}

// Values which expose named properties to templates, e.g. identities.
type Fielder interface {
	Field(name string) (interface{}, bool)
}

// ResolveArgs builds an ordered constructor or method argument list.
func ResolveArgs(template []Param, params Params) ([]interface{}, error) {
	args := make([]interface{}, 0, len(template))
	for i, p := range template {
		var (
			v   interface{}
			err error
		)
		if p.ID != "" {
			var ok bool
			if v, ok = params[p.ID]; !ok {
				err = fmt.Errorf("%w %s (%s)", ErrMissingParam, p.ID, p.Title)
			}
		} else {
			v, err = Resolve(p.Path, params)
		}
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		args = append(args, v)
	}
	return args, nil
}

// ResolveFields builds a metadata object. Fields whose root parameter is absent are left out.
func ResolveFields(template map[string]string, params Params) (map[string]interface{}, error) {
	fields := make(map[string]interface{}, len(template))
	for name, path := range template {
		v, err := Resolve(path, params)
		if errors.Is(err, ErrMissingParam) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		fields[name] = v
	}
	return fields, nil
}

// Resolve a single dotted path. `true` and `false` are literals. Each further segment indexes a map, asks a
// Fielder for a property, or is applied to every element of a list.
func Resolve(path string, params Params) (interface{}, error) {
	switch path {
	case "true":
		return true, nil
	case "false":
		return false, nil
	case "":
		return nil, errors.New("chattype: empty parameter path")
	}
	segs := strings.Split(path, ".")
	root, ok := params[segs[0]]
	if !ok {
		return nil, fmt.Errorf("%w %s", ErrMissingParam, segs[0])
	}
	v, err := walk(root, segs[1:])
	if err != nil {
		return nil, fmt.Errorf("chattype: resolving %s: %w", path, err)
	}
	return v, nil
}

func walk(v interface{}, segs []string) (interface{}, error) {
	if len(segs) == 0 {
		return v, nil
	}
	seg := segs[0]
	switch t := v.(type) {
	case nil:
		return nil, fmt.Errorf("no %s on nil", seg)
	case Fielder:
		f, ok := t.Field(seg)
		if !ok {
			return nil, fmt.Errorf("no %s on %T", seg, v)
		}
		return walk(f, segs[1:])
	case map[string]interface{}:
		f, ok := t[seg]
		if !ok {
			return nil, fmt.Errorf("no %s in map", seg)
		}
		return walk(f, segs[1:])
	case Params:
		return walk(map[string]interface{}(t), segs)
	case string, []byte:
		return nil, fmt.Errorf("no %s on %T", seg, v)
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]interface{}, rv.Len())
		for i := range out {
			e, err := walk(rv.Index(i).Interface(), segs)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = e
		}
		return out, nil
	}
	return nil, fmt.Errorf("no %s on %T", seg, v)
}
