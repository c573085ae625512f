package chat

import (
	"fmt"
	"strconv"

	"github.com/meow-io/go-hush/identity"
)

// MetadataFromFields builds metadata from resolved template fields. Members are self, then member0, member1 and
// so on until the first gap, then any `members` list, with repeats dropped.
func MetadataFromFields(self identity.Identity, fields map[string]interface{}) (Metadata, error) {
	m := Metadata{Fields: map[string]interface{}{}}
	for k, v := range fields {
		switch k {
		case "title":
			m.Title = fmt.Sprint(v)
		case "icon":
			m.Icon = fmt.Sprint(v)
		case "members":
		default:
			m.Fields[k] = v
		}
	}
	members, err := decodeMembers(self, fields)
	if err != nil {
		return Metadata{}, err
	}
	m.Members = members
	return m, nil
}

func decodeMembers(self identity.Identity, fields map[string]interface{}) ([]identity.Identity, error) {
	members := []identity.Identity{self}
	for n := 0; ; n++ {
		v, ok := fields["member"+strconv.Itoa(n)]
		if !ok || v == nil {
			break
		}
		i, err := toIdentity(v)
		if err != nil {
			return nil, fmt.Errorf("chat: member%d: %w", n, err)
		}
		members = append(members, i)
	}
	if list, ok := fields["members"]; ok && list != nil {
		more, err := toIdentities(list)
		if err != nil {
			return nil, fmt.Errorf("chat: members: %w", err)
		}
		members = append(members, more...)
	}
	return identity.Dedupe(members), nil
}

func toIdentity(v interface{}) (identity.Identity, error) {
	switch t := v.(type) {
	case identity.Identity:
		return t, nil
	case *identity.Identity:
		return *t, nil
	case string:
		return identity.New(t)
	}
	return identity.Identity{}, fmt.Errorf("cannot use %T as a member", v)
}

func toIdentities(v interface{}) ([]identity.Identity, error) {
	switch t := v.(type) {
	case []identity.Identity:
		return t, nil
	case []string:
		out := make([]identity.Identity, 0, len(t))
		for _, s := range t {
			i, err := identity.New(s)
			if err != nil {
				return nil, err
			}
			out = append(out, i)
		}
		return out, nil
	case []interface{}:
		out := make([]identity.Identity, 0, len(t))
		for _, e := range t {
			i, err := toIdentity(e)
			if err != nil {
				return nil, err
			}
			out = append(out, i)
		}
		return out, nil
	}
	return nil, fmt.Errorf("cannot use %T as a member list", v)
}
