package access

import (
	"fmt"
	"strings"
)

// maskOrder is the positional form of the wire-compact permissions string:
// child permissions (create, select, delete), a dash, then particle
// permissions (read, write, execute). Uppercase marks a granted bit.
var maskOrder = []struct {
	perm   Permission
	letter rune
}{
	{PermCreate, 'c'},
	{PermSelect, 's'},
	{PermDelete, 'd'},
	{PermRead, 'r'},
	{PermWrite, 'w'},
	{PermExecute, 'x'},
}

// Format renders p in the "csd-rwx" notation, uppercasing granted bits
// (e.g. a read+execute set renders "csd-RwX").
func (p Permissions) Format() string {
	var b strings.Builder
	for i, m := range maskOrder {
		if i == 3 {
			b.WriteByte('-')
		}
		if p.Has(m.perm) {
			b.WriteRune(m.letter - 'a' + 'A')
		} else {
			b.WriteRune(m.letter)
		}
	}
	return b.String()
}

// ParseMask parses a "+csd-Rwx" / "&csd-rwX" mask string: a leading '+'
// selects Or mode, '&' selects And mode, and each of the six positional
// letters grants its bit when uppercase.
func ParseMask(s string) (MaskMode, Permissions, error) {
	if len(s) != 8 {
		return Or, Permissions{}, fmt.Errorf("access: mask %q must be 8 characters", s)
	}
	var mode MaskMode
	switch s[0] {
	case '+':
		mode = Or
	case '&':
		mode = And
	default:
		return Or, Permissions{}, fmt.Errorf("access: mask %q must start with '+' or '&'", s)
	}
	body := s[1:]
	if body[3] != '-' {
		return Or, Permissions{}, fmt.Errorf("access: mask %q missing child/particle separator", s)
	}
	perms := NewPermissions()
	for i, m := range maskOrder {
		pos := i
		if i >= 3 {
			pos++ // skip the dash
		}
		ch := rune(body[pos])
		lower := ch | 0x20
		if lower != m.letter {
			return Or, Permissions{}, fmt.Errorf("access: mask %q has %q where %q belongs", s, string(ch), string(m.letter))
		}
		if ch >= 'A' && ch <= 'Z' {
			perms = perms.Set(m.perm)
		}
	}
	return mode, perms, nil
}
