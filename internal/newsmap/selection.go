package newsmap

import (
	"errors"
	"fmt"
)

// ErrUnknownOption is returned when toggling a name outside the fixed option set.
var ErrUnknownOption = errors.New("unknown option")

// Selection is a checkbox group: a set of named booleans in which several may be checked.
//
// Names enumerate in the order they were first toggled unless the group was
// created seeded, in which case every option is present from the start in
// declaration order.
type Selection struct {
	allowed map[string]struct{}
	checked map[string]bool
	order   []string
}

// NewSelection creates a group over options. With seeded set, all options start
// present and unchecked; otherwise the group starts empty.
func NewSelection(options []string, seeded bool) *Selection {
	s := &Selection{
		allowed: make(map[string]struct{}, len(options)),
		checked: make(map[string]bool, len(options)),
	}
	for _, o := range options {
		s.allowed[o] = struct{}{}
		if seeded {
			s.checked[o] = false
			s.order = append(s.order, o)
		}
	}
	return s
}

// Set records the checked state of name, leaving every other option untouched.
func (s *Selection) Set(name string, checked bool) error {
	if _, ok := s.allowed[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownOption, name)
	}
	if _, seen := s.checked[name]; !seen {
		s.order = append(s.order, name)
	}
	s.checked[name] = checked
	return nil
}

// Checked reports whether name is checked.
func (s *Selection) Checked(name string) bool {
	return s.checked[name]
}

// First returns the first checked name in enumeration order.
func (s *Selection) First() (string, bool) {
	for _, name := range s.order {
		if s.checked[name] {
			return name, true
		}
	}
	return "", false
}

// CheckedNames lists every checked name in enumeration order.
func (s *Selection) CheckedNames() []string {
	var out []string
	for _, name := range s.order {
		if s.checked[name] {
			out = append(out, name)
		}
	}
	return out
}
