/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package roster keeps the list of people sharing a bill.
//
// A Roster is an immutable value. Every edit returns a new Roster, so a
// reducer can hold one without aliasing the previous state.
package roster

import (
	"errors"
	"slices"
	"strings"
)

var (
	ErrEmptyName     = errors.New("name must not be empty")
	ErrDuplicateName = errors.New("name is already in the list")
)

type Roster struct {
	names []string
}

// New builds a roster from names, failing on the first empty or repeated entry.
func New(names ...string) (Roster, error) {
	var (
		r   Roster
		err error
	)

	for _, name := range names {
		r, err = r.Add(name)
		if err != nil {
			return Roster{}, err
		}
	}

	return r, nil
}

// Add appends the trimmed name.
func (r Roster) Add(name string) (Roster, error) {
	name = strings.TrimSpace(name)

	switch {
	case name == "":
		return r, ErrEmptyName
	case r.Contains(name):
		return r, ErrDuplicateName
	}

	names := make([]string, len(r.names), len(r.names)+1)
	copy(names, r.names)

	return Roster{names: append(names, name)}, nil
}

// Remove drops name if present.
func (r Roster) Remove(name string) Roster {
	name = strings.TrimSpace(name)

	idx := slices.Index(r.names, name)
	if idx < 0 {
		return r
	}

	return Roster{names: slices.Concat(r.names[:idx], r.names[idx+1:])}
}

func (r Roster) Contains(name string) bool {
	return slices.Contains(r.names, strings.TrimSpace(name))
}

func (r Roster) Len() int {
	return len(r.names)
}

// Names returns a copy in insertion order.
func (r Roster) Names() []string {
	return slices.Clone(r.names)
}
