// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu

import (
	"fmt"
	"slices"
	"strings"
)

// Argument is a QEMU argument with or without value.
//
// Arguments created by [UniqueArg] may appear only once in [Arguments].
// Arguments created by [RepeatableArg] may appear multiple times with
// different values, like "-device".
type Argument struct {
	name       string
	value      string
	repeatable bool
}

// UniqueArg returns an [Argument] that may be used only once. Multiple values
// are joined by comma.
func UniqueArg(name string, value ...string) Argument {
	return Argument{
		name:  name,
		value: strings.Join(value, ","),
	}
}

// RepeatableArg returns an [Argument] that may be used multiple times as long
// as the values differ. Multiple values are joined by comma.
func RepeatableArg(name string, value ...string) Argument {
	return Argument{
		name:       name,
		value:      strings.Join(value, ","),
		repeatable: true,
	}
}

// String implements [fmt.Stringer].
func (a Argument) String() string {
	if a.value == "" {
		return "-" + a.name
	}

	return "-" + a.name + " " + a.value
}

// Name returns the name without leading dash.
func (a Argument) Name() string {
	return a.name
}

// Value returns the value. It is empty for flags.
func (a Argument) Value() string {
	return a.value
}

// collidesWith reports if both arguments must not be present together.
func (a Argument) collidesWith(other Argument) bool {
	if a.name != other.name {
		return false
	}

	return !a.repeatable || a.value == other.value
}

// Arguments is an ordered list of [Argument]s.
type Arguments []Argument

// Add appends the given arguments.
func (a *Arguments) Add(args ...Argument) {
	*a = append(*a, args...)
}

// Lookup returns the values of all arguments with the given name in order.
func (a Arguments) Lookup(name string) []string {
	var values []string

	for _, arg := range a {
		if arg.name == name {
			values = append(values, arg.value)
		}
	}

	return values
}

// Build compiles the arguments into a slice of strings that can be used
// with [exec.Command].
//
// It returns [ErrArgumentCollision] if the same unique argument is present
// twice or a repeatable argument is present twice with the same value.
func (a Arguments) Build() ([]string, error) {
	argStrings := make([]string, 0, 2*len(a))

	for idx, arg := range a {
		if i := slices.IndexFunc(a[:idx], arg.collidesWith); i != -1 {
			return nil, fmt.Errorf("%w: %s, %s", ErrArgumentCollision, a[i], arg)
		}

		argStrings = append(argStrings, "-"+arg.name)

		if arg.value != "" {
			argStrings = append(argStrings, arg.value)
		}
	}

	return argStrings, nil
}
