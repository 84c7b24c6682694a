// SPDX-FileCopyrightText: 2024 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"encoding/json"
	"fmt"

	"github.com/aibor/hnxboot/internal/sys"
	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Default values applied to fields the configuration leaves empty.
const (
	DefaultMachine = "virt"
	DefaultMemory  = "512M"
	DefaultBoard   = "qemu-virt"
)

// DefaultCPU returns the CPU model used if none is configured.
func DefaultCPU(arch sys.Arch) string {
	switch arch {
	case sys.X86_64:
		return "qemu64"
	case sys.RISCV64:
		return "rv64"
	default:
		return "cortex-a72"
	}
}

// Resolved is the fully merged emulator configuration for one architecture
// and board. It is not modified after [Resolver.Resolve] returned it.
type Resolved struct {
	Machine     Machine  `json:"machine"                yaml:"machine"`
	CPU         string   `json:"cpu"                    yaml:"cpu"`
	Memory      string   `json:"memory"                 yaml:"memory"`
	Devices     []string `json:"devices"                yaml:"devices"`
	KernelArgs  string   `json:"kernel_args"            yaml:"kernel_args"`
	Description string   `json:"description"            yaml:"description"`
	DTB         string   `json:"dtb,omitempty"          yaml:"dtb,omitempty"`
	DTBFilename string   `json:"dtb_filename,omitempty" yaml:"dtb_filename,omitempty"`
}

// ApplyDefaults fills empty fields with the defaults for the given
// architecture.
func (r *Resolved) ApplyDefaults(arch sys.Arch) {
	if r.Machine.Name == "" {
		r.Machine.Name = DefaultMachine
	}

	if r.CPU == "" {
		r.CPU = DefaultCPU(arch)
	}

	if r.Memory == "" {
		r.Memory = DefaultMemory
	}

	if r.Devices == nil {
		r.Devices = []string{}
	}
}

// Validate checks the values that are passed to the emulator.
func (r *Resolved) Validate() error {
	_, err := humanize.ParseBytes(r.Memory)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidMemory, r.Memory)
	}

	return nil
}

// Machine is the emulated machine type.
//
// In configuration files it is either a plain name or a mapping with a "name"
// field.
type Machine struct {
	Name string
}

// String implements [fmt.Stringer].
func (m Machine) String() string {
	return m.Name
}

// MarshalJSON implements [json.Marshaler]. The machine is always written in
// its plain name form.
func (m Machine) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Name) //nolint:wrapcheck
}

// UnmarshalJSON implements [json.Unmarshaler].
func (m *Machine) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		m.Name = name
		return nil
	}

	var structured struct {
		Name string `json:"name"`
	}

	if err := json.Unmarshal(data, &structured); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidMachine, data)
	}

	m.Name = structured.Name

	return nil
}

// MarshalYAML implements [yaml.Marshaler].
func (m Machine) MarshalYAML() (any, error) {
	return m.Name, nil
}

// UnmarshalYAML implements [yaml.Unmarshaler].
func (m *Machine) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		return node.Decode(&m.Name) //nolint:wrapcheck
	case yaml.MappingNode:
		var structured struct {
			Name string `yaml:"name"`
		}

		if err := node.Decode(&structured); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidMachine, err)
		}

		m.Name = structured.Name

		return nil
	default:
		return fmt.Errorf("%w: line %d", ErrInvalidMachine, node.Line)
	}
}
