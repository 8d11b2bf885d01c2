// Package inventory reads the node inventory: which eno nodes exist, where
// their control servers listen and which SIM each one carries.
package inventory

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"enoctl/internal/model"
)

// DefaultPath is where the inventory lives unless configured otherwise.
const DefaultPath = "~/.enorc"

// ErrNotFound is returned when a node name is absent from the inventory.
var ErrNotFound = errors.New("node not found in inventory")

// Provider hands out node identities by name.
type Provider interface {
	Lookup(name string) (model.Node, error)
}

// Entry is one record of the inventory file.
type Entry struct {
	Name        string `yaml:"name"`
	IPAddress   string `yaml:"ip_address"`
	SIM         string `yaml:"sim"`
	PhoneNumber string `yaml:"phone_number,omitempty"`
}

// Inventory is a validated, immutable list of entries.
type Inventory struct {
	entries []Entry
	byName  map[string]int
}

// New validates entries and builds an Inventory.
func New(entries ...Entry) (*Inventory, error) {
	inv := &Inventory{
		entries: make([]Entry, 0, len(entries)),
		byName:  make(map[string]int, len(entries)),
	}
	for i, e := range entries {
		if err := validateEntry(e); err != nil {
			return nil, fmt.Errorf("inventory entry %d: %w", i, err)
		}
		if _, dup := inv.byName[e.Name]; dup {
			return nil, fmt.Errorf("inventory entry %d: duplicate name %q", i, e.Name)
		}
		inv.byName[e.Name] = len(inv.entries)
		inv.entries = append(inv.entries, e)
	}
	return inv, nil
}

func validateEntry(e Entry) error {
	if e.Name == "" {
		return fmt.Errorf("name is required")
	}
	if e.IPAddress == "" {
		return fmt.Errorf("%s: ip_address is required", e.Name)
	}
	if e.SIM == "" {
		return fmt.Errorf("%s: sim is required", e.Name)
	}
	return nil
}

// Parse decodes a YAML sequence of entries.
func Parse(data []byte) (*Inventory, error) {
	var entries []Entry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return New(entries...)
}

// Load reads the inventory file at path. A leading ~ is expanded.
func Load(path string) (*Inventory, error) {
	resolved, err := ExpandPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, err
	}
	inv, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", resolved, err)
	}
	return inv, nil
}

// Save writes the inventory as YAML.
func Save(path string, inv *Inventory) error {
	resolved, err := ExpandPath(path)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(inv.Entries())
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return err
	}
	return os.WriteFile(resolved, data, 0o600)
}

// ExpandPath replaces a leading ~ with the user's home directory.
func ExpandPath(path string) (string, error) {
	if path == "" {
		path = DefaultPath
	}
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// Lookup returns the node called name.
func (inv *Inventory) Lookup(name string) (model.Node, error) {
	i, ok := inv.byName[name]
	if !ok {
		return model.Node{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	e := inv.entries[i]
	return model.Node{
		Name:        e.Name,
		Address:     e.IPAddress,
		SIM:         e.SIM,
		PhoneNumber: e.PhoneNumber,
	}, nil
}

// Entries returns a copy of the entries in file order.
func (inv *Inventory) Entries() []Entry {
	return append([]Entry(nil), inv.entries...)
}

// Names returns node names in file order.
func (inv *Inventory) Names() []string {
	names := make([]string, 0, len(inv.entries))
	for _, e := range inv.entries {
		names = append(names, e.Name)
	}
	return names
}
