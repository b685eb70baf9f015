// units.go: Loadable unit formats and the build-time entry catalog
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package godeploy

import (
	"fmt"
	"os"
	"path/filepath"
	"plugin"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Unit is an opened loadable unit.
type Unit interface {
	// Lookup resolves an entry identifier inside the unit. ok is false when
	// the unit does not provide id.
	Lookup(id string) (entry *EntryType, ok bool, err error)
}

// DescribedUnit is a Unit that carries its own descriptor. The loader uses
// it when the bundle holds no descriptor file, which is the case for a unit
// deployed as a raw file.
type DescribedUnit interface {
	Unit
	Descriptor() (Descriptor, bool)
}

// UnitOpener recognizes and opens one unit format.
type UnitOpener interface {
	Match(path string) bool
	Open(path string) (Unit, error)
}

// Catalog holds the entry types compiled into the host binary. A type in the
// catalog only becomes visible to a module whose bundle carries a unit that
// exports it.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]*EntryType
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{entries: make(map[string]*EntryType)}
}

// Register adds entry to the catalog.
func (c *Catalog) Register(entry EntryType) error {
	if entry.ID == "" {
		return NewCatalogError("", "entry requires an ID")
	}
	if entry.New == nil && entry.NewWithSettings == nil {
		return NewCatalogError(entry.ID, "entry has no constructor")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[entry.ID]; exists {
		return NewCatalogError(entry.ID, "entry already registered")
	}
	e := entry
	c.entries[entry.ID] = &e
	return nil
}

// MustRegister is Register that panics, for init-time registration.
func (c *Catalog) MustRegister(entry EntryType) {
	if err := c.Register(entry); err != nil {
		panic(err)
	}
}

func (c *Catalog) lookup(id string) (*EntryType, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	return e, ok
}

// IDs returns the sorted catalog identifiers.
func (c *Catalog) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// unitManifest is the content of a *.unit file. Plugin, when set, makes the
// unit self-describing.
type unitManifest struct {
	Name        string   `yaml:"name" json:"name"`
	Exports     []string `yaml:"exports" json:"exports"`
	Plugin      string   `yaml:"plugin" json:"plugin"`
	Version     string   `yaml:"version" json:"version"`
	Description string   `yaml:"description" json:"description"`
}

// CatalogOpener opens *.unit manifests and binds their exports to a Catalog.
type CatalogOpener struct {
	catalog *Catalog
}

// NewCatalogOpener creates an opener backed by catalog.
func NewCatalogOpener(catalog *Catalog) *CatalogOpener {
	return &CatalogOpener{catalog: catalog}
}

// Match implements UnitOpener
func (o *CatalogOpener) Match(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".unit")
}

// Open implements UnitOpener
func (o *CatalogOpener) Open(path string) (Unit, error) {
	// #nosec G304 -- path was found by scanning the bundle root
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	var manifest unitManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("invalid unit manifest: %w", err)
	}
	exports := make(map[string]struct{}, len(manifest.Exports))
	for _, id := range manifest.Exports {
		exports[strings.TrimSpace(id)] = struct{}{}
	}
	unit := &catalogUnit{catalog: o.catalog, exports: exports}
	if entry := strings.TrimSpace(manifest.Plugin); entry != "" {
		unit.descriptor = &Descriptor{
			Entry:       entry,
			Name:        manifest.Name,
			Version:     manifest.Version,
			Description: manifest.Description,
			Path:        path,
		}
	}
	return unit, nil
}

type catalogUnit struct {
	catalog    *Catalog
	exports    map[string]struct{}
	descriptor *Descriptor
}

func (u *catalogUnit) Descriptor() (Descriptor, bool) {
	if u.descriptor == nil {
		return Descriptor{}, false
	}
	return *u.descriptor, true
}

func (u *catalogUnit) Lookup(id string) (*EntryType, bool, error) {
	if _, ok := u.exports[id]; !ok {
		return nil, false, nil
	}
	entry, ok := u.catalog.lookup(id)
	if !ok {
		return nil, false, NewCatalogError(id, "unit exports a type the host does not register")
	}
	return entry, true, nil
}

// SharedObjectOpener opens Go plugins (*.so) with the standard plugin package.
//
// The symbol looked up for an identifier is its last dot separated segment,
// so "example.Demo" resolves symbol "Demo". Supported symbol types are
// *EntryType, func(Settings) (Plugin, error) and func() (Plugin, error). A
// Descriptor variable exported as PluginDescriptor describes the unit.
type SharedObjectOpener struct{}

// Match implements UnitOpener
func (SharedObjectOpener) Match(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".so")
}

// Open implements UnitOpener
func (SharedObjectOpener) Open(path string) (Unit, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, err
	}
	return &sharedObjectUnit{p: p, path: path}, nil
}

// descriptorSymbol is the variable a self-describing *.so exports.
const descriptorSymbol = "PluginDescriptor"

type sharedObjectUnit struct {
	p    *plugin.Plugin
	path string
}

func (u *sharedObjectUnit) Descriptor() (Descriptor, bool) {
	sym, err := u.p.Lookup(descriptorSymbol)
	if err != nil {
		return Descriptor{}, false
	}
	d, ok := sym.(*Descriptor)
	if !ok || strings.TrimSpace(d.Entry) == "" {
		return Descriptor{}, false
	}
	desc := *d
	desc.Entry = strings.TrimSpace(desc.Entry)
	desc.Path = u.path
	return desc, true
}

func (u *sharedObjectUnit) Lookup(id string) (*EntryType, bool, error) {
	symbolName := id
	if idx := strings.LastIndex(id, "."); idx >= 0 {
		symbolName = id[idx+1:]
	}
	sym, err := u.p.Lookup(symbolName)
	if err != nil {
		return nil, false, nil
	}
	return entryFromSymbol(id, sym)
}

func entryFromSymbol(id string, sym any) (*EntryType, bool, error) {
	switch v := sym.(type) {
	case *EntryType:
		e := *v
		e.ID = id
		return &e, true, nil
	case func(Settings) (Plugin, error):
		return &EntryType{ID: id, NewWithSettings: v}, true, nil
	case *func(Settings) (Plugin, error):
		return &EntryType{ID: id, NewWithSettings: *v}, true, nil
	case func() (Plugin, error):
		return &EntryType{ID: id, New: v}, true, nil
	case *func() (Plugin, error):
		return &EntryType{ID: id, New: *v}, true, nil
	default:
		return nil, false, fmt.Errorf("symbol for %q has unsupported type %T", id, sym)
	}
}
