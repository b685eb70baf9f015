// loader_test.go: module loading, unit and descriptor tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package godeploy

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLoader(t *testing.T, base *LoadingContext) (*ModuleLoader, *TestLogger) {
	t.Helper()
	logger := NewTestLogger()
	catalog := newRecorderCatalog(t, newRecorder())
	return NewModuleLoader(base, DefaultScanConfig(), logger, NewCatalogOpener(catalog)), logger
}

func TestModuleLoader_ResolvesEntryFromUnit(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, bundleFiles("", "label: v2\n"))

	loader, _ := newTestLoader(t, nil)
	result, err := loader.Load(context.Background(), "demo", root)
	require.NoError(t, err)

	assert.Equal(t, "demo", result.Name)
	assert.Equal(t, recorderEntry, result.Descriptor.Entry)
	assert.Equal(t, "1.0.0", result.Descriptor.Version)
	assert.Equal(t, recorderEntry, result.Entry.ID)
	assert.Equal(t, filepath.Join(root, "config.yaml"), result.ConfigPath)
	assert.Equal(t, []string{filepath.Join(root, "lib", "main.unit")}, result.Bundle.Units)
	assert.Equal(t, filepath.Join(root, "lib", "main.unit"), result.Context.UnitOf(recorderEntry))
	assert.Same(t, loader.BaseContext(), result.Context.Parent())
}

func TestModuleLoader_GenerationsAreMonotonic(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, bundleFiles("", ""))

	loader, _ := newTestLoader(t, nil)
	first, err := loader.Load(context.Background(), "demo", root)
	require.NoError(t, err)
	second, err := loader.Load(context.Background(), "demo", root)
	require.NoError(t, err)

	assert.Greater(t, second.Generation, first.Generation)
	assert.NotEqual(t, first.Context.ID(), second.Context.ID())
}

func TestModuleLoader_DescriptorMissing(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"lib/main.unit": "exports: [" + recorderEntry + "]"})

	loader, _ := newTestLoader(t, nil)
	_, err := loader.Load(context.Background(), "demo", root)
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeDescriptorMissing))
	assert.Equal(t, KindLoad, KindOf(err))
}

func TestModuleLoader_MultipleDescriptorsRejected(t *testing.T) {
	root := t.TempDir()
	files := bundleFiles("", "")
	files["nested/plugin.json"] = `{"plugin": "other.Type"}`
	writeTree(t, root, files)

	loader, _ := newTestLoader(t, nil)
	_, err := loader.Load(context.Background(), "demo", root)
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeDescriptorInvalid))
}

func TestModuleLoader_ExclusionsApplyBelowRootOnly(t *testing.T) {
	root := filepath.Join(t.TempDir(), ".github-runner", "__MACOSX-cache", "bundle")
	files := bundleFiles("", "")
	files[".git/plugin.json"] = `{"plugin": "other.Type"}`
	files["__MACOSX/lib/plugin.yaml"] = "plugin: other.Type"
	writeTree(t, root, files)

	loader, _ := newTestLoader(t, nil)
	result, err := loader.Load(context.Background(), "demo", root)
	require.NoError(t, err)
	assert.Equal(t, recorderEntry, result.Descriptor.Entry)
	assert.Equal(t, filepath.Join(root, "plugin.yaml"), result.Descriptor.Path)
}

func TestModuleLoader_CancelledScan(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, bundleFiles("nested", ""))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	loader, _ := newTestLoader(t, nil)
	_, err := loader.Load(ctx, "demo", root)
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeLoadCancelled))
	assert.Equal(t, KindLoad, KindOf(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestModuleLoader_SelfDescribingUnit(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"main.unit": "name: main\nplugin: " + recorderEntry + "\nversion: 2.1.0\nexports: [" + recorderEntry + "]\n",
	})

	loader, _ := newTestLoader(t, nil)
	result, err := loader.Load(context.Background(), "demo", root)
	require.NoError(t, err)
	assert.Equal(t, recorderEntry, result.Descriptor.Entry)
	assert.Equal(t, "2.1.0", result.Descriptor.Version)
	assert.Equal(t, filepath.Join(root, "main.unit"), result.Descriptor.Path)
	assert.Equal(t, recorderEntry, result.Entry.ID)
}

func TestModuleLoader_DescriptorFileWinsOverUnit(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"plugin.yaml": "plugin: " + recorderEntry,
		"main.unit":   "plugin: other.Type\nexports: [" + recorderEntry + "]\n",
	})

	loader, _ := newTestLoader(t, nil)
	result, err := loader.Load(context.Background(), "demo", root)
	require.NoError(t, err)
	assert.Equal(t, recorderEntry, result.Descriptor.Entry)
	assert.Equal(t, filepath.Join(root, "plugin.yaml"), result.Descriptor.Path)
}

func TestModuleLoader_SeveralSelfDescribingUnitsRejected(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.unit": "plugin: " + recorderEntry + "\nexports: [" + recorderEntry + "]\n",
		"b.unit": "plugin: " + recorderEntry + "\nexports: [" + recorderEntry + "]\n",
	})

	loader, _ := newTestLoader(t, nil)
	_, err := loader.Load(context.Background(), "demo", root)
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeDescriptorInvalid))
}

func TestModuleLoader_EntryNotExported(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"plugin.yaml":   "plugin: " + recorderEntry,
		"lib/main.unit": "exports: [something.Else]",
	})

	loader, logger := newTestLoader(t, nil)
	_, err := loader.Load(context.Background(), "demo", root)
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeEntryNotResolvable))
	assert.False(t, logger.HasMessage("WARN", "Unit lookup failed"))
}

func TestModuleLoader_ExportMissingFromHostIsSkipped(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"plugin.yaml":   "plugin: ghost.Type",
		"lib/main.unit": "exports: [ghost.Type]",
	})

	loader, logger := newTestLoader(t, nil)
	_, err := loader.Load(context.Background(), "demo", root)
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeEntryNotResolvable))
	assert.True(t, logger.HasMessage("WARN", "Unit lookup failed"))
}

func TestModuleLoader_BaseTypesDoNotSatisfyEntry(t *testing.T) {
	// A host type in the base context is visible through Resolve but a
	// bundle must still ship a unit exporting its own entry.
	base := NewBaseContext()
	base.Provide(&EntryType{ID: recorderEntry, New: func() (Plugin, error) { return nil, nil }})

	root := t.TempDir()
	writeTree(t, root, map[string]string{"plugin.yaml": "plugin: " + recorderEntry})

	loader, _ := newTestLoader(t, base)
	_, err := loader.Load(context.Background(), "demo", root)
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeEntryNotResolvable))
}

func TestLoadingContext_Isolation(t *testing.T) {
	base := NewBaseContext()
	shared := &EntryType{ID: "host.Shared", New: func() (Plugin, error) { return nil, nil }}
	base.Provide(shared)

	a := base.NewChild("a#1")
	b := base.NewChild("b#2")
	onlyA := &EntryType{ID: "a.Type", New: func() (Plugin, error) { return nil, nil }}
	require.True(t, a.register(onlyA, "a.unit"))

	got, ok := a.Resolve("a.Type")
	require.True(t, ok)
	assert.Same(t, onlyA, got)

	_, ok = b.Resolve("a.Type")
	assert.False(t, ok, "sibling context must not see a's types")

	for _, lc := range []*LoadingContext{a, b} {
		got, ok := lc.Resolve("host.Shared")
		assert.True(t, ok)
		assert.Same(t, shared, got)
		_, local := lc.ResolveLocal("host.Shared")
		assert.False(t, local)
	}
}

func TestLoadingContext_FirstRegistrationWins(t *testing.T) {
	lc := NewBaseContext().NewChild("m#1")
	first := &EntryType{ID: "x"}
	second := &EntryType{ID: "x"}

	assert.True(t, lc.register(first, "one.unit"))
	assert.False(t, lc.register(second, "two.unit"))

	got, _ := lc.ResolveLocal("x")
	assert.Same(t, first, got)
	assert.Equal(t, "one.unit", lc.UnitOf("x"))
	assert.Equal(t, []string{"x"}, lc.Symbols())
}

func TestCatalog_Register(t *testing.T) {
	c := NewCatalog()
	noop := func() (Plugin, error) { return nil, nil }

	require.NoError(t, c.Register(EntryType{ID: "a", New: noop}))
	for name, err := range map[string]error{
		"duplicate id":        c.Register(EntryType{ID: "a", New: noop}),
		"missing id":          c.Register(EntryType{ID: "", New: noop}),
		"missing constructor": c.Register(EntryType{ID: "b"}),
	} {
		if !HasCode(err, ErrCodeCatalogEntry) {
			t.Errorf("%s: expected %s, got %v", name, ErrCodeCatalogEntry, err)
		}
		if KindOf(err) != KindLoad {
			t.Errorf("%s: expected kind %s, got %s", name, KindLoad, KindOf(err))
		}
	}
	assert.Equal(t, []string{"a"}, c.IDs())
	assert.Panics(t, func() { c.MustRegister(EntryType{ID: "a", New: noop}) })
}

func TestEntryFromSymbol(t *testing.T) {
	plain := func() (Plugin, error) { return &recorderPlugin{}, nil }
	withSettings := func(Settings) (Plugin, error) { return &recorderPlugin{}, nil }
	entry := &EntryType{ID: "ignored", New: plain}

	tests := []struct {
		name         string
		sym          any
		wantOK       bool
		wantSettings bool
	}{
		{"EntryTypePointer", entry, true, false},
		{"PlainConstructor", plain, true, false},
		{"PlainConstructorPointer", &plain, true, false},
		{"SettingsConstructor", withSettings, true, true},
		{"SettingsConstructorPointer", &withSettings, true, true},
		{"UnsupportedSymbol", 42, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := entryFromSymbol("pkg.Type", tt.sym)
			if !tt.wantOK {
				assert.False(t, ok)
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "pkg.Type", got.ID)
			assert.Equal(t, tt.wantSettings, got.NewWithSettings != nil)
		})
	}
}

func TestParseDescriptorFile(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		file    string
		content string
		entry   string
		wantErr bool
	}{
		{"YAML", "plugin.yaml", "plugin: a.B\nname: demo\n", "a.B", false},
		{"JSON", "plugin.json", `{"plugin": "a.C", "version": "2"}`, "a.C", false},
		{"TOML", "plugin.toml", "plugin = \"a.D\"\n", "a.D", false},
		{"NoEntry", "empty.yaml", "name: demo\n", "", true},
		{"Garbage", "bad.json", "{not json", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := filepath.Join(dir, tt.name)
			writeTree(t, sub, map[string]string{tt.file: tt.content})

			desc, err := ParseDescriptorFile(filepath.Join(sub, tt.file))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, HasCode(err, ErrCodeDescriptorInvalid))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.entry, desc.Entry)
		})
	}
}
