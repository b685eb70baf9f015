// testing_helpers_test.go: Shared fixtures for deploy tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package godeploy

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const recorderEntry = "test.Recorder"

// recorder collects service start/stop events across modules in order.
type recorder struct {
	mu     sync.Mutex
	events []string

	// gates block a service start until the channel is closed. entered
	// receives the service id when a gated start begins.
	gates   map[string]chan struct{}
	entered chan string
}

func newRecorder() *recorder {
	return &recorder{gates: make(map[string]chan struct{}), entered: make(chan string, 16)}
}

func (r *recorder) record(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) gate(id string) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch := make(chan struct{})
	r.gates[id] = ch
	return ch
}

func (r *recorder) gateFor(id string) (chan struct{}, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.gates[id]
	return ch, ok
}

// indexOf returns the position of event, or -1.
func (r *recorder) indexOf(event string) int {
	for i, e := range r.Events() {
		if e == event {
			return i
		}
	}
	return -1
}

type recordingService struct {
	id       string
	rec      *recorder
	startErr error
	stopErr  error
	inited   bool
	settings Settings
	bundle   BundleInfo
}

func (s *recordingService) Init(settings Settings, bundle BundleInfo) error {
	s.inited = true
	s.settings = settings
	s.bundle = bundle
	s.rec.record("init:" + s.id)
	return nil
}

func (s *recordingService) Start(ctx context.Context) error {
	s.rec.record("start:" + s.id)
	if gate, ok := s.rec.gateFor(s.id); ok {
		s.rec.entered <- s.id
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return s.startErr
}

func (s *recordingService) Stop(context.Context) error {
	s.rec.record("stop:" + s.id)
	return s.stopErr
}

type recordingComponent struct {
	key     ServiceKey
	service *recordingService
}

func (c *recordingComponent) Configure(b *Binder) {
	b.BindInstance(c.key, c.service)
}

// recorderPlugin declares one service per entry of the "services" setting.
// The "label" setting tags service ids, "fail_start" names a service whose
// start fails and "fail_stop" one whose stop fails. Services listed in
// "host_services" are declared but left for the host to bind.
type recorderPlugin struct {
	settings Settings
	rec      *recorder
	hooks    []Hook
}

func (p *recorderPlugin) Name() string        { return "recorder" }
func (p *recorderPlugin) Description() string { return "records lifecycle events" }

func (p *recorderPlugin) keys() []ServiceKey {
	names := p.settings.Strings("services")
	if len(names) == 0 {
		names = []string{"main"}
	}
	keys := make([]ServiceKey, len(names))
	for i, n := range names {
		keys[i] = ServiceKey(n)
	}
	return keys
}

func (p *recorderPlugin) Components() []ComponentDescriptor {
	var out []ComponentDescriptor
	for _, key := range p.keys() {
		out = append(out, ComponentDescriptor{
			Capability: "service",
			New: func(settings Settings) (Component, error) {
				label := settings.String("label", "v1")
				svc := &recordingService{id: label + "/" + string(key), rec: p.rec}
				if settings.String("fail_start", "") == string(key) {
					svc.startErr = fmt.Errorf("%s refused to start", key)
				}
				if settings.String("fail_stop", "") == string(key) {
					svc.stopErr = fmt.Errorf("%s refused to stop", key)
				}
				return &recordingComponent{key: key, service: svc}, nil
			},
		})
	}
	return out
}

func (p *recorderPlugin) Services() []ServiceKey {
	keys := p.keys()
	for _, n := range p.settings.Strings("host_services") {
		keys = append(keys, ServiceKey(n))
	}
	return keys
}

func (p *recorderPlugin) Hooks() []Hook { return p.hooks }

// sharedService is a host service started by every module that declares it.
type sharedService struct {
	starts atomic.Int32
	stops  atomic.Int32
}

func (s *sharedService) Start(context.Context) error {
	s.starts.Add(1)
	return nil
}

func (s *sharedService) Stop(context.Context) error {
	s.stops.Add(1)
	return nil
}

// slowHost returns a host context binding key to svc through a provider
// that takes delay to build. builds counts provider calls.
func slowHost(t *testing.T, key ServiceKey, svc *sharedService, delay time.Duration, builds *atomic.Int32) *ExtensionContext {
	t.Helper()
	host, err := NewExtensionContext("host", func(b *Binder) {
		b.Bind(key, func(*ExtensionContext) (any, error) {
			builds.Add(1)
			time.Sleep(delay)
			return svc, nil
		})
	})
	if err != nil {
		t.Fatalf("NewExtensionContext: %v", err)
	}
	return host
}

func newRecorderCatalog(t *testing.T, rec *recorder) *Catalog {
	t.Helper()
	catalog := NewCatalog()
	catalog.MustRegister(EntryType{
		ID: recorderEntry,
		NewWithSettings: func(s Settings) (Plugin, error) {
			return &recorderPlugin{settings: s, rec: rec}, nil
		},
	})
	return catalog
}

// bundleFiles returns the files of a loadable recorder package under top.
// An empty top yields a flat package.
func bundleFiles(top string, config string) map[string]string {
	prefix := ""
	if top != "" {
		prefix = top + "/"
	}
	files := map[string]string{
		prefix + "plugin.yaml":   "plugin: " + recorderEntry + "\nversion: 1.0.0\n",
		prefix + "lib/main.unit": "name: main\nexports:\n  - " + recorderEntry + "\n",
	}
	if config != "" {
		files[prefix+"config.yaml"] = config
	}
	return files
}

// buildZip returns a zip archive holding files, written in sorted order.
func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(files[name])); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buildZip(t, files), 0o644); err != nil {
		t.Fatal(err)
	}
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

type testDeployer struct {
	*Deployer
	rec     *recorder
	logger  *TestLogger
	metrics *DefaultMetricsCollector
	root    string
}

func newTestDeployer(t *testing.T, configure func(*DeployerOptions)) *testDeployer {
	t.Helper()
	rec := newRecorder()
	logger := NewTestLogger()
	metrics := NewDefaultMetricsCollector()
	root := t.TempDir()

	cfg := DefaultConfig(root)
	cfg.NodeID = "node-1"
	opts := DeployerOptions{
		Config:  cfg,
		Logger:  logger,
		Catalog: newRecorderCatalog(t, rec),
		Metrics: metrics,
	}
	if configure != nil {
		configure(&opts)
	}
	d, err := NewDeployer(opts)
	if err != nil {
		t.Fatalf("NewDeployer: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = d.Close(ctx)
	})
	return &testDeployer{Deployer: d, rec: rec, logger: logger, metrics: metrics, root: root}
}

func zipRequest(t *testing.T, name string, files map[string]string) DeployRequest {
	return DeployRequest{
		Name:          name,
		SourceLocator: name + ".zip",
		Content:       buildZip(t, files),
	}
}

func waitFor(t *testing.T, ch <-chan string, timeout time.Duration) string {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(timeout):
		t.Fatal("timed out waiting")
		return ""
	}
}
