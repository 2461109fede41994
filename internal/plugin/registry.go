package plugin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/ipsix/geopolis/internal/logging"
)

var ErrPluginNotFound = errors.New("plugin not found")

type entry struct {
	plugin Plugin
	desc   Descriptor
}

type snapshot struct {
	order   []string
	entries map[string]entry
}

func newSnapshot() snapshot {
	return snapshot{entries: map[string]entry{}}
}

func (s *snapshot) add(p Plugin, desc Descriptor) error {
	if _, exists := s.entries[desc.ID]; exists {
		return fmt.Errorf("plugin %q already registered", desc.ID)
	}
	s.entries[desc.ID] = entry{plugin: p, desc: desc}
	s.order = append(s.order, desc.ID)
	return nil
}

// Skip records a plugin directory or kind that could not be loaded.
type Skip struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

type DiscoveryReport struct {
	Loaded  []Descriptor `json:"loaded"`
	Skipped []Skip       `json:"skipped"`
}

// Err aggregates every skip into one error, or returns nil when nothing was skipped.
func (r DiscoveryReport) Err() error {
	var result *multierror.Error
	for _, s := range r.Skipped {
		result = multierror.Append(result, fmt.Errorf("%s: %s", s.Path, s.Reason))
	}
	return result.ErrorOrNil()
}

type Registry struct {
	settings *Settings
	logger   *logging.Logger

	mu        sync.RWMutex
	factories map[string]Factory
	kinds     []string
	current   snapshot
}

func NewRegistry(settings *Settings, logger *logging.Logger) *Registry {
	return &Registry{
		settings:  settings,
		logger:    logger,
		factories: map[string]Factory{},
		current:   newSnapshot(),
	}
}

func (r *Registry) RegisterFactory(kind string, factory Factory) error {
	if kind == "" {
		return fmt.Errorf("plugin kind is required")
	}
	if factory == nil {
		return fmt.Errorf("factory for %q is nil", kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[kind]; exists {
		return fmt.Errorf("plugin kind %q already registered", kind)
	}
	r.factories[kind] = factory
	r.kinds = append(r.kinds, kind)
	return nil
}

func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string{}, r.kinds...)
}

// Register adds an already constructed plugin to the live set.
func (r *Registry) Register(p Plugin) error {
	if p == nil {
		return fmt.Errorf("plugin is nil")
	}
	desc := normalizeDescriptor(p.Describe(), "")
	if desc.ID == "" {
		return fmt.Errorf("plugin id is required")
	}
	if desc.Path == "" {
		desc.Path = "builtin:" + desc.ID
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current.add(p, desc)
}

// RegisterBuiltins replaces the live set with one instance of every known kind.
func (r *Registry) RegisterBuiltins() DiscoveryReport {
	report := DiscoveryReport{Loaded: []Descriptor{}, Skipped: []Skip{}}
	next := newSnapshot()
	for _, kind := range r.Kinds() {
		path := "builtin:" + kind
		p, err := r.construct(kind, nil)
		if err != nil {
			r.skip(&report, path, err)
			continue
		}
		desc := normalizeDescriptor(p.Describe(), path)
		if err := next.add(p, desc); err != nil {
			r.skip(&report, path, err)
			continue
		}
		report.Loaded = append(report.Loaded, desc)
	}
	r.swap(next)
	r.logger.Info("builtin plugins registered", logging.Field{Key: "count", Value: len(report.Loaded)})
	return report
}

// Discover scans root for plugin directories and replaces the live set.
// Directories that fail to load are skipped; only an unreadable root is an error,
// in which case the previous set stays in place.
func (r *Registry) Discover(ctx context.Context, root string) (DiscoveryReport, error) {
	report := DiscoveryReport{Loaded: []Descriptor{}, Skipped: []Skip{}}
	entries, err := os.ReadDir(root)
	if err != nil {
		return report, fmt.Errorf("read plugin dir: %w", err)
	}

	next := newSnapshot()
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if !e.IsDir() || e.Name()[0] == '.' || e.Name()[0] == '_' {
			continue
		}
		dir := filepath.Join(root, e.Name())
		manifest, err := LoadManifest(dir)
		if err != nil {
			r.skip(&report, dir, err)
			continue
		}
		if !manifest.IsEnabled() {
			r.skip(&report, dir, errors.New("disabled in manifest"))
			continue
		}
		p, err := r.construct(manifest.Kind, manifest.Options)
		if err != nil {
			r.skip(&report, dir, err)
			continue
		}
		desc := p.Describe()
		desc.ID = manifest.ID
		if manifest.Name != "" {
			desc.Name = manifest.Name
		}
		if manifest.Version != "" {
			desc.Version = manifest.Version
		}
		desc = normalizeDescriptor(desc, dir)
		if err := next.add(p, desc); err != nil {
			r.skip(&report, dir, err)
			continue
		}
		report.Loaded = append(report.Loaded, desc)
		r.logger.Info("plugin loaded",
			logging.Field{Key: "plugin", Value: desc.ID},
			logging.Field{Key: "kind", Value: manifest.Kind},
			logging.Field{Key: "path", Value: dir},
		)
	}

	r.swap(next)
	r.logger.Info("plugin discovery complete",
		logging.Field{Key: "root", Value: root},
		logging.Field{Key: "loaded", Value: len(report.Loaded)},
		logging.Field{Key: "skipped", Value: len(report.Skipped)},
	)
	return report, nil
}

func (r *Registry) Get(id string) (Plugin, Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.current.entries[id]
	if !ok {
		return nil, Descriptor{}, fmt.Errorf("%w: %q", ErrPluginNotFound, id)
	}
	return e.plugin, e.desc, nil
}

func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.current.order))
	for _, id := range r.current.order {
		out = append(out, r.current.entries[id].desc)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.current.order)
}

func (r *Registry) construct(kind string, options map[string]interface{}) (p Plugin, err error) {
	r.mu.RLock()
	factory, ok := r.factories[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown plugin kind %q", kind)
	}
	if options == nil {
		options = map[string]interface{}{}
	}
	defer func() {
		if rec := recover(); rec != nil {
			p, err = nil, fmt.Errorf("constructor panic: %v", rec)
		}
	}()
	p, err = factory(r.settings, options)
	if err != nil {
		return nil, fmt.Errorf("construct %q: %w", kind, err)
	}
	if p == nil {
		return nil, fmt.Errorf("construct %q: factory returned nil", kind)
	}
	return p, nil
}

func (r *Registry) swap(next snapshot) {
	r.mu.Lock()
	r.current = next
	r.mu.Unlock()
}

func (r *Registry) skip(report *DiscoveryReport, path string, err error) {
	report.Skipped = append(report.Skipped, Skip{Path: path, Reason: err.Error()})
	r.logger.Warn("plugin skipped",
		logging.Field{Key: "path", Value: path},
		logging.Field{Key: "error", Value: err.Error()},
	)
}

func normalizeDescriptor(desc Descriptor, path string) Descriptor {
	if path != "" {
		desc.Path = path
	}
	if desc.Name == "" {
		desc.Name = desc.ID
	}
	if desc.Capabilities == nil {
		desc.Capabilities = []string{}
	}
	if desc.RequiredKeys == nil {
		desc.RequiredKeys = []string{}
	}
	desc.Capabilities = append([]string{}, desc.Capabilities...)
	desc.RequiredKeys = append([]string{}, desc.RequiredKeys...)
	return desc
}
