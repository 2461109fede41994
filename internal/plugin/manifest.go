package plugin

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/gosimple/slug"
	"gopkg.in/yaml.v3"
)

var ErrNoManifest = errors.New("no plugin manifest")

var manifestNames = []string{"plugin.yaml", "plugin.yml", "plugin.json"}

// Manifest binds a plugin directory to a compiled-in factory.
type Manifest struct {
	ID      string                 `json:"id" yaml:"id"`
	Kind    string                 `json:"kind" yaml:"kind"`
	Name    string                 `json:"name" yaml:"name"`
	Version string                 `json:"version" yaml:"version"`
	Enabled *bool                  `json:"enabled" yaml:"enabled"`
	Options map[string]interface{} `json:"options" yaml:"options"`
}

func (m Manifest) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// LoadManifest reads the first manifest file found in dir and fills defaults
// derived from the directory name.
func LoadManifest(dir string) (Manifest, error) {
	var (
		raw  []byte
		path string
	)
	for _, name := range manifestNames {
		candidate := filepath.Join(dir, name)
		data, err := os.ReadFile(candidate)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return Manifest{}, fmt.Errorf("read manifest: %w", err)
		}
		raw, path = data, candidate
		break
	}
	if path == "" {
		return Manifest{}, ErrNoManifest
	}

	var m Manifest
	if strings.HasSuffix(path, ".json") {
		if err := json.Unmarshal(raw, &m); err != nil {
			return Manifest{}, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
		}
	} else {
		if err := yaml.Unmarshal(raw, &m); err != nil {
			return Manifest{}, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
		}
	}

	if m.ID == "" {
		m.ID = IDFromName(filepath.Base(dir))
	} else {
		m.ID = IDFromName(m.ID)
	}
	if m.ID == "" {
		return Manifest{}, fmt.Errorf("manifest in %s has no usable id", dir)
	}
	if m.Kind == "" {
		m.Kind = m.ID
	}
	if m.Version != "" {
		if _, err := semver.NewVersion(m.Version); err != nil {
			return Manifest{}, fmt.Errorf("manifest version %q: %w", m.Version, err)
		}
	}
	if m.Options == nil {
		m.Options = map[string]interface{}{}
	}
	return m, nil
}

// IDFromName turns a directory or display name into a plugin id
// ("nasa_space_activity" -> "nasa-space-activity").
func IDFromName(name string) string {
	return slug.Make(strings.ReplaceAll(name, "_", "-"))
}
