package models

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Stimulus is a single image shown to the respondent, identified by its path.
type Stimulus struct {
	Path     string            `yaml:"path" json:"path"`
	Name     string            `yaml:"name" json:"name"`
	Metadata map[string]string `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// Manifest mirrors the stimuli.yaml structure.
type Manifest struct {
	BaseDir string     `yaml:"base_dir"`
	Stimuli []Stimulus `yaml:"stimuli"`
}

// LoadManifest reads and parses a stimulus manifest. Relative stimulus paths
// are resolved against base_dir, or the manifest's own directory when unset.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read stimulus manifest: %w", err)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stimulus manifest YAML: %w", err)
	}

	base := manifest.BaseDir
	if base == "" {
		base = filepath.Dir(path)
	}
	for i := range manifest.Stimuli {
		s := &manifest.Stimuli[i]
		if s.Path == "" {
			return nil, fmt.Errorf("stimulus %d in manifest has no path", i)
		}
		if !filepath.IsAbs(s.Path) {
			s.Path = filepath.Join(base, s.Path)
		}
		if s.Name == "" {
			s.Name = filepath.Base(s.Path)
		}
	}

	return &manifest, nil
}
