package stimulus

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"pictopercept/internal/models"
)

// Provider enumerates the stimuli available for a session.
type Provider interface {
	ListImages(ctx context.Context) ([]models.Stimulus, error)
}

// NeutralSuffix selects the neutral-expression images of the face dataset.
const NeutralSuffix = "-N.jpg"

// DirProvider walks a directory tree for image files ending in Suffix.
type DirProvider struct {
	Root   string
	Suffix string
}

func NewDirProvider(root, suffix string) *DirProvider {
	if suffix == "" {
		suffix = NeutralSuffix
	}
	return &DirProvider{Root: root, Suffix: suffix}
}

// ListImages returns matching files in lexical walk order. A missing root is
// reported as an error; an empty result is not.
func (p *DirProvider) ListImages(ctx context.Context) ([]models.Stimulus, error) {
	var stimuli []models.Stimulus
	err := filepath.WalkDir(p.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), p.Suffix) {
			return nil
		}
		stimuli = append(stimuli, models.Stimulus{
			Path:     path,
			Name:     d.Name(),
			Metadata: ParseName(d.Name()),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk stimulus directory %s: %w", p.Root, err)
	}
	return stimuli, nil
}

// ParseName extracts metadata from dataset file names of the form
// CFD-<group>-<model>-<shot>-<expression>.jpg. Names that do not follow the
// pattern yield nil.
func ParseName(name string) map[string]string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	parts := strings.Split(base, "-")
	if len(parts) != 5 || parts[0] != "CFD" || len(parts[1]) != 2 {
		return nil
	}
	return map[string]string{
		"dataset":    parts[0],
		"group":      parts[1],
		"ethnicity":  parts[1][:1],
		"gender":     parts[1][1:],
		"model":      parts[2],
		"shot":       parts[3],
		"expression": parts[4],
	}
}

// ManifestProvider reads stimuli from a YAML manifest.
type ManifestProvider struct {
	Path string
}

func NewManifestProvider(path string) *ManifestProvider {
	return &ManifestProvider{Path: path}
}

func (p *ManifestProvider) ListImages(ctx context.Context) ([]models.Stimulus, error) {
	manifest, err := models.LoadManifest(p.Path)
	if err != nil {
		return nil, err
	}
	return manifest.Stimuli, nil
}
