package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ProjectManifestName is the per-repository manifest file.
const ProjectManifestName = "relay.yaml"

// Project is the per-repository manifest. It names the project and may
// override pipeline and sandbox settings for this repository only.
type Project struct {
	// Name identifies the project in task records.
	Name string `yaml:"name"`
	// BaseBranch is the branch change requests target.
	BaseBranch string `yaml:"base_branch,omitempty"`
	// Pipeline overrides the default role order.
	Pipeline []string `yaml:"pipeline,omitempty"`
	// SandboxImage overrides the sandbox image.
	SandboxImage string `yaml:"sandbox_image,omitempty"`
}

// LoadProject reads the project manifest from the repository root.
// A missing manifest is not an error; the caller gets nil.
func LoadProject(root string) (*Project, error) {
	data, err := os.ReadFile(filepath.Join(root, ProjectManifestName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading project manifest: %w", err)
	}

	p := &Project{}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parsing project manifest: %w", err)
	}
	if p.Name == "" {
		p.Name = filepath.Base(root)
	}
	return p, nil
}

// SaveProject writes the manifest to the repository root.
func SaveProject(root string, p *Project) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding project manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(root, ProjectManifestName), data, 0644); err != nil {
		return fmt.Errorf("writing project manifest: %w", err)
	}
	return nil
}

// Apply overlays the manifest's overrides onto the config.
func (p *Project) Apply(cfg *Config) {
	if p == nil {
		return
	}
	if p.BaseBranch != "" {
		cfg.Publish.Base = p.BaseBranch
	}
	if len(p.Pipeline) > 0 {
		cfg.Pipeline.Order = p.Pipeline
	}
	if p.SandboxImage != "" {
		cfg.Sandbox.Image = p.SandboxImage
	}
}
