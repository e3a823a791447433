// Package project describes the repositories skiff operates on, loaded
// from a JSON configuration file.
package project

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/coveooss/skiff/lib/skiff/vcs"
)

// Project is one repository under management.
type Project struct {
	Vcs           string `json:"vcs"`
	Remote        string `json:"remote"`
	Name          string `json:"name"`
	DefaultBranch string `json:"defaultBranch"`
	BranchPrefix  string `json:"branchPrefix"`
	BasePath      string `json:"basePath"`
}

// Config is the top level of the configuration file.
type Config struct {
	Projects []Project `json:"projects"`
}

const (
	defaultVcs          = vcs.Hg
	defaultBranchPrefix = "skiff-"
)

// InitProjectDefaultValues fills in the optional fields of project.
func InitProjectDefaultValues(project *Project) {
	if project.Vcs == "" {
		project.Vcs = defaultVcs
	}
	if project.BranchPrefix == "" {
		project.BranchPrefix = defaultBranchPrefix
	}
	if project.DefaultBranch == "" {
		switch project.Vcs {
		case vcs.Hg:
			project.DefaultBranch = "default"
		case vcs.Git:
			project.DefaultBranch = "master"
		}
	}
}

// Load reads and validates the configuration at path.
func Load(path string) (*Config, error) {
	bytes, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var config Config
	if err := json.Unmarshal(bytes, &config); err != nil {
		return nil, fmt.Errorf("could not parse %s: %w", path, err)
	}
	for i := range config.Projects {
		p := &config.Projects[i]
		InitProjectDefaultValues(p)
		if p.Vcs != vcs.Hg && p.Vcs != vcs.Git {
			return nil, fmt.Errorf("%s: project %q has unknown vcs %q", path, p.Name, p.Vcs)
		}
		if p.Remote == "" {
			return nil, fmt.Errorf("%s: project %q has no remote", path, p.Name)
		}
	}
	return &config, nil
}

// Open returns the project's repository rooted at dir.
func (p Project) Open(dir string) (vcs.Repository, error) {
	return vcs.New(p.Vcs, dir)
}
