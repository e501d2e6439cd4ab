package scoutnet

import (
	"fmt"
	"strings"

	"github.com/Scouterna/j26-signupinfo/internal/platform/config"
)

// Project is one configured registration project and its API keys. Each key
// grants read access to one endpoint family.
type Project struct {
	ID          int    `yaml:"id"`
	Name        string `yaml:"name"`
	MemberKey   string `yaml:"member_key"`
	QuestionKey string `yaml:"question_key"`
	// GroupKey is empty for projects without group registration.
	GroupKey string `yaml:"group_key"`
}

// HasGroups reports whether the project exposes the groups endpoint.
func (p Project) HasGroups() bool {
	return strings.TrimSpace(p.GroupKey) != ""
}

// ParseProjects decodes a YAML or JSON project list and validates it.
func ParseProjects(data []byte) ([]Project, error) {
	var projects []Project
	if err := config.ParseYAML(data, &projects); err != nil {
		return nil, fmt.Errorf("parse projects: %w", err)
	}
	if err := ValidateProjects(projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// LoadProjectsFile reads and validates a project list file.
func LoadProjectsFile(path string) ([]Project, error) {
	var projects []Project
	if err := config.ParseYAMLFile(path, &projects); err != nil {
		return nil, fmt.Errorf("load projects: %w", err)
	}
	if err := ValidateProjects(projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// ValidateProjects checks that at least one project is configured, that ids
// are positive and unique, and that the required keys are present.
func ValidateProjects(projects []Project) error {
	if len(projects) == 0 {
		return fmt.Errorf("at least one project is required")
	}
	seen := make(map[int]struct{}, len(projects))
	for i, p := range projects {
		if p.ID <= 0 {
			return fmt.Errorf("project %d: id must be positive", i)
		}
		if _, ok := seen[p.ID]; ok {
			return fmt.Errorf("project %d: duplicate id", p.ID)
		}
		seen[p.ID] = struct{}{}
		if strings.TrimSpace(p.MemberKey) == "" {
			return fmt.Errorf("project %d: member key is required", p.ID)
		}
		if strings.TrimSpace(p.QuestionKey) == "" {
			return fmt.Errorf("project %d: question key is required", p.ID)
		}
	}
	return nil
}
