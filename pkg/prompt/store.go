// Package prompt keeps versioned text templates: the agent's user-facing
// responses and the instructions sent to language models.
package prompt

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/wilhg/a2ui/pkg/errmodel"
)

// Prompt is one version of a named template.
type Prompt struct {
	Name    string            `yaml:"name"`
	Version int               `yaml:"-"`
	Body    string            `yaml:"body"`
	Meta    map[string]string `yaml:"meta,omitempty"`
}

// Issue describes a lint finding.
type Issue struct {
	Rule    string
	Message string
}

var secretLike = []string{"aws_secret_access_key", "begin private key", "sk-"}

// Lint checks that p is named, non-empty, parses as a template and carries
// nothing that looks like a credential.
func Lint(p Prompt) []Issue {
	var issues []Issue
	if p.Name == "" {
		issues = append(issues, Issue{Rule: "name.required", Message: "name is required"})
	}
	if strings.TrimSpace(p.Body) == "" {
		issues = append(issues, Issue{Rule: "body.required", Message: "body is empty"})
	}
	if _, err := parse(p); err != nil {
		issues = append(issues, Issue{Rule: "template.parse", Message: err.Error()})
	}
	lower := strings.ToLower(p.Body)
	for _, needle := range secretLike {
		if strings.Contains(lower, needle) {
			issues = append(issues, Issue{Rule: "security.secrets", Message: "body appears to contain secrets-like content"})
			break
		}
	}
	return issues
}

func parse(p Prompt) (*template.Template, error) {
	return template.New(p.Name).Option("missingkey=zero").Parse(p.Body)
}

// ErrLintFailed is returned by Save when the prompt has lint issues.
var ErrLintFailed = errmodel.Validation("prompt_lint", "prompt failed lint checks", nil)

// ErrUnknownPrompt is returned by Render for names never saved.
var ErrUnknownPrompt = errmodel.NotFound("prompt_not_found", "prompt not found", nil)

// Store is an in-memory versioned prompt store. Safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	data     map[string][]Prompt // versions ascending
	compiled map[string]*template.Template
}

func NewStore() *Store {
	return &Store{data: make(map[string][]Prompt), compiled: make(map[string]*template.Template)}
}

// Save adds a new version of p.Name, numbered one past the latest.
func (s *Store) Save(p Prompt) (Prompt, []Issue, error) {
	if issues := Lint(p); len(issues) > 0 {
		return Prompt{}, issues, fmt.Errorf("%w: %s: %s", ErrLintFailed, p.Name, issues[0].Message)
	}
	tmpl, err := parse(p)
	if err != nil {
		return Prompt{}, nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	versions := s.data[p.Name]
	next := 1
	if len(versions) > 0 {
		next = versions[len(versions)-1].Version + 1
	}
	np := Prompt{Name: p.Name, Version: next, Body: p.Body, Meta: p.Meta}
	s.data[p.Name] = append(versions, np)
	s.compiled[p.Name] = tmpl
	return np, nil, nil
}

// Get retrieves a version; version <= 0 selects the latest.
func (s *Store) Get(name string, version int) (Prompt, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	versions := s.data[name]
	if len(versions) == 0 {
		return Prompt{}, false
	}
	if version <= 0 {
		return versions[len(versions)-1], true
	}
	i := sort.Search(len(versions), func(i int) bool { return versions[i].Version >= version })
	if i < len(versions) && versions[i].Version == version {
		return versions[i], true
	}
	return Prompt{}, false
}

// List returns all versions of name in ascending order.
func (s *Store) List(name string) []Prompt {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Prompt(nil), s.data[name]...)
}

// Names returns the saved prompt names, sorted.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.data))
	for n := range s.data {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Render executes the latest version of name with vars.
func (s *Store) Render(name string, vars map[string]string) (string, error) {
	s.mu.RLock()
	tmpl, found := s.compiled[name]
	s.mu.RUnlock()
	if !found {
		return "", fmt.Errorf("%w: %s", ErrUnknownPrompt, name)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", name, err)
	}
	return buf.String(), nil
}

// LoadYAML saves every prompt of a YAML document `prompts: [{name, body}]` as
// a new version and returns the saved versions.
func (s *Store) LoadYAML(data []byte) ([]Prompt, error) {
	var doc struct {
		Prompts []Prompt `yaml:"prompts"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("prompt: decode yaml: %w", err)
	}
	out := make([]Prompt, 0, len(doc.Prompts))
	for _, p := range doc.Prompts {
		saved, _, err := s.Save(p)
		if err != nil {
			return out, err
		}
		out = append(out, saved)
	}
	return out, nil
}
