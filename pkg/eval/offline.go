// Package eval checks narration output against fixtures and replays
// captured action sequences against an agent.
package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wilhg/a2ui/pkg/narrate"
)

// Fixture is one narration case.
type Fixture struct {
	Name   string            `json:"name" yaml:"name"`
	Event  string            `json:"event" yaml:"event"`
	Vars   map[string]string `json:"vars" yaml:"vars"`
	Expect Expectation       `json:"expect" yaml:"expect"`
}

type Expectation struct {
	Contains    []string `json:"contains,omitempty" yaml:"contains"`
	NotContains []string `json:"not_contains,omitempty" yaml:"not_contains"`
}

// Report summarizes a fixture run. Score is Passed/Total, or 1 with no cases.
type Report struct {
	Score   float64  `json:"score"`
	Total   int      `json:"total"`
	Passed  int      `json:"passed"`
	Details []string `json:"details,omitempty"`
}

// EvaluateNarration loads every .json, .yaml and .yml fixture in dir and
// narrates it with n. A narration error fails that case only.
func EvaluateNarration(ctx context.Context, n narrate.Narrator, fsys fs.FS, dir string) (Report, error) {
	fixtures, err := LoadFixtures(fsys, dir)
	if err != nil {
		return Report{}, err
	}
	rep := Report{Total: len(fixtures)}
	if rep.Total == 0 {
		rep.Score = 1
		return rep, nil
	}
	for _, fx := range fixtures {
		out, nerr := n.Narrate(ctx, narrate.Event{Name: fx.Event, Vars: fx.Vars})
		if nerr != nil {
			rep.Details = append(rep.Details, fx.Name+": narrate error: "+nerr.Error())
			continue
		}
		ok := true
		for _, s := range fx.Expect.Contains {
			if !strings.Contains(out, s) {
				ok = false
				rep.Details = append(rep.Details, fx.Name+": missing contains: "+s)
			}
		}
		for _, s := range fx.Expect.NotContains {
			if strings.Contains(out, s) {
				ok = false
				rep.Details = append(rep.Details, fx.Name+": unexpected contains: "+s)
			}
		}
		if ok {
			rep.Passed++
		}
	}
	rep.Score = float64(rep.Passed) / float64(rep.Total)
	return rep, nil
}

// LoadFixtures reads the fixtures in dir, sorted by file name.
func LoadFixtures(fsys fs.FS, dir string) ([]Fixture, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	var out []Fixture
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := path.Ext(e.Name())
		if ext != ".json" && ext != ".yaml" && ext != ".yml" {
			continue
		}
		b, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		var fx Fixture
		if ext == ".json" {
			err = json.Unmarshal(b, &fx)
		} else {
			err = yaml.Unmarshal(b, &fx)
		}
		if err != nil {
			return nil, fmt.Errorf("eval: %s: %w", e.Name(), err)
		}
		if fx.Name == "" {
			fx.Name = strings.TrimSuffix(e.Name(), ext)
		}
		out = append(out, fx)
	}
	return out, nil
}
