// Package skills provides locally-executed shortcuts that intercept simple
// requests before they reach the code-generation CLI. A matched skill
// answers in milliseconds instead of spawning a subprocess.
package skills

import (
	"context"
	"fmt"
	"sync"

	"hermes/internal/logging"
)

// Permission describes what a skill is allowed to touch.
type Permission string

const (
	// PermReadOnly skills only read the filesystem.
	PermReadOnly Permission = "read_only"
	// PermCompute skills perform pure computation.
	PermCompute Permission = "compute"
	// PermSystem skills report host-level information.
	PermSystem Permission = "system"
)

// Skill is a locally-executed capability. Match inspects a prompt and
// extracts arguments; Execute runs with them.
type Skill interface {
	Name() string
	Description() string
	Permission() Permission
	Match(prompt string) (args map[string]string, ok bool)
	Execute(ctx context.Context, args map[string]string) (string, error)
}

// Registry holds registered skills in registration order. Matching walks
// the list and the first hit wins.
type Registry struct {
	mu     sync.RWMutex
	skills []Skill
	byName map[string]Skill
	logger logging.Logger
}

func NewRegistry(logger logging.Logger) *Registry {
	return &Registry{
		byName: make(map[string]Skill),
		logger: logging.OrNop(logger),
	}
}

// Register adds a skill. Duplicate names are rejected.
func (r *Registry) Register(s Skill) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[s.Name()]; exists {
		return fmt.Errorf("skill %q already registered", s.Name())
	}
	r.byName[s.Name()] = s
	r.skills = append(r.skills, s)
	r.logger.Debug("skills: registered %s (%s)", s.Name(), s.Permission())
	return nil
}

// Match finds the first skill whose matcher accepts the prompt.
func (r *Registry) Match(prompt string) (Skill, map[string]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.skills {
		if args, ok := s.Match(prompt); ok {
			return s, args, true
		}
	}
	return nil, nil, false
}

// Get returns a skill by name.
func (r *Registry) Get(name string) (Skill, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byName[name]
	return s, ok
}

// List returns the registered skills in registration order.
func (r *Registry) List() []Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Skill, len(r.skills))
	copy(out, r.skills)
	return out
}

// RegisterBuiltins installs the standard skill set. searchRoot bounds the
// file-search skill.
func RegisterBuiltins(r *Registry, searchRoot string) error {
	for _, s := range []Skill{
		NewFileSearch(searchRoot),
		NewCalculator(),
		NewSystemInfo(),
	} {
		if err := r.Register(s); err != nil {
			return err
		}
	}
	return nil
}
