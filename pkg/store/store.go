// Package store provides in-memory storage for templates and render records.
package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lemonberrylabs/npc-prompt-studio/pkg/errors"
	"github.com/lemonberrylabs/npc-prompt-studio/pkg/sections"
)

// RenderState is the outcome of a render.
type RenderState string

const (
	RenderSucceeded RenderState = "SUCCEEDED"
	RenderFailed    RenderState = "FAILED"
)

// DefaultMaxRenders bounds the render history kept by New.
const DefaultMaxRenders = 500

// Template is a stored template revision.
type Template struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	RevisionID  string            `json:"revisionId"`
	CreateTime  time.Time         `json:"createTime"`
	UpdateTime  time.Time         `json:"updateTime"`
	Source      string            `json:"source"`
	Labels      map[string]string `json:"labels,omitempty"`
}

// Render is the record of one render call.
type Render struct {
	ID    string      `json:"id"`
	State RenderState `json:"state"`
	// Template is empty for inline sources.
	Template           string                 `json:"template,omitempty"`
	TemplateRevisionID string                 `json:"templateRevisionId,omitempty"`
	Variables          string                 `json:"variables,omitempty"`
	Text               string                 `json:"text"`
	Messages           []sections.ChatMessage `json:"messages,omitempty"`
	Error              *RenderError           `json:"error,omitempty"`
	StartTime          time.Time              `json:"startTime"`
	EndTime            time.Time              `json:"endTime"`
}

// RenderError describes a failed render.
type RenderError struct {
	Message string `json:"message"`
	// Line is set for parse errors.
	Line int `json:"line,omitempty"`
}

// Store is a thread-safe in-memory store.
type Store struct {
	mu        sync.RWMutex
	templates map[string]*Template
	renders   map[string]*Render
	order     []string

	maxRenders int
	revCounter int64
}

// New creates an empty store that keeps the latest DefaultMaxRenders renders.
func New() *Store {
	return NewWithLimit(DefaultMaxRenders)
}

// NewWithLimit creates an empty store keeping at most maxRenders renders.
func NewWithLimit(maxRenders int) *Store {
	return &Store{
		templates:  make(map[string]*Template),
		renders:    make(map[string]*Render),
		maxRenders: maxRenders,
	}
}

func (s *Store) nextRevision() string {
	s.revCounter++
	return fmt.Sprintf("%06d-%s", s.revCounter, uuid.NewString()[:8])
}

// CreateTemplate stores a new template.
func (s *Store) CreateTemplate(name, source, description string) (*Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if name == "" {
		return nil, errors.Wrap(errors.ErrInvalidRequest, "template name is required")
	}
	if _, exists := s.templates[name]; exists {
		return nil, errors.Wrapf(errors.ErrConflict, "template '%s' already exists", name)
	}

	now := time.Now()
	t := &Template{
		Name:        name,
		Description: description,
		RevisionID:  s.nextRevision(),
		CreateTime:  now,
		UpdateTime:  now,
		Source:      source,
	}
	s.templates[name] = t
	return t.copy(), nil
}

// GetTemplate retrieves a template by name.
func (s *Store) GetTemplate(name string) (*Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.templates[name]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "template '%s'", name)
	}
	return t.copy(), nil
}

// ListTemplates returns all templates sorted by name.
func (s *Store) ListTemplates() []*Template {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Template, 0, len(s.templates))
	for _, t := range s.templates {
		result = append(result, t.copy())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// UpdateTemplate replaces a template's source and starts a new revision.
// An empty description keeps the old one.
func (s *Store) UpdateTemplate(name, source, description string) (*Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.templates[name]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "template '%s'", name)
	}

	t.Source = source
	if description != "" {
		t.Description = description
	}
	t.RevisionID = s.nextRevision()
	t.UpdateTime = time.Now()
	return t.copy(), nil
}

// DeleteTemplate removes a template. Its render records are kept.
func (s *Store) DeleteTemplate(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.templates[name]; !ok {
		return errors.Wrapf(errors.ErrNotFound, "template '%s'", name)
	}
	delete(s.templates, name)
	return nil
}

// RecordRender stores r under a fresh ID, evicting the oldest record when
// the history is full, and returns the ID.
func (s *Store) RecordRender(r Render) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	r.ID = uuid.NewString()
	s.renders[r.ID] = &r
	s.order = append(s.order, r.ID)
	for s.maxRenders > 0 && len(s.order) > s.maxRenders {
		delete(s.renders, s.order[0])
		s.order = s.order[1:]
	}
	return r.ID
}

// GetRender retrieves a render record by ID.
func (s *Store) GetRender(id string) (*Render, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.renders[id]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "render '%s'", id)
	}
	out := *r
	return &out, nil
}

// ListRenders returns render records, newest first. A non-empty template
// restricts the list to renders of that template.
func (s *Store) ListRenders(template string) []*Render {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Render
	for i := len(s.order) - 1; i >= 0; i-- {
		r := s.renders[s.order[i]]
		if template != "" && r.Template != template {
			continue
		}
		out := *r
		result = append(result, &out)
	}
	return result
}

func (t *Template) copy() *Template {
	out := *t
	if t.Labels != nil {
		out.Labels = make(map[string]string, len(t.Labels))
		for k, v := range t.Labels {
			out.Labels[k] = v
		}
	}
	return &out
}
