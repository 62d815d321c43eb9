// Package template resolves and renders the message templates sequence
// steps deliver.
package template

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrTemplateNotFound indicates a template key resolved from campaign
// configuration has no content behind it. This is a fatal configuration
// error for the step: the engine surfaces it and never substitutes a
// default in its place.
var ErrTemplateNotFound = errors.New("template not found")

// Template is the renderable content behind one template key.
type Template struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Store is the external template content store. Get returns (nil, nil) when
// the key has no template; that is a distinct signal from a store error.
type Store interface {
	Get(ctx context.Context, key string) (*Template, error)
}

// FileStore reads templates from a directory of <key>.json files.
type FileStore struct {
	root string
}

func NewFileStore(root string) *FileStore {
	return &FileStore{root: strings.Replace(root, "file://", "", 1)}
}

func (s *FileStore) Get(_ context.Context, key string) (*Template, error) {
	// Template keys come from configuration, but refuse path traversal anyway.
	if key == "" || strings.ContainsAny(key, "/\\") {
		return nil, nil
	}

	data, err := os.ReadFile(filepath.Join(s.root, key+".json"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read template %s: %w", key, err)
	}

	var template Template
	if err := json.Unmarshal(data, &template); err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", key, err)
	}

	return &template, nil
}

// MapStore serves templates from memory. Used in tests and as the seed store
// for embedded defaults.
type MapStore struct {
	templates map[string]Template
}

func NewMapStore(templates map[string]Template) *MapStore {
	return &MapStore{templates: templates}
}

func (s *MapStore) Get(_ context.Context, key string) (*Template, error) {
	template, ok := s.templates[key]
	if !ok {
		return nil, nil
	}

	return &template, nil
}
