// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// MODEL SPEC TYPE
// =============================================================================

// ModelSpec describes a model selectable in the UI.
type ModelSpec struct {
	// Key is the short name used by the UI and config ("lite", "standard")
	Key string `json:"key" toml:"key"`

	// BackendID is the identifier sent to the backend
	BackendID string `json:"backend_id" toml:"backend_id"`

	// Name is the human-readable display name
	Name string `json:"name" toml:"name"`

	// Streaming marks the model that replies over the token stream.
	// All other models reply in one piece.
	Streaming bool `json:"streaming" toml:"streaming"`

	// Description is a brief explanation of the model's strengths
	Description string `json:"description,omitempty" toml:"description"`
}

// DisplayName returns Name or, if empty, the key.
func (s ModelSpec) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Key
}

// ModeString returns a short label for the reply mode.
func (s ModelSpec) ModeString() string {
	if s.Streaming {
		return "streaming"
	}
	return "single reply"
}

// =============================================================================
// MODEL REGISTRY
// =============================================================================

// Registry errors.
var (
	ErrEmptyRegistry           = errors.New("model registry is empty")
	ErrNoStreamingModel        = errors.New("no streaming model configured")
	ErrMultipleStreamingModels = errors.New("more than one streaming model configured")
	ErrUnknownDefault          = errors.New("default model not in registry")
)

// Registry maps model keys to backend models. Exactly one entry is the
// streaming model. A Registry is immutable after construction.
type Registry struct {
	specs        map[string]ModelSpec
	defaultKey   string
	streamingKey string
}

// NewRegistry validates specs and builds a registry. Keys are matched
// case-insensitively. An empty defaultKey selects the streaming model.
func NewRegistry(specs []ModelSpec, defaultKey string) (*Registry, error) {
	if len(specs) == 0 {
		return nil, ErrEmptyRegistry
	}

	r := &Registry{specs: make(map[string]ModelSpec, len(specs))}
	for _, s := range specs {
		key := normalizeKey(s.Key)
		if key == "" {
			return nil, fmt.Errorf("model %q: key is required", s.Name)
		}
		if s.BackendID == "" {
			return nil, fmt.Errorf("model %q: backend_id is required", key)
		}
		if _, dup := r.specs[key]; dup {
			return nil, fmt.Errorf("model %q: duplicate key", key)
		}
		s.Key = key
		if s.Streaming {
			if r.streamingKey != "" {
				return nil, fmt.Errorf("%w: %q and %q", ErrMultipleStreamingModels, r.streamingKey, key)
			}
			r.streamingKey = key
		}
		r.specs[key] = s
	}
	if r.streamingKey == "" {
		return nil, ErrNoStreamingModel
	}

	r.defaultKey = normalizeKey(defaultKey)
	if r.defaultKey == "" {
		r.defaultKey = r.streamingKey
	}
	if _, ok := r.specs[r.defaultKey]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDefault, defaultKey)
	}
	return r, nil
}

// DefaultSpecs returns the built-in model table.
func DefaultSpecs() []ModelSpec {
	return []ModelSpec{
		{
			Key:         "lite",
			BackendID:   "lite-local",
			Name:        "Lite",
			Streaming:   true,
			Description: "Lightweight local model, streams tokens as they are generated",
		},
		{
			Key:         "standard",
			BackendID:   "standard-v1",
			Name:        "Standard",
			Description: "Balanced hosted model",
		},
		{
			Key:         "advanced",
			BackendID:   "advanced-v1",
			Name:        "Advanced",
			Description: "Most capable hosted model for complex reasoning",
		},
	}
}

// DefaultRegistry returns the built-in registry with "lite" as default.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(DefaultSpecs(), "lite")
	if err != nil {
		panic(err) // built-in table is static
	}
	return r
}

// Get looks up a model by key or backend ID.
func (r *Registry) Get(keyOrID string) (ModelSpec, bool) {
	if s, ok := r.specs[normalizeKey(keyOrID)]; ok {
		return s, true
	}
	for _, s := range r.specs {
		if s.BackendID == keyOrID {
			return s, true
		}
	}
	return ModelSpec{}, false
}

// Lookup returns the spec for key, falling back to the default model when
// the key is unknown or empty.
func (r *Registry) Lookup(key string) ModelSpec {
	if s, ok := r.Get(key); ok {
		return s
	}
	return r.specs[r.defaultKey]
}

// IsStreaming reports whether key resolves to the streaming model.
func (r *Registry) IsStreaming(key string) bool {
	return r.Lookup(key).Streaming
}

// DefaultKey returns the key used when none is selected.
func (r *Registry) DefaultKey() string {
	return r.defaultKey
}

// StreamingKey returns the key of the streaming model.
func (r *Registry) StreamingKey() string {
	return r.streamingKey
}

// Keys returns all model keys, sorted.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.specs))
	for k := range r.specs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Specs returns all model specs ordered by key.
func (r *Registry) Specs() []ModelSpec {
	keys := r.Keys()
	specs := make([]ModelSpec, 0, len(keys))
	for _, k := range keys {
		specs = append(specs, r.specs[k])
	}
	return specs
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
