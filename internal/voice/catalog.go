// Package voice holds the voice catalog: the explicit, load-once registry of
// synthesis voices with their backend, language and gender.
package voice

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Gender is used for narration pronoun selection and fallback matching.
type Gender string

const (
	GenderFemale  Gender = "female"
	GenderMale    Gender = "male"
	GenderNeutral Gender = "neutral"
)

// ErrUnknownVoice is returned for ids that are not in the catalog.
var ErrUnknownVoice = errors.New("unknown voice id")

// Voice describes one catalog entry.
type Voice struct {
	ID           string `json:"id" yaml:"id"`
	Provider     string `json:"provider" yaml:"provider"`
	LanguageCode string `json:"language" yaml:"language"`
	Gender       Gender `json:"gender,omitempty" yaml:"gender,omitempty"`
	Name         string `json:"name,omitempty" yaml:"name,omitempty"`
	// Path points at a local voice embedding for CLI backends; relative paths
	// resolve against the manifest directory.
	Path    string `json:"path,omitempty" yaml:"path,omitempty"`
	License string `json:"license,omitempty" yaml:"license,omitempty"`
}

type manifest struct {
	Voices []Voice `json:"voices" yaml:"voices"`
}

// Catalog is immutable after construction and safe for concurrent use.
type Catalog struct {
	baseDir string
	voices  []Voice
	byID    map[string]Voice
}

// Load reads a JSON or YAML manifest.
func Load(manifestPath string) (*Catalog, error) {
	if manifestPath == "" {
		return nil, errors.New("manifest path is required")
	}

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("read voice manifest: %w", err)
	}

	var m manifest
	switch strings.ToLower(filepath.Ext(manifestPath)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &m)
	default:
		err = json.Unmarshal(data, &m)
	}
	if err != nil {
		return nil, fmt.Errorf("decode voice manifest: %w", err)
	}

	cat, err := New(m.Voices)
	if err != nil {
		return nil, err
	}
	cat.baseDir = filepath.Dir(manifestPath)
	return cat, nil
}

// New builds a catalog from in-memory entries.
func New(voices []Voice) (*Catalog, error) {
	c := &Catalog{
		voices: append([]Voice(nil), voices...),
		byID:   make(map[string]Voice, len(voices)),
	}

	for _, v := range voices {
		if v.ID == "" {
			return nil, errors.New("voice manifest contains empty id")
		}
		if v.Provider == "" {
			return nil, fmt.Errorf("voice %q has no provider", v.ID)
		}
		if v.LanguageCode == "" {
			return nil, fmt.Errorf("voice %q has no language", v.ID)
		}
		if _, exists := c.byID[v.ID]; exists {
			return nil, fmt.Errorf("duplicate voice id %q", v.ID)
		}
		c.byID[v.ID] = v
	}

	return c, nil
}

// ListVoices returns all entries in manifest order.
func (c *Catalog) ListVoices() []Voice {
	return append([]Voice(nil), c.voices...)
}

// ByID looks up a voice by id.
func (c *Catalog) ByID(id string) (Voice, error) {
	v, ok := c.byID[id]
	if !ok {
		return Voice{}, fmt.Errorf("%w %q", ErrUnknownVoice, id)
	}
	return v, nil
}

// LanguageOf returns the language code of a catalog voice.
func (c *Catalog) LanguageOf(id string) (string, bool) {
	v, ok := c.byID[id]
	return v.LanguageCode, ok
}

// ResolvePath returns the absolute local embedding path for a voice.
func (c *Catalog) ResolvePath(id string) (string, error) {
	v, err := c.ByID(id)
	if err != nil {
		return "", err
	}
	if v.Path == "" {
		return "", fmt.Errorf("voice %q has no local path", id)
	}

	resolved := v.Path
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(c.baseDir, resolved)
	}
	resolved = filepath.Clean(resolved)

	if _, err := os.Stat(resolved); err != nil {
		return "", fmt.Errorf("voice file for %q: %w", id, err)
	}
	return resolved, nil
}

// Fallback picks a substitute for want whose provider passes usable. Same
// language is required; same gender is preferred. Results are deterministic:
// candidates are ordered by id.
func (c *Catalog) Fallback(want Voice, usable func(provider string) bool) (Voice, bool) {
	var sameLang []Voice
	for _, v := range c.voices {
		if v.ID == want.ID || !usable(v.Provider) {
			continue
		}
		if !sameLanguage(v.LanguageCode, want.LanguageCode) {
			continue
		}
		sameLang = append(sameLang, v)
	}
	if len(sameLang) == 0 {
		return Voice{}, false
	}

	sort.Slice(sameLang, func(i, j int) bool { return sameLang[i].ID < sameLang[j].ID })
	for _, v := range sameLang {
		if want.Gender != "" && v.Gender == want.Gender {
			return v, true
		}
	}
	return sameLang[0], true
}

// sameLanguage compares BCP-47 codes case-insensitively, falling back to the
// primary subtag when either side has no region.
func sameLanguage(a, b string) bool {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if a == b {
		return true
	}
	pa, _, hasRegionA := strings.Cut(a, "-")
	pb, _, hasRegionB := strings.Cut(b, "-")
	if hasRegionA && hasRegionB {
		return false
	}
	return pa == pb
}

// ForLanguage returns the voices matching a language code, ordered by id.
func (c *Catalog) ForLanguage(lang string) []Voice {
	var out []Voice
	for _, v := range c.voices {
		if sameLanguage(v.LanguageCode, lang) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
