package script

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/example/go-lesson-audio/internal/text"
)

// Load reads a script from a .yaml/.yml or .json file. Units are renumbered
// by position and spoken text is cleaned for synthesis.
func Load(path string) (Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Script{}, fmt.Errorf("read script: %w", err)
	}
	return Parse(data, filepath.Ext(path))
}

// Parse decodes script bytes; ext selects the decoder (".json" or YAML otherwise).
func Parse(data []byte, ext string) (Script, error) {
	var s Script
	switch strings.ToLower(ext) {
	case ".json":
		if err := json.Unmarshal(data, &s); err != nil {
			return Script{}, fmt.Errorf("decode script json: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &s); err != nil {
			return Script{}, fmt.Errorf("decode script yaml: %w", err)
		}
	}

	for i := range s.Units {
		s.Units[i].Index = i
		if s.Units[i].Kind.Spoken() {
			cleaned, err := text.Clean(s.Units[i].Text)
			if err != nil {
				return Script{}, fmt.Errorf("%w: unit %d: %w", ErrInvalidUnit, i, err)
			}
			s.Units[i].Text = cleaned
		}
		if s.Units[i].LanguageCode == "" && s.Units[i].Kind == KindPhrase {
			s.Units[i].LanguageCode = s.TargetLanguage
		}
		if s.Units[i].LanguageCode == "" && s.Units[i].Kind == KindNarration {
			s.Units[i].LanguageCode = s.NativeLanguage
		}
	}

	if err := s.Validate(); err != nil {
		return Script{}, err
	}
	return s, nil
}
