package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/example/go-lesson-audio/internal/config"
	"github.com/example/go-lesson-audio/internal/pipeline"
	"gopkg.in/yaml.v3"
)

// readJobRequest loads a job description from path, or stdin for "-".
// YAML files use the same camelCase keys as the JSON wire format.
func readJobRequest(path string, stdin io.Reader) (pipeline.JobRequest, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return pipeline.JobRequest{}, fmt.Errorf("read job %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var raw map[string]any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return pipeline.JobRequest{}, fmt.Errorf("parse job %s: %w", path, err)
		}
		if data, err = json.Marshal(raw); err != nil {
			return pipeline.JobRequest{}, fmt.Errorf("parse job %s: %w", path, err)
		}
	}

	var req pipeline.JobRequest
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return pipeline.JobRequest{}, fmt.Errorf("parse job %s: %w", path, err)
	}
	return req, nil
}

// applyLessonDefaults fills unset voices and the duration budget from config.
func applyLessonDefaults(req *pipeline.JobRequest, lc config.LessonConfig) {
	if req.NarratorVoice == "" {
		req.NarratorVoice = lc.NarratorVoice
	}
	if req.TargetVoice == "" {
		req.TargetVoice = lc.TargetVoice
	}
	if req.MaxMinutes == 0 {
		req.MaxMinutes = lc.MaxMinutes
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
