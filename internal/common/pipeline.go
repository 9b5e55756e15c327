package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/ternarybob/arbor"
	"gopkg.in/yaml.v3"

	"github.com/ternarybob/pipewatch/internal/models"
)

// LoadPipelineFile reads items and stages from a .yaml/.yml or .toml file and
// expands {name} variable references in items, stage names and string params.
//
// YAML:
//
//	items: [a.png, b.png]
//	stages:
//	  - name: resize
//	    params: {width: 256}
//
// TOML:
//
//	items = ["a.png", "b.png"]
//	[[stages]]
//	name = "resize"
//	params = { width = 256 }
func LoadPipelineFile(path string, vars map[string]string, logger arbor.ILogger) (*models.RunRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline file %s: %w", path, err)
	}

	var req models.RunRequest
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &req); err != nil {
			return nil, fmt.Errorf("failed to parse pipeline file %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &req); err != nil {
			return nil, fmt.Errorf("failed to parse pipeline file %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported pipeline file type %q (want .yaml, .yml or .toml)", filepath.Ext(path))
	}

	ExpandPipelineVars(&req, vars, logger)
	return &req, nil
}

// ExpandPipelineVars applies variable references to a request in place
func ExpandPipelineVars(req *models.RunRequest, vars map[string]string, logger arbor.ILogger) {
	for i, item := range req.Items {
		req.Items[i] = ReplaceVarReferences(item, vars, logger)
	}
	for i := range req.Stages {
		req.Stages[i].Name = ReplaceVarReferences(req.Stages[i].Name, vars, logger)
		if req.Stages[i].Params != nil {
			ReplaceInMap(req.Stages[i].Params, vars, logger)
		}
	}
}
