package analytics

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadDefinitions reads KPI definition files (yaml or json, one definition
// list per file) from dir. An empty dir yields nil so callers fall back to
// DefaultDefinitions.
func LoadDefinitions(dir string) ([]KPIDefinition, error) {
	if dir == "" {
		return nil, nil
	}
	var out []KPIDefinition
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".yaml" && ext != ".yml" && ext != ".json" {
			return nil
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		var defs []KPIDefinition
		if ext == ".json" {
			if err := json.Unmarshal(b, &defs); err != nil {
				return err
			}
		} else {
			if err := yaml.Unmarshal(b, &defs); err != nil {
				return err
			}
		}
		out = append(out, defs...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
