package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileStore serves secrets from a YAML mapping of name to value, e.g. a
// file mounted by the orchestrator's secret manager.
type FileStore struct {
	values map[string]string
}

func LoadFile(path string) (*FileStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets file %s: %w", path, err)
	}
	return ParseFile(data)
}

func ParseFile(data []byte) (*FileStore, error) {
	raw := map[string]string{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse secrets file: %w", err)
	}
	values := make(map[string]string, len(raw))
	for key, value := range raw {
		name := strings.ToUpper(strings.TrimSpace(key))
		name = strings.TrimPrefix(name, legacyPrefix)
		if name == "" {
			continue
		}
		values[name] = strings.TrimSpace(value)
	}
	return &FileStore{values: values}, nil
}

func (s *FileStore) Get(_ context.Context, name string) (string, error) {
	if s == nil {
		return "", nil
	}
	return s.values[name], nil
}
