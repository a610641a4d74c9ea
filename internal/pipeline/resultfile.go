// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/biblio-gateway/pkg/types"
)

// ResultFile is the on-disk representation of a query and its result.
// A caller can save a query to a file and reload it later without
// re-querying the API.
type ResultFile struct {
	Request types.Request     `yaml:"request"`
	Items   []types.Record    `yaml:"items"`
	Summary ResultFileSummary `yaml:"summary"`
}

// ResultFileSummary stores result statistics and a timestamp.
type ResultFileSummary struct {
	Items     int       `yaml:"items"`
	Total     *int      `yaml:"total,omitempty"`
	Timestamp time.Time `yaml:"timestamp"`
}

// WriteResultFile saves the request and its result to a YAML file.
func WriteResultFile(path string, req types.Request, result types.QueryResult) error {
	rf := ResultFile{
		Request: req,
		Items:   result.Items,
		Summary: ResultFileSummary{
			Items:     len(result.Items),
			Total:     result.Meta.Total,
			Timestamp: time.Now(),
		},
	}
	data, err := yaml.Marshal(&rf)
	if err != nil {
		return fmt.Errorf("marshaling result file: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadResultFile loads a previously saved result file from disk.
func ReadResultFile(path string) (*ResultFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading result file: %w", err)
	}
	var rf ResultFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing result file: %w", err)
	}
	return &rf, nil
}
