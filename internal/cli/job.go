package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Job is a saved run configuration. Command-line flags override its fields.
type Job struct {
	Dir      string   `yaml:"dir"`
	Start    string   `yaml:"start,omitempty"`
	End      string   `yaml:"end,omitempty"`
	Channels []string `yaml:"channels,omitempty"`
	XLSX     string   `yaml:"xlsx,omitempty"`
	Plots    string   `yaml:"plots,omitempty"`
	NoXLSX   bool     `yaml:"noXlsx,omitempty"`
}

// LoadJob reads a YAML job file. Unknown keys are rejected.
func LoadJob(path string) (*Job, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening job file: %w", err)
	}
	defer f.Close()

	job := &Job{}
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(job); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing job file %s: %w", path, err)
	}
	return job, nil
}
