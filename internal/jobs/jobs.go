// Package jobs runs a batch of processes described by a TOML file through a
// bounded pool.
package jobs

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// File is a parsed jobs file.
type File struct {
	Executable    string   `toml:"executable"`
	Limit         int      `toml:"limit"`
	GlobalOptions []string `toml:"global_options"`
	Jobs          []Job    `toml:"job"`
}

// Job describes one process of the batch.
type Job struct {
	Name    string   `toml:"name"`
	Args    []string `toml:"args"`
	Options []string `toml:"options"`
	Stdin   string   `toml:"stdin"`
}

// Load reads and validates a jobs file. Unknown keys are rejected.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read jobs file: %w", err)
	}

	var f File
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse jobs file %s: %w", path, err)
	}

	if f.Limit == 0 {
		f.Limit = 1
	}
	for i := range f.Jobs {
		if f.Jobs[i].Name == "" {
			f.Jobs[i].Name = fmt.Sprintf("job-%d", i+1)
		}
	}

	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks the file for problems that would prevent a run.
func (f *File) Validate() error {
	var errs []error
	if f.Executable == "" {
		errs = append(errs, errors.New("executable is required"))
	}
	if f.Limit < 1 {
		errs = append(errs, fmt.Errorf("limit must be at least 1, got %d", f.Limit))
	}
	seen := make(map[string]bool, len(f.Jobs))
	for i, job := range f.Jobs {
		if len(job.Args) == 0 {
			errs = append(errs, fmt.Errorf("job %d (%s): args are required", i+1, job.Name))
		}
		if seen[job.Name] {
			errs = append(errs, fmt.Errorf("job %d: duplicate name %q", i+1, job.Name))
		}
		seen[job.Name] = true
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid jobs file: %w", errors.Join(errs...))
	}
	return nil
}
