package testcase

import (
	"fmt"
	"os"
	"path/filepath"
)

// Files names the five raw files that make up one test case.
type Files struct {
	Input  string
	Filter string
	Bias   string
	Truth  string
	Params string
}

// DefaultFiles returns the conventional file names.
func DefaultFiles() Files {
	return Files{
		Input:  "input.raw",
		Filter: "filters.raw",
		Bias:   "biases.raw",
		Truth:  "tf_output.raw",
		Params: "parameters.raw",
	}
}

// In resolves every relative name against dir. Absolute names are kept.
func (f Files) In(dir string) Files {
	join := func(name string) string {
		if name == "" || filepath.IsAbs(name) {
			return name
		}
		return filepath.Join(dir, name)
	}
	return Files{
		Input:  join(f.Input),
		Filter: join(f.Filter),
		Bias:   join(f.Bias),
		Truth:  join(f.Truth),
		Params: join(f.Params),
	}
}

// Write stores the packed tensors and the parameter blob under the names in
// f, creating parent directories as needed.
func (c *Case) Write(f Files) error {
	packed, err := c.Packed()
	if err != nil {
		return err
	}
	out := []struct {
		name string
		data []byte
	}{
		{f.Input, packed.Input},
		{f.Filter, packed.Filter},
		{f.Bias, packed.Bias},
		{f.Truth, packed.Truth},
		{f.Params, c.Params.Encode()},
	}
	for _, o := range out {
		if o.name == "" {
			return fmt.Errorf("testcase: empty file name")
		}
		if err := os.MkdirAll(filepath.Dir(o.name), 0o755); err != nil {
			return fmt.Errorf("testcase: create %s: %w", filepath.Dir(o.name), err)
		}
		if err := os.WriteFile(o.name, o.data, 0o644); err != nil {
			return fmt.Errorf("testcase: write %s: %w", o.name, err)
		}
	}
	return nil
}
