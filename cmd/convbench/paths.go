package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/samcharles93/convbench/internal/testcase"
)

const envDataDir = "CONVBENCH_DATA_DIR"

// resolveDataDir picks the flag value, then $CONVBENCH_DATA_DIR, then ./data.
func resolveDataDir(flag string) string {
	if dir := strings.TrimSpace(flag); dir != "" {
		return filepath.Clean(dir)
	}
	if dir := strings.TrimSpace(os.Getenv(envDataDir)); dir != "" {
		return filepath.Clean(dir)
	}
	return filepath.Join(".", "data")
}

// resolveFiles resolves the file flags against the data directory.
func resolveFiles() testcase.Files {
	return testcase.Files{
		Input:  inputFile,
		Filter: filterFile,
		Bias:   biasFile,
		Truth:  truthFile,
		Params: paramsFile,
	}.In(resolveDataDir(dataDir))
}

// resolveKernelSource defaults the source path to kernel/<name>.cl.
func resolveKernelSource(source, kernel string) (string, error) {
	if s := strings.TrimSpace(source); s != "" {
		return filepath.Clean(s), nil
	}
	kernel = strings.TrimSpace(kernel)
	if kernel == "" {
		return "", fmt.Errorf("--kernel or --source is required")
	}
	return filepath.Join("kernel", kernel+".cl"), nil
}
