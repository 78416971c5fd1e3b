package backend

import "strings"

// Available returns a comma-separated list of available backends.
func Available() string {
	entries := make([]string, 0, 2)
	for _, name := range []string{Host, OpenCL} {
		if Has(name) {
			entries = append(entries, name)
		}
	}
	return strings.Join(entries, ",")
}

// Has reports whether the named backend has been registered in this binary.
// Accelerator runtimes register themselves from their package init.
func Has(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[name]
	return ok
}
