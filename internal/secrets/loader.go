package secrets

import (
	"fmt"
	"os"
	"strings"
)

// StaticLoader returns a Loader that always yields a copy of vals.
func StaticLoader(vals map[string]string) Loader {
	return func() (map[string]string, error) {
		out := make(map[string]string, len(vals))
		for k, v := range vals {
			if v != "" {
				out[k] = v
			}
		}
		return out, nil
	}
}

// FileLoader returns a Loader that reads key's value from path, trimming
// surrounding whitespace. Mounted secret files are rotated by rewriting them.
func FileLoader(key, path string) Loader {
	return func() (map[string]string, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		return map[string]string{key: strings.TrimSpace(string(data))}, nil
	}
}
