// Package filex contains small filesystem helpers for the client daemon.
package filex

import (
	"fmt"
	"os"
)

// ReadOrCreate returns the contents of path. When the file does not
// exist, generate is called once, its output written to path with mode
// 0600 and returned. Used for bootstrap material such as the
// key-derivation salt, which must survive restarts but is created lazily.
func ReadOrCreate(path string, generate func() ([]byte, error)) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return data, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	data, err = generate()
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, fmt.Errorf("write %s: %w", path, err)
	}
	return data, nil
}
