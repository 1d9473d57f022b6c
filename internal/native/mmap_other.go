//go:build !unix

package native

import (
	"fmt"
	"os"
)

// Map reads path into memory on platforms without mmap support.
func Map(path string) (*Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot map empty file %s", path)
	}
	return &Mapping{data: data}, nil
}
