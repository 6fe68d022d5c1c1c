package files

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var ErrNotFound = errors.New("pdf file not found")

// Locator resolves a stored PDF file name to a servable path.
type Locator interface {
	PathFor(fileName string) (string, error)
}

type diskLocator struct {
	root string
}

func NewDiskLocator(root string) Locator {
	return &diskLocator{root: root}
}

func (l *diskLocator) PathFor(fileName string) (string, error) {
	// File names come from the catalog, not the client, but reject path
	// escapes anyway.
	if fileName == "" || strings.Contains(fileName, "..") || strings.ContainsRune(fileName, os.PathSeparator) {
		return "", fmt.Errorf("%w: invalid file name %q", ErrNotFound, fileName)
	}
	path := filepath.Join(l.root, fileName)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return "", ErrNotFound
	}
	return path, nil
}
