package media

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// allowed image extensions for analysis; everything else is rejected by
// policy
var analyzableExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".tiff": true,
	".webp": true,
}

// LocalFileStore resolves file references against a local directory root.
// References are relative paths handed out by the surrounding platform.
type LocalFileStore struct {
	root string
}

// NewLocalFileStore creates a file store rooted at the given directory.
func NewLocalFileStore(root string) (*LocalFileStore, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("invalid file store root '%s': %w", root, err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("file store root '%s' is not accessible: %w", absRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("file store root '%s' is not a directory", absRoot)
	}
	return &LocalFileStore{root: absRoot}, nil
}

// ResolveFile maps a file reference to a local path, rejecting references
// that escape the root or name non-image files.
func (s *LocalFileStore) ResolveFile(fileID string) (string, error) {
	fullPath := filepath.Clean(filepath.Join(s.root, filepath.FromSlash(fileID)))
	// a bare prefix check would admit sibling directories like <root>-private
	if fullPath != s.root && !strings.HasPrefix(fullPath, s.root+string(filepath.Separator)) {
		return "", ErrFileForbidden
	}

	if !analyzableExtensions[strings.ToLower(filepath.Ext(fullPath))] {
		return "", ErrFileForbidden
	}

	if _, err := os.Stat(fullPath); err != nil {
		if os.IsNotExist(err) {
			return "", ErrFileVanished
		}
		return "", fmt.Errorf("failed to stat file %s: %w", fileID, err)
	}
	return fullPath, nil
}
