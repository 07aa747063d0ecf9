package registry

import (
	"fmt"
	"path/filepath"
	"strings"

	"lightserve/internal/common/fsutil"
	"lightserve/pkg/types"
)

// LoadDir scans a directory for *.gguf files and builds a registry from filenames.
// ID is the full filename (including extension); Path is the absolute file path.
// Name is the filename without extension.
func LoadDir(dir string) ([]types.Model, error) {
	files, err := fsutil.FilesWithExt(dir, ".gguf")
	if err != nil {
		return nil, err
	}
	models := make([]types.Model, 0, len(files))
	for _, p := range files {
		id := filepath.Base(p)
		models = append(models, types.Model{
			ID:   id,
			Name: strings.TrimSuffix(id, filepath.Ext(id)),
			Path: p,
		})
	}
	return models, nil
}

// Resolve finds the model served under name. A match on ID wins over a match
// on Name; comparison is case-insensitive.
func Resolve(models []types.Model, name string) (types.Model, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, m := range models {
		if strings.ToLower(m.ID) == n {
			return m, nil
		}
	}
	for _, m := range models {
		if strings.ToLower(m.Name) == n {
			return m, nil
		}
	}
	return types.Model{}, fmt.Errorf("model %q not found in registry", name)
}
