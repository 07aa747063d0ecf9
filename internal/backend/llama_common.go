package backend

import (
	"fmt"
	"strings"

	"lightserve/internal/config"
	"lightserve/internal/registry"
)

// Llama backend parameters read from the descriptor.
const (
	ParamModelsDir   = "models_dir"
	ParamContextSize = "context_size"
	ParamThreads     = "threads"
)

// resolveModelPath picks the GGUF file to load: an explicit model_path,
// else model_name looked up in models_dir, else model_name itself when it
// names a .gguf file.
func resolveModelPath(d config.Descriptor) (string, error) {
	if p := strings.TrimSpace(d.String(ParamModelPath, "")); p != "" {
		return p, nil
	}
	if dir := strings.TrimSpace(d.String(ParamModelsDir, "")); dir != "" {
		models, err := registry.LoadDir(dir)
		if err != nil {
			return "", fmt.Errorf("llama: scan %s: %w", dir, err)
		}
		m, err := registry.Resolve(models, d.Model)
		if err != nil {
			return "", fmt.Errorf("llama: %w", err)
		}
		return m.Path, nil
	}
	if strings.HasSuffix(strings.ToLower(d.Model), ".gguf") {
		return d.Model, nil
	}
	return "", fmt.Errorf("llama: set %s or %s to locate model %q", ParamModelPath, ParamModelsDir, d.Model)
}
