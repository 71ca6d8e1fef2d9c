package floor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// sceneFile is the on-disk snapshot format
type sceneFile struct {
	Surfaces []Surface `json:"surfaces"`
}

// SaveScene writes all surfaces of a scene to disk as JSON
func SaveScene(scene *Scene, path string) error {
	data, err := json.MarshalIndent(sceneFile{Surfaces: scene.Surfaces()}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal scene: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create scene directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write scene file: %w", err)
	}
	return nil
}

// LoadScene reads a scene snapshot from a JSON file on disk
func LoadScene(path string) (*Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scene file: %w", err)
	}
	surfaces, err := DecodeSurfaces(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal scene file: %w", err)
	}
	scene := NewScene()
	for _, s := range surfaces {
		scene.Upsert(s)
	}
	return scene, nil
}
