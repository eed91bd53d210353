package params

import (
	"fmt"
	"os"

	"github.com/google/renameio/v2"
	"github.com/pelletier/go-toml/v2"
)

// LoadFile reads a TOML params file. Top-level keys are the flags themselves,
// quoted, with secondary streams as an array of tables:
//
//	"-livestream" = true
//	"-bpp" = 0.15
//
//	[["-streams"]]
//	"-resolution" = "640x360"
//	"-video_bitrate" = "800k"
func LoadFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read params file: %w", err)
	}

	raw := make(map[string]any)
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse params file %s: %w", path, err)
	}
	return raw, nil
}

// SaveFile writes cfg as a params file, atomically replacing path.
func SaveFile(path string, cfg Config) error {
	data, err := toml.Marshal(cfg.ToMap())
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write params file: %w", err)
	}
	return nil
}
