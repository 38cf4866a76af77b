package internal

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/vidgrab/vidgrab/internal/api"
	"github.com/vidgrab/vidgrab/internal/download"
	"github.com/vidgrab/vidgrab/internal/engine"
)

// VidgrabConfig is the struct used to contain the various user config
// supplied by file and/or environment.
type VidgrabConfig struct {
	Download   download.Config    `yaml:"download"`
	Engine     engine.YtdlpConfig `yaml:"engine"`
	RestConfig api.RestConfig     `yaml:"api"`
}

// LoadFromFile loads a YAML configuration file into a VidgrabConfig,
// applying environment overrides and defaults. A missing file is not an
// error - the environment and defaults alone are used instead.
func (config *VidgrabConfig) LoadFromFile(configPath string) error {
	err := cleanenv.ReadConfig(configPath, config)
	if errors.Is(err, fs.ErrNotExist) {
		err = cleanenv.ReadEnv(config)
	}

	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	return nil
}
