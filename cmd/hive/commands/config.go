package commands

import (
	"github.com/mosaicnetworks/hive/src/config"
)

//CLIConfig contains configuration for the Run command
type CLIConfig struct {
	Hive    config.Config `mapstructure:",squash"`
	Console bool          `mapstructure:"console"`
}

//NewDefaultCLIConfig creates a CLIConfig with default values
func NewDefaultCLIConfig() *CLIConfig {
	return &CLIConfig{
		Hive:    *config.NewDefaultConfig(),
		Console: true,
	}
}
