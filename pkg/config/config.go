package config

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/kkyr/fig"
)

const EnvPrefix = "LIVECLASS"

// LoadConfig loads a configuration file into the given struct.
// The path param specifies a custom path to the configuration file.
// Reads and puts environment variables with the prefix LIVECLASS_.
// Params from the config should be in uppercase separated with _.
func LoadConfig(config any, path string) error {
	_ = godotenv.Load()
	dirs := []string{path}
	if path == "" {
		dirs = []string{".", "configs", "../../../configs"}
		if home, err := os.UserHomeDir(); err == nil {
			dirs = append(dirs, home+"/.liveclass")
		}
	}
	return fig.Load(config, fig.Dirs(dirs...), fig.UseEnv(EnvPrefix))
}

func LoadConfigEnv(config any) error {
	_ = godotenv.Load()
	return fig.Load(config, fig.IgnoreFile(), fig.UseEnv(EnvPrefix))
}
