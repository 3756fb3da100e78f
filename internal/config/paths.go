package config

import "os"

// ConfigPath is the default config file location. CONFIG_PATH overrides it.
var ConfigPath = defaultConfigPath()

func defaultConfigPath() string {
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		return v
	}
	return "config.yaml"
}
