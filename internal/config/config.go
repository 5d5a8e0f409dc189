// This file defines the configuration structure for the runner host.
package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Version is the host version runners are checked against.
const Version = "1.0.0"

// Config holds all configuration settings for the application.
// It maps directly to the structure of config.yml.
type Config struct {
	Port     int `mapstructure:"port"`
	Database struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`
	Runners struct {
		Path        string `mapstructure:"path"`
		Watch       bool   `mapstructure:"watch"`
		CallTimeout int    `mapstructure:"call_timeout"`
	} `mapstructure:"runners"`
	Network struct {
		Timeout   int    `mapstructure:"timeout"`
		UserAgent string `mapstructure:"user_agent"`
	} `mapstructure:"network"`
	Browser struct {
		DevToolsURL string `mapstructure:"devtools_url"`
	} `mapstructure:"browser"`
	Updates struct {
		Interval       int      `mapstructure:"interval"`
		SkipConditions []string `mapstructure:"skip_conditions"`
		ValidFlags     []string `mapstructure:"valid_flags"`
		Concurrency    int      `mapstructure:"concurrency"`
	} `mapstructure:"updates"`
	SecureStore struct {
		Key string `mapstructure:"key"`
	} `mapstructure:"secure_store"`
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
		File   string `mapstructure:"file"`
	} `mapstructure:"log"`
}

// Load reads configuration from a file named "config.yml" in the
// current directory and unmarshals it into a Config struct.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yml")
	v.AddConfigPath(".")

	// MANGO_RUNNERS_PATH overrides `runners.path`, and so on.
	v.SetEnvPrefix("MANGO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("database.path", "./mango-runner.db")
	v.SetDefault("runners.path", "./runners")
	v.SetDefault("runners.watch", true)
	v.SetDefault("runners.call_timeout", 0)
	v.SetDefault("network.timeout", 30)
	v.SetDefault("network.user_agent", "mango-runner/"+Version)
	v.SetDefault("browser.devtools_url", "")
	v.SetDefault("updates.interval", 360)
	v.SetDefault("updates.skip_conditions", []string{})
	v.SetDefault("updates.valid_flags", []string{"reading", "planned"})
	v.SetDefault("updates.concurrency", 4)
	v.SetDefault("secure_store.key", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")
}
