package main

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"dbxagent/internal/config"
)

// overrides bind config keys to flags and environment variables. Flags win
// over the environment, which wins over the file.
var overrides = []struct {
	key  string
	flag string
	env  string
}{
	{"workspace.host", "host", "DATABRICKS_HOST"},
	{"workspace.token", "token", "DATABRICKS_TOKEN"},
	{"llm.endpoint", "model", "DATABRICKS_LLM_ENDPOINT"},
	{"vector_search.endpoint", "", "VS_ENDPOINT"},
	{"observability.logging.level", "log-level", "DBXAGENT_LOG_LEVEL"},
}

func bindOverrides(v *viper.Viper, flags *pflag.FlagSet) error {
	for _, o := range overrides {
		if err := v.BindEnv(o.key, o.env); err != nil {
			return err
		}
		if o.flag == "" {
			continue
		}
		if f := flags.Lookup(o.flag); f != nil {
			if err := v.BindPFlag(o.key, f); err != nil {
				return err
			}
		}
	}
	return nil
}

// loadSettings reads the config file and applies overrides from v.
func loadSettings(v *viper.Viper, path string) (config.Config, string, error) {
	cfg, used, err := config.Load(path)
	if err != nil {
		return config.Config{}, used, fmt.Errorf("%s: %w", describe(used), err)
	}

	set := func(key string, target *string) {
		if value := strings.TrimSpace(v.GetString(key)); value != "" {
			*target = value
		}
	}
	set("workspace.host", &cfg.Workspace.Host)
	set("workspace.token", &cfg.Workspace.Token)
	set("llm.endpoint", &cfg.LLM.Endpoint)
	set("vector_search.endpoint", &cfg.VectorSearch.Endpoint)
	set("observability.logging.level", &cfg.Observability.Logging.Level)

	if err := cfg.Validate(); err != nil {
		return config.Config{}, used, fmt.Errorf("%s: %w", describe(used), err)
	}
	return cfg, used, nil
}

func describe(path string) string {
	if path == "" {
		return "default configuration"
	}
	return path
}
