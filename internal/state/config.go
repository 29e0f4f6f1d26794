package state

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/oss-supervisor/workflow-supervisor/internal/core"
)

// envAPIKeys maps the environment variables that override the routing
// config's api-keys map to the provider key they populate (spec.md §4.10,
// §4.11: "environment variables override the api-keys map"). OLLAMA_BASE_URL
// is not a credential, but the spec groups it with the other three
// provider overrides, so it is carried the same way under the
// "ollama_base_url" key.
var envAPIKeys = map[string]string{
	"OPENROUTER_API_KEY": "openrouter",
	"OPENAI_API_KEY":     "openai",
	"GEMINI_API_KEY":     "gemini",
	"OLLAMA_BASE_URL":    "ollama_base_url",
}

// LoadRoutingConfig reads the user- and project-scope routing config files
// (both JSON, viper-backed so a future CLI surface can bind flags onto the
// same Viper instance), merges project-over-user, and applies environment
// overrides last. A missing or malformed file at either scope is silently
// treated as an empty config — this loader never errors (spec.md §4.11:
// "readers must recover from missing or malformed files by returning
// defaults").
func LoadRoutingConfig(userPath, projectPath string) core.RoutingProviderConfig {
	user := loadRoutingScope(userPath)
	project := loadRoutingScope(projectPath)
	merged := core.MergeRoutingConfig(user, project)
	applyEnvOverrides(&merged)
	return merged
}

func loadRoutingScope(path string) core.RoutingProviderConfig {
	var cfg core.RoutingProviderConfig
	if path == "" {
		return cfg
	}
	if _, err := os.Stat(path); err != nil {
		return cfg
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return core.RoutingProviderConfig{}
	}

	// Re-marshal through encoding/json rather than v.Unmarshal: the config
	// file's keys are snake_case JSON tags, and viper's default decoder
	// matches struct fields by name, not by json tag.
	raw, err := json.Marshal(v.AllSettings())
	if err != nil {
		return core.RoutingProviderConfig{}
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return core.RoutingProviderConfig{}
	}
	return cfg
}

func applyEnvOverrides(cfg *core.RoutingProviderConfig) {
	for envVar, key := range envAPIKeys {
		val := strings.TrimSpace(os.Getenv(envVar))
		if val == "" {
			continue
		}
		if cfg.APIKeys == nil {
			cfg.APIKeys = make(map[string]string)
		}
		cfg.APIKeys[key] = val
	}
}
