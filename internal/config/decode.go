package config

import (
	"io"

	"gopkg.in/yaml.v3"
)

// decodeYAMLFile resolves ${VAR} interpolation then decodes straight into
// out with yaml.v3, used for the config files that carry custom
// UnmarshalYAML hooks (timers_config.yaml's LockoutDuration tokens).
func decodeYAMLFile(path string, out interface{}) error {
	r, err := ResolveFile(path)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, out)
}
