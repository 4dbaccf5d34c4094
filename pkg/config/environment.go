package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"sigs.k8s.io/yaml"
)

// SetupEnvironment loads the YAML config file named by the
// LEASING_CONFIG_FILE environment variable (default config.local.yml),
// applies environment variable overrides, and validates the result.
func SetupEnvironment(appMode string) error {
	makeError := func(err error) error {
		return fmt.Errorf("failed to set up environment. details: %w", err)
	}

	filepath, ok := os.LookupEnv("LEASING_CONFIG_FILE")
	if !ok || filepath == "" {
		filepath = "config.local.yml"
	}

	yamlFile, err := os.ReadFile(filepath)
	if err != nil {
		return makeError(err)
	}

	var loaded Type
	if err := yaml.Unmarshal(yamlFile, &loaded); err != nil {
		return makeError(err)
	}
	Config = &loaded
	Config.Mode = appMode

	if nodeName := os.Getenv("LEASING_NODE_NAME"); nodeName != "" {
		Config.NodeName = nodeName
	}

	if backend := os.Getenv("LEASING_BACKEND"); backend != "" {
		Config.Backend = backend
	}

	if err := Validate(Config); err != nil {
		return makeError(err)
	}

	return nil
}

// Validate runs struct-tag validation over an arbitrary config fragment.
// Also usable by callers that assemble a Type or LeaseConfig by hand
// instead of through SetupEnvironment.
func Validate(v interface{}) error {
	return validator.New().Struct(v)
}
