package env

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvFilenames are the candidate environment file names, checked in order.
var EnvFilenames = []string{
	"treq-env.yaml",
	"treq-env.yml",
}

type Environment struct {
	Name      string
	Variables map[string]any
}

// LoadEnvironment loads the named environment from the first environment
// file found in dir. A missing file yields an empty environment rather
// than an error; a missing environment name inside an existing file is an
// error.
func LoadEnvironment(dir, envName string) (*Environment, error) {
	environment := &Environment{
		Name:      envName,
		Variables: make(map[string]any),
	}

	var path string
	for _, filename := range EnvFilenames {
		candidate := filepath.Join(dir, filename)
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
			break
		}
	}
	if path == "" {
		return environment, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading environment file: %w", err)
	}

	var envs map[string]map[string]any
	if err := yaml.Unmarshal(data, &envs); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}

	vars, ok := envs[envName]
	if !ok {
		return nil, fmt.Errorf("environment %q not found in %s", envName, filepath.Base(path))
	}
	for k, v := range vars {
		environment.Variables[k] = v
	}

	return environment, nil
}

// MergeVariables merges variable maps left to right; later sources win.
func MergeVariables(sources ...map[string]any) map[string]any {
	result := make(map[string]any)
	for _, src := range sources {
		for k, v := range src {
			result[k] = v
		}
	}
	return result
}

// LoadDotEnv parses a .env file: KEY=value lines, quoted values, and
// # comments. Values are returned, not exported to the OS environment.
func LoadDotEnv(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open env file: %w", err)
	}

	result := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}

		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" {
			continue
		}

		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		result[key] = value
	}

	return result, nil
}
