package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/abdul-hamid-achik/treq/packages/core/config"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new treq project",
	Long: `Initialize a new treq project in the current directory.

This creates:
  - .treq.config.json - Configuration file
  - treq-env.yaml     - Environment variables per environment
  - example.http      - Example request file

Examples:
  treq init
  treq init --force`,
	RunE: initCommand,
}

func init() {
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Overwrite existing files")
}

func initCommand(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	configFile := filepath.Join(cwd, ".treq.config.json")
	envFile := filepath.Join(cwd, "treq-env.yaml")
	exampleFile := filepath.Join(cwd, "example.http")

	if !forceInit {
		for _, f := range []string{configFile, envFile, exampleFile} {
			if _, err := os.Stat(f); err == nil {
				return fmt.Errorf("file already exists: %s (use --force to overwrite)", f)
			}
		}
	}

	cfg := config.DefaultConfig()
	cfg.Headers = map[string]string{
		"User-Agent": "treq/1.0",
	}
	if err := cfg.SaveConfig(configFile); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", configFile)

	envContent := map[string]map[string]string{
		"dev": {
			"baseUrl": "http://localhost:3000",
		},
		"staging": {
			"baseUrl": "https://staging.api.example.com",
		},
		"prod": {
			"baseUrl": "https://api.example.com",
		},
	}
	envYAML, _ := yaml.Marshal(envContent)
	if err := os.WriteFile(envFile, envYAML, 0644); err != nil {
		return fmt.Errorf("failed to create environment file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", envFile)

	exampleContent := `### Get health status
# @name healthCheck

GET {{baseUrl}}/health

### Create a resource
# @name createResource
# @maxRetries 2

POST {{baseUrl}}/resources
Content-Type: application/json

{
  "name": "Test Resource",
  "requestedAt": "{{$now}}",
  "idempotencyKey": "{{$uuid}}"
}
`

	if err := os.WriteFile(exampleFile, []byte(exampleContent), 0644); err != nil {
		return fmt.Errorf("failed to create example file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", exampleFile)

	fmt.Fprintf(cmd.OutOrStdout(), "\ntreq project initialized!\n")
	fmt.Fprintf(cmd.OutOrStdout(), "Run 'treq run example.http' to execute the example requests.\n")

	return nil
}
