package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/treq/packages/core/config"
	"github.com/abdul-hamid-achik/treq/packages/plugin"
	"github.com/abdul-hamid-achik/treq/packages/resolver"
)

var pluginsConfigFlag string

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "Show loaded plugins and configured resolvers",
	Long: `Show the plugins this project loads (with their granted
permissions) and the external resolver commands it configures, including
whether each command executable can be found.

Examples:
  treq plugins
  treq plugins --config .treq.config.json`,
	RunE: pluginsCommand,
}

func init() {
	pluginsCmd.Flags().StringVar(&pluginsConfigFlag, "config", "", "Path to config file")
}

func pluginsCommand(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(pluginsConfigFlag)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	projectRoot, err := os.Getwd()
	if err != nil {
		return err
	}

	manager, err := buildManager(zerolog.Nop(), projectRoot, cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	plugins := manager.Plugins()
	if len(plugins) == 0 && len(cfg.Resolvers) == 0 {
		fmt.Fprintln(out, "No plugins or external resolvers configured.")
		return nil
	}

	if len(plugins) > 0 {
		fmt.Fprintln(out, "Plugins:")
		for _, lp := range plugins {
			fmt.Fprintf(out, "  %s\n", lp.ID)
			if lp.Definition.Version != "" {
				fmt.Fprintf(out, "    version: %s\n", lp.Definition.Version)
			}
			fmt.Fprintf(out, "    source: %s\n", lp.Source)
			fmt.Fprintf(out, "    permissions: %s\n", formatPermissions(lp.Granted))
		}
		fmt.Fprintln(out)
	}

	if len(cfg.Resolvers) == 0 {
		return nil
	}

	fmt.Fprintln(out, "External resolvers:")

	names := make([]string, 0, len(cfg.Resolvers))
	for name := range cfg.Resolvers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		def := cfg.Resolvers[name]
		timeout := def.TimeoutMs
		if timeout == 0 {
			timeout = int(resolver.DefaultTimeout.Milliseconds())
		}

		fmt.Fprintf(out, "  %s\n", name)
		fmt.Fprintf(out, "    command: %s\n", strings.Join(def.Command, " "))
		fmt.Fprintf(out, "    timeout: %dms\n", timeout)

		if _, err := exec.LookPath(def.Command[0]); err != nil {
			color.New(color.FgYellow).Fprintf(out, "    warning: ")
			fmt.Fprintf(out, "executable %q not found in PATH\n", def.Command[0])
		}
	}

	return nil
}

func formatPermissions(granted map[plugin.Permission]bool) string {
	if len(granted) == 0 {
		return "none"
	}
	perms := make([]string, 0, len(granted))
	for perm, ok := range granted {
		if ok {
			perms = append(perms, string(perm))
		}
	}
	sort.Strings(perms)
	return strings.Join(perms, ", ")
}
