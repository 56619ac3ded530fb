package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/treq/packages/core/parser"
)

var listCmd = &cobra.Command{
	Use:   "list <file|directory>",
	Short: "List all requests in treq files",
	Long: `List all requests defined in .http or .treq files.

Examples:
  treq list api.http
  treq list ./requests/`,
	Args: cobra.MinimumNArgs(1),
	RunE: listCommand,
}

func listCommand(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return err
	}

	if len(files) == 0 {
		return fmt.Errorf("no .http or .treq files found")
	}

	for _, file := range files {
		f, err := parser.ParseFile(file)
		if err != nil {
			fmt.Fprintf(cmd.OutOrStderr(), "Error parsing %s: %v\n", file, err)
			continue
		}

		fmt.Fprintf(cmd.OutOrStdout(), "\n%s:\n", file)
		for _, req := range f.Requests {
			fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", requestLabel(req))
			if req.Skip != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "    skip: %s\n", req.Skip)
			}
		}
	}

	return nil
}
