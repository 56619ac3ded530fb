package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/treq/packages/import/curl"
	"github.com/abdul-hamid-achik/treq/packages/import/insomnia"
)

var importOutFlag string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import requests from other tools",
}

var importCurlCmd = &cobra.Command{
	Use:   "curl <file|command>",
	Short: "Convert curl commands to a treq file",
	Long: `Convert curl commands to a treq request file.

The argument is either a file of curl commands (one per line, backslash
continuations allowed) or a single curl command.

Examples:
  treq import curl commands.txt -o api.http
  treq import curl 'curl -X POST https://api.example.com/users -d "{}"'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		converter := curl.NewConverter()

		var out string
		var err error
		if _, statErr := os.Stat(args[0]); statErr == nil {
			out, err = converter.ConvertFile(args[0])
		} else {
			out, err = converter.ConvertCommand(args[0])
		}
		if err != nil {
			return err
		}
		return writeImported(cmd, out)
	},
}

var importInsomniaCmd = &cobra.Command{
	Use:   "insomnia <export.json>",
	Short: "Convert an Insomnia export to a treq file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := insomnia.NewConverter().ConvertFile(args[0])
		if err != nil {
			return err
		}
		return writeImported(cmd, out)
	},
}

func writeImported(cmd *cobra.Command, content string) error {
	if importOutFlag == "" {
		fmt.Fprint(cmd.OutOrStdout(), content)
		return nil
	}
	if err := os.WriteFile(importOutFlag, []byte(content), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", importOutFlag, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", importOutFlag)
	return nil
}

func init() {
	importCmd.PersistentFlags().StringVarP(&importOutFlag, "out", "o", "", "Write the converted file here instead of stdout")
	importCmd.AddCommand(importCurlCmd)
	importCmd.AddCommand(importInsomniaCmd)
}
