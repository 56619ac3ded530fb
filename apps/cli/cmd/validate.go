package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/treq/packages/core/config"
	"github.com/abdul-hamid-achik/treq/packages/core/parser"
	"github.com/abdul-hamid-achik/treq/packages/plugin"
)

var validateConfigFlag string

var validateCmd = &cobra.Command{
	Use:   "validate <file|directory>",
	Short: "Validate treq files for syntax errors and lint findings",
	Long: `Validate treq files without executing them. Each file is checked
for syntax errors, then handed to the loaded plugins' validate hooks,
whose diagnostics are printed with their position in the file.

Examples:
  treq validate api.http
  treq validate ./requests/
  treq validate api.http --config .treq.config.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: validateCommand,
}

func init() {
	validateCmd.Flags().StringVar(&validateConfigFlag, "config", "", "Path to config file")
}

// fileReport is the validation outcome for one file: the parse error,
// if any, plus every diagnostic the validate hooks produced.
type fileReport struct {
	parseErr    error
	diagnostics []plugin.Diagnostic
}

// failed reports whether the file should fail validation: a syntax
// error or any error-severity diagnostic.
func (r *fileReport) failed() bool {
	if r.parseErr != nil {
		return true
	}
	for _, d := range r.diagnostics {
		if d.Severity == plugin.SeverityError {
			return true
		}
	}
	return false
}

func validateCommand(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no .http or .treq files found")
	}

	cfg, err := config.LoadConfig(validateConfigFlag)
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

	ctx := context.Background()
	if err := manager.Setup(ctx); err != nil {
		return fmt.Errorf("plugin setup: %w", err)
	}
	defer manager.Teardown(context.Background())

	hasErrors := false
	for _, file := range files {
		report, err := validateFile(ctx, manager, file)
		if err != nil {
			printError(cmd, err)
			hasErrors = true
			continue
		}

		if report.parseErr != nil {
			fmt.Fprintf(cmd.OutOrStderr(), "Error in %s: %v\n", file, report.parseErr)
		}
		for _, d := range report.diagnostics {
			printDiagnostic(cmd.OutOrStdout(), file, d)
		}
		if report.failed() {
			hasErrors = true
		} else if len(report.diagnostics) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "Valid: %s\n", file)
		}
	}

	if hasErrors {
		return fmt.Errorf("validation failed")
	}
	return nil
}

// validateFile parses one file and runs the loaded validate hooks over
// its raw content. A syntax error does not stop hook dispatch; hooks
// see the content either way.
func validateFile(ctx context.Context, manager *plugin.Manager, path string) (*fileReport, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	content := string(raw)

	report := &fileReport{}
	if _, err := parser.Parse(content, path); err != nil {
		report.parseErr = err
	}

	report.diagnostics = manager.TriggerValidate(ctx, &plugin.ValidateInput{
		Content:       content,
		Path:          path,
		LinePositions: parser.LineOffsets(content),
		Ctx:           manager.CreateHookContext(nil),
	})
	return report, nil
}

func printDiagnostic(out io.Writer, path string, d plugin.Diagnostic) {
	severity := color.New(color.FgBlue)
	switch d.Severity {
	case plugin.SeverityError:
		severity = color.New(color.FgRed)
	case plugin.SeverityWarning:
		severity = color.New(color.FgYellow)
	}

	severity.Fprintf(out, "%s", d.Severity)
	if d.Code != "" {
		fmt.Fprintf(out, " [%s]", d.Code)
	}
	fmt.Fprintf(out, " %s:%d:%d: %s\n", path, d.Range.Start.Line, d.Range.Start.Column, d.Message)
}
