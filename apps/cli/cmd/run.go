package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/treq/packages/auth/oauth2"
	"github.com/abdul-hamid-achik/treq/packages/core/config"
	"github.com/abdul-hamid-achik/treq/packages/core/env"
	"github.com/abdul-hamid-achik/treq/packages/core/parser"
	"github.com/abdul-hamid-achik/treq/packages/core/pipeline"
	"github.com/abdul-hamid-achik/treq/packages/export/metrics"
	"github.com/abdul-hamid-achik/treq/packages/history"
	treqhttp "github.com/abdul-hamid-achik/treq/packages/http"
	"github.com/abdul-hamid-achik/treq/packages/notify"
	"github.com/abdul-hamid-achik/treq/packages/output"
	"github.com/abdul-hamid-achik/treq/packages/plugin"
	"github.com/abdul-hamid-achik/treq/packages/resolver"
	"github.com/abdul-hamid-achik/treq/packages/snapshot"
	"github.com/abdul-hamid-achik/treq/packages/stats"
)

var runCmd = &cobra.Command{
	Use:   "run <file|directory>",
	Short: "Run requests from treq files",
	Long: `Run HTTP requests defined in .http or .treq files.

Examples:
  treq run api.http
  treq run api.http --env staging
  treq run ./requests/ --name "createUser"
  treq run api.http --watch
  treq run ./requests/ --rate 5 --max-retries 2`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCommand,
}

const (
	// WatchDebounceDelay is the debounce delay for file watch events
	WatchDebounceDelay = 300 * time.Millisecond
)

var (
	envFlag        string
	envFileFlag    string
	configFlag     string
	nameFlag       string
	verboseFlag    int
	noColorFlag    bool
	bailFlag       bool
	timeoutFlag    string
	maxRetriesFlag int
	rateFlag       float64
	watchFlag      bool
	dryRunFlag     bool
	proxyFlag      string
	insecureFlag   bool
	noHistoryFlag  bool
	outputFlag     string
	reportFileFlag string
	metricsOutFlag string
)

func init() {
	runCmd.Flags().StringVarP(&envFlag, "env", "e", getEnvString("TREQ_ENV", ""), "Environment to use (env: TREQ_ENV)")
	runCmd.Flags().StringVar(&envFileFlag, "env-file", getEnvString("TREQ_ENV_FILE", ""), "Path to .env file for variable interpolation (env: TREQ_ENV_FILE)")
	runCmd.Flags().StringVar(&configFlag, "config", getEnvString("TREQ_CONFIG", ""), "Path to config file (env: TREQ_CONFIG)")
	runCmd.Flags().StringVarP(&nameFlag, "name", "n", "", "Run only requests whose name contains the pattern")

	runCmd.Flags().CountVarP(&verboseFlag, "verbose", "v", "Verbose output (-v, -vv for more detail)")
	runCmd.Flags().BoolVar(&noColorFlag, "no-color", getEnvBool("TREQ_NO_COLOR", false), "Disable colored output (env: TREQ_NO_COLOR)")

	runCmd.Flags().BoolVar(&bailFlag, "bail", getEnvBool("TREQ_BAIL", false), "Stop on first failure (env: TREQ_BAIL)")
	runCmd.Flags().StringVar(&timeoutFlag, "timeout", getEnvString("TREQ_TIMEOUT", ""), "Request timeout (e.g., 30s, 1m) (env: TREQ_TIMEOUT)")
	runCmd.Flags().IntVar(&maxRetriesFlag, "max-retries", -1, "Retry budget for requests without their own @maxRetries")
	runCmd.Flags().Float64VarP(&rateFlag, "rate", "r", 0, "Throttle request starts per second")
	runCmd.Flags().BoolVarP(&watchFlag, "watch", "w", false, "Watch files for changes and re-run")
	runCmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "Parse and show what would run without executing")

	runCmd.Flags().StringVar(&proxyFlag, "proxy", getEnvString("TREQ_PROXY", ""), "Proxy URL for HTTP requests (env: TREQ_PROXY)")
	runCmd.Flags().BoolVarP(&insecureFlag, "insecure", "k", getEnvBool("TREQ_INSECURE", false), "Disable SSL certificate validation (env: TREQ_INSECURE)")
	runCmd.Flags().BoolVar(&noHistoryFlag, "no-history", false, "Do not persist runs to the history database")

	runCmd.Flags().StringVarP(&outputFlag, "output", "o", "console", "Output format: console, json, junit, tap")
	runCmd.Flags().StringVar(&reportFileFlag, "report-file", "", "Write the report to a file instead of stdout")
	runCmd.Flags().StringVar(&metricsOutFlag, "metrics-out", "", "Write run metrics to a file (.prom or .json)")
}

// Environment variable helpers
func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1" || val == "yes"
	}
	return defaultVal
}

func runCommand(cmd *cobra.Command, args []string) error {
	color.NoColor = color.NoColor || noColorFlag

	logger := newLogger(verboseFlag)

	cfg, err := config.LoadConfig(configFlag)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if noColorFlag || cfg.GetNoColor() {
		color.NoColor = true
	}
	if cfg.GetBail() {
		bailFlag = true
	}

	files, err := collectFiles(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no .http or .treq files found")
	}

	projectRoot, err := os.Getwd()
	if err != nil {
		return err
	}

	manager, err := buildManager(logger, projectRoot, cfg)
	if err != nil {
		return err
	}

	variables, err := loadVariables(projectRoot, cfg)
	if err != nil {
		return err
	}

	p := buildPipeline(logger, manager, cfg)

	recorder := stats.NewRecorder()
	manager.Subscribe(recorder.Observe)

	formatter, closeReport, err := buildFormatter(cmd)
	if err != nil {
		return err
	}
	defer closeReport()

	var store *history.Store
	if !noHistoryFlag && cfg.HistoryPath != "" {
		store, err = history.Open(cfg.HistoryPath)
		if err != nil {
			logger.Warn().Err(err).Msg("history disabled")
		} else {
			defer store.Close()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := manager.Setup(ctx); err != nil {
		return fmt.Errorf("plugin setup: %w", err)
	}
	defer manager.Teardown(context.Background())

	notifier := buildNotifier(cfg)

	var failures []notify.Failure
	runAll := func() (failed int, runErr error) {
		failures = failures[:0]
		for _, file := range files {
			parsed, err := parser.ParseFile(file)
			if err != nil {
				printError(cmd, fmt.Errorf("parsing %s: %w", file, err))
				failed++
				if bailFlag {
					return failed, err
				}
				continue
			}

			requests := filterRequests(parsed.Requests, nameFlag)
			if len(requests) == 0 {
				continue
			}
			parsed.Requests = requests

			if dryRunFlag {
				for _, req := range requests {
					fmt.Fprintf(cmd.OutOrStdout(), "Would run: %s %s %s\n", requestLabel(req), req.Method, req.URL)
				}
				continue
			}

			opts := &pipeline.FileRunOptions{
				MaxRetries: effectiveMaxRetries(cfg),
				Rate:       effectiveRate(cfg),
				Bail:       bailFlag,
				Variables:  variables,
			}

			results, err := p.RunFile(ctx, parsed, opts)
			formatter.FileResults(file, results)
			for _, res := range results {
				if !res.Skipped {
					recorder.Record(requestLabel(res.Request), res.Duration, res.Err)
				}
				if res.Err != nil {
					failed++
					failures = append(failures, notify.Failure{
						Name:  requestLabel(res.Request),
						File:  file,
						Error: res.Err.Error(),
					})
				}
				persistResult(ctx, store, manager, logger, res)
			}
			if err != nil {
				printError(cmd, err)
				return failed, err
			}
			if bailFlag && failed > 0 {
				break
			}
		}
		return failed, nil
	}

	failed, err := runAll()
	if flushErr := formatter.Flush(recorder.Summary()); flushErr != nil {
		printError(cmd, flushErr)
	}
	if metricsOutFlag != "" {
		if exportErr := metrics.WriteFile(metricsOutFlag, recorder.Summary()); exportErr != nil {
			printError(cmd, exportErr)
		}
	}
	sendNotifications(ctx, cmd, notifier, cfg, recorder.Summary(), failures)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}

	if !watchFlag {
		if failed > 0 {
			os.Exit(ExitRequestFailure)
		}
		return nil
	}

	return watchAndRerun(ctx, cmd, args, files, func() {
		_, _ = runAll()
		if flushErr := formatter.Flush(recorder.Summary()); flushErr != nil {
			printError(cmd, flushErr)
		}
		sendNotifications(ctx, cmd, notifier, cfg, recorder.Summary(), failures)
	})
}

// buildFormatter resolves --output and --report-file into a result
// formatter. Watch mode keeps the console format so reruns stay
// readable.
func buildFormatter(cmd *cobra.Command) (output.Formatter, func(), error) {
	format := output.Format(outputFlag)
	if watchFlag {
		format = output.FormatConsole
	}

	writer := cmd.OutOrStdout()
	closeReport := func() {}
	if reportFileFlag != "" {
		f, err := os.Create(reportFileFlag)
		if err != nil {
			return nil, nil, fmt.Errorf("creating report file: %w", err)
		}
		writer = f
		closeReport = func() { _ = f.Close() }
	}

	formatter, err := output.NewFormatter(format,
		output.WithWriter(writer),
		output.WithVerbose(verboseFlag > 0),
	)
	if err != nil {
		closeReport()
		return nil, nil, err
	}
	return formatter, closeReport, nil
}

// buildNotifier assembles the webhook notifier from the config's notify
// section; nil when no destination is configured.
func buildNotifier(cfg *config.Config) *notify.Manager {
	if cfg.Notify == nil || (cfg.Notify.Slack == "" && cfg.Notify.Teams == "") {
		return nil
	}

	on := notify.NotifyOn(cfg.Notify.On)
	if on == "" {
		on = notify.NotifyFailure
	}

	manager := notify.NewManager(on)
	if cfg.Notify.Slack != "" {
		var opts []notify.SlackOption
		if cfg.Notify.SlackChannel != "" {
			opts = append(opts, notify.WithSlackChannel(cfg.Notify.SlackChannel))
		}
		manager.AddNotifier(notify.NewSlackNotifier(cfg.Notify.Slack, opts...))
	}
	if cfg.Notify.Teams != "" {
		manager.AddNotifier(notify.NewTeamsNotifier(cfg.Notify.Teams))
	}
	return manager
}

func sendNotifications(ctx context.Context, cmd *cobra.Command, notifier *notify.Manager, cfg *config.Config, summary *stats.Summary, failures []notify.Failure) {
	if notifier == nil {
		return
	}

	environment := envFlag
	if environment == "" {
		environment = cfg.DefaultEnvironment
	}

	runSummary := &notify.RunSummary{
		Total:       summary.Total,
		Passed:      summary.Success,
		Failed:      summary.Errors,
		Skipped:     summary.Skips,
		Retries:     summary.Retries,
		Elapsed:     summary.Elapsed,
		Environment: environment,
		Failures:    failures,
	}
	if err := notifier.Notify(ctx, runSummary); err != nil {
		printError(cmd, fmt.Errorf("sending notifications: %w", err))
	}
}

func newLogger(verbosity int) zerolog.Logger {
	level := zerolog.WarnLevel
	switch {
	case verbosity >= 2:
		level = zerolog.TraceLevel
	case verbosity == 1:
		level = zerolog.DebugLevel
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}

// buildManager assembles the plugin manager from config: permission
// policy, hook timeout, per-plugin settings, and external resolver
// commands.
func buildManager(logger zerolog.Logger, projectRoot string, cfg *config.Config) (*plugin.Manager, error) {
	var opts []plugin.ManagerOption
	if cfg.Permissions != nil {
		opts = append(opts, plugin.WithPermissionPolicy(cfg.Permissions))
	}
	if cfg.HookTimeout > 0 {
		opts = append(opts, plugin.WithHookTimeout(time.Duration(cfg.HookTimeout)*time.Millisecond))
	}
	if len(cfg.PluginConfig) > 0 {
		managerCfg := make(map[string]any, len(cfg.PluginConfig))
		for name, settings := range cfg.PluginConfig {
			managerCfg[name] = settings
		}
		opts = append(opts, plugin.WithConfig(managerCfg))
	}

	manager := plugin.NewManager(logger, projectRoot, opts...)

	// Builtin plugins activate when the project config carries a block
	// for them.
	builtins := []func() *plugin.Definition{oauth2.New, snapshot.New}
	for _, build := range builtins {
		def := build()
		settings, ok := cfg.PluginConfig[def.Name]
		if !ok {
			continue
		}
		if _, err := manager.Register(def, plugin.SourceInline, settings); err != nil {
			return nil, fmt.Errorf("registering plugin %s: %w", def.Name, err)
		}
	}

	runner := resolver.NewRunner(logger)
	for name, def := range cfg.Resolvers {
		if err := manager.RegisterResolver(name, runner.ResolverFunc(def, name, projectRoot)); err != nil {
			return nil, fmt.Errorf("registering resolver %s: %w", name, err)
		}
	}

	return manager, nil
}

func buildPipeline(logger zerolog.Logger, manager *plugin.Manager, cfg *config.Config) *pipeline.Pipeline {
	clientOpts := []treqhttp.ClientOption{
		treqhttp.WithFollowRedirects(cfg.GetFollowRedirects()),
		treqhttp.WithValidateSSL(cfg.GetValidateSSL() && !insecureFlag),
	}
	if cfg.MaxRedirects > 0 {
		clientOpts = append(clientOpts, treqhttp.WithMaxRedirects(cfg.MaxRedirects))
	}
	if timeout := effectiveTimeout(cfg); timeout > 0 {
		clientOpts = append(clientOpts, treqhttp.WithTimeout(timeout))
	}
	if proxy := effectiveProxy(cfg); proxy != "" {
		clientOpts = append(clientOpts, treqhttp.WithProxy(proxy))
	}
	client := treqhttp.NewClient(clientOpts...)

	pipelineOpts := []pipeline.Option{
		pipeline.WithDefaultHeaders(cfg.Headers),
		pipeline.WithCookieProvider(pipeline.NewMemoryJar()),
		pipeline.WithLogger(logger),
	}
	if cfg.RetryDelay > 0 {
		pipelineOpts = append(pipelineOpts, pipeline.WithRetryDelay(time.Duration(cfg.RetryDelay)*time.Millisecond))
	}
	return pipeline.New(manager, client, pipelineOpts...)
}

// loadVariables merges, in increasing precedence: the named environment
// from treq-env.yaml, then the --env-file dotenv values.
func loadVariables(projectRoot string, cfg *config.Config) (map[string]any, error) {
	envName := envFlag
	if envName == "" {
		envName = cfg.DefaultEnvironment
	}

	environment, err := env.LoadEnvironment(projectRoot, envName)
	if err != nil {
		return nil, err
	}
	variables := environment.Variables

	if envFileFlag != "" {
		dotenv, err := env.LoadDotEnv(envFileFlag)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", envFileFlag, err)
		}
		overrides := make(map[string]any, len(dotenv))
		for k, v := range dotenv {
			overrides[k] = v
		}
		variables = env.MergeVariables(variables, overrides)
	}

	return variables, nil
}

func effectiveTimeout(cfg *config.Config) time.Duration {
	if timeoutFlag != "" {
		if d, err := time.ParseDuration(timeoutFlag); err == nil {
			return d
		}
	}
	if cfg.Timeout > 0 {
		return time.Duration(cfg.Timeout) * time.Millisecond
	}
	return 0
}

func effectiveProxy(cfg *config.Config) string {
	if proxyFlag != "" {
		return proxyFlag
	}
	return cfg.Proxy
}

func effectiveMaxRetries(cfg *config.Config) int {
	if maxRetriesFlag >= 0 {
		return maxRetriesFlag
	}
	return cfg.Retries
}

func effectiveRate(cfg *config.Config) float64 {
	if rateFlag > 0 {
		return rateFlag
	}
	return cfg.Rate
}

func filterRequests(requests []*parser.Request, pattern string) []*parser.Request {
	if pattern == "" {
		return requests
	}
	var filtered []*parser.Request
	for _, req := range requests {
		if strings.Contains(req.Name, pattern) {
			filtered = append(filtered, req)
		}
	}
	return filtered
}

func requestLabel(req *parser.Request) string {
	if req.Name != "" {
		return req.Name
	}
	return req.Method + " " + req.URL
}

func printError(cmd *cobra.Command, err error) {
	color.New(color.FgRed).Fprintf(cmd.OutOrStderr(), "Error: ")
	fmt.Fprintf(cmd.OutOrStderr(), "%v\n", err)
}

func persistResult(ctx context.Context, store *history.Store, manager *plugin.Manager, logger zerolog.Logger, res *pipeline.FileResult) {
	if store == nil || res.Skipped {
		return
	}

	run := &history.Run{
		RunID:       res.RunID,
		FlowID:      res.FlowID,
		RequestName: requestLabel(res.Request),
		Method:      res.Request.Method,
		URL:         res.Request.URL,
		DurationMs:  res.Duration.Milliseconds(),
	}
	if res.Response != nil {
		run.Status = res.Response.StatusCode
	}
	if res.Err != nil {
		run.Error = res.Err.Error()
	}
	if err := store.RecordRun(ctx, run); err != nil {
		logger.Warn().Err(err).Msg("recording run history")
		return
	}

	for _, rep := range manager.ReportsForRun(res.RunID) {
		if err := store.RecordReport(ctx, rep.PluginName, rep.RunID, rep.RequestName, rep.Seq, rep.Data); err != nil {
			logger.Warn().Err(err).Msg("recording report history")
		}
	}
}

func watchAndRerun(ctx context.Context, cmd *cobra.Command, args, files []string, rerun func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	watchedDirs := make(map[string]bool)
	for _, file := range files {
		dir := filepath.Dir(file)
		if !watchedDirs[dir] {
			if err := watcher.Add(dir); err != nil {
				printError(cmd, fmt.Errorf("failed to watch %s: %w", dir, err))
			}
			watchedDirs[dir] = true
		}
	}

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err == nil && info.IsDir() {
			_ = filepath.Walk(arg, func(path string, info os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				if info.IsDir() && !watchedDirs[path] {
					_ = watcher.Add(path)
					watchedDirs[path] = true
				}
				return nil
			})
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\nWatching for changes... (press Ctrl+C to stop)\n\n")

	var debounceTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) && isRequestFile(event.Name) {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(WatchDebounceDelay, func() {
					fmt.Fprintf(cmd.OutOrStdout(), "\nFile changed: %s\nRe-running...\n\n", event.Name)
					rerun()
				})
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			printError(cmd, fmt.Errorf("watcher error: %w", err))
		}
	}
}

func collectFiles(args []string) ([]string, error) {
	var files []string

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}

		if info.IsDir() {
			err := filepath.Walk(arg, func(path string, info os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				if !info.IsDir() && isRequestFile(path) {
					files = append(files, path)
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
		} else {
			if isRequestFile(arg) {
				files = append(files, arg)
			}
		}
	}

	return files, nil
}

func isRequestFile(path string) bool {
	ext := filepath.Ext(path)
	return ext == ".http" || ext == ".treq"
}
