// resumetl translates the Traditional Chinese section of a resume content
// file into other languages with Google Gemini.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/cruz-resume/resumetl/config"
	"github.com/cruz-resume/resumetl/document"
	"github.com/cruz-resume/resumetl/keyset"
	"github.com/cruz-resume/resumetl/langmeta"
	"github.com/cruz-resume/resumetl/lockfile"
	"github.com/cruz-resume/resumetl/pipeline"
	"github.com/cruz-resume/resumetl/prompts"
	"github.com/cruz-resume/resumetl/translate"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	infoColor = color.New(color.FgBlue)
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow, color.Bold)
	errColor  = color.New(color.FgRed)
)

// logOutput receives all log lines. color.Error strips colour codes when
// stderr is not a terminal.
var logOutput io.Writer = color.Error

func logLine(c *color.Color, prefix, format string, args ...any) {
	fmt.Fprintf(logOutput, "%s %s\n", c.Sprint(prefix), fmt.Sprintf(format, args...))
}

func logInfo(format string, args ...any) {
	logLine(infoColor, "[INFO]", format, args...)
}

func logSuccess(format string, args ...any) {
	logLine(okColor, "[OK]", format, args...)
}

func logWarning(format string, args ...any) {
	logLine(warnColor, "[WARN]", format, args...)
}

func logError(format string, args ...any) {
	logLine(errColor, "[ERROR]", format, args...)
}

// ---------------------------------------------------------------------------
// Global flags
// ---------------------------------------------------------------------------

var (
	rootDir    string
	configFile string
)

func loadConfig() (*config.Config, error) {
	return config.Load(rootDir, configFile)
}

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "resumetl",
		Short: "Translate resume content with Google Gemini",
		Long: `resumetl translates the source-language section of a multilingual resume
content file (data.json) into every target language with Google Gemini.

Each translation is checked against the source key structure before it is
merged. A language that fails is skipped and keeps its previous content. The
file is backed up under data/backups before every write.

Running resumetl without a command is the same as "resumetl translate".

Commands:
  translate   Translate the source section into the target languages
  status      Show per-language key coverage against the source
  prompts     Show or export the localization instructions
  version     Show version information

Environment:
  GEMINI_API_KEY       Google AI API key (required for translate)
  RESUMETL_MODEL       Model override
  RESUMETL_BASE_URL    API base URL override
  RESUMETL_PROXY       HTTP/HTTPS proxy URL
  RESUMETL_TIMEOUT     Request timeout (e.g. 90s)
  RESUMETL_LANGUAGES   Comma-separated target languages

A .env file in the project root is loaded first; it never overrides
variables that are already set.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranslate(cmd.Context(), translateArgs{})
		},
	}

	root.PersistentFlags().StringVar(&rootDir, "root", ".", "Project root directory")
	root.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default: .resumetl.yaml/.yml/.toml in root)")

	root.AddCommand(
		newTranslateCmd(),
		newStatusCmd(),
		newPromptsCmd(),
		newVersionCmd(),
	)

	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logError("%v", err)
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// version
// ---------------------------------------------------------------------------

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display version, commit hash, and build date.`,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "resumetl version %s\n", version)
			fmt.Fprintf(out, "  commit:    %s\n", commit)
			fmt.Fprintf(out, "  built:     %s\n", date)
		},
	}
}

// ---------------------------------------------------------------------------
// translate
// ---------------------------------------------------------------------------

type translateArgs struct {
	langs, data, model, proxy string
	timeout                   time.Duration
	dryRun, changedOnly       bool
	verbose                   bool
}

func newTranslateCmd() *cobra.Command {
	var a translateArgs

	cmd := &cobra.Command{
		Use:   "translate",
		Short: "Translate the source section into the target languages",
		Long: `Translate the source-language section of the content file into every
target language and write the merged file.

Languages are processed one at a time. A language whose translation fails,
cannot be parsed, or drops keys present in the source is skipped and keeps
its previous content; the command still succeeds.

Examples:
  # Translate into all configured languages (en, ja, ko, ar by default)
  resumetl translate

  # Only Japanese and Korean
  resumetl translate --lang ja,ko

  # Show what would be sent without calling the API
  resumetl translate --dry-run

  # Only languages whose source or instruction changed since last run
  resumetl translate --changed-only`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranslate(cmd.Context(), a)
		},
	}

	cmd.Flags().StringVar(&a.langs, "lang", "", "Target languages (comma-separated, default: configured languages)")
	cmd.Flags().StringVar(&a.data, "data", "", "Content file relative to root (default: data.json)")
	cmd.Flags().StringVar(&a.model, "model", "", "Gemini model (default: "+translate.DefaultModel+")")
	cmd.Flags().DurationVar(&a.timeout, "timeout", 0, "Request timeout (0 = configured default)")
	cmd.Flags().StringVar(&a.proxy, "proxy", "", "HTTP/HTTPS proxy URL")
	cmd.Flags().BoolVar(&a.dryRun, "dry-run", false, "Resolve prompts and report sizes without calling the API or writing")
	cmd.Flags().BoolVar(&a.changedOnly, "changed-only", false, "Skip languages unchanged since their last successful translation")
	cmd.Flags().BoolVar(&a.verbose, "verbose", false, "Enable detailed logging")

	_ = cmd.RegisterFlagCompletionFunc("model", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"gemini-2.0-flash-exp", "gemini-2.5-flash", "gemini-1.5-pro"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = cmd.RegisterFlagCompletionFunc("lang", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return prompts.BuiltinLanguages(), cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

// applyFlags layers command-line overrides on top of cfg.
func (a translateArgs) applyFlags(cfg *config.Config) error {
	if a.data != "" {
		cfg.DataFile = a.data
	}
	if a.langs != "" {
		cfg.Languages = config.ParseLanguageList(a.langs)
	}
	if a.model != "" {
		cfg.Model = a.model
	}
	if a.proxy != "" {
		cfg.Proxy = a.proxy
	}
	if a.timeout > 0 {
		cfg.Timeout = a.timeout
	}
	return cfg.Validate()
}

func runTranslate(ctx context.Context, a translateArgs) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := a.applyFlags(cfg); err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logWarning("Interrupted, nothing will be written")
			cancel()
		case <-ctx.Done():
		}
	}()

	gem := translate.NewGemini(cfg.Provider(), cfg.Generation())
	gem.Verbose = a.verbose

	p := pipeline.New(cfg, gem)
	p.DryRun = a.dryRun
	p.ChangedOnly = a.changedOnly
	p.OnProgress = func(lang string, done, total int) {
		meta := langmeta.Resolve(lang)
		logInfo("[%d/%d] Processing %s (%s)", done+1, total, lang, meta.EnglishName)
	}
	p.OnLog = logInfo
	p.OnWarn = logWarning
	p.OnError = logError

	logInfo("Content file: %s", cfg.DataPath())
	if cfg.ConfigFile != "" {
		logInfo("Config: %s", cfg.ConfigFile)
	}
	if a.dryRun {
		logInfo("Dry run: no API calls, no files written")
	} else {
		logInfo("Model: %s", cfg.Model)
	}

	report, err := p.Run(ctx)
	if err != nil {
		if errors.Is(err, translate.ErrMissingCredential) {
			return fmt.Errorf("%w: export it or add it to %s", err, filepath.Join(cfg.Root, config.DotEnvFile))
		}
		return err
	}

	printReport(report)
	return nil
}

func printReport(report *pipeline.Report) {
	for _, o := range report.Outcomes {
		switch o.Status {
		case pipeline.StatusTranslated:
			logSuccess("%s translation completed and validated (%s)", o.Lang, o.Duration.Round(time.Millisecond))
		case pipeline.StatusUpToDate:
			logInfo("%s is up to date", o.Lang)
		case pipeline.StatusDryRun:
			logInfo("%s: %d prompt bytes (%s instruction)", o.Lang, o.PromptBytes, o.Prompt)
		}
	}

	if report.BackupPath != "" {
		logInfo("Backup created: %s", report.BackupPath)
	}
	if report.Saved {
		logSuccess("Data saved successfully")
	}
	if translated := report.Translated(); len(translated) > 0 {
		logSuccess("Updated languages: %s", strings.Join(translated, ", "))
	}
	if skipped := report.Skipped(); len(skipped) > 0 {
		logWarning("Skipped languages: %s", strings.Join(skipped, ", "))
	}
}

// ---------------------------------------------------------------------------
// status (read-only: per-language key coverage)
// ---------------------------------------------------------------------------

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show per-language key coverage against the source",
		Long: `Show the content file, its source section, and for every target language
how many source keys its current content covers. Does not modify any files.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runStatus(cmd.ErrOrStderr(), cfg)
		},
	}
}

func runStatus(w io.Writer, cfg *config.Config) error {
	doc, err := document.Load(cfg.DataPath())
	if err != nil {
		return err
	}
	src, err := doc.Source(cfg.SourceLang)
	if err != nil {
		return err
	}
	srcKeys := keyset.Collect(src)

	lock, err := lockfile.Load(cfg.Root)
	if err != nil {
		logWarning("Ignoring lock file: %v", err)
		lock = nil
	}

	fmt.Fprintf(w, "\n%s\n", infoColor.Sprint("Project"))
	fmt.Fprintln(w, strings.Repeat("─", 60))
	fmt.Fprintf(w, "  Root:       %s\n", cfg.Root)
	fmt.Fprintf(w, "  Content:    %s\n", cfg.DataPath())
	if cfg.ConfigFile != "" {
		fmt.Fprintf(w, "  Config:     %s\n", cfg.ConfigFile)
	}
	fmt.Fprintf(w, "  Source:     %s (%d sections, %d keys)\n", cfg.SourceLang, src.Len(), len(srcKeys))
	fmt.Fprintf(w, "  Backups:    %d in %s\n", countFiles(cfg.BackupPath()), cfg.BackupPath())
	if lock != nil {
		fmt.Fprintf(w, "  Lock file:  %s (%s)\n", lock.Path(), lock.Summary())
	}
	fmt.Fprintln(w)

	docKey := lockfile.DocumentKey(cfg.Root, cfg.DataPath())
	langs := statusLanguages(cfg, doc)
	width := langColumnWidth(langs)
	resolver := prompts.NewResolver(cfg.PromptsPath())

	for _, lang := range langs {
		_, source := resolver.Lookup(lang)
		tree, ok := doc.Get(lang)
		if !ok {
			fmt.Fprintf(w, "  %s %s  missing          (%s prompt)\n", langCell(lang, width), progressBar(0, 20), source)
			continue
		}

		diff := keyset.Compare(src, tree)
		pct := 100
		if len(srcKeys) > 0 {
			pct = (len(srcKeys) - len(diff.Missing)) * 100 / len(srcKeys)
		}
		fmt.Fprintf(w, "  %s %s  %d missing, %d extra  (%s prompt)%s\n",
			langCell(lang, width), progressBar(pct, 20), len(diff.Missing), len(diff.Extra), source, lastTranslated(lock, docKey, lang))
	}
	fmt.Fprintln(w)
	return nil
}

// lastTranslated describes the lock record of lang, if any.
func lastTranslated(lock *lockfile.LockFile, docKey, lang string) string {
	if lock == nil {
		return ""
	}
	rec, ok := lock.Lookup(docKey, lang)
	if !ok {
		return ""
	}
	s := ", translated " + rec.Translated.Local().Format("2006-01-02 15:04")
	if rec.Model != "" {
		s += " with " + rec.Model
	}
	return s
}

// statusLanguages lists the configured targets followed by any other
// non-source language already present in the document.
func statusLanguages(cfg *config.Config, doc *document.Document) []string {
	seen := map[string]bool{cfg.SourceLang: true}
	var langs []string
	for _, l := range append(append([]string(nil), cfg.Languages...), doc.Languages()...) {
		if seen[l] {
			continue
		}
		seen[l] = true
		langs = append(langs, l)
	}
	return langs
}

// ---------------------------------------------------------------------------
// prompts
// ---------------------------------------------------------------------------

func newPromptsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompts",
		Short: "Show or export the localization instructions",
	}

	show := &cobra.Command{
		Use:   "show <lang>",
		Short: "Print the instruction used for a language",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			lang, err := config.NormalizeLanguage(args[0])
			if err != nil {
				return err
			}
			resolver := prompts.NewResolver(cfg.PromptsPath())
			text, source := resolver.Lookup(lang)
			switch source {
			case prompts.SourceOverride:
				logInfo("%s: override %s", lang, resolver.OverridePath(lang))
			case prompts.SourceFallback:
				logInfo("%s: no built-in instruction, using %s", lang, prompts.FallbackLang)
			default:
				logInfo("%s: built-in instruction", lang)
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(text, "\n"))
			return nil
		},
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the built-in instructions as editable override files",
		Long: `Write the built-in instructions to <prompts_dir>/<lang>.txt so they can be
edited. Existing files are kept unless --force is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			dir := cfg.PromptsPath()
			written, err := prompts.WriteDefaults(dir, force)
			if err != nil {
				return err
			}
			for _, path := range written {
				logSuccess("Wrote %s", path)
			}
			if skipped := len(prompts.BuiltinLanguages()) - len(written); skipped > 0 {
				logInfo("%d existing files kept (use --force to overwrite)", skipped)
			}
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite existing override files")

	cmd.AddCommand(show, initCmd)
	return cmd
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// progressBar renders percent as a coloured bar of width cells followed by
// the number.
func progressBar(percent, width int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := percent * width / 100

	c := color.New(color.FgRed)
	switch {
	case percent >= 100:
		c = color.New(color.FgGreen)
	case percent >= 50:
		c = color.New(color.FgYellow)
	}

	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return c.Sprint(bar) + fmt.Sprintf(" %3d%%", percent)
}

func langColumnWidth(langs []string) int {
	width := 0
	for _, l := range langs {
		if len(l) > width {
			width = len(l)
		}
	}
	return width
}

// langCell renders a flag (when known) and the padded language code.
func langCell(lang string, width int) string {
	flag := langmeta.Resolve(lang).Flag
	if flag == "" {
		flag = "  "
	}
	return fmt.Sprintf("%s %-*s", flag, width, lang)
}

func countFiles(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() {
			n++
		}
	}
	return n
}
