package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/dialoglog/internal/archive"
	"github.com/pavelanni/dialoglog/internal/dialog"
	"github.com/pavelanni/dialoglog/internal/exam"
	"github.com/pavelanni/dialoglog/internal/handler"
	appI18n "github.com/pavelanni/dialoglog/internal/i18n"
	"github.com/pavelanni/dialoglog/internal/logfile"
	"github.com/pavelanni/dialoglog/internal/model"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "dialoglog",
		Short:        "Record, validate, and analyze LLM exam dialog sessions",
		SilenceUsage: true,
	}

	examRun := examCmd()
	root.AddCommand(examRun, validateCmd(), statsCmd(), ingestCmd(), watchCmd(), serveCmd())

	// Make "exam" the default when no subcommand is given.
	root.RunE = examRun.RunE

	// Register exam flags on root so bare `dialoglog --student ...` still works.
	root.Flags().AddFlagSet(examRun.Flags())

	return root
}

func examCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exam",
		Short: "Run an interactive exam dialog session",
		RunE:  runExam,
	}
	f := cmd.Flags()
	f.StringP("student", "s", "", "Student name")
	f.StringP("topic", "t", "", "Exam topic")
	f.String("subject", "", "Subject area the topic belongs to")
	f.StringP("difficulty", "d", "medium", "Topic difficulty (easy, medium, hard)")
	f.Bool("custom-topic", false, "Mark the topic as user-entered rather than from the catalog")
	f.IntP("max-questions", "n", 5, "Number of questions to ask")
	f.Bool("theme-structure", false, "Ask questions along the topic's theme structure")
	f.String("log-dir", "logs", "Directory for dialog log files")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.StringP("lang", "l", "en", "Dialog language (en, ru)")
	f.Bool("checkpoint", true, "Write the dialog log after every question")
	f.String("resume", "", "Resume an interrupted session from its dialog log file")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file>...",
		Short: "Check dialog log files for well-formedness and consistency",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runValidate,
	}
	f := cmd.Flags()
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func statsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats [path]...",
		Short: "Aggregate dialog logs into a summary report",
		Args:  cobra.ArbitraryArgs,
		RunE:  runStats,
	}
	f := cmd.Flags()
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <path>...",
		Short: "Load dialog logs into the session archive",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runIngest,
	}
	f := cmd.Flags()
	f.String("db", "dialoglog.db", "SQLite database path")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Watch a directory and archive dialog logs as they appear",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runWatch,
	}
	f := cmd.Flags()
	f.String("db", "dialoglog.db", "SQLite database path")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the session archive over HTTP",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "dialoglog.db", "SQLite database path")
	f.StringP("lang", "l", "en", "Response language (en, ru)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("DIALOGLOG")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("dialoglog")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/dialoglog")
	v.AddConfigPath("/etc/dialoglog")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runExam(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	llmClient := exam.New(
		v.GetString("llm-url"),
		v.GetString("llm-key"),
		v.GetString("llm-model"),
	)
	if err := llmClient.Ping(ctx); err != nil {
		return fmt.Errorf("LLM health check: %w", err)
	}
	slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))

	var runner *exam.Runner
	if resume := v.GetString("resume"); resume != "" {
		r, err := exam.ResumeRunner(llmClient, resume, os.Stdin, os.Stdout)
		if err != nil {
			return fmt.Errorf("resume session: %w", err)
		}
		runner = r
	} else {
		student := v.GetString("student")
		topic := v.GetString("topic")
		if student == "" || topic == "" {
			return fmt.Errorf("either --resume or both --student and --topic are required")
		}

		logDir := v.GetString("log-dir")
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}

		topicType := model.TopicPredefined
		if v.GetBool("custom-topic") {
			topicType = model.TopicCustom
		}
		runner = exam.NewRunner(llmClient, exam.Config{
			StudentName: student,
			Exam: model.ExamConfig{
				TopicInfo: model.TopicInfo{
					Name:       topic,
					Subject:    v.GetString("subject"),
					Difficulty: v.GetString("difficulty"),
					Type:       topicType,
				},
				MaxQuestions:      v.GetInt("max-questions"),
				UseThemeStructure: v.GetBool("theme-structure"),
			},
			LogDir:     logDir,
			Checkpoint: v.GetBool("checkpoint"),
		}, os.Stdin, os.Stdout)
	}

	_, err := runner.Run(ctx)
	return err
}

func runValidate(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)

	var parseErrs, schemaErrs, otherErrs int
	for _, path := range args {
		rec, err := logfile.Read(path)
		if err != nil {
			var perr *logfile.ParseError
			var serr *logfile.SchemaError
			switch {
			case errors.As(err, &perr):
				parseErrs++
			case errors.As(err, &serr):
				schemaErrs++
			default:
				otherErrs++
			}
			fmt.Fprintln(os.Stderr, err)
			continue
		}
		fmt.Printf("%s: ok (%s, %d questions, %d answers)\n",
			path, rec.SessionInfo.Status, rec.Statistics.TotalQuestions, rec.Statistics.TotalAnswers)
	}

	if failed := parseErrs + schemaErrs + otherErrs; failed > 0 {
		return fmt.Errorf("%d of %d files invalid (%d parse, %d schema)",
			failed, len(args), parseErrs, schemaErrs)
	}
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	if len(args) == 0 {
		args = []string{"."}
	}
	paths, err := collectLogFiles(args)
	if err != nil {
		return err
	}

	var records []*model.DialogLog
	for _, path := range paths {
		rec, err := logfile.Read(path)
		if err != nil {
			slog.Warn("skipping invalid dialog log", "path", path, "error", err)
			continue
		}
		records = append(records, rec)
	}

	rep := dialog.Aggregate(records, time.Now())
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	return nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	st, err := archive.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer st.Close()

	paths, err := collectLogFiles(args)
	if err != nil {
		return err
	}

	var ingested, skipped int
	for _, path := range paths {
		if err := ingestFile(st, path); err != nil {
			slog.Warn("skipping dialog log", "path", path, "error", err)
			skipped++
			continue
		}
		ingested++
	}
	slog.Info("ingest finished", "ingested", ingested, "skipped", skipped)
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}

	st, err := archive.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer st.Close()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Catch up on files already present before watching for new ones.
	existing, err := collectLogFiles([]string{dir})
	if err != nil {
		return err
	}
	for _, path := range existing {
		if err := ingestFile(st, path); err != nil {
			slog.Warn("skipping dialog log", "path", path, "error", err)
			continue
		}
		slog.Info("ingested dialog log", "path", path)
	}

	slog.Info("watching for dialog logs", "dir", dir)
	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping watcher")
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !isDialogLog(ev.Name) {
				continue
			}
			if err := ingestFile(st, ev.Name); err != nil {
				slog.Warn("skipping dialog log", "path", ev.Name, "error", err)
				continue
			}
			slog.Info("ingested dialog log", "path", ev.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("watch error", "error", err)
		}
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	st, err := archive.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer st.Close()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
	}).Handler)
	r.Use(appI18n.Middleware(lang))
	handler.New(st).Routes(r)

	addr := v.GetString("addr")
	srv := &http.Server{Addr: addr, Handler: r}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	slog.Info("starting server", "addr", addr, "db", v.GetString("db"), "lang", lang)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// collectLogFiles expands files and directories into the dialog log files
// they contain. Directories are scanned one level deep.
func collectLogFiles(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		matches, err := filepath.Glob(filepath.Join(arg, "dialog_*.json"))
		if err != nil {
			return nil, err
		}
		paths = append(paths, matches...)
	}
	return paths, nil
}

func ingestFile(st *archive.Store, path string) error {
	rec, err := logfile.Read(path)
	if err != nil {
		return err
	}
	return st.IngestRecord(rec, path)
}

func isDialogLog(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, "dialog_") && strings.HasSuffix(base, ".json")
}
