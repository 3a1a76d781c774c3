package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/mathyou/internal/cache"
	"github.com/pavelanni/mathyou/internal/content"
	"github.com/pavelanni/mathyou/internal/handler"
	appI18n "github.com/pavelanni/mathyou/internal/i18n"
	"github.com/pavelanni/mathyou/internal/llm"
	"github.com/pavelanni/mathyou/internal/model"
	"github.com/pavelanni/mathyou/internal/store"
	"github.com/pavelanni/mathyou/internal/tutor"
)

func main() {
	// A missing .env is fine; real environment variables still apply.
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mathyou",
		Short: "Adaptive math practice with generated feedback",
	}

	serve := serveCmd()
	root.AddCommand(serve, seedCmd(), copyDBCmd(), exportCmd(), modelsCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `mathyou --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addLoggingFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func addLLMFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("gemini-key", "", "Gemini API key (or GEMINI_API_KEY)")
	f.String("openai-key", "", "OpenAI-compatible API key (or OPENAI_API_KEY)")
	f.String("openai-url", "", "OpenAI-compatible API base URL (empty = api.openai.com)")
	f.String("anthropic-key", "", "Anthropic API key (or ANTHROPIC_API_KEY)")
	f.StringSlice("models", llm.DefaultModels, "Candidate models in fallback order, as provider:model")
	f.Duration("llm-timeout", llm.DefaultTimeout, "Timeout for a single model attempt")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "mathyou.db", "SQLite database path or postgres:// URL")
	f.String("cache-db", "", "bbolt file for persistent generation caches (empty = in memory)")
	f.Duration("cache-ttl", 0, "Expire cached generations after this long (0 = never)")
	f.Bool("seed", true, "Import bundled content on startup")
	f.String("admin-api-key", "", "Key accepted in X-API-Key for question creation (or ADMIN_API_KEY)")
	f.StringP("lang", "l", "en", "Default UI language (en, es)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /math)")
	f.Bool("secure-cookies", true, "Set Secure flag on session cookies")
	addLLMFlags(cmd)
	addLoggingFlags(cmd)
	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed [content.json...]",
		Short: "Import subject content (bundled content when no files are given)",
		RunE:  runSeed,
	}
	f := cmd.Flags()
	f.String("db", "mathyou.db", "SQLite database path or postgres:// URL")
	f.Bool("reset", false, "Replace subjects whose files changed; deletes their learner responses")
	addLoggingFlags(cmd)
	return cmd
}

func copyDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "copy-db",
		Short: "Copy all data between databases (e.g. postgres to sqlite)",
		RunE:  runCopyDB,
	}
	f := cmd.Flags()
	f.String("from", "", "Source database (SQLite path or postgres:// URL)")
	f.String("to", "", "Destination database, must be empty")
	addLoggingFlags(cmd)
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export learner progress as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "mathyou.db", "SQLite database path or postgres:// URL")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLoggingFlags(cmd)
	return cmd
}

func modelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Probe every configured candidate model",
		RunE:  runModels,
	}
	addLLMFlags(cmd)
	addLoggingFlags(cmd)
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

	v.SetEnvPrefix("MATHYOU")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	// Conventional provider variable names work alongside the MATHYOU_ ones.
	_ = v.BindEnv("gemini-key", "MATHYOU_GEMINI_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("openai-key", "MATHYOU_OPENAI_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("anthropic-key", "MATHYOU_ANTHROPIC_KEY", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("admin-api-key", "MATHYOU_ADMIN_API_KEY", "ADMIN_API_KEY")

	v.SetConfigName("mathyou")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/mathyou")
	v.AddConfigPath("/etc/mathyou")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func llmConfig(v *viper.Viper) llm.Config {
	return llm.Config{
		GeminiKey:     v.GetString("gemini-key"),
		OpenAIKey:     v.GetString("openai-key"),
		OpenAIBaseURL: v.GetString("openai-url"),
		AnthropicKey:  v.GetString("anthropic-key"),
		Models:        v.GetStringSlice("models"),
		Timeout:       v.GetDuration("llm-timeout"),
	}
}

// newCaches returns the overview and mastery caches. With a cache-db path
// both live in one bbolt file; the returned closer releases it.
func newCaches(v *viper.Viper) (overviews, mastery cache.Cache, closer func() error, err error) {
	opts := []cache.Option{cache.WithTTL(v.GetDuration("cache-ttl"))}
	path := v.GetString("cache-db")
	if path == "" {
		return cache.NewMemory(opts...), cache.NewMemory(opts...), func() error { return nil }, nil
	}

	db, err := cache.OpenBoltDB(path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open cache db: %w", err)
	}
	fail := func(err error) (cache.Cache, cache.Cache, func() error, error) {
		_ = db.Close()
		return nil, nil, nil, err
	}
	ov, err := cache.NewBolt(db, "overviews", opts...)
	if err != nil {
		return fail(err)
	}
	ms, err := cache.NewBolt(db, "mastery", opts...)
	if err != nil {
		return fail(err)
	}
	slog.Info("using persistent generation cache", "path", path, "overviews", ov.Len(), "mastery", ms.Len())
	return ov, ms, db.Close, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := db.CleanupExpiredSessions(); err != nil {
		slog.Warn("failed to clean up expired sessions", "error", err)
	}

	if v.GetBool("seed") {
		if _, err := content.ImportBundled(db, false); err != nil {
			return fmt.Errorf("import bundled content: %w", err)
		}
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	chain, err := llm.NewChainFromConfig(cmd.Context(), llmConfig(v))
	if err != nil {
		return fmt.Errorf("configure models: %w", err)
	}
	// Keep the interface nil when nothing is configured.
	var completer llm.Completer
	if chain != nil {
		completer = chain
		var names []string
		for _, c := range chain.Candidates() {
			names = append(names, c.String())
		}
		slog.Info("text generation enabled", "candidates", names)
	} else {
		slog.Warn("no model API key configured, generated feedback disabled")
	}

	overviews, mastery, closeCache, err := newCaches(v)
	if err != nil {
		return err
	}
	defer closeCache()

	// Normalize base path.
	basePath := strings.TrimRight(v.GetString("base-path"), "/")
	if basePath != "" && !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}

	cfg := model.ServerConfig{
		BasePath:      basePath,
		SecureCookies: v.GetBool("secure-cookies"),
		AdminAPIKey:   v.GetString("admin-api-key"),
	}

	h, err := handler.New(db, tutor.NewGenerator(completer, overviews, mastery), cfg)
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))

	if basePath != "" {
		r.Route(basePath, func(sub chi.Router) {
			sub.Use(h.BasePathMiddleware)
			h.Routes(sub)
		})
		r.Get(basePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, basePath+"/", http.StatusMovedPermanently)
		})
	} else {
		r.Use(h.BasePathMiddleware)
		h.Routes(r)
	}

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"lang", lang,
		"base_path", basePath,
		"generation", completer != nil,
		"admin_api_key", cfg.AdminAPIKey != "",
	)
	return http.ListenAndServe(addr, r)
}

func runSeed(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	reset := v.GetBool("reset")
	var results []content.Result
	if len(args) == 0 {
		results, err = content.ImportBundled(db, reset)
		if err != nil {
			return err
		}
	} else {
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			res, err := content.Import(db, path, data, reset)
			if err != nil {
				return err
			}
			results = append(results, res)
		}
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tSTATUS\tCONCEPTS\tQUESTIONS\tSKIPPED")
	for _, r := range results {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\n", r.Name, r.Status, r.Stats.Concepts, r.Stats.Questions, r.Stats.Skipped)
	}
	return tw.Flush()
}

func runCopyDB(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	src, err := store.New(v.GetString("from"))
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	dst, err := store.New(v.GetString("to"))
	if err != nil {
		return fmt.Errorf("open destination: %w", err)
	}
	defer dst.Close()

	questions, err := dst.QuestionCount()
	if err != nil {
		return err
	}
	users, err := dst.UserCount()
	if err != nil {
		return err
	}
	if questions > 0 || users > 0 {
		return errors.New("destination database is not empty")
	}

	if err := src.CopyTo(dst); err != nil {
		return fmt.Errorf("copy: %w", err)
	}
	slog.Info("database copied")
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	export, err := db.ExportProgress()
	if err != nil {
		return fmt.Errorf("export progress: %w", err)
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = cmd.OutOrStdout()
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

func runModels(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	chain, err := llm.NewChainFromConfig(cmd.Context(), llmConfig(v))
	if err != nil {
		return fmt.Errorf("configure models: %w", err)
	}
	if chain == nil {
		return errors.New("no model API key configured")
	}

	results := chain.Probe(cmd.Context())

	ok := 0
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CANDIDATE\tRESULT\tTIME")
	for _, r := range results {
		status := "ok"
		if r.Err != nil {
			status = r.Err.Error()
		} else {
			ok++
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Candidate, status, r.Duration.Round(1e6))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if ok == 0 {
		return llm.ErrAllCandidatesFailed
	}
	return nil
}
