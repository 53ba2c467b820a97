package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/pavelanni/questionnaire/internal/handler"
	appI18n "github.com/pavelanni/questionnaire/internal/i18n"
	"github.com/pavelanni/questionnaire/internal/llm"
	"github.com/pavelanni/questionnaire/internal/model"
	"github.com/pavelanni/questionnaire/internal/pivot"
	"github.com/pavelanni/questionnaire/internal/questionnaire"
	"github.com/pavelanni/questionnaire/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// A .env file is optional; the process environment always wins.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "warning: reading .env:", err)
	}
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "questionnaire",
		Short: "Questionnaire web application and results exporter",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd(), exporterCmd(), useraddCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `questionnaire --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addLogFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the questionnaire web application",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "questionnaire.db", "SQLite database path for accounts and sessions")
	f.String("questionnaire-dir", "questionnaire", "Directory holding questionnaire definitions (<id>.json)")
	f.String("results-dir", "results", "Directory holding results files (<id>.csv)")
	f.String("default-questionnaire", "questions", "Questionnaire served under /quiz")
	f.String("date-format", questionnaire.DefaultDateFormat, "Go time layout of the results date column")
	f.StringP("lang", "l", "en", "Default UI language (en, fr)")
	f.String("base-path", "", "URL prefix for sub-path deployments (e.g. /survey)")
	f.Bool("secure-cookies", true, "Set Secure flag on cookies")
	f.Int("max-upload-mb", 10, "Maximum size of an uploaded definition in MiB")
	f.String("admin-password", "", "Initial admin password (or set QUESTIONNAIRE_ADMIN_PASSWORD)")
	f.String("llm-url", "", "OpenAI-compatible API base URL for draft generation (empty disables drafts)")
	f.String("llm-key", "", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	addLogFlags(cmd)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the results of a questionnaire as pivoted CSV",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "responses.db", "SQLite database with questionnaire, question, submission and answer tables")
	f.Int64("id", 0, "Questionnaire id (required)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(cmd)

	_ = cmd.MarkFlagRequired("id")

	return cmd
}

func exporterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exporter",
		Short: "Serve pivoted questionnaire results as CSV downloads",
		RunE:  runExporter,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8081", "HTTP listen address")
	f.String("db", "responses.db", "SQLite database with questionnaire, question, submission and answer tables")
	f.Bool("init-schema", false, "Create the tables when they are missing")
	addLogFlags(cmd)
	return cmd
}

func useraddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "useradd",
		Short: "Create an account",
		RunE:  runUseradd,
	}
	f := cmd.Flags()
	f.String("db", "questionnaire.db", "SQLite database path for accounts and sessions")
	f.StringP("username", "u", "", "Login name (required)")
	f.StringP("password", "p", "", "Password (or set QUESTIONNAIRE_PASSWORD)")
	f.String("display-name", "", "Display name (defaults to the username)")
	f.String("email", "", "Email address")
	f.String("role", string(model.UserRoleUser), "Role (user, admin)")
	addLogFlags(cmd)

	_ = cmd.MarkFlagRequired("username")

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

	v.SetEnvPrefix("QUESTIONNAIRE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("questionnaire")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/questionnaire")
	v.AddConfigPath("/etc/questionnaire")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// listenAndServe runs an HTTP server until ctx is cancelled, then shuts it
// down gracefully.
func listenAndServe(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down server", "addr", addr)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	return r
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	// Open database.
	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	// Seed default admin user if no users exist.
	if err := seedAdmin(db, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if n, err := db.CleanupExpiredSessions(); err != nil {
		slog.Warn("failed to clean up expired sessions", "error", err)
	} else if n > 0 {
		slog.Info("removed expired sessions", "count", n)
	}

	// Initialize i18n.
	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	cfg := model.AppConfig{
		QuestionnaireDir:     v.GetString("questionnaire-dir"),
		ResultsDir:           v.GetString("results-dir"),
		DefaultQuestionnaire: v.GetString("default-questionnaire"),
		DateFormat:           v.GetString("date-format"),
		BasePath:             normalizeBasePath(v.GetString("base-path")),
		SecureCookies:        v.GetBool("secure-cookies"),
		MaxUploadBytes:       int64(v.GetInt("max-upload-mb")) << 20,
	}
	for _, dir := range []string{cfg.QuestionnaireDir, cfg.ResultsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	repo := questionnaire.NewRepository(cfg.QuestionnaireDir, cfg.ResultsDir, cfg.DateFormat)

	// Draft generation is optional.
	var drafter handler.Drafter
	if llmURL := v.GetString("llm-url"); llmURL != "" {
		client := llm.New(llmURL, v.GetString("llm-key"), v.GetString("llm-model"))
		pingCtx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		err := client.Ping(pingCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("LLM health check: %w", err)
		}
		slog.Info("LLM endpoint OK", "url", llmURL, "model", v.GetString("llm-model"))
		drafter = client
	}

	h := handler.New(db, repo, drafter, cfg)

	r := newRouter()
	r.Use(appI18n.Middleware(lang))

	basePath := cfg.BasePath
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

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"lang", lang,
		"questionnaire_dir", cfg.QuestionnaireDir,
		"results_dir", cfg.ResultsDir,
		"default_questionnaire", cfg.DefaultQuestionnaire,
		"drafts", drafter != nil,
		"base_path", basePath,
	)
	return listenAndServe(ctx, addr, r)
}

// normalizeBasePath returns p with a leading slash and no trailing slash.
func normalizeBasePath(p string) string {
	p = strings.TrimRight(strings.TrimSpace(p), "/")
	if p != "" && !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := pivot.Open(v.GetString("db"), true)
	if err != nil {
		return err
	}
	defer db.Close()

	id := v.GetInt64("id")
	table, err := pivot.New(db).Export(cmd.Context(), id)
	if errors.Is(err, pivot.ErrNotFound) {
		return fmt.Errorf("questionnaire %d not found", id)
	}
	if err != nil {
		return fmt.Errorf("export questionnaire %d: %w", id, err)
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

	if err := table.WriteCSV(w); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	slog.Info("exported questionnaire", "id", id, "rows", len(table.Rows), "output", outPath)
	return nil
}

func runExporter(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	initSchema := v.GetBool("init-schema")
	db, err := pivot.Open(v.GetString("db"), !initSchema)
	if err != nil {
		return err
	}
	defer db.Close()
	if initSchema {
		if err := pivot.CreateSchema(db); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}

	r := newRouter()
	handler.NewExportHandler(pivot.New(db)).Routes(r)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := v.GetString("addr")
	slog.Info("starting exporter", "addr", addr, "db", v.GetString("db"))
	return listenAndServe(ctx, addr, r)
}

func runUseradd(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	role := model.UserRole(v.GetString("role"))
	if role != model.UserRoleUser && role != model.UserRoleAdmin {
		return fmt.Errorf("invalid role %q", role)
	}
	password := v.GetString("password")
	if password == "" {
		return fmt.Errorf("password is required: set --password flag or QUESTIONNAIRE_PASSWORD env var")
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	username := v.GetString("username")
	displayName := v.GetString("display-name")
	if displayName == "" {
		displayName = username
	}
	id, err := db.CreateUser(model.User{
		Username:     username,
		DisplayName:  displayName,
		Email:        v.GetString("email"),
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	slog.Info("created user", "id", id, "username", username, "role", role)
	return nil
}

func seedAdmin(db *store.Store, password string) error {
	count, err := db.UserCount()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if password == "" {
		return fmt.Errorf("admin password is required: set --admin-password flag or QUESTIONNAIRE_ADMIN_PASSWORD env var")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	_, err = db.CreateUser(model.User{
		Username:     "admin",
		DisplayName:  "Administrator",
		PasswordHash: string(hash),
		Role:         model.UserRoleAdmin,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}

	slog.Info("seeded default admin user", "username", "admin")
	return nil
}
