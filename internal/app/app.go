package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/polylearn/internal/auth"
	"github.com/hitoshi/polylearn/internal/config"
	"github.com/hitoshi/polylearn/internal/database"
	"github.com/hitoshi/polylearn/internal/handler"
	"github.com/hitoshi/polylearn/internal/identity"
	"github.com/hitoshi/polylearn/internal/logger"
	"github.com/hitoshi/polylearn/internal/metrics"
	"github.com/hitoshi/polylearn/internal/repository"
	"github.com/hitoshi/polylearn/internal/session"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、LOG_LEVELに従ったJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger.SetupDefault(w, level)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("store", cfg.StoreDriver),
		slog.String("verifier", cfg.IdentityVerifierMode),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandMigrate:
		var rest []string
		if len(args) > 1 {
			rest = args[1:]
		}
		margs, err := ParseMigrateArgs(rest)
		if err != nil {
			return err
		}
		return runMigrate(cfg, margs)
	default:
		return runServe(ctx, cfg)
	}
}

// server はserveモードで組み立てた依存関係を保持する。
type server struct {
	handler http.Handler
	closers []func() error
}

// Close は保持しているリソースを逆順に解放する。
func (s *server) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// buildServer は設定から全依存関係をワイヤリングし、HTTPハンドラーを構築する。
// 署名鍵がない場合はSIGNING_KEY_MISSINGを返し、起動を中止する。
func buildServer(ctx context.Context, cfg *config.Config) (*server, error) {
	srv := &server{}

	// 1. ストア
	users, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	srv.closers = append(srv.closers, closeStore)

	// 2. 外部IdPの検証器
	verifier, err := identity.NewVerifier(ctx, identity.Config{
		Mode:              identity.Mode(cfg.IdentityVerifierMode),
		FirebaseProjectID: cfg.FirebaseProjectID,
		JWKSURL:           cfg.FirebaseJWKSURL,
	})
	if err != nil {
		srv.Close()
		return nil, fmt.Errorf("failed to create identity verifier: %w", err)
	}
	if cfg.IdentityVerifierMode == config.VerifierModeMock {
		slog.Warn("identity verifier is in mock mode; assertions are not signature-checked")
	}

	// 3. セッション発行
	issuer, err := session.NewIssuer(session.Config{
		Secret:     cfg.JWTSecret,
		Issuer:     cfg.JWTIssuer,
		AccessTTL:  cfg.JWTExpiresIn,
		RefreshTTL: cfg.JWTRefreshExpiresIn,
	})
	if err != nil {
		srv.Close()
		return nil, fmt.Errorf("failed to create session issuer: %w", err)
	}
	slog.Info("session issuer ready",
		slog.String("issuer", cfg.JWTIssuer),
		slog.Duration("access_ttl", issuer.AccessTTL()),
		slog.Duration("refresh_ttl", issuer.RefreshTTL()),
	)

	// 4. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 5. ドメインサービス
	authService := auth.NewService(verifier, users, issuer, collector, auth.ServiceConfig{
		Location: cfg.StreakLocation(),
	})

	// 6. ルーター
	srv.handler = handler.NewRouter(&handler.RouterDeps{
		Authenticator:     authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RequestTimeout:    cfg.RequestTimeout,
		Logger:            slog.Default(),
		Metrics:           collector,
		MetricsHandler:    metrics.Handler(reg),
		AuthService:       authService,
		UserService:       authService,
	})

	return srv, nil
}

// openStore はSTORE_DRIVERに応じたユーザーストアを開く。
// postgresの場合はDB_CONNECT_TIMEOUT以内に接続できなければエラーを返す。
func openStore(ctx context.Context, cfg *config.Config) (repository.UserRepository, func() error, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		slog.Warn("using in-memory user store; data is lost on restart")
		return repository.NewMemoryUserRepo(), func() error { return nil }, nil
	case config.StoreDriverPostgres:
		db, err := database.Open(cfg.DatabaseURL, database.PoolConfig{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
			ConnMaxLifetime: cfg.DBConnMaxLifetime,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := database.Ping(ctx, db, cfg.DBConnectTimeout); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		slog.Info("database connection established",
			slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
			slog.Int("max_open_conns", cfg.DBMaxOpenConns),
		)
		return repository.NewPostgresUserRepo(db), closeDB(db), nil
	default:
		return nil, nil, fmt.Errorf("unsupported store driver: %q", cfg.StoreDriver)
	}
}

func closeDB(db *sql.DB) func() error {
	return func() error {
		if err := db.Close(); err != nil {
			return fmt.Errorf("failed to close database: %w", err)
		}
		return nil
	}
}

// runServe はAPIサーバーモードで起動する。
// ctxがキャンセルされる（SIGINT/SIGTERM）とグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	srv, err := buildServer(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := srv.Close(); err != nil {
			slog.Error("failed to release resources", slog.String("error", err.Error()))
		}
	}()

	ln, err := net.Listen("tcp", ":"+cfg.ServerPort)
	if err != nil {
		return fmt.Errorf("failed to listen on port %s: %w", cfg.ServerPort, err)
	}

	return serve(ctx, ln, srv.handler, cfg.ShutdownTimeout)
}

// serve はlnでHTTPサーバーを起動し、ctxのキャンセルでシャットダウンする。
func serve(ctx context.Context, ln net.Listener, h http.Handler, shutdownTimeout time.Duration) error {
	httpServer := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", ln.Addr().String()))
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
func runMigrate(cfg *config.Config, args MigrateArgs) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required for migrate")
	}

	slog.Info("running database migrations",
		slog.String("action", string(args.Action)),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	switch args.Action {
	case MigrateDown:
		if err := database.RollbackMigrations(cfg.DatabaseURL, args.Steps); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	case MigrateVersion:
		status, err := database.CurrentMigration(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		slog.Info("current migration",
			slog.Bool("applied", status.Applied),
			slog.Uint64("version", uint64(status.Version)),
			slog.Bool("dirty", status.Dirty),
		)
		return nil
	default:
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
