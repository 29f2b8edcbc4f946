// Package app はアプリケーションのエントリーポイントを提供する。
// サブコマンドの解析、依存関係のワイヤリング、デーモンの起動を行う。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/castman/internal/config"
	"github.com/hitoshi/castman/internal/database"
	"github.com/hitoshi/castman/internal/feed"
	"github.com/hitoshi/castman/internal/handler"
	"github.com/hitoshi/castman/internal/logger"
	"github.com/hitoshi/castman/internal/metrics"
	"github.com/hitoshi/castman/internal/security"
	"github.com/hitoshi/castman/internal/store"
	"github.com/hitoshi/castman/internal/syncer"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("database_path", cfg.DatabasePath),
	)

	switch cmd {
	case CommandSync:
		return runSync(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// deps はワイヤリング済みの依存関係一式。
type deps struct {
	db         *database.DB
	podcasts   store.PodcastStore
	episodes   store.EpisodeStore
	categories store.CategoryStore
	registry   *prometheus.Registry
	syncer     *syncer.Repository
}

// wire はマイグレーション適用済みのDBを開き、全依存関係を構築する。
func wire(cfg *config.Config) (*deps, error) {
	// 未適用のマイグレーションを起動時に適用する
	if err := database.RunMigrations(cfg.DatabasePath); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	slog.Info("database opened", slog.String("path", cfg.DatabasePath))

	feedURLs, err := config.LoadFeeds(cfg.FeedsFile)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load feed list: %w", err)
	}

	podcasts := store.NewSQLitePodcastStore(db)
	episodes := store.NewSQLiteEpisodeStore(db)
	categories := store.NewSQLiteCategoryStore(db)

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	guard := security.NewFetchGuard()
	sanitizer := security.NewSummarySanitizer()

	fetcher := feed.NewFetcher(
		guard,
		feed.NewParser(sanitizer),
		collector,
		slog.Default(),
		cfg.FetchTimeout,
		cfg.FetchMaxSize,
		cfg.FetchMaxConcurrent,
		cfg.FetchRateLimit,
		cfg.FetchMaxStale,
	)

	syncRepo := syncer.NewRepository(
		db, podcasts, episodes, categories, fetcher,
		collector, slog.Default(), feedURLs,
	)

	return &deps{
		db:         db,
		podcasts:   podcasts,
		episodes:   episodes,
		categories: categories,
		registry:   registry,
		syncer:     syncRepo,
	}, nil
}

// runServe はデーモンモードで起動する。
// 起動時にストアが空なら初回同期を行い、以降は設定間隔で周期同期する。
// 読み取りAPIとメトリクスをHTTPで公開し、SIGINT/SIGTERMで
// グレースフルシャットダウンする。
func runServe(cfg *config.Config) error {
	d, err := wire(cfg)
	if err != nil {
		return err
	}
	defer d.db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 初回同期: ストアが空の場合のみ実際に走る
	if err := d.syncer.UpdatePodcasts(ctx, false); err != nil {
		slog.Error("bootstrap sync failed", slog.String("error", err.Error()))
	}

	// 周期同期
	go func() {
		ticker := time.NewTicker(cfg.SyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := d.syncer.UpdatePodcasts(ctx, true); err != nil {
					slog.Error("periodic sync failed", slog.String("error", err.Error()))
				}
			}
		}
	}()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:     slog.Default(),
		Podcasts:   d.podcasts,
		Episodes:   d.episodes,
		Categories: d.categories,
		Syncer:     d.syncer,
		Gatherer:   d.registry,
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting",
			slog.String("addr", server.Addr),
			slog.Duration("sync_interval", cfg.SyncInterval),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// runSync は1回だけ強制同期して終了する。
// cronなどからの定期実行用サブコマンド。
func runSync(cfg *config.Config) error {
	d, err := wire(cfg)
	if err != nil {
		return err
	}
	defer d.db.Close()

	if err := d.syncer.UpdatePodcasts(context.Background(), true); err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	slog.Info("sync completed")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_path", cfg.DatabasePath),
	)

	if err := database.RunMigrations(cfg.DatabasePath); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
