package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/castman/internal/metrics"
	"github.com/hitoshi/castman/internal/middleware"
)

// Refresher は同期要求のインターフェース。
type Refresher interface {
	// UpdatePodcasts はフィード一覧との同期を要求する。
	UpdatePodcasts(ctx context.Context, force bool) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger     *slog.Logger
	Podcasts   PodcastReader
	Episodes   EpisodeReader
	Categories CategoryReader
	Syncer     Refresher
	Gatherer   prometheus.Gatherer
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを
// 構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RecoveryMiddleware → LoggingMiddleware
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	podcastHandler := NewPodcastHandler(deps.Podcasts, deps.Episodes, deps.Categories)
	syncHandler := NewSyncHandler(deps.Syncer)

	// 稼働確認
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Prometheusスクレイプ
	r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))

	r.Route("/api", func(r chi.Router) {
		r.Route("/podcasts", func(r chi.Router) {
			r.Get("/", podcastHandler.ListPodcasts)
			r.Get("/followed", podcastHandler.ListFollowedPodcasts)
			r.Get("/search", podcastHandler.SearchPodcasts)
			r.Post("/follow", podcastHandler.ToggleFollow)
		})

		r.Get("/episodes", podcastHandler.ListEpisodes)
		r.Get("/categories", podcastHandler.ListCategories)

		// 手動同期のトリガー
		r.Post("/refresh", syncHandler.Refresh)
	})

	return r
}

// SyncHandler は同期要求のHTTPハンドラー。
type SyncHandler struct {
	syncer Refresher
}

// NewSyncHandler はSyncHandlerを生成する。
func NewSyncHandler(syncer Refresher) *SyncHandler {
	return &SyncHandler{syncer: syncer}
}

// Refresh は同期を要求し、完了まで待って返す。
// 実行中の同期がある場合はその完了に合流する。
// POST /api/refresh?force=true
func (h *SyncHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"

	if err := h.syncer.UpdatePodcasts(r.Context(), force); err != nil {
		writeError(w, http.StatusInternalServerError, "同期に失敗しました。")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
