// Package handler はデーモンの読み取りAPIのHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/castman/internal/model"
)

// PodcastReader はポッドキャストハンドラーが必要とするストア操作。
type PodcastReader interface {
	PodcastsSortedByLastEpisode(ctx context.Context, limit int) ([]model.PodcastWithExtraInfo, error)
	FollowedPodcastsSortedByLastEpisode(ctx context.Context, limit int) ([]model.PodcastWithExtraInfo, error)
	SearchPodcastByTitle(ctx context.Context, keyword string, limit int) ([]model.PodcastWithExtraInfo, error)
	TogglePodcastFollowed(ctx context.Context, podcastURI string) error
}

// EpisodeReader はエピソードハンドラーが必要とするストア操作。
type EpisodeReader interface {
	EpisodesInPodcast(ctx context.Context, podcastURI string, limit int) ([]model.EpisodeToPodcast, error)
}

// CategoryReader はカテゴリハンドラーが必要とするストア操作。
type CategoryReader interface {
	CategoriesSortedByPodcastCount(ctx context.Context, limit int) ([]model.Category, error)
}

// PodcastHandler はポッドキャスト読み取りAPIのHTTPハンドラー。
type PodcastHandler struct {
	podcasts   PodcastReader
	episodes   EpisodeReader
	categories CategoryReader
}

// NewPodcastHandler はPodcastHandlerを生成する。
func NewPodcastHandler(podcasts PodcastReader, episodes EpisodeReader, categories CategoryReader) *PodcastHandler {
	return &PodcastHandler{
		podcasts:   podcasts,
		episodes:   episodes,
		categories: categories,
	}
}

// podcastResponse はポッドキャスト情報のAPIレスポンス。
type podcastResponse struct {
	URI             string     `json:"uri"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	Author          string     `json:"author,omitempty"`
	ImageURL        string     `json:"image_url,omitempty"`
	LastEpisodeDate *time.Time `json:"last_episode_date,omitempty"`
	IsFollowed      bool       `json:"is_followed"`
}

// episodeResponse はエピソード情報のAPIレスポンス。
type episodeResponse struct {
	URI          string     `json:"uri"`
	Title        string     `json:"title"`
	Summary      string     `json:"summary,omitempty"`
	Subtitle     string     `json:"subtitle,omitempty"`
	Published    *time.Time `json:"published,omitempty"`
	DurationMs   *int64     `json:"duration_ms,omitempty"`
	PodcastURI   string     `json:"podcast_uri"`
	PodcastTitle string     `json:"podcast_title"`
}

// categoryResponse はカテゴリ情報のAPIレスポンス。
type categoryResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// toggleFollowRequest はフォロー反転リクエストのボディ。
type toggleFollowRequest struct {
	URI string `json:"uri"`
}

// ListPodcasts はポッドキャスト一覧を返す。
// GET /api/podcasts?limit=
func (h *PodcastHandler) ListPodcasts(w http.ResponseWriter, r *http.Request) {
	list, err := h.podcasts.PodcastsSortedByLastEpisode(r.Context(), parseLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "ポッドキャスト一覧の取得に失敗しました。")
		return
	}
	writeJSON(w, http.StatusOK, toPodcastResponses(list))
}

// ListFollowedPodcasts はフォロー中のポッドキャスト一覧を返す。
// GET /api/podcasts/followed?limit=
func (h *PodcastHandler) ListFollowedPodcasts(w http.ResponseWriter, r *http.Request) {
	list, err := h.podcasts.FollowedPodcastsSortedByLastEpisode(r.Context(), parseLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "フォロー中一覧の取得に失敗しました。")
		return
	}
	writeJSON(w, http.StatusOK, toPodcastResponses(list))
}

// SearchPodcasts はタイトルの部分一致検索を行う。
// GET /api/podcasts/search?q=&limit=
func (h *PodcastHandler) SearchPodcasts(w http.ResponseWriter, r *http.Request) {
	keyword := r.URL.Query().Get("q")
	if keyword == "" {
		writeError(w, http.StatusBadRequest, "検索キーワードqを指定してください。")
		return
	}

	list, err := h.podcasts.SearchPodcastByTitle(r.Context(), keyword, parseLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "ポッドキャスト検索に失敗しました。")
		return
	}
	writeJSON(w, http.StatusOK, toPodcastResponses(list))
}

// ListEpisodes は指定ポッドキャストのエピソード一覧を返す。
// ポッドキャストURIはスラッシュを含むためクエリパラメータで受け取る。
// GET /api/episodes?podcast=&limit=
func (h *PodcastHandler) ListEpisodes(w http.ResponseWriter, r *http.Request) {
	podcastURI := r.URL.Query().Get("podcast")
	if podcastURI == "" {
		writeError(w, http.StatusBadRequest, "ポッドキャストURIをpodcastパラメータで指定してください。")
		return
	}

	list, err := h.episodes.EpisodesInPodcast(r.Context(), podcastURI, parseLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "エピソード一覧の取得に失敗しました。")
		return
	}

	responses := make([]episodeResponse, 0, len(list))
	for _, etp := range list {
		responses = append(responses, toEpisodeResponse(etp))
	}
	writeJSON(w, http.StatusOK, responses)
}

// ListCategories はカテゴリ一覧を所属ポッドキャスト数順に返す。
// GET /api/categories?limit=
func (h *PodcastHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	list, err := h.categories.CategoriesSortedByPodcastCount(r.Context(), parseLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "カテゴリ一覧の取得に失敗しました。")
		return
	}

	responses := make([]categoryResponse, 0, len(list))
	for _, c := range list {
		responses = append(responses, categoryResponse{ID: c.ID, Name: c.Name})
	}
	writeJSON(w, http.StatusOK, responses)
}

// ToggleFollow はポッドキャストのフォロー状態を反転する。
// POST /api/podcasts/follow
func (h *PodcastHandler) ToggleFollow(w http.ResponseWriter, r *http.Request) {
	var req toggleFollowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "リクエストボディの解析に失敗しました。")
		return
	}
	if req.URI == "" {
		writeError(w, http.StatusBadRequest, "uriを指定してください。")
		return
	}

	if err := h.podcasts.TogglePodcastFollowed(r.Context(), req.URI); err != nil {
		writeError(w, http.StatusInternalServerError, "フォロー状態の更新に失敗しました。")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func toPodcastResponses(list []model.PodcastWithExtraInfo) []podcastResponse {
	responses := make([]podcastResponse, 0, len(list))
	for _, p := range list {
		responses = append(responses, podcastResponse{
			URI:             p.URI,
			Title:           p.Title,
			Description:     p.Description,
			Author:          p.Author,
			ImageURL:        p.ImageURL,
			LastEpisodeDate: p.LastEpisodeDate,
			IsFollowed:      p.IsFollowed,
		})
	}
	return responses
}

func toEpisodeResponse(etp model.EpisodeToPodcast) episodeResponse {
	resp := episodeResponse{
		URI:          etp.URI,
		Title:        etp.Title,
		Summary:      etp.Summary,
		Subtitle:     etp.Subtitle,
		PodcastURI:   etp.PodcastURI,
		PodcastTitle: etp.Podcast.Title,
	}
	if !etp.Published.IsZero() {
		published := etp.Published
		resp.Published = &published
	}
	if etp.Duration != nil {
		ms := etp.Duration.Milliseconds()
		resp.DurationMs = &ms
	}
	return resp
}

// parseLimit はlimitクエリパラメータを解釈する。未指定・不正値は0（無制限）。
func parseLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// errorResponse は統一エラーフォーマットのレスポンス。
type errorResponse struct {
	Message string `json:"message"`
}

// writeError はエラーレスポンスを書き込む。
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Message: message})
}
