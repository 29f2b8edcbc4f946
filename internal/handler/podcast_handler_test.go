package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/castman/internal/model"
)

// stubStores はハンドラーテスト用のストアスタブ。
type stubStores struct {
	podcasts   []model.PodcastWithExtraInfo
	episodes   []model.EpisodeToPodcast
	categories []model.Category

	searchKeyword string
	toggledURI    string
	err           error
}

func (s *stubStores) PodcastsSortedByLastEpisode(ctx context.Context, limit int) ([]model.PodcastWithExtraInfo, error) {
	return s.podcasts, s.err
}

func (s *stubStores) FollowedPodcastsSortedByLastEpisode(ctx context.Context, limit int) ([]model.PodcastWithExtraInfo, error) {
	var followed []model.PodcastWithExtraInfo
	for _, p := range s.podcasts {
		if p.IsFollowed {
			followed = append(followed, p)
		}
	}
	return followed, s.err
}

func (s *stubStores) SearchPodcastByTitle(ctx context.Context, keyword string, limit int) ([]model.PodcastWithExtraInfo, error) {
	s.searchKeyword = keyword
	return s.podcasts, s.err
}

func (s *stubStores) TogglePodcastFollowed(ctx context.Context, podcastURI string) error {
	s.toggledURI = podcastURI
	return s.err
}

func (s *stubStores) EpisodesInPodcast(ctx context.Context, podcastURI string, limit int) ([]model.EpisodeToPodcast, error) {
	return s.episodes, s.err
}

func (s *stubStores) CategoriesSortedByPodcastCount(ctx context.Context, limit int) ([]model.Category, error) {
	return s.categories, s.err
}

// stubSyncer はテスト用のRefresher。
type stubSyncer struct {
	calls     int
	lastForce bool
	err       error
}

func (s *stubSyncer) UpdatePodcasts(ctx context.Context, force bool) error {
	s.calls++
	s.lastForce = force
	return s.err
}

func newTestRouter(stores *stubStores, syncer *stubSyncer) http.Handler {
	return NewRouter(&RouterDeps{
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		Podcasts:   stores,
		Episodes:   stores,
		Categories: stores,
		Syncer:     syncer,
		Gatherer:   prometheus.NewRegistry(),
	})
}

func TestListPodcasts(t *testing.T) {
	lastEpisode := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	stores := &stubStores{podcasts: []model.PodcastWithExtraInfo{
		{
			Podcast:         model.Podcast{URI: "https://a/feed.xml", Title: "番組A"},
			LastEpisodeDate: &lastEpisode,
			IsFollowed:      true,
		},
	}}
	router := newTestRouter(stores, &stubSyncer{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/podcasts", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var got []podcastResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].URI != "https://a/feed.xml" || !got[0].IsFollowed {
		t.Errorf("レスポンス = %+v", got)
	}
	if got[0].LastEpisodeDate == nil || !got[0].LastEpisodeDate.Equal(lastEpisode) {
		t.Errorf("LastEpisodeDate = %v", got[0].LastEpisodeDate)
	}
}

func TestListPodcasts_StoreError(t *testing.T) {
	stores := &stubStores{err: errors.New("db down")}
	router := newTestRouter(stores, &stubSyncer{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/podcasts", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestSearchPodcasts_RequiresKeyword(t *testing.T) {
	stores := &stubStores{}
	router := newTestRouter(stores, &stubSyncer{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/podcasts/search", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("キーワードなしのstatus = %d, want 400", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/podcasts/search?q=Tech", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
	if stores.searchKeyword != "Tech" {
		t.Errorf("渡されたキーワード = %q", stores.searchKeyword)
	}
}

func TestListEpisodes(t *testing.T) {
	duration := 30 * time.Minute
	stores := &stubStores{episodes: []model.EpisodeToPodcast{
		{
			Episode: model.Episode{
				URI:        "ep-1",
				PodcastURI: "https://a/feed.xml",
				Title:      "第1回",
				Published:  time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC),
				Duration:   &duration,
			},
			Podcast: model.Podcast{URI: "https://a/feed.xml", Title: "番組A"},
		},
		{
			Episode: model.Episode{URI: "ep-2", PodcastURI: "https://a/feed.xml", Title: "日時なし"},
			Podcast: model.Podcast{URI: "https://a/feed.xml", Title: "番組A"},
		},
	}}
	router := newTestRouter(stores, &stubSyncer{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet,
		"/api/episodes?podcast=https%3A%2F%2Fa%2Ffeed.xml", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var got []episodeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("件数 = %d", len(got))
	}
	if got[0].PodcastTitle != "番組A" {
		t.Errorf("PodcastTitle = %q", got[0].PodcastTitle)
	}
	if got[0].DurationMs == nil || *got[0].DurationMs != duration.Milliseconds() {
		t.Errorf("DurationMs = %v", got[0].DurationMs)
	}
	// ゼロ値の公開日時は省略される
	if got[1].Published != nil {
		t.Errorf("公開日時なしのPublished = %v, want nil", got[1].Published)
	}
}

func TestListEpisodes_RequiresPodcastURI(t *testing.T) {
	router := newTestRouter(&stubStores{}, &stubSyncer{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/episodes", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestToggleFollow(t *testing.T) {
	stores := &stubStores{}
	router := newTestRouter(stores, &stubSyncer{})

	body := strings.NewReader(`{"uri":"https://a/feed.xml"}`)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/podcasts/follow", body))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if stores.toggledURI != "https://a/feed.xml" {
		t.Errorf("反転されたURI = %q", stores.toggledURI)
	}
}

func TestToggleFollow_Validation(t *testing.T) {
	router := newTestRouter(&stubStores{}, &stubSyncer{})

	tests := []struct {
		name string
		body string
	}{
		{"不正なJSON", "{"},
		{"uriなし", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/podcasts/follow",
				strings.NewReader(tt.body)))
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestListCategories(t *testing.T) {
	stores := &stubStores{categories: []model.Category{
		{ID: 1, Name: "Technology"},
		{ID: 2, Name: "News"},
	}}
	router := newTestRouter(stores, &stubSyncer{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/categories", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got []categoryResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Name != "Technology" {
		t.Errorf("レスポンス = %+v", got)
	}
}

func TestRefresh(t *testing.T) {
	syncer := &stubSyncer{}
	router := newTestRouter(&stubStores{}, syncer)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/refresh?force=true", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if syncer.calls != 1 || !syncer.lastForce {
		t.Errorf("calls = %d, force = %v", syncer.calls, syncer.lastForce)
	}

	// forceなし
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/refresh", nil))
	if syncer.calls != 2 || syncer.lastForce {
		t.Errorf("calls = %d, force = %v", syncer.calls, syncer.lastForce)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	router := newTestRouter(&stubStores{}, &stubSyncer{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("/health status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Errorf("/metrics status = %d", w.Code)
	}
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 0},
		{"limit=10", 10},
		{"limit=abc", 0},
		{"limit=-5", 0},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/podcasts?"+tt.query, nil)
		if got := parseLimit(req); got != tt.want {
			t.Errorf("parseLimit(%q) = %d, want %d", tt.query, got, tt.want)
		}
	}
}
