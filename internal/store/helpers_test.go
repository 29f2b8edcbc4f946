package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/hitoshi/castman/internal/database"
	"github.com/hitoshi/castman/internal/model"
)

// newTestDB はマイグレーション適用済みのテスト用DBを開く。
func newTestDB(t *testing.T) *database.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "store_test.db")
	if err := database.RunMigrations(path); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}

	db, err := database.Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return db
}

// insertTestPodcast はテスト用ポッドキャストを1件挿入する。
func insertTestPodcast(t *testing.T, db *database.DB, uri, title string) {
	t.Helper()

	s := NewSQLitePodcastStore(db)
	err := s.AddPodcast(context.Background(), db, &model.Podcast{URI: uri, Title: title})
	if err != nil {
		t.Fatalf("AddPodcast(%s) error = %v", uri, err)
	}
}

// insertTestEpisode はテスト用エピソードを1件挿入する。
func insertTestEpisode(t *testing.T, db *database.DB, uri, podcastURI, title string, published time.Time) {
	t.Helper()

	s := NewSQLiteEpisodeStore(db)
	_, err := s.AddEpisodes(context.Background(), db, []model.Episode{{
		URI:        uri,
		PodcastURI: podcastURI,
		Title:      title,
		Published:  published,
	}})
	if err != nil {
		t.Fatalf("AddEpisodes(%s) error = %v", uri, err)
	}
}
