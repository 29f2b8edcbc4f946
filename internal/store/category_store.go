package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/castman/internal/database"
	"github.com/hitoshi/castman/internal/model"
)

// SQLiteCategoryStore はSQLiteを使用したカテゴリストア。
// カテゴリ本体とポッドキャスト対応行（多対多）の両方を扱う。
type SQLiteCategoryStore struct {
	db *database.DB
}

// NewSQLiteCategoryStore はSQLiteCategoryStoreを生成する。
func NewSQLiteCategoryStore(db *database.DB) *SQLiteCategoryStore {
	return &SQLiteCategoryStore{db: db}
}

// CategoriesSortedByPodcastCount は所属ポッドキャスト数の多い順にカテゴリを返す。
// ポッドキャストが1件も属さないカテゴリは含まれない。
func (s *SQLiteCategoryStore) CategoriesSortedByPodcastCount(ctx context.Context, limit int) ([]model.Category, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.name
		 FROM categories c
		 JOIN podcast_category_entries pce ON pce.category_id = c.id
		 GROUP BY c.id, c.name
		 ORDER BY COUNT(pce.podcast_uri) DESC, c.name ASC
		 LIMIT ?`,
		normalizeLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("カテゴリ一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var categories []model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("カテゴリ行の読み取りに失敗しました: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("カテゴリ一覧の走査に失敗しました: %w", err)
	}

	return categories, nil
}

// WatchCategoriesSortedByPodcastCount はカテゴリ一覧のリアクティブクエリ。
func (s *SQLiteCategoryStore) WatchCategoriesSortedByPodcastCount(ctx context.Context, limit int) <-chan []model.Category {
	return watch(ctx, s.db, []string{tableCategories, tableCategoryEntries},
		func(ctx context.Context) ([]model.Category, error) {
			return s.CategoriesSortedByPodcastCount(ctx, limit)
		})
}

// PodcastsInCategorySortedByLastEpisode はカテゴリ内のポッドキャストを
// 最新エピソード順に返す。
func (s *SQLiteCategoryStore) PodcastsInCategorySortedByLastEpisode(ctx context.Context, categoryID int64, limit int) ([]model.PodcastWithExtraInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		podcastExtraSelect+`
		 WHERE p.uri IN (
		     SELECT pce.podcast_uri FROM podcast_category_entries pce
		     WHERE pce.category_id = ?
		 )
		 ORDER BY last_episode_date DESC LIMIT ?`,
		categoryID, normalizeLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("カテゴリ内ポッドキャストの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var result []model.PodcastWithExtraInfo
	for rows.Next() {
		info, err := scanPodcastExtra(rows)
		if err != nil {
			return nil, fmt.Errorf("ポッドキャスト行の読み取りに失敗しました: %w", err)
		}
		result = append(result, *info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("カテゴリ内ポッドキャストの走査に失敗しました: %w", err)
	}

	return result, nil
}

// EpisodesFromPodcastsInCategory はカテゴリ内ポッドキャストのエピソードを
// 公開日時の新しい順に返す。
func (s *SQLiteCategoryStore) EpisodesFromPodcastsInCategory(ctx context.Context, categoryID int64, limit int) ([]model.EpisodeToPodcast, error) {
	rows, err := s.db.QueryContext(ctx,
		episodeToPodcastSelect+`
		 JOIN podcast_category_entries pce ON pce.podcast_uri = e.podcast_uri
		 WHERE pce.category_id = ?
		 ORDER BY e.published DESC LIMIT ?`,
		categoryID, normalizeLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("カテゴリ内エピソードの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var result []model.EpisodeToPodcast
	for rows.Next() {
		etp, err := scanEpisodeToPodcast(rows)
		if err != nil {
			return nil, fmt.Errorf("エピソード行の読み取りに失敗しました: %w", err)
		}
		result = append(result, *etp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("カテゴリ内エピソードの走査に失敗しました: %w", err)
	}

	return result, nil
}

// AddCategory はカテゴリを冪等に追加する。
// 同名カテゴリが存在する場合は挿入せず既存のIDを返す。
func (s *SQLiteCategoryStore) AddCategory(ctx context.Context, q database.Querier, category model.Category) (int64, error) {
	_, err := q.ExecContext(ctx,
		`INSERT INTO categories (name) VALUES (?) ON CONFLICT (name) DO NOTHING`,
		category.Name,
	)
	if err != nil {
		return 0, fmt.Errorf("カテゴリの挿入に失敗しました: %w", err)
	}

	var id int64
	err = q.QueryRowContext(ctx,
		`SELECT id FROM categories WHERE name = ?`, category.Name,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("カテゴリIDの取得に失敗しました: %w", err)
	}

	q.Invalidate(tableCategories)
	return id, nil
}

// AddPodcastToCategory は対応行を挿入する。ペア衝突時は何もしない。
func (s *SQLiteCategoryStore) AddPodcastToCategory(ctx context.Context, q database.Querier, podcastURI string, categoryID int64) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO podcast_category_entries (podcast_uri, category_id)
		 VALUES (?, ?)
		 ON CONFLICT (podcast_uri, category_id) DO NOTHING`,
		podcastURI, categoryID,
	)
	if err != nil {
		return fmt.Errorf("カテゴリ対応行の挿入に失敗しました: %w", err)
	}
	q.Invalidate(tableCategoryEntries)
	return nil
}

// GetCategory は名前でカテゴリを取得する。見つからない場合はnilを返す。
func (s *SQLiteCategoryStore) GetCategory(ctx context.Context, name string) (*model.Category, error) {
	c := &model.Category{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name FROM categories WHERE name = ?`, name,
	).Scan(&c.ID, &c.Name)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("カテゴリの取得に失敗しました: %w", err)
	}
	return c, nil
}

// IsEmpty は総行数が0かどうかを返す。
func (s *SQLiteCategoryStore) IsEmpty(ctx context.Context) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories`).Scan(&count); err != nil {
		return false, fmt.Errorf("カテゴリ数の取得に失敗しました: %w", err)
	}
	return count == 0, nil
}

// compile-time interface check
var _ CategoryStore = (*SQLiteCategoryStore)(nil)
