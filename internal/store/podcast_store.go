package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hitoshi/castman/internal/database"
	"github.com/hitoshi/castman/internal/model"
)

// SQLitePodcastStore はSQLiteを使用したポッドキャストストア。
type SQLitePodcastStore struct {
	db *database.DB
}

// NewSQLitePodcastStore はSQLitePodcastStoreを生成する。
func NewSQLitePodcastStore(db *database.DB) *SQLitePodcastStore {
	return &SQLitePodcastStore{db: db}
}

// podcastExtraSelect はポッドキャストに最新エピソード日時とフォロー状態を
// 付加して取得する共通SELECT句。
const podcastExtraSelect = `
	SELECT p.uri, p.title, p.description, p.author, p.copyright, p.image_url,
	       (SELECT MAX(e.published) FROM episodes e WHERE e.podcast_uri = p.uri) AS last_episode_date,
	       EXISTS (SELECT 1 FROM podcast_followed_entries f WHERE f.podcast_uri = p.uri) AS is_followed
	FROM podcasts p`

// PodcastWithURI は指定URIのポッドキャストを取得する。見つからない場合はnilを返す。
func (s *SQLitePodcastStore) PodcastWithURI(ctx context.Context, uri string) (*model.Podcast, error) {
	podcast := &model.Podcast{}
	var description, author, copyright, imageURL sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT uri, title, description, author, copyright, image_url
		 FROM podcasts WHERE uri = ?`,
		uri,
	).Scan(&podcast.URI, &podcast.Title, &description, &author, &copyright, &imageURL)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ポッドキャストの取得に失敗しました: %w", err)
	}

	podcast.Description = nullStringValue(description)
	podcast.Author = nullStringValue(author)
	podcast.Copyright = nullStringValue(copyright)
	podcast.ImageURL = nullStringValue(imageURL)

	return podcast, nil
}

// PodcastWithExtraInfo は最新エピソード日時とフォロー状態付きで取得する。
func (s *SQLitePodcastStore) PodcastWithExtraInfo(ctx context.Context, uri string) (*model.PodcastWithExtraInfo, error) {
	row := s.db.QueryRowContext(ctx, podcastExtraSelect+` WHERE p.uri = ?`, uri)

	info, err := scanPodcastExtra(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ポッドキャスト詳細の取得に失敗しました: %w", err)
	}
	return info, nil
}

// PodcastsSortedByLastEpisode は最新エピソードの新しい順に一覧を返す。
func (s *SQLitePodcastStore) PodcastsSortedByLastEpisode(ctx context.Context, limit int) ([]model.PodcastWithExtraInfo, error) {
	return s.queryPodcastExtraList(ctx,
		podcastExtraSelect+` ORDER BY last_episode_date DESC LIMIT ?`,
		normalizeLimit(limit),
	)
}

// FollowedPodcastsSortedByLastEpisode はフォロー中のみを最新エピソード順に返す。
func (s *SQLitePodcastStore) FollowedPodcastsSortedByLastEpisode(ctx context.Context, limit int) ([]model.PodcastWithExtraInfo, error) {
	return s.queryPodcastExtraList(ctx,
		podcastExtraSelect+`
		 WHERE EXISTS (SELECT 1 FROM podcast_followed_entries f WHERE f.podcast_uri = p.uri)
		 ORDER BY last_episode_date DESC LIMIT ?`,
		normalizeLimit(limit),
	)
}

// SearchPodcastByTitle はタイトルの部分一致検索を行う。
func (s *SQLitePodcastStore) SearchPodcastByTitle(ctx context.Context, keyword string, limit int) ([]model.PodcastWithExtraInfo, error) {
	return s.queryPodcastExtraList(ctx,
		podcastExtraSelect+`
		 WHERE p.title LIKE '%' || ? || '%'
		 ORDER BY last_episode_date DESC LIMIT ?`,
		keyword, normalizeLimit(limit),
	)
}

// SearchPodcastByTitleAndCategories はタイトル部分一致に加えて
// 指定カテゴリへの所属で絞り込む。
func (s *SQLitePodcastStore) SearchPodcastByTitleAndCategories(
	ctx context.Context,
	keyword string,
	categories []model.Category,
	limit int,
) ([]model.PodcastWithExtraInfo, error) {
	if len(categories) == 0 {
		return s.SearchPodcastByTitle(ctx, keyword, limit)
	}

	placeholders := strings.Repeat("?,", len(categories))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(categories)+2)
	args = append(args, keyword)
	for _, c := range categories {
		args = append(args, c.ID)
	}
	args = append(args, normalizeLimit(limit))

	query := podcastExtraSelect + `
		 WHERE p.title LIKE '%' || ? || '%'
		   AND p.uri IN (
		       SELECT pce.podcast_uri FROM podcast_category_entries pce
		       WHERE pce.category_id IN (` + placeholders + `)
		   )
		 ORDER BY last_episode_date DESC LIMIT ?`

	return s.queryPodcastExtraList(ctx, query, args...)
}

// WatchPodcastWithURI は指定URIのポッドキャストのリアクティブクエリ。
func (s *SQLitePodcastStore) WatchPodcastWithURI(ctx context.Context, uri string) <-chan model.Podcast {
	return watch(ctx, s.db, []string{tablePodcasts},
		func(ctx context.Context) (model.Podcast, error) {
			p, err := s.PodcastWithURI(ctx, uri)
			if err != nil {
				return model.Podcast{}, err
			}
			if p == nil {
				return model.Podcast{}, sql.ErrNoRows
			}
			return *p, nil
		})
}

// WatchPodcastsSortedByLastEpisode は一覧のリアクティブクエリ。
// エピソードとフォロー状態にも依存するため、3テーブルの変更で再発行される。
func (s *SQLitePodcastStore) WatchPodcastsSortedByLastEpisode(ctx context.Context, limit int) <-chan []model.PodcastWithExtraInfo {
	return watch(ctx, s.db, []string{tablePodcasts, tableEpisodes, tableFollowedEntries},
		func(ctx context.Context) ([]model.PodcastWithExtraInfo, error) {
			return s.PodcastsSortedByLastEpisode(ctx, limit)
		})
}

// WatchFollowedPodcastsSortedByLastEpisode はフォロー中一覧のリアクティブクエリ。
func (s *SQLitePodcastStore) WatchFollowedPodcastsSortedByLastEpisode(ctx context.Context, limit int) <-chan []model.PodcastWithExtraInfo {
	return watch(ctx, s.db, []string{tablePodcasts, tableEpisodes, tableFollowedEntries},
		func(ctx context.Context) ([]model.PodcastWithExtraInfo, error) {
			return s.FollowedPodcastsSortedByLastEpisode(ctx, limit)
		})
}

// AddPodcast はポッドキャストを挿入する。URI衝突時は既存行を保持して何もしない。
func (s *SQLitePodcastStore) AddPodcast(ctx context.Context, q database.Querier, podcast *model.Podcast) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO podcasts (uri, title, description, author, copyright, image_url)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (uri) DO NOTHING`,
		podcast.URI, podcast.Title, nullString(podcast.Description),
		nullString(podcast.Author), nullString(podcast.Copyright),
		nullString(podcast.ImageURL),
	)
	if err != nil {
		return fmt.Errorf("ポッドキャストの挿入に失敗しました: %w", err)
	}
	q.Invalidate(tablePodcasts)
	return nil
}

// FollowPodcast はフォロー行を挿入する。
func (s *SQLitePodcastStore) FollowPodcast(ctx context.Context, podcastURI string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO podcast_followed_entries (podcast_uri) VALUES (?)
		 ON CONFLICT (podcast_uri) DO NOTHING`,
		podcastURI,
	)
	if err != nil {
		return fmt.Errorf("フォロー行の挿入に失敗しました: %w", err)
	}
	s.db.Invalidate(tableFollowedEntries)
	return nil
}

// UnfollowPodcast はフォロー行を削除する。
func (s *SQLitePodcastStore) UnfollowPodcast(ctx context.Context, podcastURI string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM podcast_followed_entries WHERE podcast_uri = ?`,
		podcastURI,
	)
	if err != nil {
		return fmt.Errorf("フォロー行の削除に失敗しました: %w", err)
	}
	s.db.Invalidate(tableFollowedEntries)
	return nil
}

// TogglePodcastFollowed はフォロー状態をトランザクション内で反転する。
func (s *SQLitePodcastStore) TogglePodcastFollowed(ctx context.Context, podcastURI string) error {
	return s.db.WithTx(ctx, func(tx *database.Tx) error {
		var count int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM podcast_followed_entries WHERE podcast_uri = ?`,
			podcastURI,
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("フォロー状態の確認に失敗しました: %w", err)
		}

		if count > 0 {
			_, err = tx.ExecContext(ctx,
				`DELETE FROM podcast_followed_entries WHERE podcast_uri = ?`, podcastURI)
		} else {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO podcast_followed_entries (podcast_uri) VALUES (?)`, podcastURI)
		}
		if err != nil {
			return fmt.Errorf("フォロー状態の反転に失敗しました: %w", err)
		}

		tx.Invalidate(tableFollowedEntries)
		return nil
	})
}

// IsPodcastFollowed はフォロー行の存在（行数 > 0）を返す。
func (s *SQLitePodcastStore) IsPodcastFollowed(ctx context.Context, podcastURI string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM podcast_followed_entries WHERE podcast_uri = ?`,
		podcastURI,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("フォロー状態の取得に失敗しました: %w", err)
	}
	return count > 0, nil
}

// IsEmpty は総行数が0かどうかを返す。
func (s *SQLitePodcastStore) IsEmpty(ctx context.Context) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM podcasts`).Scan(&count); err != nil {
		return false, fmt.Errorf("ポッドキャスト数の取得に失敗しました: %w", err)
	}
	return count == 0, nil
}

func (s *SQLitePodcastStore) queryPodcastExtraList(ctx context.Context, query string, args ...any) ([]model.PodcastWithExtraInfo, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ポッドキャスト一覧の取得に失敗しました: %w", err)
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
		return nil, fmt.Errorf("ポッドキャスト一覧の走査に失敗しました: %w", err)
	}

	return result, nil
}

// rowScanner は*sql.Rowと*sql.Rowsの共通Scanインターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPodcastExtra(row rowScanner) (*model.PodcastWithExtraInfo, error) {
	info := &model.PodcastWithExtraInfo{}
	var description, author, copyright, imageURL, lastEpisodeDate sql.NullString

	if err := row.Scan(
		&info.URI, &info.Title, &description, &author, &copyright, &imageURL,
		&lastEpisodeDate, &info.IsFollowed,
	); err != nil {
		return nil, err
	}

	info.Description = nullStringValue(description)
	info.Author = nullStringValue(author)
	info.Copyright = nullStringValue(copyright)
	info.ImageURL = nullStringValue(imageURL)

	t, err := timeFromDB(lastEpisodeDate)
	if err != nil {
		return nil, err
	}
	if !t.IsZero() {
		info.LastEpisodeDate = &t
	}

	return info, nil
}

// compile-time interface check
var _ PodcastStore = (*SQLitePodcastStore)(nil)
