package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hitoshi/castman/internal/database"
	"github.com/hitoshi/castman/internal/model"
)

// SQLiteEpisodeStore はSQLiteを使用したエピソードストア。
type SQLiteEpisodeStore struct {
	db *database.DB
}

// NewSQLiteEpisodeStore はSQLiteEpisodeStoreを生成する。
func NewSQLiteEpisodeStore(db *database.DB) *SQLiteEpisodeStore {
	return &SQLiteEpisodeStore{db: db}
}

// episodeToPodcastSelect はエピソードと所属ポッドキャストをJOINする共通SELECT句。
const episodeToPodcastSelect = `
	SELECT e.uri, e.podcast_uri, e.title, e.author, e.summary, e.subtitle,
	       e.published, e.duration_ms,
	       p.uri, p.title, p.description, p.author, p.copyright, p.image_url
	FROM episodes e
	JOIN podcasts p ON p.uri = e.podcast_uri`

// EpisodeWithURI は指定URIのエピソードを取得する。見つからない場合はnilを返す。
func (s *SQLiteEpisodeStore) EpisodeWithURI(ctx context.Context, uri string) (*model.Episode, error) {
	episode := &model.Episode{}
	var author, summary, subtitle, published sql.NullString
	var durationMs sql.NullInt64

	err := s.db.QueryRowContext(ctx,
		`SELECT uri, podcast_uri, title, author, summary, subtitle, published, duration_ms
		 FROM episodes WHERE uri = ?`,
		uri,
	).Scan(
		&episode.URI, &episode.PodcastURI, &episode.Title,
		&author, &summary, &subtitle, &published, &durationMs,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("エピソードの取得に失敗しました: %w", err)
	}

	episode.Author = nullStringValue(author)
	episode.Summary = nullStringValue(summary)
	episode.Subtitle = nullStringValue(subtitle)
	episode.Published, err = timeFromDB(published)
	if err != nil {
		return nil, fmt.Errorf("公開日時の解析に失敗しました: %w", err)
	}
	episode.Duration = durationFromDB(durationMs)

	return episode, nil
}

// EpisodeAndPodcastWithURI はエピソードと所属ポッドキャストをJOINして取得する。
// 見つからない場合はnilを返す。
func (s *SQLiteEpisodeStore) EpisodeAndPodcastWithURI(ctx context.Context, uri string) (*model.EpisodeToPodcast, error) {
	row := s.db.QueryRowContext(ctx, episodeToPodcastSelect+` WHERE e.uri = ?`, uri)

	etp, err := scanEpisodeToPodcast(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("エピソード詳細の取得に失敗しました: %w", err)
	}
	return etp, nil
}

// EpisodesInPodcast は指定ポッドキャストのエピソードを公開日時の新しい順に返す。
func (s *SQLiteEpisodeStore) EpisodesInPodcast(ctx context.Context, podcastURI string, limit int) ([]model.EpisodeToPodcast, error) {
	return s.queryEpisodeToPodcastList(ctx,
		episodeToPodcastSelect+`
		 WHERE e.podcast_uri = ?
		 ORDER BY e.published DESC LIMIT ?`,
		podcastURI, normalizeLimit(limit),
	)
}

// EpisodesInPodcasts は複数ポッドキャストのエピソードを公開日時の新しい順に返す。
func (s *SQLiteEpisodeStore) EpisodesInPodcasts(ctx context.Context, podcastURIs []string, limit int) ([]model.EpisodeToPodcast, error) {
	if len(podcastURIs) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(podcastURIs))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(podcastURIs)+1)
	for _, uri := range podcastURIs {
		args = append(args, uri)
	}
	args = append(args, normalizeLimit(limit))

	return s.queryEpisodeToPodcastList(ctx,
		episodeToPodcastSelect+`
		 WHERE e.podcast_uri IN (`+placeholders+`)
		 ORDER BY e.published DESC LIMIT ?`,
		args...,
	)
}

// WatchEpisodesInPodcast はEpisodesInPodcastのリアクティブクエリ。
func (s *SQLiteEpisodeStore) WatchEpisodesInPodcast(ctx context.Context, podcastURI string, limit int) <-chan []model.EpisodeToPodcast {
	return watch(ctx, s.db, []string{tableEpisodes, tablePodcasts},
		func(ctx context.Context) ([]model.EpisodeToPodcast, error) {
			return s.EpisodesInPodcast(ctx, podcastURI, limit)
		})
}

// AddEpisodes はエピソードを一括挿入する。URI衝突行はスキップされる。
// 実際に挿入された行数を返す。
// 呼び出し側がトランザクション内で実行する場合はTxを渡す。
func (s *SQLiteEpisodeStore) AddEpisodes(ctx context.Context, q database.Querier, episodes []model.Episode) (int, error) {
	if len(episodes) == 0 {
		return 0, nil
	}

	var inserted int
	for i := range episodes {
		e := &episodes[i]
		res, err := q.ExecContext(ctx,
			`INSERT INTO episodes (uri, podcast_uri, title, author, summary, subtitle, published, duration_ms)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (uri) DO NOTHING`,
			e.URI, e.PodcastURI, e.Title, nullString(e.Author),
			nullString(e.Summary), nullString(e.Subtitle),
			timeToDB(e.Published), durationToDB(e.Duration),
		)
		if err != nil {
			return inserted, fmt.Errorf("エピソードの挿入に失敗しました (uri=%s): %w", e.URI, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return inserted, fmt.Errorf("挿入行数の取得に失敗しました (uri=%s): %w", e.URI, err)
		}
		inserted += int(affected)
	}

	q.Invalidate(tableEpisodes)
	return inserted, nil
}

// IsEmpty は総行数が0かどうかを返す。
func (s *SQLiteEpisodeStore) IsEmpty(ctx context.Context) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM episodes`).Scan(&count); err != nil {
		return false, fmt.Errorf("エピソード数の取得に失敗しました: %w", err)
	}
	return count == 0, nil
}

func (s *SQLiteEpisodeStore) queryEpisodeToPodcastList(ctx context.Context, query string, args ...any) ([]model.EpisodeToPodcast, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("エピソード一覧の取得に失敗しました: %w", err)
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
		return nil, fmt.Errorf("エピソード一覧の走査に失敗しました: %w", err)
	}

	return result, nil
}

func scanEpisodeToPodcast(row rowScanner) (*model.EpisodeToPodcast, error) {
	etp := &model.EpisodeToPodcast{}
	var eAuthor, eSummary, eSubtitle, ePublished sql.NullString
	var durationMs sql.NullInt64
	var pDescription, pAuthor, pCopyright, pImageURL sql.NullString

	if err := row.Scan(
		&etp.URI, &etp.PodcastURI, &etp.Title, &eAuthor, &eSummary, &eSubtitle,
		&ePublished, &durationMs,
		&etp.Podcast.URI, &etp.Podcast.Title, &pDescription, &pAuthor,
		&pCopyright, &pImageURL,
	); err != nil {
		return nil, err
	}

	etp.Author = nullStringValue(eAuthor)
	etp.Summary = nullStringValue(eSummary)
	etp.Subtitle = nullStringValue(eSubtitle)

	published, err := timeFromDB(ePublished)
	if err != nil {
		return nil, err
	}
	etp.Published = published
	etp.Duration = durationFromDB(durationMs)

	etp.Podcast.Description = nullStringValue(pDescription)
	etp.Podcast.Author = nullStringValue(pAuthor)
	etp.Podcast.Copyright = nullStringValue(pCopyright)
	etp.Podcast.ImageURL = nullStringValue(pImageURL)

	return etp, nil
}

// compile-time interface check
var _ EpisodeStore = (*SQLiteEpisodeStore)(nil)
