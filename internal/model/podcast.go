// Package model はドメインモデルを定義する。
package model

import "time"

// Podcast はポッドキャスト番組を表す。
// URIが自然キーであり、フィードが自己申告するURI、なければフェッチURLが入る。
// 同一URIの再取得では既存行を上書きしない（insert-or-ignore）。
type Podcast struct {
	URI         string
	Title       string
	Description string
	Author      string
	Copyright   string
	ImageURL    string
}

// PodcastWithExtraInfo はポッドキャストに最新エピソード日時とフォロー状態を
// 付加した読み取り専用ビュー。一覧表示・検索クエリの結果型として使用する。
type PodcastWithExtraInfo struct {
	Podcast
	// LastEpisodeDate は最新エピソードの公開日時。エピソードが1件もない場合はnil。
	LastEpisodeDate *time.Time
	IsFollowed      bool
}

// PodcastFollowedEntry はフォロー状態を表す行。行の存在＝フォロー中。
type PodcastFollowedEntry struct {
	PodcastURI string
}
