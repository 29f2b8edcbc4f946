package model

import "time"

// Episode はポッドキャストの1エピソードを表す。
// URIが自然キー。フィードがURIを申告しない場合は空文字列になり得る
// （フィード側の欠陥をそのまま保持する。デフォルト値は補わない）。
// 同期で一括挿入された後は更新されない。
type Episode struct {
	URI        string
	PodcastURI string
	Title      string
	Author     string
	Summary    string
	Subtitle   string
	// Published はUTCに正規化された公開日時。
	// フィードが公開日時を持たない場合はゼロ値のまま保持する。
	Published time.Time
	// Duration はiTunes拡張が提供する再生時間。未提供の場合はnil。
	Duration *time.Duration
}

// EpisodeToPodcast はエピソードと所属ポッドキャストのJOIN結果。
type EpisodeToPodcast struct {
	Episode
	Podcast Podcast
}
