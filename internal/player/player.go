// Package player はエピソード再生のステートマシンを提供する。
//
// 実装は実際の音声出力を持たないシミュレーション再生で、
// 再生中は速度間隔ごとに経過時間を進める時計駆動モデルである。
// 状態の変化はスナップショットとして購読者へ配信され、
// 購読者が部分更新を観測することはない。
package player

import (
	"context"
	"time"

	"github.com/hitoshi/castman/internal/model"
)

// DefaultPlaybackSpeed は再生速度の初期値。
// 再生速度は倍率ではなく「1ティックの待機時間＝1ティックで進む時間」を
// 表す期間値である。
const DefaultPlaybackSpeed = 1 * time.Second

// PlayerEpisode は再生用のエピソード投影。
// 永続化されたEpisodeとは別の不変値で、キューと再生中エピソードの
// ペイロードとしてのみ使用する。
type PlayerEpisode struct {
	URI             string
	Title           string
	PodcastName     string
	PodcastImageURL string
	Summary         string
	Duration        *time.Duration
}

// NewPlayerEpisode はストアのJOIN結果から再生用の投影を作る。
func NewPlayerEpisode(etp model.EpisodeToPodcast) PlayerEpisode {
	return PlayerEpisode{
		URI:             etp.URI,
		Title:           etp.Title,
		PodcastName:     etp.Podcast.Title,
		PodcastImageURL: etp.Podcast.ImageURL,
		Summary:         etp.Summary,
		Duration:        etp.Duration,
	}
}

// EpisodePlayerState は再生状態のスナップショット。
// いずれかのフィールドが変化するたびに再計算され、購読者へ配信される。
type EpisodePlayerState struct {
	CurrentEpisode *PlayerEpisode
	Queue          []PlayerEpisode
	PlaybackSpeed  time.Duration
	IsPlaying      bool
	TimeElapsed    time.Duration
}

// EpisodePlayer はエピソード再生のインターフェース。
type EpisodePlayer interface {
	// State は現在のスナップショットを返す。
	State() EpisodePlayerState

	// Subscribe はスナップショットの配信チャネルを返す。
	// 購読直後に現在の状態が1回送信され、以降は状態変化のたびに送信される。
	// 消費が追いつかない場合は古いスナップショットが破棄され、
	// 常に最新の状態だけが残る。コンテキストのキャンセルで購読は終了する。
	Subscribe(ctx context.Context) <-chan EpisodePlayerState

	// AddToQueue はエピソードをキューの末尾に追加する。どの状態でも有効。
	AddToQueue(episode PlayerEpisode)

	// RemoveAllFromQueue はキューを空にする。再生中エピソードには影響しない。
	RemoveAllFromQueue()

	// Play は一時停止中の再生を再開する。
	// すでに再生中、または再生中エピソードがない場合は何もしない。
	Play()

	// PlayEpisode は単一エピソードの即時再生。PlayEpisodesの単数形。
	PlayEpisode(episode PlayerEpisode)

	// PlayEpisodes は指定エピソード群の即時再生。
	// 再生中なら一時停止し、指定群をキューの先頭へマージし
	// （キュー内の重複は除去）、元の再生中エピソードをその直後に戻してから
	// 先頭を昇格して再生を始める。
	PlayEpisodes(episodes []PlayerEpisode)

	// Pause は再生を一時停止する。経過時間と再生中エピソードは保持される。
	Pause()

	// Stop は再生を停止し、経過時間をゼロに戻す。
	// 再生中エピソードは保持される（経過時間のリセットのみがPauseとの違い）。
	Stop()

	// Next はキューの先頭を再生中エピソードへ昇格して再生を始める。
	// キューが空の場合は何もしない。
	Next()

	// Previous は経過時間をゼロに戻して再生を停止する。
	// 再生履歴は追跡しない。
	Previous()

	// AdvanceBy は経過時間を進める。エピソードの長さでクランプされる。
	// 再生中エピソードがない場合は何もしない。
	AdvanceBy(d time.Duration)

	// RewindBy は経過時間を戻す。ゼロでクランプされる。
	// 再生中エピソードがない場合は何もしない。
	RewindBy(d time.Duration)

	// OnSeekingStarted はシーク開始を通知する。再生は一時停止される。
	OnSeekingStarted()

	// OnSeekingFinished はシーク完了を通知する。
	// 位置は[0, エピソードの長さ]にクランプされ、再生が再開される。
	OnSeekingFinished(position time.Duration)

	// IncreaseSpeed は再生速度（ティック間隔）を増やす。
	// 結果がゼロ以下になる場合は変更せずエラーを返す。
	IncreaseSpeed(d time.Duration) error

	// DecreaseSpeed は再生速度（ティック間隔）を減らす。
	// 結果がゼロ以下になる場合は変更せずエラーを返す。
	DecreaseSpeed(d time.Duration) error
}
