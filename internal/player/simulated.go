package player

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// SimulatedPlayer は時計駆動のシミュレーション再生エンジン。
//
// 再生中はティックごとにPlaybackSpeedぶん経過時間を進め、
// エピソードの長さに達したら自動的にキューの次へ進む。
// 全操作はミューテックスで直列化され、ティックループは
// 実行トークンで世代管理される。一時停止・停止・シークで
// トークンが進むため、古いティックが状態リセット後に
// 適用されることはない。
type SimulatedPlayer struct {
	logger *slog.Logger

	mu        sync.Mutex
	current   *PlayerEpisode
	queue     []PlayerEpisode
	speed     time.Duration
	isPlaying bool
	elapsed   time.Duration

	// 実行中ティックループの世代トークン。
	// ループは毎ティック後に自分のトークンと照合し、不一致なら脱落する
	tickToken uint64

	subs      map[uint64]chan EpisodePlayerState
	nextSubID uint64
}

// NewSimulatedPlayer はSimulatedPlayerの新しいインスタンスを生成する。
func NewSimulatedPlayer(logger *slog.Logger) *SimulatedPlayer {
	return &SimulatedPlayer{
		logger: logger,
		speed:  DefaultPlaybackSpeed,
		subs:   make(map[uint64]chan EpisodePlayerState),
	}
}

// State は現在のスナップショットを返す。
func (p *SimulatedPlayer) State() EpisodePlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

// Subscribe はスナップショットの配信チャネルを返す。
func (p *SimulatedPlayer) Subscribe(ctx context.Context) <-chan EpisodePlayerState {
	ch := make(chan EpisodePlayerState, 1)

	p.mu.Lock()
	id := p.nextSubID
	p.nextSubID++
	p.subs[id] = ch
	ch <- p.snapshotLocked()
	p.mu.Unlock()

	go func() {
		<-ctx.Done()
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}()

	return ch
}

// AddToQueue はエピソードをキューの末尾に追加する。
func (p *SimulatedPlayer) AddToQueue(episode PlayerEpisode) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.queue = append(p.queue, episode)
	p.broadcastLocked()
}

// RemoveAllFromQueue はキューを空にする。
func (p *SimulatedPlayer) RemoveAllFromQueue() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.queue = nil
	p.broadcastLocked()
}

// Play は一時停止中の再生を再開する。
func (p *SimulatedPlayer) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playLocked()
}

// PlayEpisode は単一エピソードの即時再生。
func (p *SimulatedPlayer) PlayEpisode(episode PlayerEpisode) {
	p.PlayEpisodes([]PlayerEpisode{episode})
}

// PlayEpisodes は指定エピソード群の即時再生。
func (p *SimulatedPlayer) PlayEpisodes(episodes []PlayerEpisode) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isPlaying {
		p.pauseLocked()
	}

	// 指定群に含まれるエピソードを現在のキューから除去する
	requested := make(map[string]struct{}, len(episodes))
	for _, e := range episodes {
		requested[e.URI] = struct{}{}
	}
	var remaining []PlayerEpisode
	for _, e := range p.queue {
		if _, ok := requested[e.URI]; !ok {
			remaining = append(remaining, e)
		}
	}

	// 指定群を先頭に、元の再生中エピソードをその直後に置く
	merged := make([]PlayerEpisode, 0, len(episodes)+1+len(remaining))
	merged = append(merged, episodes...)
	if p.current != nil {
		merged = append(merged, *p.current)
	}
	merged = append(merged, remaining...)
	p.queue = merged

	p.nextLocked()
}

// Pause は再生を一時停止する。
func (p *SimulatedPlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pauseLocked()
	p.broadcastLocked()
}

// Stop は再生を停止し、経過時間をゼロに戻す。
func (p *SimulatedPlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pauseLocked()
	p.elapsed = 0
	p.broadcastLocked()
}

// Next はキューの先頭を再生中エピソードへ昇格して再生を始める。
func (p *SimulatedPlayer) Next() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextLocked()
}

// Previous は経過時間をゼロに戻して再生を停止する。
func (p *SimulatedPlayer) Previous() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pauseLocked()
	p.elapsed = 0
	p.broadcastLocked()
}

// AdvanceBy は経過時間を進める。
func (p *SimulatedPlayer) AdvanceBy(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil {
		return
	}
	p.elapsed = p.clampLocked(p.elapsed + d)
	p.broadcastLocked()
}

// RewindBy は経過時間を戻す。
func (p *SimulatedPlayer) RewindBy(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil {
		return
	}
	p.elapsed = p.clampLocked(p.elapsed - d)
	p.broadcastLocked()
}

// OnSeekingStarted はシーク開始を通知する。
func (p *SimulatedPlayer) OnSeekingStarted() {
	p.Pause()
}

// OnSeekingFinished はシーク完了を通知する。
func (p *SimulatedPlayer) OnSeekingFinished(position time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.elapsed = p.clampLocked(position)
	p.playLocked()
	p.broadcastLocked()
}

// IncreaseSpeed は再生速度（ティック間隔）を増やす。
func (p *SimulatedPlayer) IncreaseSpeed(d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	next := p.speed + d
	if next <= 0 {
		return fmt.Errorf("再生速度をゼロ以下にはできません: %v", next)
	}
	p.speed = next
	p.broadcastLocked()
	return nil
}

// DecreaseSpeed は再生速度（ティック間隔）を減らす。
func (p *SimulatedPlayer) DecreaseSpeed(d time.Duration) error {
	return p.IncreaseSpeed(-d)
}

// playLocked は再生を開始する。呼び出し側がロックを保持していること。
// すでに再生中、または再生中エピソードがない場合は何もしない。
func (p *SimulatedPlayer) playLocked() {
	if p.isPlaying || p.current == nil {
		return
	}
	p.isPlaying = true
	p.startTickingLocked()
	p.broadcastLocked()
}

// pauseLocked はティックループを無効化して再生を止める。
func (p *SimulatedPlayer) pauseLocked() {
	p.isPlaying = false
	p.tickToken++
}

// nextLocked はキューの先頭を再生中エピソードへ昇格して再生を始める。
func (p *SimulatedPlayer) nextLocked() {
	if len(p.queue) == 0 {
		return
	}

	head := p.queue[0]
	p.queue = p.queue[1:]
	p.current = &head
	p.elapsed = 0
	p.isPlaying = true
	p.startTickingLocked()
	p.broadcastLocked()
}

// startTickingLocked は新しい世代のティックループを起動する。
func (p *SimulatedPlayer) startTickingLocked() {
	p.tickToken++
	go p.tickLoop(p.tickToken)
}

// tickLoop は速度間隔ごとに経過時間を進める。
// 毎ティック後にトークンを照合し、世代が変わっていれば即座に脱落する。
// エピソードの長さが不明（nil）の場合、自然終了は発生しない。
func (p *SimulatedPlayer) tickLoop(token uint64) {
	for {
		p.mu.Lock()
		if token != p.tickToken || !p.isPlaying {
			p.mu.Unlock()
			return
		}
		interval := p.speed
		p.mu.Unlock()

		time.Sleep(interval)

		p.mu.Lock()
		// 待機中に一時停止・停止・シークが起きた場合、
		// このティックは適用せず捨てる
		if token != p.tickToken || !p.isPlaying {
			p.mu.Unlock()
			return
		}

		p.elapsed += p.speed

		if p.current != nil && p.current.Duration != nil && p.elapsed >= *p.current.Duration {
			// 自然終了: 停止して経過時間をゼロに戻し、
			// キューが残っていれば次のエピソードへ自動で進む
			p.pauseLocked()
			p.elapsed = 0
			if len(p.queue) > 0 {
				p.nextLocked()
			} else {
				p.broadcastLocked()
			}
			p.mu.Unlock()
			return
		}

		p.broadcastLocked()
		p.mu.Unlock()
	}
}

// clampLocked は経過時間を[0, エピソードの長さ]に収める。
// 長さが不明の場合は下限のみでクランプする。
func (p *SimulatedPlayer) clampLocked(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if p.current != nil && p.current.Duration != nil && d > *p.current.Duration {
		return *p.current.Duration
	}
	return d
}

// snapshotLocked は現在の状態のコピーを作る。
func (p *SimulatedPlayer) snapshotLocked() EpisodePlayerState {
	state := EpisodePlayerState{
		PlaybackSpeed: p.speed,
		IsPlaying:     p.isPlaying,
		TimeElapsed:   p.elapsed,
	}
	if p.current != nil {
		current := *p.current
		state.CurrentEpisode = &current
	}
	if len(p.queue) > 0 {
		state.Queue = make([]PlayerEpisode, len(p.queue))
		copy(state.Queue, p.queue)
	}
	return state
}

// broadcastLocked はスナップショットを全購読者へ配信する。
// 各購読チャネルはバッファ1で、未消費の古いスナップショットは
// 新しいものへ置き換えられる。
func (p *SimulatedPlayer) broadcastLocked() {
	snapshot := p.snapshotLocked()
	for _, ch := range p.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snapshot:
		default:
		}
	}
}

var _ EpisodePlayer = (*SimulatedPlayer)(nil)
