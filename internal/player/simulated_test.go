package player

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

func newTestPlayer() *SimulatedPlayer {
	return NewSimulatedPlayer(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func durationPtr(d time.Duration) *time.Duration { return &d }

func episode(uri string, duration *time.Duration) PlayerEpisode {
	return PlayerEpisode{URI: uri, Title: uri, Duration: duration}
}

// waitFor は条件が成立するまでポーリングする。タイムアウトでテストを失敗させる。
func waitFor(t *testing.T, timeout time.Duration, cond func(EpisodePlayerState) bool, p *SimulatedPlayer, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond(p.State()) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("%s: 最終状態 = %+v", msg, p.State())
}

func TestPlay_NoopWithoutCurrentEpisode(t *testing.T) {
	p := newTestPlayer()

	p.Play()

	state := p.State()
	if state.IsPlaying {
		t.Error("再生中エピソードなしでPlayは何もしないべき")
	}
}

func TestPlayEpisode_StartsTicking(t *testing.T) {
	p := newTestPlayer()
	if err := p.DecreaseSpeed(DefaultPlaybackSpeed - 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}

	p.PlayEpisode(episode("ep-1", durationPtr(time.Hour)))

	state := p.State()
	if state.CurrentEpisode == nil || state.CurrentEpisode.URI != "ep-1" {
		t.Fatalf("CurrentEpisode = %+v", state.CurrentEpisode)
	}
	if !state.IsPlaying {
		t.Error("IsPlaying = false")
	}

	waitFor(t, 2*time.Second, func(s EpisodePlayerState) bool {
		return s.TimeElapsed > 0
	}, p, "経過時間が進まない")
}

// 3ティックぶんの長さのエピソードを最後まで再生すると、
// 経過時間がゼロに戻りキューの先頭が昇格されて再生が続く。
func TestTickLoop_AutoAdvance(t *testing.T) {
	p := newTestPlayer()
	if err := p.DecreaseSpeed(DefaultPlaybackSpeed - 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}

	p.AddToQueue(episode("ep-2", durationPtr(time.Hour)))
	p.PlayEpisode(episode("ep-1", durationPtr(30*time.Millisecond))) // 3ティック

	waitFor(t, 2*time.Second, func(s EpisodePlayerState) bool {
		return s.CurrentEpisode != nil && s.CurrentEpisode.URI == "ep-2"
	}, p, "次のエピソードへ自動で進まない")

	state := p.State()
	if !state.IsPlaying {
		t.Error("自動昇格後は再生中であるべき")
	}
	if len(state.Queue) != 0 {
		t.Errorf("キュー = %+v, 空であるべき", state.Queue)
	}
}

// キューが空の場合の自然終了は、停止して経過時間をゼロに戻すだけで
// 再生中エピソードは変わらない。
func TestTickLoop_NaturalCompletionWithEmptyQueue(t *testing.T) {
	p := newTestPlayer()
	if err := p.DecreaseSpeed(DefaultPlaybackSpeed - 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}

	p.PlayEpisode(episode("ep-1", durationPtr(20*time.Millisecond)))

	waitFor(t, 2*time.Second, func(s EpisodePlayerState) bool {
		return !s.IsPlaying && s.TimeElapsed == 0
	}, p, "自然終了しない")

	state := p.State()
	if state.CurrentEpisode == nil || state.CurrentEpisode.URI != "ep-1" {
		t.Errorf("自然終了後もCurrentEpisodeは保持されるべき: %+v", state.CurrentEpisode)
	}
}

// 長さ不明のエピソードでは自然終了が発生しない。
func TestTickLoop_NoCompletionWithoutDuration(t *testing.T) {
	p := newTestPlayer()
	if err := p.DecreaseSpeed(DefaultPlaybackSpeed - 5*time.Millisecond); err != nil {
		t.Fatal(err)
	}

	p.PlayEpisode(episode("ep-1", nil))

	waitFor(t, 2*time.Second, func(s EpisodePlayerState) bool {
		return s.TimeElapsed >= 50*time.Millisecond
	}, p, "経過時間が進まない")

	if state := p.State(); !state.IsPlaying {
		t.Error("長さ不明のエピソードは再生し続けるべき")
	}
}

// 一時停止後に古いティックが適用されないことを検証する。
func TestPause_NoStaleTick(t *testing.T) {
	p := newTestPlayer()
	if err := p.DecreaseSpeed(DefaultPlaybackSpeed - 50*time.Millisecond); err != nil {
		t.Fatal(err)
	}

	p.PlayEpisode(episode("ep-1", durationPtr(time.Hour)))
	time.Sleep(20 * time.Millisecond)
	p.Pause()

	elapsed := p.State().TimeElapsed

	// 一時停止時点でスリープ中だったティックが発火しても適用されない
	time.Sleep(150 * time.Millisecond)
	state := p.State()
	if state.TimeElapsed != elapsed {
		t.Errorf("TimeElapsed = %v, 一時停止時の%vから変化してはならない", state.TimeElapsed, elapsed)
	}
	if state.IsPlaying {
		t.Error("IsPlaying = true")
	}
}

func TestPauseAndStop_ElapsedSemantics(t *testing.T) {
	p := newTestPlayer()

	p.PlayEpisode(episode("ep-1", durationPtr(time.Hour)))
	p.Pause()
	p.AdvanceBy(10 * time.Minute)

	// Pauseは経過時間を保持する
	p.Pause()
	if got := p.State().TimeElapsed; got != 10*time.Minute {
		t.Errorf("Pause後のTimeElapsed = %v, want 10m", got)
	}

	// Stopは経過時間をゼロに戻すが、再生中エピソードは保持する
	p.Stop()
	state := p.State()
	if state.TimeElapsed != 0 {
		t.Errorf("Stop後のTimeElapsed = %v, want 0", state.TimeElapsed)
	}
	if state.CurrentEpisode == nil {
		t.Error("Stop後もCurrentEpisodeは保持されるべき")
	}
}

func TestSeek_Clamps(t *testing.T) {
	p := newTestPlayer()

	p.PlayEpisode(episode("ep-1", durationPtr(10*time.Minute)))
	p.Pause()

	// 残り時間を超える前進は長さちょうどでクランプ
	p.AdvanceBy(time.Hour)
	if got := p.State().TimeElapsed; got != 10*time.Minute {
		t.Errorf("AdvanceBy後のTimeElapsed = %v, want 10m", got)
	}

	// ゼロを下回る巻き戻しはゼロでクランプ
	p.RewindBy(time.Hour)
	if got := p.State().TimeElapsed; got != 0 {
		t.Errorf("RewindBy後のTimeElapsed = %v, want 0", got)
	}
}

func TestSeek_NoopWithoutCurrentEpisode(t *testing.T) {
	p := newTestPlayer()

	p.AdvanceBy(time.Minute)
	p.RewindBy(time.Minute)

	if got := p.State().TimeElapsed; got != 0 {
		t.Errorf("TimeElapsed = %v, want 0", got)
	}
}

func TestOnSeeking_PausesThenResumes(t *testing.T) {
	p := newTestPlayer()

	p.PlayEpisode(episode("ep-1", durationPtr(10*time.Minute)))

	p.OnSeekingStarted()
	if p.State().IsPlaying {
		t.Error("シーク開始で一時停止すべき")
	}

	// 位置は長さでクランプされ、再生が再開される
	p.OnSeekingFinished(time.Hour)
	state := p.State()
	if state.TimeElapsed != 10*time.Minute {
		t.Errorf("TimeElapsed = %v, want 10m", state.TimeElapsed)
	}
	if !state.IsPlaying {
		t.Error("シーク完了で再生を再開すべき")
	}
}

func TestPlayEpisodes_FrontMergeWithDedup(t *testing.T) {
	p := newTestPlayer()

	a := episode("ep-a", durationPtr(time.Hour))
	b := episode("ep-b", durationPtr(time.Hour))
	c := episode("ep-c", durationPtr(time.Hour))
	d := episode("ep-d", durationPtr(time.Hour))
	x := episode("ep-x", durationPtr(time.Hour))

	p.PlayEpisode(x)
	p.AddToQueue(a)
	p.AddToQueue(b)
	p.AddToQueue(c)

	// bはキュー内の旧位置から除去され、新しい先頭リストとして入り直す。
	// 元の再生中エピソードxは新リストの直後に戻る
	p.PlayEpisodes([]PlayerEpisode{b, d})

	state := p.State()
	if state.CurrentEpisode == nil || state.CurrentEpisode.URI != "ep-b" {
		t.Fatalf("CurrentEpisode = %+v, want ep-b", state.CurrentEpisode)
	}
	if !state.IsPlaying {
		t.Error("IsPlaying = false")
	}

	var uris []string
	for _, e := range state.Queue {
		uris = append(uris, e.URI)
	}
	want := []string{"ep-d", "ep-x", "ep-a", "ep-c"}
	if len(uris) != len(want) {
		t.Fatalf("キュー = %v, want %v", uris, want)
	}
	for i := range want {
		if uris[i] != want[i] {
			t.Errorf("キュー[%d] = %s, want %s", i, uris[i], want[i])
		}
	}
}

func TestNext_NoopWithEmptyQueue(t *testing.T) {
	p := newTestPlayer()

	p.PlayEpisode(episode("ep-1", durationPtr(time.Hour)))
	p.Pause()
	p.AdvanceBy(time.Minute)

	p.Next()

	state := p.State()
	if state.CurrentEpisode.URI != "ep-1" {
		t.Errorf("CurrentEpisode = %+v", state.CurrentEpisode)
	}
	if state.TimeElapsed != time.Minute {
		t.Errorf("TimeElapsed = %v, キューが空のNextは何もしないべき", state.TimeElapsed)
	}
}

func TestPrevious_ResetsAndStops(t *testing.T) {
	p := newTestPlayer()

	p.PlayEpisode(episode("ep-1", durationPtr(time.Hour)))
	p.AdvanceBy(time.Minute)

	p.Previous()

	state := p.State()
	if state.IsPlaying {
		t.Error("Previousは再生を停止すべき")
	}
	if state.TimeElapsed != 0 {
		t.Errorf("TimeElapsed = %v, want 0", state.TimeElapsed)
	}
	if state.CurrentEpisode == nil || state.CurrentEpisode.URI != "ep-1" {
		t.Errorf("CurrentEpisode = %+v, 履歴は追跡しない", state.CurrentEpisode)
	}
}

func TestSpeed_AdjustAndValidate(t *testing.T) {
	p := newTestPlayer()

	if got := p.State().PlaybackSpeed; got != DefaultPlaybackSpeed {
		t.Fatalf("初期速度 = %v, want %v", got, DefaultPlaybackSpeed)
	}

	if err := p.IncreaseSpeed(500 * time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if got := p.State().PlaybackSpeed; got != 1500*time.Millisecond {
		t.Errorf("PlaybackSpeed = %v, want 1.5s", got)
	}

	if err := p.DecreaseSpeed(time.Second); err != nil {
		t.Fatal(err)
	}
	if got := p.State().PlaybackSpeed; got != 500*time.Millisecond {
		t.Errorf("PlaybackSpeed = %v, want 500ms", got)
	}

	// ゼロ以下になる変更は拒否され、速度は変わらない
	if err := p.DecreaseSpeed(500 * time.Millisecond); err == nil {
		t.Error("速度がゼロになる変更はエラーを返すべき")
	}
	if err := p.DecreaseSpeed(time.Hour); err == nil {
		t.Error("速度が負になる変更はエラーを返すべき")
	}
	if got := p.State().PlaybackSpeed; got != 500*time.Millisecond {
		t.Errorf("拒否後のPlaybackSpeed = %v, want 500ms", got)
	}
}

func TestRemoveAllFromQueue(t *testing.T) {
	p := newTestPlayer()

	p.PlayEpisode(episode("ep-1", durationPtr(time.Hour)))
	p.AddToQueue(episode("ep-2", durationPtr(time.Hour)))
	p.AddToQueue(episode("ep-3", durationPtr(time.Hour)))

	p.RemoveAllFromQueue()

	state := p.State()
	if len(state.Queue) != 0 {
		t.Errorf("キュー = %+v, 空であるべき", state.Queue)
	}
	if state.CurrentEpisode == nil {
		t.Error("再生中エピソードには影響しないべき")
	}
}

func TestSubscribe_EmitsInitialAndLatest(t *testing.T) {
	p := newTestPlayer()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := p.Subscribe(ctx)

	select {
	case initial := <-ch:
		if initial.CurrentEpisode != nil || initial.IsPlaying {
			t.Errorf("初期スナップショット = %+v", initial)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("初期スナップショットが送信されない")
	}

	// 消費されないまま複数回変化した場合、最新だけが残る
	p.AddToQueue(episode("ep-1", durationPtr(time.Hour)))
	p.AddToQueue(episode("ep-2", durationPtr(time.Hour)))

	select {
	case latest := <-ch:
		if len(latest.Queue) != 2 {
			t.Errorf("キュー長 = %d, 最新のスナップショットであるべき", len(latest.Queue))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("スナップショットが配信されない")
	}
}
