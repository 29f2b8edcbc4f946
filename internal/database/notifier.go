package database

import "sync"

// Notifier はテーブル単位の変更通知バス。
// リアクティブクエリはSubscribeで依存テーブルを登録し、
// 書き込み側がInvalidateを呼ぶたびにシグナルを受け取って再クエリする。
// シグナルはバッファ1のチャネルに集約され、未消費の通知は1つに合流する
// （通知の回数ではなく「変更があった」ことだけを伝える）。
type Notifier struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

// NewNotifier は新しいNotifierを生成する。
func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[*Subscription]struct{})}
}

// Subscription はテーブル変更の購読を表す。
type Subscription struct {
	notifier *Notifier
	tables   map[string]struct{}
	signal   chan struct{}
}

// Subscribe は指定テーブルのいずれかが変更されたときにシグナルを受け取る購読を開始する。
// 使い終わったら必ずCloseを呼ぶこと。
func (n *Notifier) Subscribe(tables ...string) *Subscription {
	sub := &Subscription{
		notifier: n,
		tables:   make(map[string]struct{}, len(tables)),
		signal:   make(chan struct{}, 1),
	}
	for _, t := range tables {
		sub.tables[t] = struct{}{}
	}

	n.mu.Lock()
	n.subs[sub] = struct{}{}
	n.mu.Unlock()

	return sub
}

// Invalidate は指定テーブルに依存する全購読へ変更を通知する。
// 購読側が未消費のシグナルを持つ場合は合流し、ブロックしない。
func (n *Notifier) Invalidate(tables ...string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for sub := range n.subs {
		if !sub.dependsOn(tables) {
			continue
		}
		select {
		case sub.signal <- struct{}{}:
		default:
		}
	}
}

// C は変更シグナルの受信チャネルを返す。
func (s *Subscription) C() <-chan struct{} {
	return s.signal
}

// Close は購読を解除する。以降シグナルは届かない。
func (s *Subscription) Close() {
	s.notifier.mu.Lock()
	delete(s.notifier.subs, s)
	s.notifier.mu.Unlock()
}

func (s *Subscription) dependsOn(tables []string) bool {
	for _, t := range tables {
		if _, ok := s.tables[t]; ok {
			return true
		}
	}
	return false
}
