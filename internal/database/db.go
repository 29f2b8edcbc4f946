// Package database はSQLite接続・トランザクション・マイグレーション管理を提供する。
package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Querier はクエリ実行の共通インターフェース。
// *DB（即時通知）と*Tx（コミット時通知）の両方が実装する。
// ストア層の書き込みメソッドはQuerierを受け取ることで、
// 単発実行とトランザクション内実行の両方に対応する。
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row

	// Invalidate は指定テーブルに依存するリアクティブクエリへ変更を通知する。
	// トランザクション内ではコミット成功まで通知が保留される。
	Invalidate(tables ...string)
}

// DB はSQLiteデータベース接続とリアクティブクエリ用の通知機構を保持する。
type DB struct {
	sqlDB    *sql.DB
	notifier *Notifier
}

// Open はSQLiteデータベース接続を開き、WALモード等のPRAGMAを適用する。
// pathにはデータベースファイルのパスを指定する。
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := sqlDB.Exec(pragma); execErr != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	return &DB{
		sqlDB:    sqlDB,
		notifier: NewNotifier(),
	}, nil
}

// Close はデータベース接続を閉じる。
func (d *DB) Close() error {
	if d == nil || d.sqlDB == nil {
		return nil
	}
	return d.sqlDB.Close()
}

// Ping は接続の疎通確認を行う。
func (d *DB) Ping(ctx context.Context) error {
	return d.sqlDB.PingContext(ctx)
}

// Notifier はテーブル変更通知のNotifierを返す。
func (d *DB) Notifier() *Notifier {
	return d.notifier
}

// ExecContext はクエリを実行する。Querierを実装する。
func (d *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.sqlDB.ExecContext(ctx, query, args...)
}

// QueryContext はクエリを実行し、複数行の結果を返す。Querierを実装する。
func (d *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.sqlDB.QueryContext(ctx, query, args...)
}

// QueryRowContext はクエリを実行し、1行の結果を返す。Querierを実装する。
func (d *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return d.sqlDB.QueryRowContext(ctx, query, args...)
}

// Invalidate はテーブル変更を即時に通知する。Querierを実装する。
func (d *DB) Invalidate(tables ...string) {
	d.notifier.Invalidate(tables...)
}

// compile-time interface check
var _ Querier = (*DB)(nil)
