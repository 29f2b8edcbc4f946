package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Tx はトランザクション内のクエリ実行を表す。
// Invalidateで通知されたテーブルはコミット成功時にまとめて通知され、
// ロールバック時には破棄される。購読者がコミット前の状態を
// 再読み込みしてしまうことを防ぐ。
type Tx struct {
	tx     *sql.Tx
	tables []string
}

// ExecContext はトランザクション内でクエリを実行する。
func (t *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, query, args...)
}

// QueryContext はトランザクション内でクエリを実行し、複数行の結果を返す。
func (t *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, query, args...)
}

// QueryRowContext はトランザクション内でクエリを実行し、1行の結果を返す。
func (t *Tx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, query, args...)
}

// Invalidate はコミット成功時に通知するテーブルを記録する。
func (t *Tx) Invalidate(tables ...string) {
	t.tables = append(t.tables, tables...)
}

// compile-time interface check
var _ Querier = (*Tx)(nil)

// WithTx はfnを1つのトランザクション内で実行する。
// fnがエラーを返した場合はロールバックし、そのエラーを返す。
// コミット成功後にトランザクション内で記録されたテーブル変更通知を発火する。
func (d *DB) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := d.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}

	tx := &Tx{tx: sqlTx}

	if err := fn(tx); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return fmt.Errorf("ロールバックに失敗しました: %v (原因: %w)", rbErr, err)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("コミットに失敗しました: %w", err)
	}

	if len(tx.tables) > 0 {
		d.notifier.Invalidate(tx.tables...)
	}

	return nil
}
