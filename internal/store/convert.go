package store

import (
	"database/sql"
	"time"
)

// nullString は空文字列をNULLとして保存するための変換。
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// nullStringValue はNULL許容カラムの読み取り値を文字列に変換する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// timeToDB は日時をRFC3339のUTC文字列として保存するための変換。
// 秒精度の固定幅表現のため、TEXTカラムの辞書順ソートが時系列順と一致する。
// ゼロ値はNULLとして保存する。
func timeToDB(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}

// timeFromDB はRFC3339文字列を日時に変換する。NULLはゼロ値になる。
func timeFromDB(ns sql.NullString) (time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, ns.String)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// durationToDB は再生時間をミリ秒整数として保存するための変換。nilはNULL。
func durationToDB(d *time.Duration) any {
	if d == nil {
		return nil
	}
	return d.Milliseconds()
}

// durationFromDB はミリ秒整数を再生時間に変換する。NULLはnil。
func durationFromDB(ms sql.NullInt64) *time.Duration {
	if !ms.Valid {
		return nil
	}
	d := time.Duration(ms.Int64) * time.Millisecond
	return &d
}
