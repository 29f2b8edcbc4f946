package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// SampleFeeds はフィード設定ファイルが未指定の場合に使用する組み込みのフィード一覧。
var SampleFeeds = []string{
	"https://feeds.megaphone.fm/replyall",
	"https://feeds.thisamericanlife.org/talpodcast",
	"https://feeds.npr.org/510289/podcast.xml",
	"https://feeds.99percentinvisible.org/99percentinvisible",
	"https://rss.art19.com/the-daily",
}

// feedsFile はTOML形式のフィード設定ファイルの構造。
//
//	urls = [
//	  "https://example.com/feed.xml",
//	]
type feedsFile struct {
	URLs []string `toml:"urls"`
}

// LoadFeeds はフィードURL一覧を読み込む。
// pathが空の場合は組み込みのSampleFeedsを返す。
// ファイルが存在するが内容が不正、またはURLが1件もない場合はエラーを返す。
func LoadFeeds(path string) ([]string, error) {
	if path == "" {
		return SampleFeeds, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("フィード設定ファイルの読み込みに失敗しました: %w", err)
	}

	var f feedsFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("フィード設定ファイルの解析に失敗しました: %w", err)
	}

	if len(f.URLs) == 0 {
		return nil, fmt.Errorf("フィード設定ファイルにURLが1件も定義されていません: %s", path)
	}

	return f.URLs, nil
}
