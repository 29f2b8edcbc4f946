// Package feed はポッドキャストフィードの取得と解析を提供する。
// フェッチャーによるHTTP取得、gofeedによる解析、iTunes拡張の取り込みを含む。
package feed

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/castman/internal/model"
	"github.com/hitoshi/castman/internal/security"
)

// Parsed は1フィードの解析結果。
type Parsed struct {
	Podcast    model.Podcast
	Episodes   []model.Episode
	Categories []model.Category
}

// Parser はフィード文書をドメインモデルに変換する。
// RSS/Atomの解析はgofeedに委譲し、ポッドキャスト固有の情報は
// iTunes拡張から取り込む。概要文はサニタイズしてから保持する。
type Parser struct {
	sanitizer security.SummarySanitizer
}

// NewParser はParserの新しいインスタンスを生成する。
func NewParser(sanitizer security.SummarySanitizer) *Parser {
	return &Parser{sanitizer: sanitizer}
}

// Parse はフィード本文を解析してポッドキャスト、エピソード、カテゴリを返す。
// feedURL は取得元URLで、フィードが自身のURIを宣言していない場合の
// ポッドキャストURIとして使用する。
func (p *Parser) Parse(body []byte, feedURL string) (*Parsed, error) {
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("フィードの解析に失敗しました: %w", err)
	}

	podcast := p.convertPodcast(parsed, feedURL)

	episodes := make([]model.Episode, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item == nil {
			continue
		}
		episodes = append(episodes, p.convertEpisode(item, podcast.URI))
	}

	return &Parsed{
		Podcast:    podcast,
		Episodes:   episodes,
		Categories: convertCategories(parsed),
	}, nil
}

// convertPodcast はフィードのチャンネル情報をPodcastに変換する。
func (p *Parser) convertPodcast(parsed *gofeed.Feed, feedURL string) model.Podcast {
	podcast := model.Podcast{
		// フィード自身が宣言するURIを優先し、なければ取得元URLを使用する
		URI:         feedURL,
		Title:       parsed.Title,
		Description: p.sanitizer.Sanitize(parsed.Description),
		Copyright:   parsed.Copyright,
	}
	if parsed.FeedLink != "" {
		podcast.URI = parsed.FeedLink
	}

	if parsed.Image != nil {
		podcast.ImageURL = parsed.Image.URL
	}
	if len(parsed.Authors) > 0 && parsed.Authors[0] != nil {
		podcast.Author = parsed.Authors[0].Name
	}

	// iTunes拡張のチャンネル情報を優先する
	if it := parsed.ITunesExt; it != nil {
		if it.Summary != "" {
			podcast.Description = p.sanitizer.Sanitize(it.Summary)
		}
		if it.Image != "" {
			podcast.ImageURL = it.Image
		}
		if it.Author != "" {
			podcast.Author = it.Author
		}
	}

	return podcast
}

// convertEpisode はフィードの1エントリをEpisodeに変換する。
func (p *Parser) convertEpisode(item *gofeed.Item, podcastURI string) model.Episode {
	episode := model.Episode{
		// GUIDをそのままURIとして使用する。空のGUIDもそのまま通す
		URI:        item.GUID,
		PodcastURI: podcastURI,
		Title:      item.Title,
		Summary:    p.sanitizer.Sanitize(item.Description),
	}

	if item.Author != nil {
		episode.Author = item.Author.Name
	}
	if episode.Author == "" && len(item.Authors) > 0 && item.Authors[0] != nil {
		episode.Author = item.Authors[0].Name
	}

	// 公開日時: PublishedParsed優先、なければUpdatedParsed。
	// どちらもない場合はゼロ値のまま取り込む（ソート時に末尾に並ぶ）
	if item.PublishedParsed != nil {
		episode.Published = item.PublishedParsed.UTC()
	} else if item.UpdatedParsed != nil {
		episode.Published = item.UpdatedParsed.UTC()
	}

	if it := item.ITunesExt; it != nil {
		if it.Summary != "" {
			episode.Summary = p.sanitizer.Sanitize(it.Summary)
		}
		episode.Subtitle = it.Subtitle
		episode.Duration = parseITunesDuration(it.Duration)
	}

	return episode
}

// convertCategories はフィードレベルのiTunesカテゴリを変換する。
// サブカテゴリも1階層として取り込み、名前の完全一致で重複を除く。
func convertCategories(parsed *gofeed.Feed) []model.Category {
	if parsed.ITunesExt == nil {
		return nil
	}

	seen := make(map[string]struct{})
	var categories []model.Category
	add := func(name string) {
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		categories = append(categories, model.Category{Name: name})
	}

	for _, c := range parsed.ITunesExt.Categories {
		if c == nil {
			continue
		}
		add(c.Text)
		if c.Subcategory != nil {
			add(c.Subcategory.Text)
		}
	}

	return categories
}

// parseITunesDuration はiTunesのduration文字列を解釈する。
// "HH:MM:SS"、"MM:SS"、秒数の3形式を受け付け、
// 解釈できない場合はnilを返す。
func parseITunesDuration(raw string) *time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	if !strings.Contains(raw, ":") {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds < 0 {
			return nil
		}
		d := time.Duration(seconds) * time.Second
		return &d
	}

	parts := strings.Split(raw, ":")
	if len(parts) > 3 {
		return nil
	}

	var total time.Duration
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 {
			return nil
		}
		total = total*60 + time.Duration(n)*time.Second
	}
	return &total
}
