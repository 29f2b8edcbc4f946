package feed

import (
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/castman/internal/security"
)

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"
     xmlns:atom="http://www.w3.org/2005/Atom"
     xmlns:itunes="http://www.itunes.com/dtds/podcast-1.0.dtd">
  <channel>
    <title>テストポッドキャスト</title>
    <atom:link href="https://example.com/canonical/feed.xml" rel="self" type="application/rss+xml"/>
    <description>チャンネル説明</description>
    <copyright>© 2025 Example</copyright>
    <image><url>https://example.com/channel.png</url><title>t</title><link>https://example.com</link></image>
    <itunes:summary>iTunesのチャンネル概要</itunes:summary>
    <itunes:image href="https://example.com/itunes.png"/>
    <itunes:author>番組ホスト</itunes:author>
    <itunes:category text="Technology">
      <itunes:category text="Tech News"/>
    </itunes:category>
    <itunes:category text="News"/>
    <itunes:category text="Technology"/>
    <item>
      <title>第1回</title>
      <guid>urn:episode-1</guid>
      <description>説明文</description>
      <pubDate>Thu, 01 May 2025 09:00:00 GMT</pubDate>
      <itunes:summary>iTunesのエピソード概要</itunes:summary>
      <itunes:subtitle>サブタイトル</itunes:subtitle>
      <itunes:duration>1:02:30</itunes:duration>
    </item>
    <item>
      <title>第2回</title>
      <guid>urn:episode-2</guid>
      <description>pubDateのないエピソード</description>
    </item>
  </channel>
</rss>`

func newTestParser() *Parser {
	return NewParser(security.NewSummarySanitizer())
}

func TestParse_PodcastChannel(t *testing.T) {
	parsed, err := newTestParser().Parse([]byte(sampleRSS), "https://example.com/feed.xml")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	p := parsed.Podcast
	if p.URI != "https://example.com/canonical/feed.xml" {
		t.Errorf("URI = %q, フィード自身の宣言を優先すべき", p.URI)
	}
	if p.Title != "テストポッドキャスト" {
		t.Errorf("Title = %q", p.Title)
	}
	if p.Description != "iTunesのチャンネル概要" {
		t.Errorf("Description = %q, iTunes概要を優先すべき", p.Description)
	}
	if p.ImageURL != "https://example.com/itunes.png" {
		t.Errorf("ImageURL = %q, iTunes画像を優先すべき", p.ImageURL)
	}
	if p.Author != "番組ホスト" {
		t.Errorf("Author = %q", p.Author)
	}
	if p.Copyright != "© 2025 Example" {
		t.Errorf("Copyright = %q", p.Copyright)
	}
}

func TestParse_FallbackURIIsFetchURL(t *testing.T) {
	rss := `<?xml version="1.0"?>
<rss version="2.0"><channel>
  <title>宣言なし</title>
  <description>d</description>
</channel></rss>`

	parsed, err := newTestParser().Parse([]byte(rss), "https://example.com/feed.xml")
	if err != nil {
		t.Fatal(err)
	}
	if parsed.Podcast.URI != "https://example.com/feed.xml" {
		t.Errorf("URI = %q, 取得元URLへフォールバックすべき", parsed.Podcast.URI)
	}
}

func TestParse_Episodes(t *testing.T) {
	parsed, err := newTestParser().Parse([]byte(sampleRSS), "https://example.com/feed.xml")
	if err != nil {
		t.Fatal(err)
	}
	if len(parsed.Episodes) != 2 {
		t.Fatalf("エピソード数 = %d, want 2", len(parsed.Episodes))
	}

	ep := parsed.Episodes[0]
	if ep.URI != "urn:episode-1" {
		t.Errorf("URI = %q, GUIDをそのまま使うべき", ep.URI)
	}
	if ep.PodcastURI != parsed.Podcast.URI {
		t.Errorf("PodcastURI = %q", ep.PodcastURI)
	}
	if ep.Summary != "iTunesのエピソード概要" {
		t.Errorf("Summary = %q, iTunes概要を優先すべき", ep.Summary)
	}
	if ep.Subtitle != "サブタイトル" {
		t.Errorf("Subtitle = %q", ep.Subtitle)
	}
	want := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	if !ep.Published.Equal(want) {
		t.Errorf("Published = %v, want %v", ep.Published, want)
	}
	if ep.Published.Location() != time.UTC {
		t.Errorf("PublishedはUTCに正規化されるべき: %v", ep.Published.Location())
	}
	if ep.Duration == nil || *ep.Duration != time.Hour+2*time.Minute+30*time.Second {
		t.Errorf("Duration = %v, want 1h2m30s", ep.Duration)
	}

	// 公開日時のないエピソードもゼロ値のまま取り込まれる
	second := parsed.Episodes[1]
	if !second.Published.IsZero() {
		t.Errorf("pubDateなしのPublished = %v, ゼロ値であるべき", second.Published)
	}
	if second.Duration != nil {
		t.Errorf("durationなしのDuration = %v, nilであるべき", second.Duration)
	}
}

func TestParse_CategoriesDeduped(t *testing.T) {
	parsed, err := newTestParser().Parse([]byte(sampleRSS), "https://example.com/feed.xml")
	if err != nil {
		t.Fatal(err)
	}

	var names []string
	for _, c := range parsed.Categories {
		names = append(names, c.Name)
	}

	// Technologyは2回宣言されているが1回だけ、サブカテゴリも取り込む
	want := []string{"Technology", "Tech News", "News"}
	if len(names) != len(want) {
		t.Fatalf("カテゴリ = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("カテゴリ[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestParse_SanitizesSummaries(t *testing.T) {
	rss := `<?xml version="1.0"?>
<rss version="2.0"><channel>
  <title>t</title>
  <description><![CDATA[<p>説明</p><script>alert(1)</script>]]></description>
  <item>
    <title>ep</title>
    <guid>ep-1</guid>
    <description><![CDATA[<p>概要</p><script>alert(2)</script>]]></description>
  </item>
</channel></rss>`

	parsed, err := newTestParser().Parse([]byte(rss), "https://example.com/feed.xml")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(parsed.Podcast.Description, "script") {
		t.Errorf("チャンネル説明がサニタイズされていない: %q", parsed.Podcast.Description)
	}
	if strings.Contains(parsed.Episodes[0].Summary, "script") {
		t.Errorf("エピソード概要がサニタイズされていない: %q", parsed.Episodes[0].Summary)
	}
}

func TestParse_InvalidDocument(t *testing.T) {
	_, err := newTestParser().Parse([]byte("これはフィードではない"), "https://example.com/feed.xml")
	if err == nil {
		t.Fatal("不正な文書にはエラーを返すべき")
	}
}

func TestParseITunesDuration(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
		isNil bool
	}{
		{"3750", time.Hour + 2*time.Minute + 30*time.Second, false},
		{"1:02:30", time.Hour + 2*time.Minute + 30*time.Second, false},
		{"62:30", 62*time.Minute + 30*time.Second, false},
		{"0:45", 45 * time.Second, false},
		{" 30 ", 30 * time.Second, false},
		{"", 0, true},
		{"abc", 0, true},
		{"1:2:3:4", 0, true},
		{"-30", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseITunesDuration(tt.input)
			if tt.isNil {
				if got != nil {
					t.Errorf("parseITunesDuration(%q) = %v, want nil", tt.input, *got)
				}
				return
			}
			if got == nil {
				t.Fatalf("parseITunesDuration(%q) = nil, want %v", tt.input, tt.want)
			}
			if *got != tt.want {
				t.Errorf("parseITunesDuration(%q) = %v, want %v", tt.input, *got, tt.want)
			}
		})
	}
}
