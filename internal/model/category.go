package model

// Category はポッドキャストのカテゴリを表す。
// nameが大文字小文字を区別する重複排除キーで、IDは自動採番される。
type Category struct {
	ID   int64
	Name string
}

// PodcastCategoryEntry はポッドキャストとカテゴリの多対多の対応行。
// (PodcastURI, CategoryID) のペア以外に独立した識別子を持たない。
type PodcastCategoryEntry struct {
	PodcastURI string
	CategoryID int64
}
