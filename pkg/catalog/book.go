package catalog

// FormatEpub is the media type key of the EPUB download in Book.Formats.
const FormatEpub = "application/epub+zip"

// Author is a book author as listed by the catalog.
type Author struct {
	Name      string `json:"name"`
	BirthYear *int   `json:"birth_year"`
	DeathYear *int   `json:"death_year"`
}

// Book is a single catalog entry.
type Book struct {
	ID            int64             `json:"id"`
	Title         string            `json:"title"`
	Authors       []Author          `json:"authors"`
	Subjects      []string          `json:"subjects"`
	Bookshelves   []string          `json:"bookshelves"`
	Languages     []string          `json:"languages"`
	Copyright     *bool             `json:"copyright"`
	MediaType     string            `json:"media_type"`
	Formats       map[string]string `json:"formats"`
	DownloadCount int64             `json:"download_count"`
}

// HasEpub reports whether the book can be downloaded as EPUB.
func (b Book) HasEpub() bool {
	return b.Formats[FormatEpub] != ""
}

// BookSet is one page of catalog results.
type BookSet struct {
	Count    int64   `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []Book  `json:"results"`

	// Detail is set instead of Results when the catalog rejects the page.
	Detail string `json:"detail,omitempty"`
}

// IsInvalidPage reports whether the catalog rejected the requested page.
func (s BookSet) IsInvalidPage() bool {
	return s.Results == nil && s.Detail != ""
}
