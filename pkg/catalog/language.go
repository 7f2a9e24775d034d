package catalog

// Language is a catalog language filter.
type Language struct {
	ISOCode string `json:"iso_code"`
	Name    string `json:"name"`
}

// AllBooks disables language filtering.
var AllBooks = Language{ISOCode: "all", Name: "All Books"}

var languages = []Language{
	AllBooks,
	{ISOCode: "en", Name: "English"},
	{ISOCode: "zh", Name: "Chinese"},
	{ISOCode: "da", Name: "Danish"},
	{ISOCode: "nl", Name: "Dutch"},
	{ISOCode: "fr", Name: "French"},
	{ISOCode: "de", Name: "German"},
	{ISOCode: "el", Name: "Greek"},
	{ISOCode: "hu", Name: "Hungarian"},
	{ISOCode: "it", Name: "Italian"},
	{ISOCode: "ja", Name: "Japanese"},
	{ISOCode: "ko", Name: "Korean"},
	{ISOCode: "pl", Name: "Polish"},
	{ISOCode: "pt", Name: "Portuguese"},
	{ISOCode: "ru", Name: "Russian"},
	{ISOCode: "es", Name: "Spanish"},
	{ISOCode: "sv", Name: "Swedish"},
	{ISOCode: "ta", Name: "Tamil"},
}

// Languages returns every supported language, AllBooks first.
func Languages() []Language {
	out := make([]Language, len(languages))
	copy(out, languages)
	return out
}

// LanguageByCode looks up a language by ISO code. Unknown codes map to
// AllBooks.
func LanguageByCode(code string) Language {
	for _, l := range languages {
		if l.ISOCode == code {
			return l
		}
	}
	return AllBooks
}

// IsAll reports whether l disables language filtering.
func (l Language) IsAll() bool {
	return l.ISOCode == AllBooks.ISOCode || l.ISOCode == ""
}
