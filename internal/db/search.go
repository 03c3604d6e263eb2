package db

import "strings"

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName string
	// Filter is an optional FT.SEARCH pre-filter, e.g. a tag match built
	// with TagFilter. Empty means match all.
	Filter       string
	Vector       []float32
	K            int
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search. Distance is the raw
// vector distance from the index (KNN queries only); smaller is closer.
type SearchEntry struct {
	Key      string
	Distance float64
	Fields   map[string]string
}

// TagFilter builds an FT.SEARCH tag-match clause with the value escaped.
func TagFilter(field, value string) string {
	return "@" + field + ":{" + tagEscaper.Replace(value) + "}"
}

var tagEscaper = strings.NewReplacer(
	",", "\\,",
	".", "\\.",
	"<", "\\<",
	">", "\\>",
	"{", "\\{",
	"}", "\\}",
	"\"", "\\\"",
	"'", "\\'",
	":", "\\:",
	";", "\\;",
	"!", "\\!",
	"@", "\\@",
	"#", "\\#",
	"$", "\\$",
	"%", "\\%",
	"^", "\\^",
	"&", "\\&",
	"*", "\\*",
	"(", "\\(",
	")", "\\)",
	"-", "\\-",
	"+", "\\+",
	"=", "\\=",
	"~", "\\~",
	" ", "\\ ",
)
