package searcher

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	contentField  = "content:"
	fileNameField = "file_name:"
)

// andToken splits clauses on a whitespace-delimited AND
var andToken = regexp.MustCompile(`\s+AND\s+`)

// Query holds the keywords parsed from a query string. Either keyword may
// be empty when its clause is absent.
type Query struct {
	ContentKeyword  string
	FileNameKeyword string
	// FileNamePrefix is set when the file name clause ended in '*'
	FileNamePrefix bool
}

// Empty reports whether neither keyword is present
func (q Query) Empty() bool {
	return q.ContentKeyword == "" && q.FileNameKeyword == ""
}

// ParseQuery extracts the content and file name keywords from a query of
// the form `content:"x" AND file_name:"y"*`. Clauses of any other shape are
// ignored; when a field repeats, the last clause wins. Quoted values undo
// the quote doubling applied by BuildQuery.
func ParseQuery(raw string) Query {
	var q Query
	for _, clause := range andToken.Split(strings.TrimSpace(raw), -1) {
		clause = strings.TrimSpace(clause)
		switch {
		case strings.HasPrefix(clause, contentField):
			q.ContentKeyword = unquote(strings.TrimPrefix(clause, contentField))
		case strings.HasPrefix(clause, fileNameField):
			q.FileNameKeyword, q.FileNamePrefix = unquotePrefix(strings.TrimPrefix(clause, fileNameField))
		}
	}
	return q
}

// unquote strips one pair of surrounding quotes and collapses doubled
// quotes inside them. An unbalanced quote at either end is dropped.
func unquote(v string) string {
	v = strings.TrimSpace(v)
	if len(v) >= 2 && strings.HasPrefix(v, `"`) && strings.HasSuffix(v, `"`) {
		v = strings.ReplaceAll(v[1:len(v)-1], `""`, `"`)
	} else {
		v = strings.TrimPrefix(strings.TrimSuffix(v, `"`), `"`)
	}
	return strings.TrimSpace(v)
}

// unquotePrefix unquotes a file name value and strips a trailing '*'
// written inside or outside the quotes, reporting whether it was present
func unquotePrefix(v string) (string, bool) {
	v = strings.TrimSpace(v)
	star := strings.HasSuffix(v, "*")
	v = unquote(strings.TrimSuffix(v, "*"))
	if strings.HasSuffix(v, "*") {
		star = true
		v = strings.TrimSpace(strings.TrimSuffix(v, "*"))
	}
	return v, star
}

// BuildQuery composes a query string from a file name and a content
// keyword. The file name is matched as a prefix. Blank parts are omitted.
func BuildQuery(fileName, content string) string {
	parts := make([]string, 0, 2)
	if content = strings.TrimSpace(content); content != "" {
		parts = append(parts, contentField+quote(content))
	}
	if fileName = strings.TrimSpace(fileName); fileName != "" {
		parts = append(parts, fileNameField+quote(fileName)+"*")
	}
	return strings.Join(parts, " AND ")
}

// quote makes s a single FTS5 string, doubling embedded quotes
func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// cjkRanges are the CJK Unified Ideograph blocks that route a query to
// substring matching
var cjkRanges = [...][2]rune{
	{0x4E00, 0x9FFF},
	{0x3400, 0x4DBF},
	{0x20000, 0x2A6DF},
	{0x2A700, 0x2B73F},
	{0x2B740, 0x2B81F},
	{0x2B820, 0x2CEAF},
}

// ContainsCJK reports whether s holds a CJK unified ideograph
func ContainsCJK(s string) bool {
	for _, r := range s {
		if r < 0x3400 {
			continue
		}
		for _, rng := range cjkRanges {
			if r >= rng[0] && r <= rng[1] {
				return true
			}
		}
	}
	return false
}

// Paginate splits content into pages of at most pageChars runes. Empty
// content is a single empty page.
func Paginate(content string, pageChars int) []string {
	if pageChars <= 0 {
		pageChars = DefaultPageChars
	}
	if content == "" {
		return []string{""}
	}

	pages := make([]string, 0, utf8.RuneCountInString(content)/pageChars+1)
	start, count := 0, 0
	for i := range content {
		if count == pageChars {
			pages = append(pages, content[start:i])
			start, count = i, 0
		}
		count++
	}
	return append(pages, content[start:])
}
