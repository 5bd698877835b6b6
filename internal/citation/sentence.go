// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package citation

import (
	"strings"
	"unicode"
)

// Sentence is one segment of a text: the sentence itself plus the
// whitespace that follows it. Concatenating Text+Sep over the result of
// Split reproduces the input exactly.
type Sentence struct {
	Text string
	Sep  string
}

// Split divides text into sentences. A sentence ends at terminal
// punctuation (plus any closing quotes and trailing markers) followed by
// whitespace and a non-lowercase character, at a blank line, or at a line
// break before or after a heading or list item. Other single line breaks
// do not end a sentence.
func Split(text string) []Sentence {
	var out []Sentence
	n := len(text)

	i := 0
	for i < n && isSpace(text[i]) {
		i++
	}
	if i > 0 {
		out = append(out, Sentence{Sep: text[:i]})
	}

	start := i
	for i < n {
		switch c := text[i]; {
		case c == '.' || c == '!' || c == '?':
			end := endOfSentence(text, i+1)
			k := end
			for k < n && isSpace(text[k]) {
				k++
			}
			if k == end && k < n {
				// "3.5", "e.g.x": no whitespace, not a boundary.
				i++
				continue
			}
			if k < n && !breaksLine(text[end:k]) && isLowerStart(text[k:]) {
				// Abbreviation such as "e.g. the".
				i = end
				continue
			}
			out = append(out, Sentence{Text: text[start:end], Sep: text[end:k]})
			start, i = k, k

		case c == '\n':
			k := i
			for k < n && isSpace(text[k]) {
				k++
			}
			// Headings and list items end at their line break.
			if k < n && strings.Count(text[i:k], "\n") < 2 && !startsBlock(text[k:]) && !startsBlock(text[start:]) {
				i = k
				continue
			}
			body := strings.TrimRight(text[start:i], " \t")
			cut := start + len(body)
			if body == "" {
				appendSep(&out, text[start:k])
			} else {
				out = append(out, Sentence{Text: body, Sep: text[cut:k]})
			}
			start, i = k, k

		default:
			i++
		}
	}

	if start < n {
		body := strings.TrimRightFunc(text[start:], unicode.IsSpace)
		if body == "" {
			appendSep(&out, text[start:])
		} else {
			out = append(out, Sentence{Text: body, Sep: text[start+len(body):]})
		}
	}
	return out
}

// Join concatenates sentences back into text.
func Join(sentences []Sentence) string {
	var b strings.Builder
	for _, s := range sentences {
		b.WriteString(s.Text)
		b.WriteString(s.Sep)
	}
	return b.String()
}

// endOfSentence extends a sentence ending at i past closing quotes or
// parentheses and any markers that follow on the same line.
func endOfSentence(text string, i int) int {
	n := len(text)
	for i < n && strings.IndexByte(`"')`, text[i]) >= 0 {
		i++
	}
	for {
		j := i
		for j < n && (text[j] == ' ' || text[j] == '\t') {
			j++
		}
		if j >= n || text[j] != '[' {
			return i
		}
		loc := markerPattern.FindStringIndex(text[j:])
		if loc == nil || loc[0] != 0 {
			return i
		}
		i = j + loc[1]
	}
}

func appendSep(out *[]Sentence, ws string) {
	if len(*out) == 0 {
		*out = append(*out, Sentence{Sep: ws})
		return
	}
	(*out)[len(*out)-1].Sep += ws
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func breaksLine(ws string) bool {
	return strings.Contains(ws, "\n")
}

func isLowerStart(s string) bool {
	for _, r := range s {
		return unicode.IsLower(r)
	}
	return false
}

// startsBlock reports whether a line starting with s opens a Markdown
// heading or list item.
func startsBlock(s string) bool {
	switch {
	case strings.HasPrefix(s, "#"),
		strings.HasPrefix(s, "- "),
		strings.HasPrefix(s, "* "),
		strings.HasPrefix(s, "> "):
		return true
	}
	d := 0
	for d < len(s) && s[d] >= '0' && s[d] <= '9' {
		d++
	}
	return d > 0 && d+1 < len(s) && s[d] == '.' && s[d+1] == ' '
}

// Normalize reduces a sentence to a comparison key: markers removed, case
// folded, and whitespace collapsed. Two sentences that differ only in
// layout or citations normalize equally.
func Normalize(sentence string) string {
	s := strings.ToLower(Strip(sentence))
	return strings.Join(strings.Fields(s), " ")
}

// stopwords are ignored when comparing sentence content.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "was": true, "were": true,
	"that": true, "this": true, "with": true, "from": true, "into": true, "its": true,
	"can": true, "has": true, "have": true, "been": true, "which": true, "their": true,
	"such": true, "these": true, "those": true, "also": true, "than": true, "more": true,
	"not": true, "but": true, "they": true, "them": true, "our": true, "using": true,
}

// Words returns the lowercased content words of text: letters and digits,
// at least three characters, stopwords and markers removed.
func Words(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(Strip(text)), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
	words := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, "-")
		if len(f) >= 3 && !stopwords[f] {
			words = append(words, f)
		}
	}
	return words
}

// Remove returns sentences without those for which drop reports true.
// Whitespace-only entries are always kept. When a dropped sentence carried
// a line break its predecessor inherits that separator, so paragraphs stay
// apart.
func Remove(sentences []Sentence, drop func(i int) bool) []Sentence {
	out := make([]Sentence, 0, len(sentences))
	for i, s := range sentences {
		if s.Text == "" || !drop(i) {
			out = append(out, s)
			continue
		}
		if len(out) == 0 {
			continue
		}
		prev := &out[len(out)-1]
		if i == len(sentences)-1 || (breaksLine(s.Sep) && !breaksLine(prev.Sep)) {
			prev.Sep = s.Sep
		}
	}
	return out
}

// Baseline answers whether a sentence already appears in a reference text,
// ignoring case, layout, and markers.
type Baseline struct {
	norm string
}

// NewBaseline returns a Baseline over text.
func NewBaseline(text string) Baseline {
	return Baseline{norm: Normalize(text)}
}

// Contains reports whether sentence occurs in the baseline text.
func (b Baseline) Contains(sentence string) bool {
	return strings.Contains(b.norm, Normalize(sentence))
}
