package terms

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Entry maps a technical phrase to the display form preserved verbatim
// through translation.
type Entry struct {
	Match   string
	Display string
	pattern *regexp.Regexp
}

// Dictionary is the static technical-term dictionary, loaded once at process
// start and safely shared read-only across all jobs.
type Dictionary struct {
	entries []Entry
}

// placeholderFormat produces tokens that machine translation engines pass
// through unmodified in the common case. Restore tolerates mangled variants.
const placeholderFormat = "__TERM_%d__"

// fuzzyPlaceholder recovers the numeric index from a placeholder the
// translator corrupted (case changes, dropped or doubled underscores,
// inserted spacing). Whitespace is consumed only between the underscores and
// the token body; spacing around a fully stripped token stays in the text.
var fuzzyPlaceholder = regexp.MustCompile(`(?i)(?:_{1,2}\s*)?TERM[\s_\-]*(\d+)(?:\s*_{1,2})?`)

// LoadDictionary reads a JSON object of {match: display} pairs. An empty path
// yields an empty dictionary, which protects nothing.
func LoadDictionary(path string) (*Dictionary, error) {
	if path == "" {
		return NewDictionary(nil)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read term dictionary: %w", err)
	}

	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse term dictionary: %w", err)
	}

	return NewDictionary(raw)
}

// NewDictionary builds a dictionary from {match: display} pairs.
func NewDictionary(raw map[string]string) (*Dictionary, error) {
	entries := make([]Entry, 0, len(raw))
	for match, display := range raw {
		match = strings.TrimSpace(match)
		if match == "" {
			continue
		}
		if display == "" {
			display = match
		}
		pattern, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(match) + `\b`)
		if err != nil {
			return nil, fmt.Errorf("failed to compile term pattern for %q: %w", match, err)
		}
		entries = append(entries, Entry{Match: match, Display: display, pattern: pattern})
	}

	// Longest match wins so substrings of longer terms never get protected
	// on their own.
	sort.Slice(entries, func(i, j int) bool {
		if len(entries[i].Match) != len(entries[j].Match) {
			return len(entries[i].Match) > len(entries[j].Match)
		}
		return entries[i].Match < entries[j].Match
	})

	return &Dictionary{entries: entries}, nil
}

// Len returns the number of dictionary entries.
func (d *Dictionary) Len() int {
	return len(d.entries)
}

// ProtectedText carries text with technical terms swapped for
// translation-inert placeholders, plus the mapping needed to restore them.
type ProtectedText struct {
	Text    string
	Mapping map[string]string
}

// Codec protects and restores technical terms around a translation call.
type Codec struct {
	dict   *Dictionary
	logger *zap.Logger
}

// NewCodec creates a codec over the shared dictionary.
func NewCodec(dict *Dictionary, logger *zap.Logger) *Codec {
	return &Codec{dict: dict, logger: logger}
}

// Protect replaces every dictionary term occurrence with a placeholder unique
// within the call. Matching is case-insensitive and word-boundary aware.
func (c *Codec) Protect(text string) ProtectedText {
	mapping := make(map[string]string)
	next := 0

	for _, entry := range c.dict.entries {
		display := entry.Display
		text = entry.pattern.ReplaceAllStringFunc(text, func(string) string {
			placeholder := fmt.Sprintf(placeholderFormat, next)
			mapping[placeholder] = display
			next++
			return placeholder
		})
	}

	return ProtectedText{Text: text, Mapping: mapping}
}

// Restore substitutes placeholders back to their original terms. Exact
// placeholders are replaced verbatim; placeholders the translator mangled are
// recovered by their numeric index on a best-effort basis with a soft warning.
// Restore never fails: an unrecoverable placeholder is left in place.
func (c *Codec) Restore(text string, mapping map[string]string) string {
	if len(mapping) == 0 {
		return text
	}

	remaining := make(map[string]string, len(mapping))
	for placeholder, term := range mapping {
		if strings.Contains(text, placeholder) {
			text = strings.ReplaceAll(text, placeholder, term)
			continue
		}
		remaining[placeholder] = term
	}
	if len(remaining) == 0 {
		return text
	}

	// Fuzzy recovery pass for corrupted placeholders.
	text = fuzzyPlaceholder.ReplaceAllStringFunc(text, func(match string) string {
		idxStr := fuzzyPlaceholder.FindStringSubmatch(match)[1]
		idx, err := strconv.Atoi(idxStr)
		if err != nil {
			return match
		}
		placeholder := fmt.Sprintf(placeholderFormat, idx)
		term, ok := remaining[placeholder]
		if !ok {
			return match
		}
		delete(remaining, placeholder)
		c.logger.Warn("Recovered corrupted term placeholder",
			zap.String("placeholder", placeholder),
			zap.String("mangled", match),
			zap.String("term", term),
		)
		return term
	})

	for placeholder, term := range remaining {
		c.logger.Warn("Term placeholder lost in translation",
			zap.String("placeholder", placeholder),
			zap.String("term", term),
		)
	}

	return text
}
