package memory

import "strings"

// stopWords are filler words excluded from keyword scoring so that a
// question like "who is Borin" matches on "borin" alone.
var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"what": {}, "who": {}, "where": {}, "when": {}, "how": {}, "which": {},
	"that": {}, "this": {}, "of": {}, "in": {}, "on": {}, "at": {}, "to": {},
	"for": {}, "with": {}, "and": {}, "or": {}, "but": {}, "not": {}, "it": {},
	"its": {}, "be": {}, "been": {}, "being": {}, "have": {}, "has": {},
	"had": {}, "do": {}, "does": {}, "did": {}, "will": {}, "would": {},
	"could": {}, "should": {}, "can": {}, "may": {}, "might": {},
}

// keywords lowercases query and returns its meaningful words: longer than
// two characters and not a stop word.
func keywords(query string) []string {
	var words []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if len(w) <= 2 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		words = append(words, w)
	}
	return words
}
