package services

import "strings"

// Noise words that carry no signal for troubleshooting lookups.
var noiseWords = map[string]bool{
	"please": true, "help": true, "how": true, "do": true, "i": true,
	"can": true, "you": true, "me": true, "my": true, "the": true,
	"a": true, "an": true, "is": true, "are": true, "was": true,
	"were": true, "be": true, "been": true, "being": true, "have": true,
	"has": true, "had": true, "will": true, "would": true, "could": true,
	"should": true, "may": true, "might": true, "must": true, "shall": true,
	"does": true, "did": true, "don't": true, "doesn't": true, "it": true,
	"its": true, "with": true, "and": true, "but": true, "for": true,
	"from": true, "what": true, "why": true, "when": true,
}

// tokenize lowercases, trims punctuation, and drops noise words.
func tokenize(text string) []string {
	words := strings.Fields(strings.ToLower(text))
	tokens := make([]string, 0, len(words))

	for _, word := range words {
		cleaned := strings.Trim(word, ".,!?;:'\"-()[]{}")
		if len(cleaned) > 1 && !noiseWords[cleaned] {
			tokens = append(tokens, cleaned)
		}
	}

	return tokens
}

func tokenSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}
