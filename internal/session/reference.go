package session

import (
	"strings"

	"github.com/tclaveria/concierge/pkg/models"
)

// stopwords are tokens carrying no referent information, skipped when
// matching a hint against memory keys. Covers the English/Spanish inputs
// the system sees.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "i": true, "my": true,
	"that": true, "this": true, "it": true, "just": true, "now": true,
	"el": true, "la": true, "los": true, "las": true, "un": true,
	"una": true, "mi": true, "ese": true, "esa": true, "que": true,
	"de": true, "del": true,
}

// ResolveReference looks up an entity-memory value by semantic hint, e.g.
// "the project I just created" resolves against "last_project_id". It
// returns the matched key and value; ok is false when no key shares a
// meaningful token with the hint. Ties go to the key with the higher
// overlap, then the lexicographically smaller key so resolution is
// deterministic.
func ResolveReference(sess *models.Session, hint string) (key, value string, ok bool) {
	hintTokens := referenceTokens(hint)
	if len(hintTokens) == 0 {
		return "", "", false
	}

	bestScore := 0
	for k := range sess.Memory {
		score := 0
		for kt := range referenceTokens(k) {
			if hintTokens[kt] {
				score++
			}
		}
		if score > bestScore || (score == bestScore && score > 0 && k < key) {
			bestScore = score
			key = k
		}
	}

	if bestScore == 0 {
		return "", "", false
	}
	return key, sess.Memory[key], true
}

// referenceTokens lowercases and splits text on non-alphanumeric runes,
// dropping stopwords.
func referenceTokens(text string) map[string]bool {
	tokens := make(map[string]bool)
	for _, tok := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		if stopwords[tok] {
			continue
		}
		tokens[tok] = true
	}
	return tokens
}
