// Package vocab corrects near-miss words in transcripts against the
// learner's vocabulary list.
//
// Speech recognition frequently mangles the exact words a learner is
// practising, especially for beginner pronunciation. The [Corrector] runs a
// phonetic pass over the transcript: each token is Double Metaphone encoded
// and compared against the vocabulary; phonetically overlapping entries are
// ranked by Jaro-Winkler similarity and substituted when the score clears
// the acceptance threshold. Exact matches and high-confidence words are left
// untouched, so the correction never rewrites what the learner actually said
// correctly.
package vocab

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultAcceptThreshold = 0.80
	defaultMinTokenLen     = 3
)

// Correction records one substitution made by [Corrector.Correct].
type Correction struct {
	// Original is the token as transcribed.
	Original string

	// Corrected is the vocabulary entry substituted in.
	Corrected string

	// Confidence is the Jaro-Winkler score of the substitution.
	Confidence float64
}

// Option configures a Corrector.
type Option func(*Corrector)

// WithAcceptThreshold sets the minimum Jaro-Winkler score required for a
// substitution. Default: 0.80.
func WithAcceptThreshold(threshold float64) Option {
	return func(c *Corrector) { c.accept = threshold }
}

// WithMinTokenLength sets the minimum token length considered for
// correction. Shorter tokens carry too little phonetic signal. Default: 3.
func WithMinTokenLength(n int) Option {
	return func(c *Corrector) { c.minLen = n }
}

// Corrector substitutes near-miss transcript tokens with vocabulary entries.
// Read-only after construction and safe for concurrent use.
type Corrector struct {
	accept float64
	minLen int
}

// New returns a Corrector with the supplied options applied.
func New(opts ...Option) *Corrector {
	c := &Corrector{accept: defaultAcceptThreshold, minLen: defaultMinTokenLen}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Correct rewrites transcript tokens that phonetically match a vocabulary
// entry, returning the corrected transcript and the substitutions made.
// Punctuation attached to a token survives the substitution. An empty
// vocabulary returns the transcript unchanged.
func (c *Corrector) Correct(transcript string, vocabulary []string) (string, []Correction) {
	if strings.TrimSpace(transcript) == "" || len(vocabulary) == 0 {
		return transcript, nil
	}

	entries := make([]vocabEntry, 0, len(vocabulary))
	for _, v := range vocabulary {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		lower := strings.ToLower(v)
		p, s := matchr.DoubleMetaphone(lower)
		entries = append(entries, vocabEntry{word: v, lower: lower, primary: p, secondary: s})
	}

	tokens := strings.Fields(transcript)
	var corrections []Correction

	for i, tok := range tokens {
		core, prefix, suffix := trimPunct(tok)
		if len([]rune(core)) < c.minLen {
			continue
		}
		lower := strings.ToLower(core)

		if replacement, score, ok := c.match(lower, entries); ok {
			tokens[i] = prefix + preserveCase(core, replacement) + suffix
			corrections = append(corrections, Correction{
				Original:   core,
				Corrected:  replacement,
				Confidence: score,
			})
		}
	}

	if len(corrections) == 0 {
		return transcript, nil
	}
	return strings.Join(tokens, " "), corrections
}

type vocabEntry struct {
	word      string
	lower     string
	primary   string
	secondary string
}

// match finds the best phonetically overlapping vocabulary entry for token.
// Exact matches return no correction.
func (c *Corrector) match(token string, entries []vocabEntry) (string, float64, bool) {
	p, s := matchr.DoubleMetaphone(token)
	if p == "" && s == "" {
		return "", 0, false
	}

	var bestWord string
	var bestScore float64
	for _, e := range entries {
		if e.lower == token {
			return "", 0, false
		}
		if !codesMatch(p, s, e.primary, e.secondary) {
			continue
		}
		if score := matchr.JaroWinkler(token, e.lower, false); score > bestScore {
			bestScore = score
			bestWord = e.word
		}
	}
	if bestWord == "" || bestScore < c.accept {
		return "", 0, false
	}
	return bestWord, bestScore, true
}

// codesMatch reports whether any non-empty Double Metaphone code is shared.
func codesMatch(p1, s1, p2, s2 string) bool {
	for _, a := range []string{p1, s1} {
		if a == "" {
			continue
		}
		if a == p2 || (s2 != "" && a == s2) {
			return true
		}
	}
	return false
}

// trimPunct splits leading and trailing punctuation off a token.
func trimPunct(tok string) (core, prefix, suffix string) {
	runes := []rune(tok)
	start, end := 0, len(runes)
	for start < end && isPunct(runes[start]) {
		start++
	}
	for end > start && isPunct(runes[end-1]) {
		end--
	}
	return string(runes[start:end]), string(runes[:start]), string(runes[end:])
}

func isPunct(r rune) bool {
	switch r {
	case '.', ',', '!', '?', ';', ':', '"', '\'', '(', ')', '¿', '¡':
		return true
	}
	return false
}

// preserveCase carries a leading capital from the original token over to the
// replacement so sentence starts stay capitalised.
func preserveCase(original, replacement string) string {
	if original == "" || replacement == "" {
		return replacement
	}
	r := []rune(original)
	if r[0] >= 'A' && r[0] <= 'Z' {
		rep := []rune(strings.ToLower(replacement))
		rep[0] = []rune(strings.ToUpper(string(rep[0])))[0]
		return string(rep)
	}
	return replacement
}
