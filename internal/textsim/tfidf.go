// IceWatch - Community Monitor for Immigration Enforcement Activity
// Copyright 2026 IceWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/icewatch/icewatch

// Package textsim scores textual similarity between reports using
// TF-IDF weighted cosine similarity. The vocabulary and document
// frequencies are built lazily from observed reports; they are not
// persisted, so scores may differ slightly across restarts without
// affecting clustering decisions for clearly dissimilar texts.
package textsim

import (
	"math"
	"strings"
	"unicode"
)

// english stopwords removed before vectorization.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"been": {}, "but": {}, "by": {}, "for": {}, "from": {}, "had": {},
	"has": {}, "have": {}, "he": {}, "her": {}, "his": {}, "i": {},
	"if": {}, "in": {}, "into": {}, "is": {}, "it": {}, "its": {},
	"just": {}, "me": {}, "my": {}, "no": {}, "not": {}, "of": {},
	"on": {}, "or": {}, "our": {}, "she": {}, "so": {}, "that": {},
	"the": {}, "their": {}, "them": {}, "there": {}, "they": {},
	"this": {}, "to": {}, "was": {}, "we": {}, "were": {}, "what": {},
	"when": {}, "where": {}, "which": {}, "who": {}, "will": {},
	"with": {}, "you": {}, "your": {},
}

// Tokenize lowercases the text, splits on non-alphanumeric runes, and
// drops stopwords and single-character tokens.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 {
			continue
		}
		if _, stop := stopwords[f]; stop {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// Vectorizer accumulates document frequencies and produces TF-IDF
// vectors. It is not safe for concurrent use; the pipeline owns one
// instance on a single goroutine.
type Vectorizer struct {
	docFreq map[string]int
	docs    int
}

// NewVectorizer returns an empty vectorizer.
func NewVectorizer() *Vectorizer {
	return &Vectorizer{docFreq: make(map[string]int)}
}

// Observe folds one document's tokens into the vocabulary.
func (v *Vectorizer) Observe(text string) {
	seen := make(map[string]struct{})
	for _, tok := range Tokenize(text) {
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		v.docFreq[tok]++
	}
	if len(seen) > 0 {
		v.docs++
	}
}

// Documents returns the number of observed documents.
func (v *Vectorizer) Documents() int {
	return v.docs
}

// Vector computes the TF-IDF vector for the text against the current
// vocabulary. Unknown terms get the maximum IDF (df=0 smoothing).
func (v *Vectorizer) Vector(text string) map[string]float64 {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return nil
	}

	tf := make(map[string]float64, len(tokens))
	for _, tok := range tokens {
		tf[tok]++
	}

	vec := make(map[string]float64, len(tf))
	n := float64(len(tokens))
	for tok, count := range tf {
		idf := math.Log(float64(1+v.docs)/float64(1+v.docFreq[tok])) + 1
		vec[tok] = (count / n) * idf
	}
	return vec
}

// Similarity returns the cosine similarity of two texts' TF-IDF
// vectors, in [0,1].
func (v *Vectorizer) Similarity(a, b string) float64 {
	return Cosine(v.Vector(a), v.Vector(b))
}

// Cosine computes cosine similarity between two sparse vectors.
// Empty vectors yield 0.
func Cosine(a, b map[string]float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	// Iterate the smaller map.
	if len(b) < len(a) {
		a, b = b, a
	}
	var dot, normA, normB float64
	for _, w := range a {
		normA += w * w
	}
	for _, w := range b {
		normB += w * w
	}
	for tok, w := range a {
		if wb, ok := b[tok]; ok {
			dot += w * wb
		}
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
