// IceWatch - Community Monitor for Immigration Enforcement Activity
// Copyright 2026 IceWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/icewatch/icewatch

package source

import (
	"html"
	"regexp"
	"strings"
)

var (
	htmlTagRe = regexp.MustCompile(`<[^>]+>`)
	urlRe     = regexp.MustCompile(`https?://\S+`)
)

// cleanText normalizes raw source text: strips markup and embedded
// URLs, unescapes entities, and collapses whitespace.
func cleanText(text string) string {
	text = htmlTagRe.ReplaceAllString(text, " ")
	text = html.UnescapeString(text)
	text = urlRe.ReplaceAllString(text, "")
	return strings.Join(strings.Fields(text), " ")
}
