// IceWatch - Community Monitor for Immigration Enforcement Activity
// Copyright 2026 IceWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/icewatch/icewatch

package filter

import "regexp"

// Enforcement-activity keywords. Short tokens need word-boundary
// matching ("ice" matches "notice" and "service" without them);
// phrases are specific enough for substring matching.
var enforcementExactRe = regexp.MustCompile(
	`(?i)\b(?:ice|i\.c\.e\.|ero|cbp|raids?|detention|detained|agents|enforcement|deportation|immigration)\b`)

var enforcementPhrases = []string{
	"border patrol",
	"la migra",
	"immigration and customs enforcement",
	"immigration enforcement",
	"enforcement and removal",
	"deportation raid",
	"immigration raid",
	"immigration arrest",
	"federal agents",
	"detained by",
	"detention center",
	"immigration checkpoint",
	"ice agents",
	"ice raid",
	"ice officers",
	"immigration officers",
	"customs enforcement",
	"removal operations",
	"ice vehicle",
	"unmarked van",
	"unmarked vehicle",
	"unmarked suv",
	"ice sighting",
	"ice spotted",
	"ice watch",
	"ice activity",
	"immigration sweep",
	"deportation force",
	"rapid response",
	"ice detainer",
}

// Contextual cues that disambiguate a bare "ice" match from hockey and
// weather chatter. A bare match passes only with one of these nearby.
var iceContextRe = regexp.MustCompile(
	`(?i)\b(?:agents?|officers?|raids?|vans?|vehicles?|suvs?|checkpoints?|` +
		`detain\w*|arrest\w*|enforcement|federal|immigration|sighting|spotted|migra)\b`)

// Noise contexts that indicate the bare word "ice" is not about
// enforcement at all.
var noiseContextRe = regexp.MustCompile(
	`(?i)\b(?:` +
		`ice cream|ice fishing|ice skating|icy roads|` +
		`black ice|ice dam|ice storm|ice hockey|` +
		`ice rink|dry ice|thin ice|break the ice|` +
		`ice scraper|ice melt|ice cold|iced coffee|iced tea` +
		`)\b`)

// News-article patterns: court cases, policy coverage, retrospective
// reporting. A news-source report carrying these without a real-time
// signal is rejected.
var newsArticleRe = regexp.MustCompile(
	`(?i)\b(?:` +
		// Court/legal proceedings
		`arrested for|charged with|pleaded guilty|found guilty|sentenced to|` +
		`indicted|arraigned|convicted of|faces charges|facing charges|` +
		`appeared in court|court documents|federal complaint|` +
		`justice department|department of justice|` +
		`prosecutor|prosecution|defendant|` +
		`court order|court ruling|ruling|lawsuit|` +
		`filed suit|legal challenge|appeals court|federal court|` +
		`supreme court|district court|` +
		// Past-tense deportation news
		`was deported|were deported|been deported|got deported|` +
		`was sent back|were sent back|` +
		// Policy/political news
		`executive order|policy change|policy|legislation|lawmakers|` +
		`congress|senate|house bill|proposed bill|` +
		`press conference|white house|administration|announced|` +
		// Statistics and reports
		`study finds|data shows|fiscal year|annual report|statistics show|` +
		// News article language
		`officials said|sources say|in a statement|released a statement|` +
		`earlier today|yesterday|last week|last month|last year|` +
		// Opinion/analysis
		`opinion:|editorial:|analysis:|commentary:` +
		`)\b`)

// Real-time signals that mark current, actionable activity. Their
// presence overrides the news-article rejection.
var realtimeSignalRe = regexp.MustCompile(
	`(?i)\b(?:` +
		`right now|happening now|happening|currently|on scene|` +
		`just saw|just spotted|spotted at|seen at|` +
		`minutes ago|this morning|` +
		`heads up|avoid the area|stay away from|` +
		`confirmed sighting|unconfirmed sighting|` +
		`ice sighting|ice spotted|` +
		`community report|rapid response` +
		`)\b`)

// A past-date token like "March 3" or "3/14/2025" marks retrospective
// content in news copy.
var pastDateRe = regexp.MustCompile(
	`(?i)\b(?:january|february|march|april|may|june|july|august|september|october|november|december)\s+\d{1,2}\b` +
		`|\b\d{1,2}/\d{1,2}/\d{2,4}\b`)
