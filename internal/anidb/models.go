package anidb

import "time"

// Provider identifier keys used in SeriesRecord.ProviderIDs.
const (
	ProviderName            = "AniDB"
	SecondaryProviderName   = "MyAnimeList"
	secondaryResourceTypeID = "2"
)

// PersonKind is the normalized category of a credited person.
type PersonKind string

const (
	PersonKindDirector PersonKind = "Director"
	PersonKindComposer PersonKind = "Composer"
	PersonKindActor    PersonKind = "Actor"
)

// PersonRecord is one credited person on a series.
type PersonRecord struct {
	Name string `json:"name"`
	// Kind is one of the PersonKind constants for known categories;
	// unknown provider categories pass through verbatim.
	Kind PersonKind `json:"kind"`
	// Role is the character name, set only for cast entries.
	Role     string `json:"role,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// SeriesRecord is the normalized result of resolving one series.
//
// Optional fields are pointers: a field that failed to parse (or was absent
// from the document) stays nil so the host never overwrites known data with
// a false zero.
type SeriesRecord struct {
	Name        string            `json:"name"`
	StartDate   *time.Time        `json:"startDate,omitempty"`
	EndDate     *time.Time        `json:"endDate,omitempty"`
	Overview    string            `json:"overview,omitempty"`
	Rating      *float32          `json:"rating,omitempty"`
	VoteCount   *int              `json:"voteCount,omitempty"`
	ImageURL    string            `json:"imageUrl,omitempty"`
	Studios     []string          `json:"studios,omitempty"`
	People      []PersonRecord    `json:"people,omitempty"`
	ProviderIDs map[string]string `json:"providerIds"`
}

// NewSeriesRecord returns an empty record with the ids map initialized.
func NewSeriesRecord() *SeriesRecord {
	return &SeriesRecord{ProviderIDs: map[string]string{}}
}

// AddStudio appends a studio name, keeping the set unique.
func (r *SeriesRecord) AddStudio(name string) {
	for _, s := range r.Studios {
		if s == name {
			return
		}
	}
	r.Studios = append(r.Studios, name)
}

// TitleCandidate is one (language, type, text) triple from the document's
// title list. It exists only during parsing and is never persisted.
type TitleCandidate struct {
	Lang string
	Type string
	Text string
}

// Title type values observed in provider documents.
const (
	TitleTypeMain     = "main"
	TitleTypeOfficial = "official"
	TitleTypeSynonym  = "synonym"
	TitleTypeShort    = "short"
)

// LangRomaji is the provider's language tag for romanized Japanese, the
// universal fallback display language.
const LangRomaji = "x-jat"

// LangJapanese is the provider's language tag for native Japanese titles.
const LangJapanese = "ja"
