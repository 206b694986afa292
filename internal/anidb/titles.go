package anidb

// TitlePreference selects which language wins when a series has titles in
// several languages.
type TitlePreference string

const (
	// TitlePreferenceLocalized prefers titles in the requested language.
	TitlePreferenceLocalized TitlePreference = "localized"
	// TitlePreferenceJapanese prefers native Japanese titles.
	TitlePreferenceJapanese TitlePreference = "japanese"
	// TitlePreferenceRomaji goes straight to the romanized fallback.
	TitlePreferenceRomaji TitlePreference = "romaji"
)

// SelectTitle chooses one display title from the document's candidates.
//
// It is deterministic for a fixed candidate list: every rule scans the list
// in source order and the first match wins. Returns false when the list is
// empty so callers can leave an existing display name untouched.
func SelectTitle(candidates []TitleCandidate, pref TitlePreference, lang string) (TitleCandidate, bool) {
	if len(candidates) == 0 {
		return TitleCandidate{}, false
	}

	switch pref {
	case TitlePreferenceLocalized:
		if t, ok := findTitle(candidates, TitleTypeMain, lang); ok {
			return t, true
		}
		if t, ok := findTitle(candidates, TitleTypeOfficial, lang); ok {
			return t, true
		}
		if t, ok := findAlternate(candidates, lang); ok {
			return t, true
		}
	case TitlePreferenceJapanese:
		if t, ok := findTitle(candidates, TitleTypeMain, LangJapanese); ok {
			return t, true
		}
		if t, ok := findTitle(candidates, TitleTypeOfficial, LangJapanese); ok {
			return t, true
		}
		if t, ok := findAlternate(candidates, LangJapanese); ok {
			return t, true
		}
	}

	// Universal fallback, and the whole ladder for the romaji preference:
	// the romanized main title, then any main title, then whatever came
	// first in the document.
	if t, ok := findTitle(candidates, TitleTypeMain, LangRomaji); ok {
		return t, true
	}
	for _, t := range candidates {
		if t.Type == TitleTypeMain {
			return t, true
		}
	}
	return candidates[0], true
}

func findTitle(candidates []TitleCandidate, titleType, lang string) (TitleCandidate, bool) {
	for _, t := range candidates {
		if t.Type == titleType && t.Lang == lang {
			return t, true
		}
	}
	return TitleCandidate{}, false
}

// findAlternate matches synonym/short titles; title types this code does
// not know are treated as alternates rather than dropped.
func findAlternate(candidates []TitleCandidate, lang string) (TitleCandidate, bool) {
	for _, t := range candidates {
		if t.Type != TitleTypeMain && t.Type != TitleTypeOfficial && t.Lang == lang {
			return t, true
		}
	}
	return TitleCandidate{}, false
}
