package anidb

import (
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/animeta/animeta/internal/config"
)

// linkPattern matches the provider's inline link markup, a bare URL followed
// by the display name in brackets. Only the display name is kept.
var linkPattern = regexp.MustCompile(`https?://\S+ \[([^\]]+)\]`)

// Parser extracts a SeriesRecord from a cached raw series document.
//
// Parsing is a single streaming pass over a fixed set of top-level elements.
// Anything unrecognized is skipped, and a field that fails to parse is left
// unset rather than failing the document; the provider's feed is too uneven
// for strict parsing to survive contact with it.
type Parser struct {
	fs         afero.Fs
	preference TitlePreference
	imageBase  string
	logger     zerolog.Logger
}

// NewParser creates a new series document parser.
func NewParser(cfg config.AniDBConfig, fs afero.Fs, logger zerolog.Logger) *Parser {
	return &Parser{
		fs:         fs,
		preference: TitlePreference(cfg.TitlePreference),
		imageBase:  cfg.ImageBaseURL,
		logger:     logger.With().Str("component", "anidb-parser").Logger(),
	}
}

// Parse reads the cached document at path and builds the series record,
// selecting the display title for the given preferred language.
func (p *Parser) Parse(path, lang string) (*SeriesRecord, error) {
	f, err := p.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open series document: %w", err)
	}
	defer f.Close()

	return p.parseReader(f, lang)
}

func (p *Parser) parseReader(r io.Reader, lang string) (*SeriesRecord, error) {
	record := NewSeriesRecord()
	decoder := xml.NewDecoder(r)

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A document truncated or mangled past this point yields
			// whatever was extracted so far.
			p.logger.Debug().Err(err).Msg("Stopping parse on malformed document")
			break
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		switch start.Name.Local {
		case "anime":
			// Root element; descend into its children.
		case "startdate":
			if t, ok := p.decodeDate(decoder, &start); ok {
				record.StartDate = &t
			}
		case "enddate":
			if t, ok := p.decodeDate(decoder, &start); ok {
				record.EndDate = &t
			}
		case "titles":
			p.decodeTitles(decoder, &start, record, lang)
		case "creators":
			p.decodeCreators(decoder, &start, record)
		case "description":
			p.decodeDescription(decoder, &start, record)
		case "ratings":
			p.decodeRatings(decoder, &start, record)
		case "resources":
			p.decodeResources(decoder, &start, record)
		case "characters":
			p.decodeCharacters(decoder, &start, record)
		case "picture":
			var name string
			if decoder.DecodeElement(&name, &start) == nil && name != "" {
				record.ImageURL = p.imageBase + name
			}
		case "tags", "categories":
			// Recognized and skipped on purpose; hosts map genres from
			// their own taxonomy, not the provider's tag cloud.
			_ = decoder.Skip()
		default:
			_ = decoder.Skip()
		}
	}

	return record, nil
}

// decodeDate parses a calendar date element. The provider truncates dates it
// only partially knows, so year-month and bare-year forms are accepted too.
// All parsed dates are UTC.
func (p *Parser) decodeDate(d *xml.Decoder, start *xml.StartElement) (time.Time, bool) {
	var raw string
	if err := d.DecodeElement(&raw, start); err != nil {
		return time.Time{}, false
	}
	raw = strings.TrimSpace(raw)

	for _, layout := range []string{"2006-01-02", "2006-01", "2006"} {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (p *Parser) decodeTitles(d *xml.Decoder, start *xml.StartElement, record *SeriesRecord, lang string) {
	var elem struct {
		Titles []struct {
			Lang string `xml:"lang,attr"`
			Type string `xml:"type,attr"`
			Text string `xml:",chardata"`
		} `xml:"title"`
	}
	if err := d.DecodeElement(&elem, start); err != nil {
		return
	}

	candidates := make([]TitleCandidate, 0, len(elem.Titles))
	for _, t := range elem.Titles {
		candidates = append(candidates, TitleCandidate{
			Lang: t.Lang,
			Type: t.Type,
			Text: strings.TrimSpace(t.Text),
		})
	}

	if title, ok := SelectTitle(candidates, p.preference, lang); ok {
		record.Name = title.Text
	}
}

// creatorCategories maps the provider's credit categories onto normalized
// person kinds. Categories not listed here pass through verbatim.
var creatorCategories = map[string]PersonKind{
	"Direction": PersonKindDirector,
	"Music":     PersonKindComposer,
}

// studioCategories are the credit categories that name the production
// company rather than a person.
var studioCategories = map[string]bool{
	"Animation Work": true,
	"Work":           true,
}

func (p *Parser) decodeCreators(d *xml.Decoder, start *xml.StartElement, record *SeriesRecord) {
	var elem struct {
		Names []struct {
			ID   string `xml:"id,attr"`
			Type string `xml:"type,attr"`
			Text string `xml:",chardata"`
		} `xml:"name"`
	}
	if err := d.DecodeElement(&elem, start); err != nil {
		return
	}

	for _, n := range elem.Names {
		name := strings.TrimSpace(n.Text)
		if name == "" {
			continue
		}
		if studioCategories[n.Type] {
			record.AddStudio(name)
			continue
		}

		kind, ok := creatorCategories[n.Type]
		if !ok {
			kind = PersonKind(n.Type)
		}
		record.People = append(record.People, PersonRecord{
			Name: normalizeNameOrder(name),
			Kind: kind,
		})
	}
}

func (p *Parser) decodeDescription(d *xml.Decoder, start *xml.StartElement, record *SeriesRecord) {
	var text string
	if err := d.DecodeElement(&text, start); err != nil {
		return
	}
	// Only the first non-empty description in the document counts.
	if record.Overview != "" {
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	record.Overview = linkPattern.ReplaceAllString(text, "$1")
}

func (p *Parser) decodeRatings(d *xml.Decoder, start *xml.StartElement, record *SeriesRecord) {
	var elem struct {
		Permanent struct {
			Count string `xml:"count,attr"`
			Text  string `xml:",chardata"`
		} `xml:"permanent"`
	}
	if err := d.DecodeElement(&elem, start); err != nil {
		return
	}

	// Count and value parse independently; a bad one leaves only its own
	// field unset.
	if count, err := strconv.Atoi(strings.TrimSpace(elem.Permanent.Count)); err == nil && count >= 0 {
		record.VoteCount = &count
	}
	if value, err := strconv.ParseFloat(strings.TrimSpace(elem.Permanent.Text), 32); err == nil {
		rating := float32(value)
		record.Rating = &rating
	}
}

func (p *Parser) decodeResources(d *xml.Decoder, start *xml.StartElement, record *SeriesRecord) {
	var elem struct {
		Resources []struct {
			Type     string `xml:"type,attr"`
			Entities []struct {
				Identifiers []string `xml:"identifier"`
			} `xml:"externalentity"`
		} `xml:"resource"`
	}
	if err := d.DecodeElement(&elem, start); err != nil {
		return
	}

	for _, res := range elem.Resources {
		if res.Type != secondaryResourceTypeID {
			continue
		}
		if _, exists := record.ProviderIDs[SecondaryProviderName]; exists {
			continue
		}
		for _, ent := range res.Entities {
			found := false
			for _, id := range ent.Identifiers {
				id = strings.TrimSpace(id)
				if id != "" {
					record.ProviderIDs[SecondaryProviderName] = id
					found = true
					break
				}
			}
			if found {
				break
			}
		}
	}
}

func (p *Parser) decodeCharacters(d *xml.Decoder, start *xml.StartElement, record *SeriesRecord) {
	var elem struct {
		Characters []struct {
			Name   string `xml:"name"`
			Seiyuu struct {
				ID      string `xml:"id,attr"`
				Picture string `xml:"picture,attr"`
				Text    string `xml:",chardata"`
			} `xml:"seiyuu"`
		} `xml:"character"`
	}
	if err := d.DecodeElement(&elem, start); err != nil {
		return
	}

	for _, ch := range elem.Characters {
		role := strings.TrimSpace(ch.Name)
		performer := strings.TrimSpace(ch.Seiyuu.Text)
		if role == "" || performer == "" {
			// A cast entry missing either half is useless to the host.
			continue
		}

		person := PersonRecord{
			Name: normalizeNameOrder(performer),
			Kind: PersonKindActor,
			Role: role,
		}
		if ch.Seiyuu.Picture != "" {
			person.ImageURL = p.imageBase + ch.Seiyuu.Picture
		}
		record.People = append(record.People, person)
	}
}

// normalizeNameOrder rewrites "Family Given" provider names as "Given
// Family" by reversing the space-separated tokens. It is a blunt heuristic
// with no locale awareness, kept for compatibility with how hosts already
// store these names; swap this function out for locale-aware logic if that
// ever changes.
func normalizeNameOrder(name string) string {
	tokens := strings.Fields(name)
	for i, j := 0, len(tokens)-1; i < j; i, j = i+1, j-1 {
		tokens[i], tokens[j] = tokens[j], tokens[i]
	}
	return strings.Join(tokens, " ")
}
