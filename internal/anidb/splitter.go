package anidb

import (
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// CastDocument is the consolidated cast artifact written next to the raw
// series document. The episode-level provider and the host's people pass
// both read it instead of re-walking the full document.
type CastDocument struct {
	XMLName  xml.Name       `xml:"cast"`
	Cast     []CastEntry    `xml:"character"`
	Creators []CreatorEntry `xml:"creator"`
}

// CastEntry is one character/performer pair.
type CastEntry struct {
	Name      string `xml:"name"`
	Performer string `xml:"performer"`
	Picture   string `xml:"picture,omitempty"`
}

// CreatorEntry is one non-studio creator credit.
type CreatorEntry struct {
	Name string `xml:"name"`
	Type string `xml:"type,attr"`
}

// Splitter derives secondary cache artifacts from a freshly downloaded raw
// series document: one file per episode and one consolidated cast file.
type Splitter struct {
	fs     afero.Fs
	logger zerolog.Logger
}

// NewSplitter creates a new artifact splitter.
func NewSplitter(fs afero.Fs, logger zerolog.Logger) *Splitter {
	return &Splitter{
		fs:     fs,
		logger: logger.With().Str("component", "anidb-splitter").Logger(),
	}
}

// Split reads the raw document at docPath and writes the per-episode and
// cast artifacts into seriesDir. Episodes whose declared number does not
// parse are skipped; they are specials and recaps the episode provider
// cannot address anyway.
func (s *Splitter) Split(docPath, seriesDir string) error {
	f, err := s.fs.Open(docPath)
	if err != nil {
		return fmt.Errorf("failed to open series document: %w", err)
	}
	defer f.Close()

	return s.split(f, seriesDir)
}

func (s *Splitter) split(r io.Reader, seriesDir string) error {
	decoder := xml.NewDecoder(r)
	cast := CastDocument{}
	episodes := 0

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		switch start.Name.Local {
		case "anime", "episodes":
			// Descend.
		case "episode":
			if s.writeEpisode(decoder, &start, seriesDir) {
				episodes++
			}
		case "characters":
			s.collectCast(decoder, &start, &cast)
		case "creators":
			s.collectCreators(decoder, &start, &cast)
		default:
			_ = decoder.Skip()
		}
	}

	if err := s.writeCast(seriesDir, &cast); err != nil {
		return err
	}

	s.logger.Debug().
		Str("dir", seriesDir).
		Int("episodes", episodes).
		Int("cast", len(cast.Cast)).
		Msg("Wrote cache artifacts")

	return nil
}

// writeEpisode caches one episode sub-document, keyed by the episode's own
// declared number rather than its position in the feed.
func (s *Splitter) writeEpisode(d *xml.Decoder, start *xml.StartElement, seriesDir string) bool {
	var elem struct {
		Epno struct {
			Type string `xml:"type,attr"`
			Text string `xml:",chardata"`
		} `xml:"epno"`
		Inner []byte `xml:",innerxml"`
	}
	if err := d.DecodeElement(&elem, start); err != nil {
		return false
	}

	number, err := strconv.Atoi(strings.TrimSpace(elem.Epno.Text))
	if err != nil {
		return false
	}

	var buf strings.Builder
	buf.WriteString("<episode")
	for _, attr := range start.Attr {
		fmt.Fprintf(&buf, " %s=%q", attr.Name.Local, attr.Value)
	}
	buf.WriteString(">")
	buf.Write(elem.Inner)
	buf.WriteString("</episode>")

	path := filepath.Join(seriesDir, fmt.Sprintf("episode-%d.xml", number))
	if err := afero.WriteFile(s.fs, path, []byte(buf.String()), 0644); err != nil {
		s.logger.Warn().Err(err).Str("path", path).Msg("Failed to write episode artifact")
		return false
	}
	return true
}

func (s *Splitter) collectCast(d *xml.Decoder, start *xml.StartElement, cast *CastDocument) {
	var elem struct {
		Characters []struct {
			Name   string `xml:"name"`
			Seiyuu struct {
				Picture string `xml:"picture,attr"`
				Text    string `xml:",chardata"`
			} `xml:"seiyuu"`
		} `xml:"character"`
	}
	if err := d.DecodeElement(&elem, start); err != nil {
		return
	}

	for _, ch := range elem.Characters {
		name := strings.TrimSpace(ch.Name)
		performer := strings.TrimSpace(ch.Seiyuu.Text)
		if name == "" || performer == "" {
			continue
		}
		cast.Cast = append(cast.Cast, CastEntry{
			Name:      name,
			Performer: performer,
			Picture:   ch.Seiyuu.Picture,
		})
	}
}

func (s *Splitter) collectCreators(d *xml.Decoder, start *xml.StartElement, cast *CastDocument) {
	var elem struct {
		Names []struct {
			Type string `xml:"type,attr"`
			Text string `xml:",chardata"`
		} `xml:"name"`
	}
	if err := d.DecodeElement(&elem, start); err != nil {
		return
	}

	for _, n := range elem.Names {
		name := strings.TrimSpace(n.Text)
		if name == "" || studioCategories[n.Type] {
			continue
		}
		cast.Creators = append(cast.Creators, CreatorEntry{Name: name, Type: n.Type})
	}
}

func (s *Splitter) writeCast(seriesDir string, cast *CastDocument) error {
	data, err := xml.MarshalIndent(cast, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize cast artifact: %w", err)
	}

	path := filepath.Join(seriesDir, castFileName)
	if err := afero.WriteFile(s.fs, path, data, 0644); err != nil {
		return fmt.Errorf("failed to write cast artifact: %w", err)
	}
	return nil
}
