// Package codec converts mission documents to and from the canonical
// types.Mission.
//
// A document either starts with a structured header block (YAML fenced by
// "---" or TOML fenced by "+++") or is a legacy free-form markdown file whose
// fields are recovered heuristically. Parsing never fails: a header that
// cannot be decoded demotes the whole document to the legacy variant.
package codec

import (
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/untoldecay/mission-control/internal/types"
)

// Document is a parsed mission document. The concrete type is either
// *StructuredDocument or *LegacyDocument.
type Document interface {
	// Header returns the decoded header block and whether one was present.
	Header() (map[string]any, bool)
	// Body returns the document text following the header block.
	Body() string

	isDocument()
}

// StructuredDocument is a document with a machine-readable header.
type StructuredDocument struct {
	Format types.HeaderFormat
	Fields map[string]any
	Text   string
}

func (d *StructuredDocument) Header() (map[string]any, bool) { return d.Fields, true }
func (d *StructuredDocument) Body() string                   { return d.Text }
func (*StructuredDocument) isDocument()                      {}

// LegacyDocument is a header-less document.
type LegacyDocument struct {
	Text string
}

func (d *LegacyDocument) Header() (map[string]any, bool) { return nil, false }
func (d *LegacyDocument) Body() string                   { return d.Text }
func (*LegacyDocument) isDocument()                      {}

// Parse splits raw into header and body. It never returns nil.
func Parse(raw []byte) Document {
	text := strings.ReplaceAll(string(raw), "\r\n", "\n")
	text = strings.TrimPrefix(text, "\ufeff")

	format, header, body, ok := splitHeader(text)
	if !ok {
		return &LegacyDocument{Text: text}
	}
	fields, err := decodeHeader(format, header)
	if err != nil || len(fields) == 0 {
		return &LegacyDocument{Text: text}
	}
	return &StructuredDocument{Format: format, Fields: fields, Text: body}
}

func decodeHeader(format types.HeaderFormat, header string) (map[string]any, error) {
	fields := map[string]any{}
	switch format {
	case types.HeaderTOML:
		if _, err := toml.Decode(header, &fields); err != nil {
			return nil, err
		}
	default:
		if err := yaml.Unmarshal([]byte(header), &fields); err != nil {
			return nil, err
		}
	}
	return fields, nil
}

// splitHeader locates a fenced header at the very start of text. The body
// is returned without the blank lines that separate it from the header.
func splitHeader(text string) (types.HeaderFormat, string, string, bool) {
	nl := strings.IndexByte(text, '\n')
	if nl < 0 {
		return types.HeaderNone, "", text, false
	}
	var format types.HeaderFormat
	fence := strings.TrimRight(text[:nl], " \t")
	switch fence {
	case "---":
		format = types.HeaderYAML
	case "+++":
		format = types.HeaderTOML
	default:
		return types.HeaderNone, "", text, false
	}

	rest := text[nl+1:]
	for pos := 0; pos <= len(rest); {
		line, next := rest[pos:], len(rest)+1
		if end := strings.IndexByte(rest[pos:], '\n'); end >= 0 {
			line, next = rest[pos:pos+end], pos+end+1
		}
		if strings.TrimRight(line, " \t") == fence {
			body := ""
			if next <= len(rest) {
				body = rest[next:]
			}
			return format, rest[:pos], strings.TrimLeft(body, "\n"), true
		}
		pos = next
	}
	return types.HeaderNone, "", text, false
}
