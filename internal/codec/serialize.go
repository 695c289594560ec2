package codec

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/untoldecay/mission-control/internal/types"
)

// ErrInvalidMission is returned when a mission lacks the fields needed to
// produce a document.
var ErrInvalidMission = errors.New("codec: invalid mission")

type yamlHeader struct {
	ID         string         `yaml:"id"`
	Title      string         `yaml:"title"`
	AssignedTo string         `yaml:"assigned_to"`
	Status     string         `yaml:"status"`
	Priority   string         `yaml:"priority"`
	CreatedAt  string         `yaml:"created_at"`
	UpdatedAt  string         `yaml:"updated_at"`
	Tags       []string       `yaml:"tags,omitempty"`
	Extra      map[string]any `yaml:",inline"`
}

// Serialize renders m as a YAML-headed document followed by body. An empty
// body is replaced by a generated one.
func Serialize(m *types.Mission, body string) ([]byte, error) {
	if m == nil || strings.TrimSpace(m.ID) == "" || strings.TrimSpace(m.Title) == "" {
		return nil, fmt.Errorf("%w: id and title are required", ErrInvalidMission)
	}
	if !m.Status.IsValid() {
		return nil, fmt.Errorf("%w: status %q", ErrInvalidMission, m.Status)
	}
	if !m.Priority.IsValid() {
		return nil, fmt.Errorf("%w: priority %q", ErrInvalidMission, m.Priority)
	}

	assigned := "unassigned"
	if m.AssignedTo != "" {
		assigned = strings.ToLower(m.AssignedTo)
	}
	header := yamlHeader{
		ID:         m.ID,
		Title:      m.Title,
		AssignedTo: assigned,
		Status:     string(m.Status),
		Priority:   string(m.Priority),
		CreatedAt:  formatTime(m.CreatedAt),
		UpdatedAt:  formatTime(m.UpdatedAt),
		Tags:       m.Tags,
	}
	for k, v := range m.Extra {
		if canonicalKeys[strings.ToLower(k)] {
			continue
		}
		if header.Extra == nil {
			header.Extra = make(map[string]any, len(m.Extra))
		}
		header.Extra[k] = v
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(header); err != nil {
		return nil, fmt.Errorf("codec: encode header: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("codec: encode header: %w", err)
	}
	buf.WriteString("---\n\n")

	body = strings.TrimLeft(body, "\n")
	if strings.TrimSpace(body) == "" {
		body = ComposeBody(m)
	}
	buf.WriteString(body)
	if !strings.HasSuffix(body, "\n") {
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// ComposeBody generates the markdown body for a mission created by this
// system.
func ComposeBody(m *types.Mission) string {
	desc := strings.TrimSpace(m.Description)
	if desc == "" {
		desc = "No description provided."
	}
	return fmt.Sprintf("# %s\n\n## Description\n%s\n", m.Title, desc)
}

// Rewrite decodes raw, applies fn to the mission, refreshes updated_at and
// re-serializes it with the original body. Legacy documents gain a header.
func Rewrite(raw []byte, storageKey string, fn func(*types.Mission)) ([]byte, *types.Mission, error) {
	doc := Parse(raw)
	m := ToMission(doc, storageKey)
	if fn != nil {
		fn(m)
	}
	m.UpdatedAt = Now()
	out, err := Serialize(m, doc.Body())
	if err != nil {
		return nil, nil, err
	}
	m.HasHeader = true
	m.HeaderFormat = types.HeaderYAML
	return out, m, nil
}

// MarkCompleted appends a completion note to body unless one exists.
func MarkCompleted(body string, at time.Time) string {
	if strings.Contains(body, "## Completed") {
		return body
	}
	return strings.TrimRight(body, "\n") + fmt.Sprintf("\n\n## Completed\n✅ Marked complete at %s\n", formatTime(at))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = Now()
	}
	return t.UTC().Format(time.RFC3339)
}
