package codec

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/untoldecay/mission-control/internal/types"
)

// Now is the clock used for timestamps the document does not provide.
var Now = func() time.Time { return time.Now().UTC() }

// Header keys with a canonical Mission field. Everything else is kept in
// Mission.Extra.
var canonicalKeys = map[string]bool{
	"id": true, "title": true, "name": true, "description": true,
	"assigned_to": true, "assignee": true, "agent": true,
	"status": true, "state": true, "priority": true,
	"tags": true, "labels": true,
	"created_at": true, "updated_at": true,
}

var (
	headingRe      = regexp.MustCompile(`(?m)^#[ \t]+(.+?)[ \t#]*$`)
	anyHeadingRe   = regexp.MustCompile(`(?m)^#{1,6}[ \t]*(.+?)[ \t#]*$`)
	titlePrefixRe  = regexp.MustCompile(`(?i)^(?:task|mission)[ \t]*:[ \t]*`)
	agentPrefixRe  = regexp.MustCompile(`^[A-Z][A-Z0-9_]+:[ \t]+`)
	statusLineRe   = regexp.MustCompile(`(?i)\*{0,2}status\*{0,2}:\*{0,2}[ \t]*([^\n]+)`)
	priorityLineRe = regexp.MustCompile(`(?i)priority\*{0,2}:\*{0,2}[ \t]*(\w+)`)
	agentLineRe    = regexp.MustCompile(`(?i)(?:assigned(?:[ \t]+to)?|assignee|agent|from)\*{0,2}:\*{0,2}[ \t]*(\w+)`)
	filePrefixRe   = regexp.MustCompile(`^([A-Za-z0-9]+)-`)
	objectiveRe    = regexp.MustCompile(`(?im)^##[ \t]*objective[ \t]*\n+[ \t]*(\S[^\n]*)`)
	descriptionRe  = regexp.MustCompile(`(?im)^##[ \t]*description[ \t]*\n+[ \t]*(\S[^\n]*)`)
	metadataLineRe = regexp.MustCompile(`^\*{0,2}[A-Za-z][A-Za-z ]{0,20}\*{0,2}:`)
	slugStripRe    = regexp.MustCompile(`[^a-z0-9]+`)
)

// ToMission converts a parsed document into a canonical mission. It never
// fails; missing fields get default values.
func ToMission(doc Document, storageKey string) *types.Mission {
	switch d := doc.(type) {
	case *StructuredDocument:
		return structuredMission(d, storageKey)
	case *LegacyDocument:
		return legacyMission(d.Text, storageKey)
	case nil:
		return legacyMission("", storageKey)
	default:
		panic(fmt.Sprintf("codec: unknown document type %T", doc))
	}
}

// Decode is Parse followed by ToMission.
func Decode(raw []byte, storageKey string) *types.Mission {
	return ToMission(Parse(raw), storageKey)
}

func structuredMission(d *StructuredDocument, storageKey string) *types.Mission {
	h := d.Fields
	now := Now()
	m := &types.Mission{
		StorageKey:   storageKey,
		HasHeader:    true,
		HeaderFormat: d.Format,
	}

	m.Title = truncateRunes(firstNonEmpty(
		stringField(h, "title", "name"),
		titleFromBody(d.Text),
		fileStem(storageKey),
	), types.MaxTitleLength)

	status, blocked := types.NormalizeStatus(stringField(h, "status", "state"))
	m.Status = status
	m.Priority = types.NormalizePriority(stringField(h, "priority"))
	m.AssignedTo = types.NormalizeAgent(stringField(h, "assigned_to", "assignee", "agent"))
	for _, tag := range stringSliceField(h, "tags", "labels") {
		m.AddTag(tag)
	}
	if blocked {
		m.AddTag(types.TagBlocked)
	}

	m.Description = firstNonEmpty(
		truncateRunes(stringField(h, "description"), types.MaxDescriptionLength),
		extractDescription(d.Text),
	)
	m.ID = missionID(stringField(h, "id"), m.Title, storageKey)

	m.CreatedAt = timeField(h, now, "created_at")
	m.UpdatedAt = timeField(h, now, "updated_at")

	for k, v := range h {
		if canonicalKeys[strings.ToLower(k)] {
			continue
		}
		if m.Extra == nil {
			m.Extra = make(map[string]any)
		}
		m.Extra[k] = v
	}
	return m
}

func legacyMission(text, storageKey string) *types.Mission {
	now := Now()
	lower := strings.ToLower(text)
	m := &types.Mission{
		StorageKey: storageKey,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	m.Title = truncateRunes(firstNonEmpty(titleFromBody(text), fileStem(storageKey)), types.MaxTitleLength)

	statusLine := ""
	if match := statusLineRe.FindStringSubmatch(text); match != nil {
		statusLine = strings.TrimSpace(strings.TrimLeft(match[1], "* \t"))
	}
	lowerStatus := strings.ToLower(statusLine)
	switch {
	case strings.Contains(statusLine, "✅") || strings.Contains(lowerStatus, "complete"):
		// Finished work still sitting in the active area waits for review.
		m.Status = types.StatusReview
	case strings.Contains(lowerStatus, "progress") || strings.Contains(lowerStatus, "working") ||
		strings.Contains(lower, "in progress"):
		m.Status = types.StatusProgress
	case strings.Contains(lowerStatus, "blocked") || strings.Contains(lowerStatus, "waiting"):
		m.Status = types.StatusQueue
		m.AddTag(types.TagBlocked)
	case strings.Contains(lowerStatus, "review"):
		m.Status = types.StatusReview
	default:
		m.Status = types.StatusQueue
	}

	if match := priorityLineRe.FindStringSubmatch(text); match != nil {
		m.Priority = types.NormalizePriority(match[1])
	} else {
		m.Priority = types.PriorityMedium
	}

	if match := agentLineRe.FindStringSubmatch(text); match != nil {
		m.AssignedTo = types.NormalizeAgent(match[1])
	} else if match := filePrefixRe.FindStringSubmatch(filepath.Base(storageKey)); match != nil {
		switch strings.ToLower(match[1]) {
		case "task", "mission":
		default:
			m.AssignedTo = types.NormalizeAgent(match[1])
		}
	}

	if m.Priority == types.PriorityCritical || m.Priority == types.PriorityHigh {
		m.AddTag(types.TagUrgent)
	}
	if strings.Contains(lower, "blocked") {
		m.AddTag(types.TagBlocked)
	}

	m.Description = extractDescription(text)
	m.ID = missionID("", m.Title, storageKey)
	return m
}

// missionID picks the explicit id, else a slug of the title, else a slug
// of the filename. The result is never empty and at most MaxIDLength long.
func missionID(explicit, title, storageKey string) string {
	if id := truncateRunes(strings.TrimSpace(explicit), types.MaxIDLength); id != "" {
		return id
	}
	if id := Slugify(title); id != "" {
		return id
	}
	if id := Slugify(fileStem(storageKey)); id != "" {
		return id
	}
	return "mission"
}

// Slugify lowercases text and collapses everything outside [a-z0-9] into
// single dashes, bounded to MaxIDLength.
func Slugify(text string) string {
	slug := slugStripRe.ReplaceAllString(strings.ToLower(text), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > types.MaxIDLength {
		slug = strings.TrimRight(slug[:types.MaxIDLength], "-")
	}
	return slug
}

func titleFromBody(text string) string {
	match := headingRe.FindStringSubmatch(text)
	if match == nil {
		match = anyHeadingRe.FindStringSubmatch(text)
	}
	if match == nil {
		return ""
	}
	title := strings.TrimSpace(match[1])
	title = titlePrefixRe.ReplaceAllString(title, "")
	title = agentPrefixRe.ReplaceAllString(title, "")
	return strings.TrimSpace(title)
}

// extractDescription prefers an Objective section, then a Description
// section, then the first prose paragraph.
func extractDescription(text string) string {
	for _, re := range []*regexp.Regexp{objectiveRe, descriptionRe} {
		if match := re.FindStringSubmatch(text); match != nil {
			return truncateRunes(strings.TrimSpace(match[1]), types.MaxDescriptionLength)
		}
	}
	for _, para := range strings.Split(text, "\n\n") {
		line := strings.TrimSpace(para)
		if i := strings.IndexByte(line, '\n'); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if len([]rune(line)) <= 10 {
			continue
		}
		if strings.HasPrefix(line, "#") || strings.HasPrefix(line, "---") ||
			strings.HasPrefix(line, "+++") || metadataLineRe.MatchString(line) {
			continue
		}
		return truncateRunes(line, types.MaxDescriptionLength)
	}
	return ""
}

func fileStem(storageKey string) string {
	base := filepath.Base(storageKey)
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func stringField(h map[string]any, keys ...string) string {
	for _, key := range keys {
		raw, ok := lookup(h, key)
		if !ok || raw == nil {
			continue
		}
		var s string
		switch v := raw.(type) {
		case string:
			s = v
		case time.Time:
			s = v.UTC().Format(time.RFC3339)
		case []any, map[string]any:
			continue
		default:
			s = fmt.Sprint(v)
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

func stringSliceField(h map[string]any, keys ...string) []string {
	for _, key := range keys {
		raw, ok := lookup(h, key)
		if !ok || raw == nil {
			continue
		}
		var out []string
		switch v := raw.(type) {
		case []any:
			for _, item := range v {
				if item == nil {
					continue
				}
				out = append(out, strings.TrimSpace(fmt.Sprint(item)))
			}
		case []string:
			out = append(out, v...)
		case string:
			for _, part := range strings.Split(strings.Trim(v, "[]"), ",") {
				out = append(out, strings.TrimSpace(part))
			}
		default:
			out = append(out, fmt.Sprint(v))
		}
		return out
	}
	return nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func timeField(h map[string]any, fallback time.Time, key string) time.Time {
	raw, ok := lookup(h, key)
	if !ok {
		return fallback
	}
	switch v := raw.(type) {
	case time.Time:
		return v.UTC()
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, strings.TrimSpace(v)); err == nil {
				return t.UTC()
			}
		}
	}
	return fallback
}

// lookup finds key case-insensitively.
func lookup(h map[string]any, key string) (any, bool) {
	if v, ok := h[key]; ok {
		return v, true
	}
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.EqualFold(k, key) {
			return h[k], true
		}
	}
	return nil, false
}
