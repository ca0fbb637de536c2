package core

import (
	"fmt"
	"strconv"
	"strings"
)

// VisibilityTag marks which audience may see a column and whether the
// column is a lookup key.
type VisibilityTag int

const (
	TagAllKey VisibilityTag = iota + 1
	TagAll
	TagClient
	TagClientKey
	TagServer
	TagServerKey
)

var visibilityLabels = map[VisibilityTag]string{
	TagAllKey:    "allkey",
	TagAll:       "all",
	TagClient:    "client",
	TagClientKey: "clientkey",
	TagServer:    "server",
	TagServerKey: "serverkey",
}

// ParseVisibilityTag resolves a label from the third header row,
// ignoring case and surrounding whitespace.
func ParseVisibilityTag(label string) (VisibilityTag, error) {
	key := strings.ToLower(strings.TrimSpace(label))
	for tag, name := range visibilityLabels {
		if name == key {
			return tag, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownVisibilityTag, label)
}

func (t VisibilityTag) String() string {
	if s, ok := visibilityLabels[t]; ok {
		return s
	}
	return "visibility(" + strconv.Itoa(int(t)) + ")"
}

// IsKey reports whether the tag is an explicit key tag.
func (t VisibilityTag) IsKey() bool {
	return t == TagAllKey || t == TagServerKey || t == TagClientKey
}

// MarksKey reports whether the tag can designate the primary key column.
func (t VisibilityTag) MarksKey() bool {
	return t.IsKey() || t == TagAll
}

// Audience is the export target of a build.
type Audience int

const (
	AudienceAll Audience = iota // unfiltered, as compiled
	AudienceServer
	AudienceClient
)

// ParseAudience resolves "server" or "client".
func ParseAudience(s string) (Audience, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "server":
		return AudienceServer, nil
	case "client":
		return AudienceClient, nil
	}
	return 0, fmt.Errorf("unknown audience %q (want server or client)", s)
}

func (a Audience) String() string {
	switch a {
	case AudienceAll:
		return "all"
	case AudienceServer:
		return "server"
	case AudienceClient:
		return "client"
	}
	return "audience(" + strconv.Itoa(int(a)) + ")"
}

// Valid reports whether a is one of the known audiences.
func (a Audience) Valid() bool {
	return a >= AudienceAll && a <= AudienceClient
}

// Sees reports whether columns tagged t are exported to audience a.
func (a Audience) Sees(t VisibilityTag) bool {
	if a == AudienceAll {
		return t >= TagAllKey && t <= TagServerKey
	}
	switch t {
	case TagAll, TagAllKey:
		return true
	case TagServer, TagServerKey:
		return a == AudienceServer
	case TagClient, TagClientKey:
		return a == AudienceClient
	}
	return false
}

// ForAudience returns a new table holding only the columns visible to a,
// in their original order. The receiver is not modified, and applying the
// same audience again yields an identical table.
func (t *CompiledTable) ForAudience(a Audience) *CompiledTable {
	keep := make([]int, 0, len(t.Columns))
	for i, col := range t.Columns {
		if a.Sees(col.Visibility) {
			keep = append(keep, i)
		}
	}

	out := &CompiledTable{
		Name:    t.Name,
		Columns: make([]Column, len(keep)),
		Rows:    make([]Row, len(t.Rows)),
	}
	for j, i := range keep {
		out.Columns[j] = t.Columns[i]
	}
	for r, row := range t.Rows {
		filtered := make(Row, len(keep))
		for j, i := range keep {
			filtered[j] = row[i]
		}
		out.Rows[r] = filtered
	}
	return out
}

// ForAudience filters every table of the dataset for a.
func (d *Dataset) ForAudience(a Audience) *Dataset {
	out := *d
	out.Audience = a
	out.Tables = make([]*CompiledTable, len(d.Tables))
	for i, t := range d.Tables {
		out.Tables[i] = t.ForAudience(a)
	}
	return &out
}
