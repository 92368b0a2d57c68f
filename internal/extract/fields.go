// Package extract turns rendered work pages into structured metadata records.
package extract

import "strings"

// FieldKind tags a canonical field as scalar text, a tag list, a numeric
// count, or a date. The extractor uses the kind to pick a parse branch and
// the stats pass uses it to pick a conflict-resolution rule.
type FieldKind int

// Field kinds.
const (
	KindText FieldKind = iota
	KindTags
	KindNumber
	KindDate
)

// FieldSpec is one entry of the canonical field dictionary.
type FieldSpec struct {
	Key  string
	Kind FieldKind
}

// fieldDictionary maps normalized source labels to canonical fields. New
// source labels are added here, not as new parser branches. Singular and
// plural label forms both appear because the source markup uses either
// depending on how many values a work carries.
var fieldDictionary = map[string]FieldSpec{
	"rating":          {Key: "rating", Kind: KindTags},
	"archive warning": {Key: "warning", Kind: KindTags},
	"warning":         {Key: "warning", Kind: KindTags},
	"warnings":        {Key: "warning", Kind: KindTags},
	"category":        {Key: "category", Kind: KindTags},
	"categories":      {Key: "category", Kind: KindTags},
	"fandom":          {Key: "fandom", Kind: KindTags},
	"fandoms":         {Key: "fandom", Kind: KindTags},
	"relationship":    {Key: "relationship", Kind: KindTags},
	"relationships":   {Key: "relationship", Kind: KindTags},
	"character":       {Key: "character", Kind: KindTags},
	"characters":      {Key: "character", Kind: KindTags},
	"additional tags": {Key: "freeform", Kind: KindTags},
	"language":        {Key: "language", Kind: KindText},
	"series":          {Key: "series", Kind: KindText},
	"collections":     {Key: "collections", Kind: KindText},

	"published": {Key: "published", Kind: KindDate},
	"updated":   {Key: "updated", Kind: KindDate},
	"completed": {Key: "completed", Kind: KindDate},
	"words":     {Key: "words", Kind: KindNumber},
	"chapters":  {Key: "chapters", Kind: KindText},
	"comments":  {Key: "comments", Kind: KindNumber},
	"kudos":     {Key: "kudos", Kind: KindNumber},
	"bookmarks": {Key: "bookmarks", Kind: KindNumber},
	"hits":      {Key: "hits", Kind: KindNumber},
}

// statsContainerLabel marks the label whose value is the nested statistics
// block; the general pass skips it and leaves it to the stats pass.
const statsContainerLabel = "stats"

// Lookup resolves a raw source label against the canonical dictionary.
func Lookup(label string) (FieldSpec, bool) {
	spec, ok := fieldDictionary[normalizeLabel(label)]
	return spec, ok
}

// KindOf returns the kind for a canonical key, defaulting to text for keys
// outside the dictionary.
func KindOf(key string) FieldKind {
	for _, spec := range fieldDictionary {
		if spec.Key == key {
			return spec.Kind
		}
	}
	return KindText
}

func normalizeLabel(label string) string {
	label = strings.TrimSpace(label)
	label = strings.TrimSuffix(label, ":")
	return strings.ToLower(strings.Join(strings.Fields(label), " "))
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
