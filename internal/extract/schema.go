package extract

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mferrill/workherald/internal/workmeta"
)

// anonymousAuthor is substituted when the source byline block is empty.
const anonymousAuthor = "Anonymous"

// SchemaError reports a record that cannot be normalized into the expected
// shape. It is fatal for the job being processed.
type SchemaError struct {
	Field   string
	Message string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema: field %q: %s", e.Field, e.Message)
}

// Normalize coerces an extracted record into a typed WorkMetadata. Count
// fields become integers, tag lists are flattened, and unknown fields and
// warnings pass through untouched for diagnostic visibility. A missing title
// is a SchemaError; an empty author block normalizes to Anonymous.
func Normalize(meta *workmeta.ExtractedMetadata) (*workmeta.WorkMetadata, error) {
	if strings.TrimSpace(meta.Title) == "" {
		return nil, &SchemaError{Field: "title", Message: "required but absent"}
	}

	out := &workmeta.WorkMetadata{
		Title:         meta.Title,
		Summary:       meta.Summary,
		Authors:       append([]string(nil), meta.Authors...),
		Rating:        flattenTags(meta.TagFields["rating"]),
		Warnings:      flattenTags(meta.TagFields["warning"]),
		Categories:    flattenTags(meta.TagFields["category"]),
		Fandoms:       flattenTags(meta.TagFields["fandom"]),
		Relationships: flattenTags(meta.TagFields["relationship"]),
		Characters:    flattenTags(meta.TagFields["character"]),
		FreeformTags:  flattenTags(meta.TagFields["freeform"]),
		Language:      meta.Fields["language"],
		Series:        meta.Fields["series"],
		Chapters:      meta.Fields["chapters"],
		Published:     meta.Fields["published"],
		Unknown:       meta.Unknown,
		ParseWarnings: append([]string(nil), meta.Warnings...),
	}

	if len(out.Authors) == 0 {
		out.Authors = []string{anonymousAuthor}
	}

	var err error
	if out.Words, err = coerceCount(meta.Fields, "words"); err != nil {
		return nil, err
	}
	if out.Comments, err = coerceCount(meta.Fields, "comments"); err != nil {
		return nil, err
	}
	if out.Kudos, err = coerceCount(meta.Fields, "kudos"); err != nil {
		return nil, err
	}
	if out.Bookmarks, err = coerceCount(meta.Fields, "bookmarks"); err != nil {
		return nil, err
	}
	if out.Hits, err = coerceCount(meta.Fields, "hits"); err != nil {
		return nil, err
	}

	out.Updated = meta.Fields["updated"]
	if out.Updated == "" {
		out.Updated = meta.Fields["completed"]
	}
	out.Complete = meta.Fields["completed"] != "" || chaptersComplete(out.Chapters)

	return out, nil
}

// coerceCount turns a numeric-looking string into an int, tolerating
// thousands separators. An absent field is zero, not an error.
func coerceCount(fields map[string]string, key string) (int, error) {
	raw, ok := fields[key]
	if !ok || strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	n, err := strconv.Atoi(cleaned)
	if err != nil {
		return 0, &SchemaError{Field: key, Message: fmt.Sprintf("not a number: %q", raw)}
	}
	if n < 0 {
		return 0, &SchemaError{Field: key, Message: fmt.Sprintf("negative count: %d", n)}
	}
	return n, nil
}

// chaptersComplete reports whether a chapters marker like "12/12" denotes a
// finished work. Open-ended markers ("3/?") are incomplete.
func chaptersComplete(chapters string) bool {
	current, total, ok := strings.Cut(chapters, "/")
	if !ok {
		return false
	}
	return strings.TrimSpace(total) != "?" && strings.TrimSpace(current) == strings.TrimSpace(total)
}

// flattenTags copies a tag list, splitting any entry that still carries
// nested comma-joined groups so the result is a flat list of single tags.
func flattenTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if !strings.Contains(tag, ", ") {
			out = append(out, tag)
			continue
		}
		for _, part := range strings.Split(tag, ", ") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
