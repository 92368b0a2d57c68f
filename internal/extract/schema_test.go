package extract

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mferrill/workherald/internal/workmeta"
)

func baseRecord() *workmeta.ExtractedMetadata {
	return &workmeta.ExtractedMetadata{
		Title:   "The Winter Archive",
		Authors: []string{"quill"},
		Fields: map[string]string{
			"language": "English",
			"words":    "12,345",
			"kudos":    "42",
			"chapters": "3/3",
		},
		TagFields: map[string][]string{
			"rating": {"Teen And Up Audiences"},
			"fandom": {"Northern Tales"},
		},
		Unknown:  map[string]string{"Kofi Link": "https://example.test/kofi"},
		Warnings: []string{`unknown label "Kofi Link"`},
	}
}

func TestNormalizeCoercesCounts(t *testing.T) {
	t.Parallel()

	work, err := Normalize(baseRecord())
	require.NoError(t, err)

	require.Equal(t, 12345, work.Words)
	require.Equal(t, 42, work.Kudos)
	require.Equal(t, 0, work.Hits, "absent count defaults to zero")
	require.True(t, work.Complete, "3/3 chapters means complete")
}

func TestNormalizeMissingTitleFails(t *testing.T) {
	t.Parallel()

	rec := baseRecord()
	rec.Title = "   "
	_, err := Normalize(rec)

	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	require.Equal(t, "title", schemaErr.Field)
}

func TestNormalizeEmptyAuthorsDefaultsToAnonymous(t *testing.T) {
	t.Parallel()

	rec := baseRecord()
	rec.Authors = nil
	work, err := Normalize(rec)
	require.NoError(t, err)
	require.Equal(t, []string{"Anonymous"}, work.Authors)
}

func TestNormalizeBadCountFails(t *testing.T) {
	t.Parallel()

	rec := baseRecord()
	rec.Fields["words"] = "many"
	_, err := Normalize(rec)

	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	require.Equal(t, "words", schemaErr.Field)
}

func TestNormalizePassesDiagnosticsThrough(t *testing.T) {
	t.Parallel()

	work, err := Normalize(baseRecord())
	require.NoError(t, err)

	require.Equal(t, "https://example.test/kofi", work.Unknown["Kofi Link"])
	require.Equal(t, []string{`unknown label "Kofi Link"`}, work.ParseWarnings)
}

func TestNormalizeCompletionSignals(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		chapters  string
		completed string
		want      bool
	}{
		{"equal chapters", "5/5", "", true},
		{"open ended", "3/?", "", false},
		{"partial", "3/10", "", false},
		{"single chapter field", "7", "", false},
		{"completed date wins", "3/?", "2024-01-01", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := baseRecord()
			rec.Fields["chapters"] = tc.chapters
			if tc.completed != "" {
				rec.Fields["completed"] = tc.completed
			}
			work, err := Normalize(rec)
			require.NoError(t, err)
			require.Equal(t, tc.want, work.Complete)
		})
	}
}

func TestNormalizeUpdatedFallsBackToCompleted(t *testing.T) {
	t.Parallel()

	rec := baseRecord()
	rec.Fields["completed"] = "2024-03-03"
	work, err := Normalize(rec)
	require.NoError(t, err)
	require.Equal(t, "2024-03-03", work.Updated)
}

func TestFlattenTagsSplitsNestedGroups(t *testing.T) {
	t.Parallel()

	rec := baseRecord()
	rec.TagFields["character"] = []string{"Mara Voss, Ilya Voss", "Captain Rook"}
	work, err := Normalize(rec)
	require.NoError(t, err)
	require.Equal(t, []string{"Mara Voss", "Ilya Voss", "Captain Rook"}, work.Characters)
}
