package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const workPage = `
<html><body>
<h2 class="title">The Winter Archive</h2>
<h3 class="byline"><a rel="author" href="/users/quill">quill</a>, <a rel="author" href="/users/ink">ink</a></h3>
<div class="summary"><blockquote>
  A story   about
  winter.
</blockquote></div>
<dl class="work meta">
  <dt>Rating:</dt><dd><a class="tag">Teen And Up Audiences</a></dd>
  <dt>Archive Warning:</dt><dd><a class="tag">No Archive Warnings Apply</a></dd>
  <dt>Fandoms:</dt><dd><a class="tag">Northern Tales</a> <a class="tag">Frost Cycle</a></dd>
  <dt>Additional Tags:</dt><dd><a class="tag">Slow Burn</a> <a class="tag">Snow</a> <a class="tag">Slow Burn</a></dd>
  <dt>Language:</dt><dd>  English  </dd>
  <dt>Kofi Link:</dt><dd>https://example.test/kofi</dd>
  <dt>Stats:</dt>
  <dd>
    <dl class="stats">
      <dt>Published:</dt><dd>2023-01-05</dd>
      <dt>Words:</dt><dd>1,000</dd>
      <dt>Chapters:</dt><dd>3/3</dd>
      <dt>Kudos:</dt><dd>42</dd>
    </dl>
  </dd>
</dl>
<form action="/bookmark"><dl>
  <dt>Rating:</dt><dd><a class="tag">Not Rated</a></dd>
</dl></form>
</body></html>`

func TestExtractFullDocument(t *testing.T) {
	t.Parallel()

	meta, err := Extract(workPage)
	require.NoError(t, err)

	require.Equal(t, "The Winter Archive", meta.Title)
	require.Equal(t, []string{"quill", "ink"}, meta.Authors)
	require.Equal(t, "A story about winter.", meta.Summary)

	require.Equal(t, []string{"Teen And Up Audiences"}, meta.TagFields["rating"])
	require.Equal(t, []string{"Northern Tales", "Frost Cycle"}, meta.TagFields["fandom"])
	require.Equal(t, "English", meta.Fields["language"])

	require.Equal(t, "2023-01-05", meta.Fields["published"])
	require.Equal(t, "1,000", meta.Fields["words"])
	require.Equal(t, "3/3", meta.Fields["chapters"])
	require.Equal(t, "42", meta.Fields["kudos"])
}

func TestExtractSkipsFormsAndKeepsTagDuplicates(t *testing.T) {
	t.Parallel()

	meta, err := Extract(workPage)
	require.NoError(t, err)

	// The form's Not Rated entry is UI chrome and must not clobber the real
	// rating.
	require.Equal(t, []string{"Teen And Up Audiences"}, meta.TagFields["rating"])
	// Duplicates are legitimate in the source and survive in document order.
	require.Equal(t, []string{"Slow Burn", "Snow", "Slow Burn"}, meta.TagFields["freeform"])
}

func TestExtractUnknownLabelIsPreservedWithOneWarning(t *testing.T) {
	t.Parallel()

	meta, err := Extract(workPage)
	require.NoError(t, err)

	require.Equal(t, "https://example.test/kofi", meta.Unknown["Kofi Link"])

	count := 0
	for _, w := range meta.Warnings {
		if strings.Contains(w, "Kofi Link") {
			count++
		}
	}
	require.Equal(t, 1, count, "exactly one warning for the unknown label")
}

func TestExtractDanglingLabelWarnsAndDrops(t *testing.T) {
	t.Parallel()

	html := `<html><body><dl>
		<dt>Language:</dt>
		<dt>Fandom:</dt><dd><a class="tag">Northern Tales</a></dd>
	</dl></body></html>`
	meta, err := Extract(html)
	require.NoError(t, err)

	_, hasLanguage := meta.Fields["language"]
	require.False(t, hasLanguage)
	require.Contains(t, meta.Warnings, `label "Language:" has no value`)
	require.Equal(t, []string{"Northern Tales"}, meta.TagFields["fandom"])
}

func TestExtractTrailingLabelWarns(t *testing.T) {
	t.Parallel()

	html := `<html><body><dl>
		<dt>Fandom:</dt><dd><a class="tag">Frost Cycle</a></dd>
		<dt>Language:</dt>
	</dl></body></html>`
	meta, err := Extract(html)
	require.NoError(t, err)
	require.Contains(t, meta.Warnings, `label "Language:" has no value`)
}

func TestExtractRepeatedTagBlockLastWins(t *testing.T) {
	t.Parallel()

	html := `<html><body>
	<dl><dt>Fandom:</dt><dd><a class="tag">One</a> <a class="tag">Two</a></dd></dl>
	<dl><dt>Fandom:</dt><dd><a class="tag">Three</a></dd></dl>
	</body></html>`
	meta, err := Extract(html)
	require.NoError(t, err)

	// The most recent block of a category replaces earlier ones; lengths are
	// never summed across blocks.
	require.Equal(t, []string{"Three"}, meta.TagFields["fandom"])
}

func TestExtractStatsConflictResolution(t *testing.T) {
	t.Parallel()

	html := `<html><body>
	<dl class="stats">
		<dt>Words:</dt><dd>1000</dd>
		<dt>Updated:</dt><dd>2024-06-01</dd>
		<dt>Hits:</dt><dd>900</dd>
	</dl>
	<dl class="stats">
		<dt>Words:</dt><dd>2500</dd>
		<dt>Updated:</dt><dd>2024-02-15</dd>
	</dl>
	</body></html>`
	meta, err := Extract(html)
	require.NoError(t, err)

	// Numeric fields keep the most recently seen value.
	require.Equal(t, "2500", meta.Fields["words"])
	// Date fields keep the more recent date even when a later block carries
	// an older one.
	require.Equal(t, "2024-06-01", meta.Fields["updated"])
	// A field present only in the first block survives.
	require.Equal(t, "900", meta.Fields["hits"])
}

func TestExtractEmptyDocumentFails(t *testing.T) {
	t.Parallel()

	_, err := Extract("")
	require.ErrorIs(t, err, ErrNoBody)

	_, err = Extract("<html><head><title>x</title></head></html>")
	require.ErrorIs(t, err, ErrNoBody)
}

func TestExtractCommaSeparatedFallback(t *testing.T) {
	t.Parallel()

	html := `<html><body><dl>
		<dt>Characters:</dt><dd>Mara Voss, Ilya Voss</dd>
	</dl></body></html>`
	meta, err := Extract(html)
	require.NoError(t, err)
	require.Equal(t, []string{"Mara Voss", "Ilya Voss"}, meta.TagFields["character"])
}

func TestLookupNormalizesLabels(t *testing.T) {
	t.Parallel()

	for _, label := range []string{"Fandom:", " fandoms ", "FANDOM"} {
		spec, ok := Lookup(label)
		require.True(t, ok, "label %q", label)
		require.Equal(t, "fandom", spec.Key)
		require.Equal(t, KindTags, spec.Kind)
	}

	spec, ok := Lookup("Words:")
	require.True(t, ok)
	require.Equal(t, KindNumber, spec.Kind)

	_, ok = Lookup("Beta Reader")
	require.False(t, ok)
}
