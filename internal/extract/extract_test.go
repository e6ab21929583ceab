package extract

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractPrefersPostingContainer(t *testing.T) {
	t.Parallel()

	markup := `<html><head><style>.x{}</style></head><body>
<nav>Home | Jobs</nav>
<div class="job-description">
  <h1>Assistant   Professor</h1>
  <p>Teach <b>statistics</b>.</p>
  <script>track()</script>
  <ul><li>PhD required</li><li>Start: Fall</li></ul>
</div>
<footer>Copyright</footer>
</body></html>`

	got, err := New().Extract(markup)
	require.NoError(t, err)
	require.Equal(t, "Assistant Professor\nTeach statistics.\nPhD required\nStart: Fall", got)
}

func TestExtractFallsBackToBody(t *testing.T) {
	t.Parallel()

	got, err := (&Extractor{}).Extract(`<html><body><p>one</p><p>two</p><noscript>enable js</noscript></body></html>`)
	require.NoError(t, err)
	require.Equal(t, "one\ntwo", got)
}

func TestExtractMarkupWithoutText(t *testing.T) {
	t.Parallel()

	got, err := New().Extract(`<html><body><script>x()</script></body></html>`)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestCleanLines(t *testing.T) {
	t.Parallel()

	require.Equal(t, "a b\nc", cleanLines("  a \t b \n\n   \n c  "))
	require.Empty(t, cleanLines(" \n "))
}
