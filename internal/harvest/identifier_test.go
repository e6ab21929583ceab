package harvest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIdentifierParserExtract(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		url     string
		want    string
		wantErr bool
	}{
		{name: "standard", url: postingURL("182345"), want: "182345"},
		{name: "extra params", url: "https://x/details.cfm?JobCode=A-9&Title=Dean&Type=FT", want: "A-9"},
		{name: "missing start", url: "https://x/details.cfm?Code=1&Title=Dean", wantErr: true},
		{name: "missing end", url: "https://x/details.cfm?JobCode=1", wantErr: true},
		{name: "empty", url: "https://x/details.cfm?JobCode=&Title=Dean", wantErr: true},
		{name: "blank", url: "https://x/details.cfm?JobCode=  &Title=Dean", wantErr: true},
		{name: "padded", url: "https://x/details.cfm?JobCode= 77 &Title=Dean", want: "77"},
		{name: "end before start", url: "https://x/?&Title=Dean&JobCode=5", wantErr: true},
	}
	parser := IdentifierParser{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := parser.Extract(tt.url)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrMalformedIdentifier)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)

			again, err := parser.Extract(tt.url)
			require.NoError(t, err)
			require.Equal(t, got, again)
		})
	}
}

func TestIdentifierParserCustomMarkers(t *testing.T) {
	t.Parallel()

	parser := IdentifierParser{Start: "/jobs/", End: "/apply"}
	got, err := parser.Extract("https://careers.example.com/jobs/R-77/apply")
	require.NoError(t, err)
	require.Equal(t, "R-77", got)
}

func TestFilterPostingLinks(t *testing.T) {
	t.Parallel()

	links := []string{
		"https://x/faculty/details.cfm?JobCode=2&Title=B",
		"",
		"https://x/about",
		"https://x/faculty/details.cfm?JobCode=1&Title=A",
		"https://x/faculty/details.cfm?JobCode=2&Title=B",
	}
	got := FilterPostingLinks(links, "")
	require.Equal(t, []string{links[0], links[3], links[4]}, got)
}
