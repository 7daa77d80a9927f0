package helpers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalURL(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "defaults https and cleans path",
			in:   "Example.com/news/../tech/latest",
			want: "https://example.com/tech/latest",
		},
		{
			name: "removes default port and tracking params",
			in:   "http://news.example.com:80/article?id=123&utm_source=rss#section",
			want: "http://news.example.com/article?id=123",
		},
		{
			name: "sorts query parameters and drops trailing slash",
			in:   "https://example.com/path/?b=2&a=1&fbclid=xyz",
			want: "https://example.com/path?a=1&b=2",
		},
		{
			name: "handles schemeless url with double slash",
			in:   "//blog.example.com/post/42?utm_medium=email",
			want: "https://blog.example.com/post/42",
		},
		{
			name: "normalises repeated slashes",
			in:   "https://example.com//a//b///c",
			want: "https://example.com/a/b/c",
		},
		{
			name: "root path collapses",
			in:   "https://Example.com/",
			want: "https://example.com",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := CanonicalURL(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCanonicalURLErrors(t *testing.T) {
	t.Parallel()
	_, err := CanonicalURL("")
	assert.Error(t, err)
	_, err = CanonicalURL(":///invalid")
	assert.Error(t, err)
}

func TestStripTracking(t *testing.T) {
	t.Parallel()
	got, err := StripTracking("https://www.headspace.org.au/young-people/?utm_source=x&page=2#top")
	require.NoError(t, err)
	assert.Equal(t, "https://www.headspace.org.au/young-people/?page=2", got)

	got, err = StripTracking("https://example.com/a?gclid=1")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a", got)
}

func TestOrigin(t *testing.T) {
	t.Parallel()
	got, err := Origin("https://Example.com:8443/deep/path?q=1")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com:8443/", got)
}

func TestNormalizedDomain(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "beyondblue.org.au", NormalizedDomain("https://www.BeyondBlue.org.au/get-support"))
	assert.Equal(t, "beyondblue.org.au", NormalizedDomain("beyondblue.org.au"))
	assert.Equal(t, "example.com", NormalizedDomain("http://example.com:8080/x"))
	assert.Equal(t, "", NormalizedDomain(""))
}
