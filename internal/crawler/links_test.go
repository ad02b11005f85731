package crawler

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveLink(t *testing.T) {
	base, err := url.Parse("http://example.com/dir/page.html")
	require.NoError(t, err)

	cases := []struct {
		name string
		href string
		want string
	}{
		{"root relative", "/x", "http://example.com/x"},
		{"scheme relative inherits scheme", "//cdn.example.com/y", "http://cdn.example.com/y"},
		{"document relative", "z.html", "http://example.com/dir/z.html"},
		{"absolute", "https://Example.com/a?b=1#sec", "https://example.com/a?b=1"},
		{"parent directory", "../up.html", "http://example.com/up.html"},
		{"fragment stripped", "/x#part", "http://example.com/x"},
		{"empty path gets root", "http://example.com", "http://example.com/"},
	}
	for _, c := range cases {
		t.Run(c.name, func(tt *testing.T) {
			got, ok := ResolveLink(base, c.href)
			require.True(tt, ok)
			assert.Equal(tt, c.want, got.String())
		})
	}

	for _, href := range []string{"#frag", "", "   ", "mailto:someone@example.com", "javascript:void(0)", "ftp://example.com/f"} {
		_, ok := ResolveLink(base, href)
		assert.False(t, ok, href)
	}
}

func TestHasExcludedExtension(t *testing.T) {
	exts := extensionSet([]string{".PDF", "png", " "})
	assert.Len(t, exts, 2)

	for raw, want := range map[string]bool{
		"http://example.com/doc.pdf":      true,
		"http://example.com/IMG.PNG":      true,
		"http://example.com/page.html":    false,
		"http://example.com/dir/":         false,
		"http://example.com/file.pdf?x=1": true,
	} {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, want, HasExcludedExtension(u, exts), raw)
	}
}

func TestExcludedHosts(t *testing.T) {
	assert.True(t, IsExcludedHost("www.facebook.com"))
	assert.True(t, IsExcludedHost("ads.example.com"))
	assert.False(t, IsExcludedHost("blog.example.com"))
	assert.Equal(t, "example.com", ExtractRootDomain("a.b.example.com"))
	assert.Equal(t, "localhost", ExtractRootDomain("localhost"))
}

func TestHostLimiter(t *testing.T) {
	hl := NewHostLimiter(2)
	assert.True(t, hl.Allow("a.example.com"))
	assert.True(t, hl.Allow("b.example.com"))
	assert.True(t, hl.Allow("a.example.com"))
	assert.False(t, hl.Allow("c.example.com"))
	assert.True(t, hl.Allow("other.org"))
	assert.Equal(t, 2, hl.Count("example.com"))
}
