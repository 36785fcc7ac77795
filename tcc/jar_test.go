package tcc

import (
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileJarRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.json")
	u, err := url.Parse(defaultBaseURL + "/portal/")
	require.NoError(t, err)

	jar := NewFileJar(path)
	jar.SetCookies(u, []*http.Cookie{
		{Name: "ASP.NET_SessionId", Value: "abc123", Path: "/"},
		{Name: ".ASPXAUTH_TRUEHOME", Value: "token", Path: "/portal"},
	})

	// a fresh jar reads the same file back
	reloaded := NewFileJar(path)
	cookies := reloaded.Cookies(u)
	require.Len(t, cookies, 2)

	c, ok := reloaded.Cookie(u.Host, "ASP.NET_SessionId")
	require.True(t, ok)
	assert.Equal(t, "abc123", c.Value)

	_, ok = reloaded.Cookie(u.Host, "missing")
	assert.False(t, ok)
}

func TestFileJarReplacesByName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.json")
	u, err := url.Parse(defaultBaseURL + "/portal/")
	require.NoError(t, err)

	jar := NewFileJar(path)
	jar.SetCookies(u, []*http.Cookie{{Name: "session", Value: "old"}})
	jar.SetCookies(u, []*http.Cookie{{Name: "session", Value: "new"}})

	cookies := jar.Cookies(u)
	require.Len(t, cookies, 1)
	assert.Equal(t, "new", cookies[0].Value)
}

func TestFileJarSkipsExpired(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.json")
	u, err := url.Parse(defaultBaseURL + "/portal/")
	require.NoError(t, err)

	jar := NewFileJar(path)
	jar.SetCookies(u, []*http.Cookie{
		{Name: "live", Value: "x"},
		{Name: "gone", Value: "y", Expires: time.Now().Add(-time.Hour)},
	})

	cookies := jar.Cookies(u)
	require.Len(t, cookies, 1)
	assert.Equal(t, "live", cookies[0].Name)
}

func TestFileJarCorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.json")
	require.NoError(t, os.WriteFile(path, []byte("not json at all"), 0600))

	jar := NewFileJar(path)
	u, err := url.Parse(defaultBaseURL + "/portal/")
	require.NoError(t, err)
	assert.Empty(t, jar.Cookies(u))
}
