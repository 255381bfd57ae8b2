package pwa

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseManifest(t *testing.T) {
	t.Parallel()

	m, err := ParseManifest([]byte(`{
		"name": "Demo",
		"short_name": "D",
		"display": "standalone",
		"icons": [{"src": "/a.png", "sizes": "192x192"}, {"src": 5}],
		"theme_color": 12
	}`))
	require.NoError(t, err)
	require.Equal(t, "Demo", m.DisplayName())
	require.Equal(t, "standalone", m.Display)
	require.Len(t, m.Icons, 2)
	require.Equal(t, "/a.png", m.Icons[0].Src)
	require.Empty(t, m.Icons[1].Src)
	require.Empty(t, m.ThemeColor)
}

func TestParseManifestRejectsNonObjects(t *testing.T) {
	t.Parallel()

	for _, body := range []string{"", "null", "[1,2]", "<html>", `{"name":`} {
		_, err := ParseManifest([]byte(body))
		require.Error(t, err, body)
	}
}

func TestDisplayNameFallsBackToShortName(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Short", (&Manifest{ShortName: "Short"}).DisplayName())
	require.Empty(t, (*Manifest)(nil).DisplayName())
}

func TestManifestMarshalKeepsRawDocument(t *testing.T) {
	t.Parallel()

	m, err := ParseManifest([]byte(`{"name":"Demo","lang":"en"}`))
	require.NoError(t, err)
	out, err := json.Marshal(CheckResult{Pass: true, Data: m})
	require.NoError(t, err)
	require.JSONEq(t, `{"pass":true,"detail":"","data":{"name":"Demo","lang":"en"}}`, string(out))
}
