package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestURLScheme(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "http"},
		{"upper case https", "HTTPS://Example.com/path", "https"},
		{"no scheme", "example.com/path", "other"},
		{"ftp", "ftp://example.com", "other"},
		{"invalid url", "http://%", "other"},
		{"empty string", "", "other"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, URLScheme(tc.input))
		})
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	first := commandsTotal
	Init()
	require.Same(t, first, commandsTotal)
}

func TestObserveHelpers(t *testing.T) {
	ObserveCommand("a", OutcomeDenied)
	ObserveCommand("a", OutcomeDenied)
	require.Equal(t, 2.0, testutil.ToFloat64(commandsTotal.WithLabelValues("a", OutcomeDenied)))

	httpsBefore := testutil.ToFloat64(archiveRequestsTotal.WithLabelValues("https"))
	ObserveArchiveRequest("https://one.example.org/page")
	ObserveArchiveRequest("https://two.example.org/page")
	require.Equal(t, httpsBefore+2, testutil.ToFloat64(archiveRequestsTotal.WithLabelValues("https")))
	require.LessOrEqual(t, testutil.CollectAndCount(archiveRequestsTotal), 3, "one series per scheme bucket")

	SetConnected(true)
	require.Equal(t, 1.0, testutil.ToFloat64(ircConnected))
	SetConnected(false)
	require.Equal(t, 0.0, testutil.ToFloat64(ircConnected))

	before := testutil.ToFloat64(ircReconnectsTotal)
	ObserveReconnect()
	require.Equal(t, before+1, testutil.ToFloat64(ircReconnectsTotal))
}

// Fuzz test for URLScheme.
func FuzzURLScheme(f *testing.F) {
	for _, tc := range []string{"http://example.com", "https://google.com", "ftp://example.com"} {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		switch got := URLScheme(orig); got {
		case "http", "https", "other":
		default:
			t.Errorf("URLScheme(%q) = %q, want a fixed bucket", orig, got)
		}
	})
}
