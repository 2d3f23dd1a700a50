package playlist

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ford-prefect/gst-sync-server/internal/syncrecord"
)

func TestParseBasic(t *testing.T) {
	input := "file:///a.mp4 10000000000\nfile:///b.mp4 -1\n"
	p, err := Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, p.Tracks, 2)
	require.Equal(t, "file:///a.mp4", p.Tracks[0].URI)
	require.Equal(t, uint64(10_000_000_000), p.Tracks[0].DurationNs)
	require.False(t, p.Tracks[0].Live())
	require.True(t, p.Tracks[1].Live())
}

func TestParseSkipsBlankLinesAndComments(t *testing.T) {
	input := "# comment\n\nfile:///a.mp4 1000\n"
	p, err := Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, p.Tracks, 1)
}

func TestParseMalformedLineErrors(t *testing.T) {
	_, err := Parse(strings.NewReader("not-a-valid-line\n"))
	require.Error(t, err)
}

func TestParseInvalidDurationErrors(t *testing.T) {
	_, err := Parse(strings.NewReader("file:///a.mp4 notanumber\n"))
	require.Error(t, err)
}

func TestWriteRoundTrip(t *testing.T) {
	p := syncrecord.Playlist{
		Tracks: []syncrecord.Track{
			{URI: "file:///a.mp4", DurationNs: 5_000_000_000},
			{URI: "rtsp://cam", DurationNs: syncrecord.DurationUnknown},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, p))

	reparsed, err := Parse(&buf)
	require.NoError(t, err)
	require.Equal(t, p.Tracks, reparsed.Tracks)
}
