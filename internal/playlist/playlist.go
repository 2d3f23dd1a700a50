// Package playlist reads and writes the playlist text format: one track
// per line, "URI SPACE DURATION_NS", where a duration of -1 means
// unknown/live.
package playlist

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ford-prefect/gst-sync-server/internal/syncerr"
	"github.com/ford-prefect/gst-sync-server/internal/syncrecord"
)

// Load reads a playlist text file at path into a syncrecord.Playlist
// with CurrentTrack set to 0.
func Load(path string) (syncrecord.Playlist, error) {
	f, err := os.Open(path)
	if err != nil {
		return syncrecord.Playlist{}, syncerr.New(syncerr.Config, err)
	}
	defer f.Close()

	return Parse(f)
}

// Parse reads the playlist format from r.
func Parse(r io.Reader) (syncrecord.Playlist, error) {
	scanner := bufio.NewScanner(r)
	var tracks []syncrecord.Track

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		idx := strings.LastIndex(line, " ")
		if idx < 0 {
			return syncrecord.Playlist{}, syncerr.Newf(syncerr.Decode, "playlist line %d: expected \"URI DURATION_NS\", got %q", lineNo, line)
		}

		uri := line[:idx]
		durStr := strings.TrimSpace(line[idx+1:])

		duration, err := strconv.ParseInt(durStr, 10, 64)
		if err != nil {
			return syncrecord.Playlist{}, syncerr.Newf(syncerr.Decode, "playlist line %d: invalid duration %q: %v", lineNo, durStr, err)
		}

		var durationNs uint64
		if duration < 0 {
			durationNs = syncrecord.DurationUnknown
		} else {
			durationNs = uint64(duration)
		}

		tracks = append(tracks, syncrecord.Track{URI: uri, DurationNs: durationNs})
	}
	if err := scanner.Err(); err != nil {
		return syncrecord.Playlist{}, syncerr.New(syncerr.Decode, err)
	}

	return syncrecord.Playlist{CurrentTrack: 0, Tracks: tracks}, nil
}

// Write serializes p back to the playlist text format.
func Write(w io.Writer, p syncrecord.Playlist) error {
	bw := bufio.NewWriter(w)
	for _, track := range p.Tracks {
		duration := int64(-1)
		if !track.Live() {
			duration = int64(track.DurationNs)
		}
		if _, err := fmt.Fprintf(bw, "%s %d\n", track.URI, duration); err != nil {
			return syncerr.New(syncerr.Transport, err)
		}
	}
	return bw.Flush()
}
