// Package syncrecord defines the wire data model published from the sync
// server to every connected client: the playlist, the per-client video
// transform description, and the SyncRecord that ties them together with
// the shared reference-time anchors.
package syncrecord

import "math"

// DurationUnknown marks a track whose duration cannot be determined ahead
// of time (e.g. a live stream). It disables speculative advance on both
// the server and the client.
const DurationUnknown = math.MaxUint64

// NoCurrentTrack marks a playlist that has been played past its last
// entry; no track is current and clients should hold their pipelines
// quiescent.
const NoCurrentTrack = math.MaxUint64

// Track is a single playlist entry.
type Track struct {
	URI        string `json:"uri"`
	DurationNs uint64 `json:"duration"`
}

// Live reports whether the track's duration is unknown, i.e. it must never
// be seeked.
func (t Track) Live() bool {
	return t.DurationNs == DurationUnknown
}

// Playlist is an ordered sequence of tracks plus the index of the track
// currently playing. Mutating an entry that is not the current track does
// not disturb ongoing playback; changing CurrentTrack is what triggers a
// retune.
type Playlist struct {
	CurrentTrack uint64  `json:"current-track"`
	Tracks       []Track `json:"tracks"`
}

// Current returns the currently playing track and true, or the zero Track
// and false if the playlist has been played past the end or is empty.
func (p Playlist) Current() (Track, bool) {
	if p.CurrentTrack == NoCurrentTrack || int(p.CurrentTrack) >= len(p.Tracks) {
		return Track{}, false
	}
	return p.Tracks[p.CurrentTrack], true
}

// AtEnd reports whether the current-track index refers to the last track
// in the playlist (there is no next track to advance into).
func (p Playlist) AtEnd() bool {
	return p.CurrentTrack == NoCurrentTrack || int(p.CurrentTrack)+1 >= len(p.Tracks)
}

// Clone returns a deep copy, so callers can hand out snapshots without the
// receiver retaining a reference into caller-owned slices.
func (p Playlist) Clone() Playlist {
	tracks := make([]Track, len(p.Tracks))
	copy(tracks, p.Tracks)
	return Playlist{CurrentTrack: p.CurrentTrack, Tracks: tracks}
}
