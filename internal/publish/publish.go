// Package publish delivers demodulated video frames and candidate
// snapshots to external collaborators: an MQTT broker (fire-and-forget,
// the way mqtt_publisher.go's MQTTPublisher never blocks its publish path
// on broker acks) and a websocket hub of subscribers (the broadcast-loop
// shape of user_spectrum_websocket.go's per-client writer goroutines).
package publish

import (
	"encoding/json"
	"time"

	"github.com/cwsl/vtxcore/internal/candidate"
	"github.com/cwsl/vtxcore/internal/raster"
)

// FrameMeta is the wire metadata for one published video frame (spec §6,
// §4.8): pixel bytes travel as a separate raw-bytes part, never embedded
// here. Ts is float seconds, not an RFC-3339 timestamp, matching the
// frame-2/frame-3 pub/sub contract.
type FrameMeta struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Format string  `json:"format"` // "gray8" or "bgr24"
	Ts     float64 `json:"ts"`
	FreqHz uint64  `json:"freq_hz"`
}

// NewFrameMeta builds the metadata half of a frame publication from a
// locked frequency and assembled raster.Frame. raster only ever produces
// grayscale rasters, so Format is always "gray8" (bpp=1).
func NewFrameMeta(freqHz uint64, f raster.Frame) FrameMeta {
	return FrameMeta{
		Width:  f.Width,
		Height: f.Height,
		Format: "gray8",
		Ts:     float64(time.Now().UnixNano()) / 1e9,
		FreqHz: freqHz,
	}
}

// SnapshotPayload is the wire representation of one scanner top-K
// snapshot push.
type SnapshotPayload struct {
	Timestamp  time.Time              `json:"timestamp"`
	Candidates []candidate.Candidate `json:"candidates"`
}

// FramePublisher delivers a frame's metadata and raw pixel bytes to an
// external transport as two distinct parts (spec §6, §4.8). pixels must
// be exactly meta.Width*meta.Height*bpp bytes.
type FramePublisher interface {
	PublishFrame(meta FrameMeta, pixels []byte) error
}

// SnapshotPublisher delivers candidate snapshots to an external transport,
// satisfying scanner.EventPublisher.
type SnapshotPublisher interface {
	PublishSnapshot(snapshot []candidate.Candidate)
}

// marshalSnapshot is shared by every SnapshotPublisher implementation in
// this package so the wire format stays consistent across transports.
func marshalSnapshot(snapshot []candidate.Candidate) ([]byte, error) {
	return json.Marshal(SnapshotPayload{Timestamp: time.Now(), Candidates: snapshot})
}
