package session

import (
	"context"
	"errors"
	"image"

	"github.com/banshee-data/footscan/internal/scan/geometry"
	"github.com/banshee-data/footscan/internal/scan/ground"
)

// ErrSourceClosed is returned by Source.Next once the source will produce
// no more captures.
var ErrSourceClosed = errors.New("source closed")

// Source is a depth acquisition device. Implementations wrap a platform
// AR/depth session; Synthetic provides one for tests and demos.
type Source interface {
	// Platform names the device platform, e.g. "ios", "android", "synthetic".
	Platform() string
	// Configure attempts a trial configuration of the depth subsystem
	// without starting it.
	Configure(ctx context.Context) error
	// Start begins acquisition.
	Start(ctx context.Context) error
	// Next blocks until the next capture is available. Errors other than
	// ErrSourceClosed and context errors are per-frame acquisition failures.
	Next(ctx context.Context) (*Capture, error)
	// Stop ends acquisition and releases device resources.
	Stop() error
}

// Capture is one unit of acquisition output. Exactly one of Frame and
// RawCloud is normally set.
type Capture struct {
	Frame *geometry.Frame
	// RawCloud is an already-unprojected device cloud, used by platforms
	// without a dense depth map.
	RawCloud []geometry.WorldPoint
	// Planes are plane detections that arrived with this capture.
	Planes []ground.Observation
	// Preview is an optional camera image for the live preview.
	Preview image.Image
	// Release returns the depth buffer to the device. It is called exactly
	// once per capture.
	Release func()
}

func (c *Capture) release() {
	if c != nil && c.Release != nil {
		c.Release()
		c.Release = nil
	}
}

// Capability is the result of a capability probe.
type Capability struct {
	Platform       string `json:"platform"`
	DepthSupported bool   `json:"depthSupported"`
}

// Probe reports whether src can run a depth session by attempting a trial
// configuration. It holds no state.
func Probe(ctx context.Context, src Source) Capability {
	err := src.Configure(ctx)
	if err != nil {
		diagf("probe %s: depth unsupported: %v", src.Platform(), err)
	}
	return Capability{Platform: src.Platform(), DepthSupported: err == nil}
}
