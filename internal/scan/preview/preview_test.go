package preview

import (
	"bytes"
	"image"
	"image/jpeg"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/footscan/internal/scan/geometry"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func TestIntervalFor(t *testing.T) {
	tests := []struct {
		fps  float64
		want time.Duration
	}{
		{15, MinInterval},
		{5, 100 * time.Millisecond},
		{0, MinInterval},
		{-1, MinInterval},
		{60, MinInterval},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IntervalFor(tt.fps), "fps %v", tt.fps)
	}
}

func TestThrottle_Spacing(t *testing.T) {
	th := NewThrottle()
	require.True(t, th.Allow(epoch, 5), "first frame is admitted")
	assert.False(t, th.Allow(epoch.Add(50*time.Millisecond), 5))
	assert.True(t, th.Allow(epoch.Add(110*time.Millisecond), 5))
	assert.False(t, th.Allow(epoch.Add(160*time.Millisecond), 5))

	allowed, denied := th.Stats()
	assert.Equal(t, uint64(2), allowed)
	assert.Equal(t, uint64(2), denied)
}

func TestThrottle_FollowsTargetRate(t *testing.T) {
	th := NewThrottle()
	require.True(t, th.Allow(epoch, 1)) // 500ms interval
	assert.False(t, th.Allow(epoch.Add(100*time.Millisecond), 1))
	// A faster target takes effect from the call that changes it; at the
	// old 500ms interval 250ms would still be too early.
	th.Allow(epoch.Add(200*time.Millisecond), 10)
	assert.True(t, th.Allow(epoch.Add(250*time.Millisecond), 10))
}

func TestDepthImage_Shading(t *testing.T) {
	d := &geometry.DepthImage{Width: 3, Height: 1, Meters: []float32{0.1, 0.5, 2.0}}
	g := DepthImage(d, 0.1, 0.5)
	assert.Equal(t, uint8(255), g.GrayAt(0, 0).Y, "nearest is brightest")
	assert.Equal(t, uint8(0), g.GrayAt(1, 0).Y, "farthest in range is dark")
	assert.Equal(t, uint8(0), g.GrayAt(2, 0).Y, "out of range is black")
}

func TestEncodeJPEG_Downsizes(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 640, 480))
	buf, err := EncodeJPEG(img, 320)
	require.NoError(t, err)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(buf))
	require.NoError(t, err)
	assert.Equal(t, 320, cfg.Width)
	assert.Equal(t, 240, cfg.Height)

	_, err = EncodeJPEG(nil, 0)
	assert.Error(t, err)
}
