package media

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encoded(t *testing.T, w, h int, format imaging.Format) []byte {
	t.Helper()
	img := imaging.New(w, h, color.NRGBA{R: 200, G: 30, B: 30, A: 255})
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, format))
	return buf.Bytes()
}

func TestPrepareDownscalesLargeJPEG(t *testing.T) {
	d := NewDownscaler(100)
	out, ct, err := d.Prepare(encoded(t, 400, 200, imaging.JPEG), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", ct)

	img, err := imaging.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, image.Pt(100, 50), img.Bounds().Size())
}

func TestPreparePassThrough(t *testing.T) {
	small := encoded(t, 50, 50, imaging.PNG)
	tests := []struct {
		name string
		d    Downscaler
		data []byte
		ct   string
	}{
		{"disabled", NewDownscaler(0), encoded(t, 400, 400, imaging.PNG), "image/png"},
		{"small", NewDownscaler(100), small, "image/png"},
		{"video", NewDownscaler(100), []byte("mp4"), "video/mp4"},
		{"undecodable", NewDownscaler(100), []byte("not a png"), "image/png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, ct, err := tt.d.Prepare(tt.data, tt.ct)
			require.NoError(t, err)
			assert.Equal(t, tt.ct, ct)
			assert.Equal(t, tt.data, out)
		})
	}
}
