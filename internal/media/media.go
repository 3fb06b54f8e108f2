package media

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/disintegration/imaging"
)

// Downscaler shrinks oversized photos before they are uploaded. Videos and
// formats it cannot re-encode pass through unchanged.
type Downscaler struct {
	MaxDimension int
	JPEGQuality  int
}

// NewDownscaler returns a downscaler; maxDimension <= 0 disables it.
func NewDownscaler(maxDimension int) Downscaler {
	return Downscaler{MaxDimension: maxDimension, JPEGQuality: 85}
}

// Prepare returns the bytes to upload and their content type.
func (d Downscaler) Prepare(data []byte, contentType string) ([]byte, string, error) {
	if d.MaxDimension <= 0 {
		return data, contentType, nil
	}
	var format imaging.Format
	switch strings.ToLower(contentType) {
	case "image/jpeg", "image/jpg":
		format = imaging.JPEG
	case "image/png":
		format = imaging.PNG
	default:
		return data, contentType, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		// Undecodable files are stored as uploaded.
		return data, contentType, nil
	}
	b := img.Bounds()
	if b.Dx() <= d.MaxDimension && b.Dy() <= d.MaxDimension {
		return data, contentType, nil
	}

	resized := imaging.Fit(img, d.MaxDimension, d.MaxDimension, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, format, imaging.JPEGQuality(d.JPEGQuality)); err != nil {
		return nil, "", fmt.Errorf("media: encode: %w", err)
	}
	return buf.Bytes(), contentType, nil
}
