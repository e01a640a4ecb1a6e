// Package imagefile normalizes uploaded images before they are pushed to
// the file backend: MIME detection, conversion to the backend's canonical
// format, and pixel measurement.
package imagefile

import (
	"bytes"
	"fmt"
	"image"
	"net/http"
	"path/filepath"
	"strings"

	// Register decoders with the standard image package.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
)

// CanonicalMIME is the format originals are stored in. PNG round-trips the
// cropper without generation loss and keeps alpha.
const CanonicalMIME = "image/png"

// CanonicalExt is the file extension matching CanonicalMIME.
const CanonicalExt = ".png"

// Image is a normalized upload ready for the file backend.
type Image struct {
	Data   []byte
	MIME   string
	Width  int
	Height int
	// Converted is set when the payload was re-encoded to the canonical format.
	Converted bool
	// Unsupported is set when the payload was passed through unconverted
	// because no decoder handles its type.
	Unsupported bool
}

// TypeByName returns the MIME type implied by a filename's extension.
func TypeByName(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".bmp":
		return "image/bmp"
	default:
		return "application/octet-stream"
	}
}

// Sniff detects the MIME type from the payload itself. Used for capture
// uploads, which arrive as a bare bytestream with no filename.
func Sniff(data []byte) string {
	return http.DetectContentType(data)
}

// Normalize converts data to the canonical format when its type calls for
// it (GIF and JPEG are re-encoded, PNG passes through) and measures the
// pixel dimensions. Types with no registered decoder pass through
// unconverted and unmeasured, flagged as unsupported.
func Normalize(data []byte, mimeType string) (*Image, error) {
	switch mimeType {
	case "image/png", "image/jpeg", "image/gif":
	default:
		return &Image{Data: data, MIME: mimeType, Unsupported: true}, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("imagefile: decode %s: %w", mimeType, err)
	}
	bounds := img.Bounds()

	out := &Image{
		Data:   data,
		MIME:   mimeType,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}

	if mimeType != CanonicalMIME {
		buf := new(bytes.Buffer)
		if err := imaging.Encode(buf, img, imaging.PNG); err != nil {
			return nil, fmt.Errorf("imagefile: encode canonical: %w", err)
		}
		out.Data = buf.Bytes()
		out.MIME = CanonicalMIME
		out.Converted = true
	}

	return out, nil
}
