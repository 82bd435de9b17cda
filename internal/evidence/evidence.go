package evidence

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/image/draw"

	"github.com/securepatrol-id/securepatrol-backend/pkg/config"
	pkgerrors "github.com/securepatrol-id/securepatrol-backend/pkg/errors"
)

// allowedMimeTypes is the capture allow-list. Detection runs on the bytes
// themselves, so a mislabeled upload cannot smuggle another format through.
var allowedMimeTypes = map[string]struct{}{
	"image/jpeg": {},
	"image/png":  {},
}

// Image is a staged piece of patrol evidence: the processed JPEG bytes plus
// the dimensions after downscaling.
type Image struct {
	Data   []byte
	MIME   string
	Width  int
	Height int
}

// DataURL renders the processed image as a base64 data URL, the reference
// format embedded into patrol log records.
func (i Image) DataURL() string {
	return fmt.Sprintf("data:%s;base64,%s", i.MIME, base64.StdEncoding.EncodeToString(i.Data))
}

// Processor validates and normalizes captured evidence before it enters the
// submission workflow.
type Processor struct {
	maxWidth int
	quality  int
}

// NewProcessor builds a processor from the media configuration.
func NewProcessor(cfg config.MediaConfig) *Processor {
	maxWidth := cfg.ImageMaxWidth
	if maxWidth <= 0 {
		maxWidth = 1024
	}
	quality := cfg.ImageQuality
	if quality <= 0 || quality > 100 {
		quality = 70
	}
	return &Processor{maxWidth: maxWidth, quality: quality}
}

// Process sniffs the payload's real format, rejects anything outside the
// allow-list, downscales frames wider than the configured ceiling and
// re-encodes the result as JPEG to keep partition payloads small.
func (p *Processor) Process(data []byte) (Image, error) {
	if len(data) == 0 {
		return Image{}, pkgerrors.New(pkgerrors.CodeUnsupportedFormat, "evidence payload is empty")
	}

	detected := mimetype.Detect(data)
	if _, ok := allowedMimeTypes[detected.String()]; !ok {
		return Image{}, pkgerrors.New(
			pkgerrors.CodeUnsupportedFormat,
			fmt.Sprintf("unsupported evidence format %s, expected JPEG or PNG", detected.String()),
		)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Image{}, pkgerrors.Wrap(pkgerrors.CodeUnsupportedFormat, err, "decode evidence image")
	}

	frame := downscale(src, p.maxWidth)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: p.quality}); err != nil {
		return Image{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode evidence image")
	}

	bounds := frame.Bounds()
	return Image{
		Data:   buf.Bytes(),
		MIME:   "image/jpeg",
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}

// downscale shrinks images wider than maxWidth, preserving aspect ratio.
// Narrower frames pass through untouched.
func downscale(src image.Image, maxWidth int) image.Image {
	bounds := src.Bounds()
	width := bounds.Dx()
	if width <= maxWidth {
		return src
	}

	height := bounds.Dy() * maxWidth / width
	if height < 1 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	return dst
}
