package media

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"strings"

	// Registered decoders for uploaded pictures.
	_ "image/gif"
	_ "image/png"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Kind is the coarse media family of a payload.
type Kind string

const (
	KindImage   Kind = "image"
	KindVideo   Kind = "video"
	KindUnknown Kind = ""
)

var (
	ErrInvalidDataURL = errors.New("invalid data url")
	ErrUnsupported    = errors.New("unsupported media type")
)

// Sniff detects the MIME type from content and classifies it.
func Sniff(data []byte) (string, Kind) {
	mtype := mimetype.Detect(data)
	for m := mtype; m != nil; m = m.Parent() {
		switch {
		case strings.HasPrefix(m.String(), "image/"):
			return mtype.String(), KindImage
		case strings.HasPrefix(m.String(), "video/"):
			return mtype.String(), KindVideo
		}
	}
	return mtype.String(), KindUnknown
}

// Extension returns the canonical file extension for a MIME type, including the dot.
func Extension(mime string) string {
	if m := mimetype.Lookup(mime); m != nil {
		return m.Extension()
	}
	return ""
}

// ParseDataURL decodes a base64 data URL such as data:image/png;base64,AAAA.
func ParseDataURL(raw string) (declaredMime string, data []byte, err error) {
	if !strings.HasPrefix(raw, "data:") {
		return "", nil, ErrInvalidDataURL
	}
	meta, payload, ok := strings.Cut(raw[len("data:"):], ",")
	if !ok {
		return "", nil, ErrInvalidDataURL
	}
	declaredMime, params, _ := strings.Cut(meta, ";")
	if !strings.Contains(params, "base64") {
		return "", nil, ErrInvalidDataURL
	}
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		if data, err = base64.RawStdEncoding.DecodeString(payload); err != nil {
			return "", nil, fmt.Errorf("%w: %v", ErrInvalidDataURL, err)
		}
	}
	return declaredMime, data, nil
}

// ImageProcessor shrinks oversized pictures before they are stored.
type ImageProcessor struct {
	maxDim  int
	quality int
}

// NewImageProcessor builds a processor. maxDim bounds the longest side in pixels.
func NewImageProcessor(maxDim, quality int) *ImageProcessor {
	if maxDim <= 0 {
		maxDim = 1280
	}
	if quality <= 0 || quality > 100 {
		quality = 80
	}
	return &ImageProcessor{maxDim: maxDim, quality: quality}
}

// Result is a normalized image payload.
type Result struct {
	Data     []byte
	MimeType string
	Width    int
	Height   int
	Resized  bool
}

// Normalize decodes an image and, when its longest side exceeds the limit, resizes
// it proportionally and re-encodes it as JPEG. Smaller images are returned untouched.
func (p *ImageProcessor) Normalize(data []byte) (*Result, error) {
	mime, kind := Sniff(data)
	if kind != KindImage {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, mime)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	if cfg.Width <= p.maxDim && cfg.Height <= p.maxDim {
		return &Result{Data: data, MimeType: mime, Width: cfg.Width, Height: cfg.Height}, nil
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	width, height := fit(cfg.Width, cfg.Height, p.maxDim)
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: p.quality}); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return &Result{Data: buf.Bytes(), MimeType: "image/jpeg", Width: width, Height: height, Resized: true}, nil
}

func fit(width, height, maxDim int) (int, int) {
	if width >= height {
		h := height * maxDim / width
		if h < 1 {
			h = 1
		}
		return maxDim, h
	}
	w := width * maxDim / height
	if w < 1 {
		w = 1
	}
	return w, maxDim
}
