// Package resize decodes, crops, resizes and re-encodes downloaded images.
package resize

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif" // register decoder
	"image/jpeg"
	"image/png"
	"io"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register decoder
)

// Resize modes.
const (
	ModeNo         = "no"
	ModeKeepRatio  = "keep_ratio"
	ModeCenterCrop = "center_crop"
	ModeBorder     = "border"
)

// Encode formats.
const (
	FormatJPEG = "jpg"
	FormatPNG  = "png"
)

// Common errors.
var (
	ErrImageTooSmall = errors.New("image too small")
	ErrAspectRatio   = errors.New("image aspect ratio too large")
	ErrInvalidBBox   = errors.New("invalid bounding box")
)

// Options configures a Resizer.
type Options struct {
	// ImageSize is the target size in pixels.
	// Default: 256
	ImageSize int

	// Mode is one of no, keep_ratio, center_crop or border.
	// Default: border
	Mode string

	// OnlyIfBigger skips upscaling images smaller than ImageSize.
	OnlyIfBigger bool

	// EncodeFormat is jpg or png.
	// Default: jpg
	EncodeFormat string

	// EncodeQuality is the JPEG quality.
	// Default: 95
	EncodeQuality int

	// MinImageSize rejects images whose smaller side is below it.
	MinImageSize int

	// MaxAspectRatio rejects images whose long/short side ratio exceeds
	// it. Zero disables the check.
	MaxAspectRatio float64
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		ImageSize:     256,
		Mode:          ModeBorder,
		EncodeFormat:  FormatJPEG,
		EncodeQuality: 95,
	}
}

// Result is a processed image.
type Result struct {
	Data           []byte
	Width          int
	Height         int
	OriginalWidth  int
	OriginalHeight int
}

// Resizer transforms images according to its options.
// It holds no mutable state and is safe for concurrent use.
type Resizer struct {
	opts Options
}

// New validates opts and returns a Resizer.
func New(opts Options) (*Resizer, error) {
	if opts.ImageSize <= 0 {
		opts.ImageSize = 256
	}
	if opts.Mode == "" {
		opts.Mode = ModeBorder
	}
	if opts.EncodeQuality <= 0 {
		opts.EncodeQuality = 95
	}
	opts.EncodeFormat = strings.ToLower(opts.EncodeFormat)
	switch opts.EncodeFormat {
	case "", "jpeg", FormatJPEG:
		opts.EncodeFormat = FormatJPEG
	case FormatPNG:
	default:
		return nil, fmt.Errorf("resize: unsupported encode format %q", opts.EncodeFormat)
	}
	switch opts.Mode {
	case ModeNo, ModeKeepRatio, ModeCenterCrop, ModeBorder:
	default:
		return nil, fmt.Errorf("resize: unsupported mode %q", opts.Mode)
	}
	return &Resizer{opts: opts}, nil
}

// Extension returns the file extension of encoded images.
func (r *Resizer) Extension() string {
	return r.opts.EncodeFormat
}

// Resize decodes the image in rs, crops it to the normalized bounding box
// [x0, y0, x1, y1] when bbox is non-nil, resizes it and encodes the
// result. Original dimensions are those of the decoded image before
// cropping.
func (r *Resizer) Resize(rs io.ReadSeeker, bbox []float64) (Result, error) {
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return Result{}, fmt.Errorf("seek: %w", err)
	}

	src, _, err := image.Decode(rs)
	if err != nil {
		return Result{}, fmt.Errorf("decode: %w", err)
	}

	b := src.Bounds()
	res := Result{OriginalWidth: b.Dx(), OriginalHeight: b.Dy()}

	if bbox != nil {
		src, err = crop(src, bbox)
		if err != nil {
			return res, err
		}
		b = src.Bounds()
	}

	w, h := b.Dx(), b.Dy()
	short, long := min(w, h), max(w, h)
	if short == 0 || short < r.opts.MinImageSize {
		return res, ErrImageTooSmall
	}
	if r.opts.MaxAspectRatio > 0 && float64(long)/float64(short) > r.opts.MaxAspectRatio {
		return res, ErrAspectRatio
	}

	dst := r.transform(src)

	var buf bytes.Buffer
	switch r.opts.EncodeFormat {
	case FormatPNG:
		err = png.Encode(&buf, dst)
	default:
		err = jpeg.Encode(&buf, dst, &jpeg.Options{Quality: r.opts.EncodeQuality})
	}
	if err != nil {
		return res, fmt.Errorf("encode: %w", err)
	}

	db := dst.Bounds()
	res.Data = buf.Bytes()
	res.Width = db.Dx()
	res.Height = db.Dy()
	return res, nil
}

func (r *Resizer) transform(src image.Image) image.Image {
	size := r.opts.ImageSize
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	switch r.opts.Mode {
	case ModeKeepRatio:
		if r.opts.OnlyIfBigger && min(w, h) <= size {
			return src
		}
		nw, nh := fitShort(w, h, size)
		return scale(src, nw, nh)

	case ModeCenterCrop:
		if !(r.opts.OnlyIfBigger && min(w, h) <= size) {
			nw, nh := fitShort(w, h, size)
			src = scale(src, nw, nh)
			b = src.Bounds()
			w, h = b.Dx(), b.Dy()
		}
		cw, ch := min(w, size), min(h, size)
		x0 := b.Min.X + (w-cw)/2
		y0 := b.Min.Y + (h-ch)/2
		return subImage(src, image.Rect(x0, y0, x0+cw, y0+ch))

	case ModeBorder:
		nw, nh := w, h
		if !(r.opts.OnlyIfBigger && max(w, h) <= size) {
			nw, nh = fitLong(w, h, size)
		}
		canvas := image.NewRGBA(image.Rect(0, 0, size, size))
		draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
		x0 := (size - nw) / 2
		y0 := (size - nh) / 2
		draw.CatmullRom.Scale(canvas, image.Rect(x0, y0, x0+nw, y0+nh), src, b, draw.Src, nil)
		return canvas
	}

	return src
}

// fitShort scales (w, h) so the shorter side equals size.
func fitShort(w, h, size int) (int, int) {
	if w < h {
		return size, max(1, h*size/w)
	}
	return max(1, w*size/h), size
}

// fitLong scales (w, h) so the longer side equals size.
func fitLong(w, h, size int) (int, int) {
	if w > h {
		return size, max(1, h*size/w)
	}
	return max(1, w*size/h), size
}

func scale(src image.Image, w, h int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

func crop(src image.Image, bbox []float64) (image.Image, error) {
	if len(bbox) != 4 {
		return nil, fmt.Errorf("%w: expected 4 values, got %d", ErrInvalidBBox, len(bbox))
	}
	x0, y0, x1, y1 := bbox[0], bbox[1], bbox[2], bbox[3]
	for _, v := range bbox {
		if v < 0 || v > 1 {
			return nil, fmt.Errorf("%w: %v not normalized", ErrInvalidBBox, bbox)
		}
	}
	if x0 >= x1 || y0 >= y1 {
		return nil, fmt.Errorf("%w: %v is empty", ErrInvalidBBox, bbox)
	}

	b := src.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	rect := image.Rect(
		b.Min.X+int(x0*w), b.Min.Y+int(y0*h),
		b.Min.X+int(x1*w), b.Min.Y+int(y1*h),
	)
	if rect.Empty() {
		return nil, fmt.Errorf("%w: %v is empty", ErrInvalidBBox, bbox)
	}
	return subImage(src, rect), nil
}

func subImage(src image.Image, rect image.Rectangle) image.Image {
	if s, ok := src.(interface {
		SubImage(image.Rectangle) image.Image
	}); ok {
		return s.SubImage(rect)
	}
	dst := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(dst, dst.Bounds(), src, rect.Min, draw.Src)
	return dst
}
