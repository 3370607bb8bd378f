// Package exif extracts EXIF tags from image bytes as a JSON summary.
package exif

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	goexif "github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
)

// Summary decodes the EXIF block in r and returns a JSON object mapping
// tag names to their trimmed string values.
func Summary(r io.Reader) (string, error) {
	x, err := goexif.Decode(r)
	if err != nil && (x == nil || goexif.IsCriticalError(err)) {
		return "", fmt.Errorf("exif: decode: %w", err)
	}

	c := collector{}
	if err := x.Walk(c); err != nil {
		return "", fmt.Errorf("exif: walk: %w", err)
	}

	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("exif: encode: %w", err)
	}
	return string(data), nil
}

type collector map[string]string

func (c collector) Walk(name goexif.FieldName, tag *tiff.Tag) error {
	if tag == nil {
		return nil
	}
	c[string(name)] = tagString(tag)
	return nil
}

func tagString(tag *tiff.Tag) string {
	if tag.Format() == tiff.StringVal {
		if s, err := tag.StringVal(); err == nil {
			return strings.TrimSpace(strings.TrimRight(s, "\x00"))
		}
	}
	return strings.TrimSpace(tag.String())
}
