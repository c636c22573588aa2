package media

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

var contentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
}

// Optimize decodes an image, flattens any transparency onto white, shrinks it
// to fit MaxWidth x MaxHeight and re-encodes it. WebP input is written as JPEG,
// so the returned extension may differ from ext.
func Optimize(r io.Reader, ext string) ([]byte, string, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	img = flatten(img)
	img = imaging.Fit(img, MaxWidth, MaxHeight, imaging.Lanczos)

	outExt := ext
	if ext == ".webp" {
		outExt = ".jpg"
	}
	format, err := imaging.FormatFromExtension(outExt)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidExtension, err)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return nil, "", fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), outExt, nil
}

func flatten(img image.Image) image.Image {
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}
