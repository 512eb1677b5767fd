package mediaproc

import (
	"bytes"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrium/goheif"
	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/greg-randall/memento-mori/common/runctx"
	"github.com/greg-randall/memento-mori/util"
	"github.com/pkg/errors"
)

// ConvertResult reports what Convert actually wrote: the converted file, or
// a verbatim copy of the original when conversion failed or lost.
type ConvertResult struct {
	OutPath   string
	Converted bool
	BytesIn   int64
	BytesOut  int64
}

// Converter turns source images into WebP copies, but only keeps the WebP
// when it is strictly smaller than the original bytes. Images whose longest
// side exceeds MaxDimension are scaled down first; zero keeps every image at
// its original size.
type Converter struct {
	Quality      int
	MaxDimension int
}

// Convert decodes src by content type and encodes it to dst (a .webp
// path). Decode failure or a not-smaller result falls back to copying the
// original bytes to dst's sibling carrying the original extension. Exactly
// one file is written per call, and never partially: encodes go to a
// temporary file that is renamed into place.
func (c *Converter) Convert(rctx runctx.RunContext, src string, dst string) (*ConvertResult, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", src)
	}

	kind, err := DetectKind(src)
	if err != nil {
		kind = KindUnknown
	}

	img, err := decodeStill(data, kind)
	if err != nil {
		rctx.Log.WithField("src", src).Warn("Conversion decode failed, copying original: ", err)
		return c.copyOriginal(src, dst, int64(len(data)))
	}

	img = c.downscale(rctx, src, img)

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return nil, err
	}

	tmp := dst + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return nil, err
	}
	// Clone promotes palette and grayscale inputs to truecolor NRGBA, so
	// PNG transparency survives the lossy encode.
	err = webp.Encode(f, imaging.Clone(img), &webp.Options{Lossless: false, Quality: float32(c.Quality)})
	if err2 := f.Close(); err == nil {
		err = err2
	}
	if err != nil {
		_ = os.Remove(tmp)
		rctx.Log.WithField("src", src).Warn("WebP encode failed, copying original: ", err)
		return c.copyOriginal(src, dst, int64(len(data)))
	}

	converted := util.FileSize(tmp)
	if converted <= 0 || converted >= int64(len(data)) {
		// The destination must never end up larger than the source format.
		_ = os.Remove(tmp)
		rctx.Log.WithField("src", src).Debug("WebP not smaller than original, keeping original bytes")
		return c.copyOriginal(src, dst, int64(len(data)))
	}

	if err = os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return nil, err
	}
	return &ConvertResult{
		OutPath:   dst,
		Converted: true,
		BytesIn:   int64(len(data)),
		BytesOut:  converted,
	}, nil
}

// downscale fits an oversized image inside MaxDimension x MaxDimension,
// keeping the aspect ratio. Images already within bounds are never resized,
// so small sources are never upscaled.
func (c *Converter) downscale(rctx runctx.RunContext, src string, img image.Image) image.Image {
	if c.MaxDimension <= 0 {
		return img
	}
	bounds := img.Bounds()
	if bounds.Dx() <= c.MaxDimension && bounds.Dy() <= c.MaxDimension {
		return img
	}
	resized := imaging.Fit(img, c.MaxDimension, c.MaxDimension, imaging.Lanczos)
	rctx.Log.Debugf("Resized %s from %dx%d to %dx%d", src,
		bounds.Dx(), bounds.Dy(), resized.Bounds().Dx(), resized.Bounds().Dy())
	return resized
}

func (c *Converter) copyOriginal(src string, dst string, size int64) (*ConvertResult, error) {
	fallback := siblingWithExtension(dst, filepath.Ext(src))
	if _, err := util.CopyFile(src, fallback); err != nil {
		return nil, errors.Wrapf(err, "failed to copy %s", src)
	}
	return &ConvertResult{
		OutPath:   fallback,
		Converted: false,
		BytesIn:   size,
		BytesOut:  size,
	}, nil
}

// siblingWithExtension swaps dst's extension for the original's, keeping
// the directory and basename.
func siblingWithExtension(dst string, ext string) string {
	base := strings.TrimSuffix(dst, filepath.Ext(dst))
	return base + strings.ToLower(ext)
}

// decodeStill decodes image bytes according to the detected kind. Unknown
// or ambiguous content goes through a fixed fallback order - JPEG, PNG,
// GIF - and the first decoder that succeeds wins.
func decodeStill(data []byte, kind Kind) (image.Image, error) {
	switch kind {
	case KindJPEG:
		img, err := imaging.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, errors.Wrap(err, "jpeg decode")
		}
		orientation, oerr := getExifOrientation(bytes.NewReader(data))
		if oerr != nil {
			orientation = nil // unreadable exif is not a decode failure
		}
		return applyOrientation(img, orientation), nil
	case KindPNG, KindGIF:
		return imaging.Decode(bytes.NewReader(data))
	case KindWebP:
		return webp.Decode(bytes.NewReader(data))
	case KindHEIC:
		goheif.SafeEncoding = true // use more memory, but prevent crashes
		return goheif.Decode(bytes.NewReader(data))
	case KindVideo:
		return nil, errors.New("not a still image")
	default:
		return decodeFallback(data)
	}
}

func decodeFallback(data []byte) (image.Image, error) {
	if img, err := jpeg.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	if img, err := png.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	if img, err := gif.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	return nil, errors.New("no decoder accepted the content")
}
