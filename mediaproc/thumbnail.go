package mediaproc

import (
	"image"
	"image/color"
	"os"
	"path/filepath"

	"github.com/buckket/go-blurhash"
	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/greg-randall/memento-mori/common/runctx"
	"github.com/greg-randall/memento-mori/util"
	"github.com/pkg/errors"
)

// ErrNoThumbnail means no preview could be produced for a reason the run
// should tolerate: no frame extractor, an undecodable file, a timed-out
// subprocess. Callers fall back to a placeholder graphic.
var ErrNoThumbnail = errors.New("no thumbnail available")

// Thumb describes one generated preview.
type Thumb struct {
	// Path is relative to the output root, e.g. "thumbnails/<hash>.webp".
	Path     string
	Blurhash string
}

// Thumbnailer writes fixed-size previews under <OutDir>/thumbnails. Naming
// is content-addressed on the logical source path, which makes generation
// idempotent: an existing file at the target path is a cache hit.
type Thumbnailer struct {
	OutDir      string
	Width       int
	Height      int
	StoryWidth  int
	StoryHeight int
	Quality     int
	Frames      FrameExtractor
}

// Generate produces the square grid preview for any image or video.
func (t *Thumbnailer) Generate(rctx runctx.RunContext, src string, logicalID string) (*Thumb, error) {
	relPath := filepath.Join("thumbnails", util.HashPath(logicalID)+".webp")
	return t.generateAt(rctx, src, relPath, t.Width, t.Height)
}

// GenerateStory produces the taller 9:16 preview used by the stories page.
func (t *Thumbnailer) GenerateStory(rctx runctx.RunContext, src string, logicalID string) (*Thumb, error) {
	relPath := filepath.Join("thumbnails", "stories", util.HashPath(logicalID)+".webp")
	return t.generateAt(rctx, src, relPath, t.StoryWidth, t.StoryHeight)
}

func (t *Thumbnailer) generateAt(rctx runctx.RunContext, src string, relPath string, width int, height int) (*Thumb, error) {
	fullPath := filepath.Join(t.OutDir, relPath)

	// Cache hit: the artifact is already at its deterministic path. Exports
	// are immutable once extracted, so there is no invalidation to do.
	if util.FileExists(fullPath) {
		return &Thumb{Path: filepath.ToSlash(relPath), Blurhash: t.blurhashOf(fullPath)}, nil
	}

	kind, err := DetectKind(src)
	if err != nil {
		return nil, errors.Wrapf(ErrNoThumbnail, "cannot sniff %s: %v", src, err)
	}

	var framed image.Image
	switch {
	case kind == KindVideo:
		framed, err = t.videoFrame(rctx, src, width, height)
	case kind == KindHEIC || kind.IsStillImage() || kind == KindUnknown:
		framed, err = t.stillFrame(src, kind, width, height)
	default:
		err = errors.Wrapf(ErrNoThumbnail, "unsupported content in %s", src)
	}
	if err != nil {
		return nil, err
	}

	if err = t.writeWebp(framed, fullPath); err != nil {
		return nil, err
	}

	bh, err := blurhash.Encode(4, 3, framed)
	if err != nil {
		bh = "" // decorative only
	}
	return &Thumb{Path: filepath.ToSlash(relPath), Blurhash: bh}, nil
}

// stillFrame center-crops to the target aspect using the shorter dimension
// and resamples to the exact target size. Cropping discards edge content on
// purpose: grid tiles fill their frame.
func (t *Thumbnailer) stillFrame(src string, kind Kind, width int, height int) (image.Image, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return nil, errors.Wrapf(ErrNoThumbnail, "cannot read %s: %v", src, err)
	}
	img, err := decodeStill(data, kind)
	if err != nil {
		return nil, errors.Wrapf(ErrNoThumbnail, "cannot decode %s: %v", src, err)
	}
	return imaging.Fill(img, width, height, imaging.Center, imaging.Lanczos), nil
}

// videoFrame extracts a frame and letterboxes it onto a black square,
// keeping the video's aspect ratio intact.
func (t *Thumbnailer) videoFrame(rctx runctx.RunContext, src string, width int, height int) (image.Image, error) {
	if t.Frames == nil || !t.Frames.Available() {
		return nil, errors.Wrap(ErrNoThumbnail, "no frame extractor available")
	}
	frame, err := t.Frames.ExtractFrame(rctx.Context, src)
	if err != nil {
		rctx.Log.WithField("src", src).Debug("Frame extraction failed: ", err)
		return nil, errors.Wrapf(ErrNoThumbnail, "frame extraction failed for %s", src)
	}

	fitted := imaging.Fit(frame, width, height, imaging.Lanczos)
	canvas := imaging.New(width, height, color.NRGBA{A: 255})
	return imaging.PasteCenter(canvas, fitted), nil
}

// writeWebp encodes to a temporary sibling and renames into place; a
// concurrent writer racing on the same deterministic path produces the same
// bytes, so last-write-wins is harmless.
func (t *Thumbnailer) writeWebp(img image.Image, fullPath string) error {
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return err
	}
	tmp := fullPath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	err = webp.Encode(f, imaging.Clone(img), &webp.Options{Lossless: false, Quality: float32(t.Quality)})
	if err2 := f.Close(); err == nil {
		err = err2
	}
	if err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, "thumbnail encode failed")
	}
	return os.Rename(tmp, fullPath)
}

func (t *Thumbnailer) blurhashOf(fullPath string) string {
	f, err := os.Open(fullPath)
	if err != nil {
		return ""
	}
	defer f.Close()
	img, err := webp.Decode(f)
	if err != nil {
		return ""
	}
	bh, err := blurhash.Encode(4, 3, img)
	if err != nil {
		return ""
	}
	return bh
}
