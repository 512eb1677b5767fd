package mediaproc

import (
	"context"
	"image"
	"os"
	"os/exec"
	"path"
	"time"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// FrameExtractor is the capability boundary around whatever external tool
// can pull a still frame out of a video. Callers probe Available before
// asking for work so a missing tool degrades to "no thumbnail" instead of
// surfacing as an unexpected error class.
type FrameExtractor interface {
	Available() bool
	ExtractFrame(ctx context.Context, src string) (image.Image, error)
}

type ffmpegExtractor struct {
	timeout time.Duration
}

func NewFfmpegExtractor(timeout time.Duration) FrameExtractor {
	return &ffmpegExtractor{timeout: timeout}
}

func (f *ffmpegExtractor) Available() bool {
	_, err := exec.LookPath("ffmpeg")
	return err == nil
}

// ExtractFrame grabs a frame near the 1-second mark. The subprocess runs
// under a deadline so one stuck file cannot hang the worker pool.
func (f *ffmpegExtractor) ExtractFrame(ctx context.Context, src string) (image.Image, error) {
	dir, err := os.MkdirTemp(os.TempDir(), "mm-frame")
	if err != nil {
		return nil, errors.Wrap(err, "ffmpeg: error creating temporary directory")
	}
	defer os.RemoveAll(dir)

	outFile := path.Join(dir, "frame.png")

	timeout := f.timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, "ffmpeg",
		"-ss", "00:00:01",
		"-i", src,
		"-frames:v", "1",
		"-y", outFile)
	if err = cmd.Run(); err != nil {
		if cctx.Err() != nil {
			return nil, errors.Wrap(cctx.Err(), "ffmpeg: frame extraction timed out")
		}
		return nil, errors.Wrap(err, "ffmpeg: error extracting frame")
	}

	img, err := imaging.Open(outFile)
	if err != nil {
		return nil, errors.Wrap(err, "ffmpeg: error reading extracted frame")
	}
	return img, nil
}
