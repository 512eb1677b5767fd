package mediaproc

import (
	"bytes"
	"io"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Kind is the closed set of content types the pipeline handles. Detection
// happens exactly once per file; downstream stages switch on the Kind
// instead of re-sniffing.
type Kind int

const (
	KindUnknown Kind = iota
	KindJPEG
	KindPNG
	KindGIF
	KindWebP
	KindHEIC
	KindVideo
)

func (k Kind) String() string {
	switch k {
	case KindJPEG:
		return "jpeg"
	case KindPNG:
		return "png"
	case KindGIF:
		return "gif"
	case KindWebP:
		return "webp"
	case KindHEIC:
		return "heic"
	case KindVideo:
		return "video"
	default:
		return "unknown"
	}
}

func (k Kind) IsStillImage() bool {
	switch k {
	case KindJPEG, KindPNG, KindGIF, KindWebP:
		return true
	default:
		return false
	}
}

// ftyp brands that identify HEIC/HEIF containers. Exports routinely ship
// these with a .jpg extension and generic sniffers report them as plain
// octet streams.
var heicBrands = []string{"heic", "heix", "heim", "heis", "hevc", "hevm", "hevs", "mif1", "msf1"}

// DetectKind classifies a file by content, never by extension. The export
// is known to mislabel extensions.
func DetectKind(path string) (Kind, error) {
	mime, err := mimetype.DetectFile(path)
	if err != nil {
		return KindUnknown, err
	}

	switch {
	case mime.Is("image/jpeg"):
		return KindJPEG, nil
	case mime.Is("image/png") || mime.Is("image/apng"):
		return KindPNG, nil
	case mime.Is("image/gif"):
		return KindGIF, nil
	case mime.Is("image/webp"):
		return KindWebP, nil
	case mime.Is("image/heic") || mime.Is("image/heif") ||
		mime.Is("image/heic-sequence") || mime.Is("image/heif-sequence"):
		return KindHEIC, nil
	case strings.HasPrefix(mime.String(), "video/"):
		return KindVideo, nil
	}

	// Disguised container check: some HEIC files come back as a generic
	// binary stream, but the ftyp box in the first 12 bytes gives them away.
	header := make([]byte, 12)
	f, err := os.Open(path)
	if err != nil {
		return KindUnknown, err
	}
	defer f.Close()
	if _, err := io.ReadFull(f, header); err == nil && SniffHeicHeader(header) {
		return KindHEIC, nil
	}

	return KindUnknown, nil
}

// SniffHeicHeader reports whether the first 12 bytes of a file look like an
// ISO-BMFF container carrying a HEIC brand.
func SniffHeicHeader(header []byte) bool {
	if len(header) < 12 {
		return false
	}
	if !bytes.Equal(header[4:8], []byte("ftyp")) {
		return false
	}
	brand := string(header[8:12])
	for _, b := range heicBrands {
		if brand == b {
			return true
		}
	}
	return false
}
