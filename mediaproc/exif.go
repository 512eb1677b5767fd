package mediaproc

import (
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
	exif "github.com/dsoprea/go-exif/v3"
)

type exifOrientation struct {
	RotateDegrees  int // should be 0, 90, 180, or 270
	FlipVertical   bool
	FlipHorizontal bool
}

func getExifOrientation(img io.Reader) (*exifOrientation, error) {
	rawExif, err := exif.SearchAndExtractExifWithReader(img)
	if err != nil {
		if errors.Is(err, exif.ErrNoExif) {
			return nil, nil
		}
		return nil, errors.New("exif: error reading possible exif data: " + err.Error())
	}

	tags, _, err := exif.GetFlatExifData(rawExif, nil)
	if err != nil {
		return nil, errors.New("exif: error parsing exif data: " + err.Error())
	}

	var tag exif.ExifTag
	for _, t := range tags {
		if t.TagName == "Orientation" {
			tag = t
			break
		}
	}
	if tag.TagName != "Orientation" {
		return nil, nil // not found
	}

	var orientation uint16 = 0
	vals, ok := tag.Value.([]uint16)
	if !ok || len(vals) <= 0 {
		orientation, ok = tag.Value.(uint16)
		if !ok {
			return nil, errors.New("exif: error parsing orientation: parse error (not an int)")
		}
	} else {
		orientation = vals[0]
	}

	// Some devices produce invalid exif data when they intend to mean "no orientation"
	if orientation == 0 {
		return nil, nil
	}

	if orientation < 1 || orientation > 8 {
		return nil, fmt.Errorf("orientation out of range: %d", orientation)
	}

	flipHorizontal := orientation < 5 && (orientation%2) == 0
	flipVertical := orientation > 4 && (orientation%2) != 0
	degrees := 0
	if orientation == 3 || orientation == 4 {
		degrees = 180
	} else if orientation == 5 || orientation == 6 {
		degrees = 270
	} else if orientation == 7 || orientation == 8 {
		degrees = 90
	}

	return &exifOrientation{degrees, flipVertical, flipHorizontal}, nil
}

func applyOrientation(src image.Image, orientation *exifOrientation) image.Image {
	if orientation == nil {
		return src
	}

	result := src
	// Rotate first
	if orientation.RotateDegrees == 90 {
		result = imaging.Rotate90(result)
	} else if orientation.RotateDegrees == 180 {
		result = imaging.Rotate180(result)
	} else if orientation.RotateDegrees == 270 {
		result = imaging.Rotate270(result)
	}

	// Flip second
	if orientation.FlipHorizontal {
		result = imaging.FlipH(result)
	}
	if orientation.FlipVertical {
		result = imaging.FlipV(result)
	}

	return result
}
