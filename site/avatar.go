package site

import (
	"crypto/md5"
	"os"
	"path/filepath"

	"github.com/chai2010/webp"
	"github.com/fogleman/gg"
	"github.com/pkg/errors"
)

const avatarSize = 320
const avatarCells = 5

// GenerateAvatar renders a deterministic identicon for accounts whose
// export carries no profile photo: a 5x5 horizontally mirrored cell pattern
// derived from the username digest, in a color picked from the same digest.
func GenerateAvatar(username string, outPath string) error {
	sum := md5.Sum([]byte(username))

	dc := gg.NewContext(avatarSize, avatarSize)
	dc.SetRGB255(0xf0, 0xf0, 0xf0)
	dc.Clear()

	// Keep the foreground out of the near-white range so the pattern stays
	// visible on the light background.
	r := int(sum[0]) % 200
	g := int(sum[1]) % 200
	b := int(sum[2]) % 200
	dc.SetRGB255(r, g, b)

	cell := float64(avatarSize) / float64(avatarCells+2) // one-cell margin
	for row := 0; row < avatarCells; row++ {
		for col := 0; col <= avatarCells/2; col++ {
			bit := row*(avatarCells/2+1) + col
			if (sum[3+bit/8]>>(uint(bit)%8))&1 == 0 {
				continue
			}
			x := cell * float64(col+1)
			y := cell * float64(row+1)
			dc.DrawRectangle(x, y, cell, cell)
			// Mirror across the vertical axis
			mirror := avatarCells - 1 - col
			if mirror != col {
				dc.DrawRectangle(cell*float64(mirror+1), y, cell, cell)
			}
		}
	}
	dc.Fill()

	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return err
	}
	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer f.Close()
	if err = webp.Encode(f, dc.Image(), &webp.Options{Lossless: true}); err != nil {
		return errors.Wrap(err, "failed to encode avatar")
	}
	return nil
}
