package site

import "encoding/base64"

// videoPlaceholderSVG is the play-glyph tile shown for a video post when no
// frame could be extracted and the post carries no still image at all.
const videoPlaceholderSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="400" height="400" viewBox="0 0 400 400">` +
	`<rect width="400" height="400" fill="#333333"/>` +
	`<circle cx="200" cy="200" r="60" fill="#ffffff" fill-opacity="0.8"/>` +
	`<polygon points="180,160 180,240 240,200" fill="#333333"/>` +
	`</svg>`

// VideoPlaceholderDataURI returns the placeholder as a data URI usable
// directly in an img src attribute; no file needs to exist on disk for it.
func VideoPlaceholderDataURI() string {
	return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(videoPlaceholderSVG))
}
