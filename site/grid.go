package site

import (
	"path/filepath"

	"github.com/greg-randall/memento-mori/archive"
	"github.com/greg-randall/memento-mori/common/runctx"
	"github.com/greg-randall/memento-mori/util"
)

// GridItem is the presentation metadata for one post tile. Building it
// never mutates the underlying record.
type GridItem struct {
	Index      int
	Display    string
	Blurhash   string
	IsVideo    bool
	MediaCount int
	Likes      *int
	Lazy       bool
}

// BuildGrid computes tile metadata for the sorted post sequence. Tiles past
// the lazy-load threshold are marked for deferred loading; the rule is
// purely positional over the current order.
func BuildGrid(rctx runctx.RunContext, posts []*archive.PostRecord, outDir string) []GridItem {
	lazyAfter := rctx.Config.Grid.LazyLoadAfter
	items := make([]GridItem, 0, len(posts))
	for i, post := range posts {
		display, isVideo := coverFor(post, outDir)
		items = append(items, GridItem{
			Index:      post.Index,
			Display:    display,
			Blurhash:   post.Blurhash,
			IsVideo:    isVideo,
			MediaCount: len(post.Media),
			Likes:      post.Likes,
			Lazy:       i >= lazyAfter,
		})
	}
	return items
}

// coverFor picks the tile image for a post. The first media item is the
// representative one; when it is a video the rest of the media list is
// scanned in order for a still image to stand in. Preference order at each
// step: generated thumbnail, then converted copy, then the raw file. A post
// whose media is all video with no thumbnail falls back to the play-glyph
// placeholder.
func coverFor(post *archive.PostRecord, outDir string) (string, bool) {
	if len(post.Media) == 0 {
		return "", false
	}

	first := post.Media[0]
	isVideo := util.IsVideoPath(first)

	if thumb := thumbnailPathFor(first); util.FileExists(filepath.Join(outDir, thumb)) {
		return thumb, isVideo
	}

	if !isVideo {
		if webpCopy := webpSibling(first); util.FileExists(filepath.Join(outDir, webpCopy)) {
			return webpCopy, false
		}
		return first, false
	}

	for _, m := range post.Media[1:] {
		if !util.IsStillImagePath(m) {
			continue
		}
		if thumb := thumbnailPathFor(m); util.FileExists(filepath.Join(outDir, thumb)) {
			return thumb, true
		}
		if webpCopy := webpSibling(m); util.FileExists(filepath.Join(outDir, webpCopy)) {
			return webpCopy, true
		}
		return m, true
	}

	return VideoPlaceholderDataURI(), true
}

func thumbnailPathFor(media string) string {
	return "thumbnails/" + util.HashPath(media) + ".webp"
}

func webpSibling(media string) string {
	ext := filepath.Ext(media)
	if ext == "" {
		return media + ".webp"
	}
	return media[:len(media)-len(ext)] + ".webp"
}
