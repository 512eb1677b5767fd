package site

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/greg-randall/memento-mori/archive"
	"github.com/greg-randall/memento-mori/common/config"
	"github.com/greg-randall/memento-mori/common/runctx"
	"github.com/greg-randall/memento-mori/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCtx() runctx.RunContext {
	return runctx.Initial(config.NewDefaultConfig())
}

func touch(t *testing.T, base string, rel string) {
	t.Helper()
	p := filepath.Join(base, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte("x"), 0644))
}

func post(index int, media ...string) *archive.PostRecord {
	return &archive.PostRecord{Index: index, Media: media}
}

func TestBuildGrid_CoverSelection(t *testing.T) {
	out := t.TempDir()

	// Post 0: still with a generated thumbnail
	touch(t, out, "thumbnails/"+util.HashPath("media/posts/a.jpg")+".webp")
	// Post 1: still with only a converted copy
	touch(t, out, "media/posts/b.webp")
	// Post 2: still with nothing derived
	// Post 3: video with a thumbnail
	touch(t, out, "thumbnails/"+util.HashPath("media/posts/d.mp4")+".webp")
	// Post 4: video without a thumbnail, but a still sibling that has one
	touch(t, out, "thumbnails/"+util.HashPath("media/posts/e2.jpg")+".webp")
	// Post 5: video with nothing at all

	posts := []*archive.PostRecord{
		post(0, "media/posts/a.jpg"),
		post(1, "media/posts/b.jpg"),
		post(2, "media/posts/c.jpg"),
		post(3, "media/posts/d.mp4"),
		post(4, "media/posts/e.mp4", "media/posts/e2.jpg"),
		post(5, "media/posts/f.mp4"),
	}

	items := BuildGrid(testCtx(), posts, out)
	require.Len(t, items, 6)

	assert.Equal(t, "thumbnails/"+util.HashPath("media/posts/a.jpg")+".webp", items[0].Display)
	assert.False(t, items[0].IsVideo)

	assert.Equal(t, "media/posts/b.webp", items[1].Display)
	assert.Equal(t, "media/posts/c.jpg", items[2].Display)

	assert.Equal(t, "thumbnails/"+util.HashPath("media/posts/d.mp4")+".webp", items[3].Display)
	assert.True(t, items[3].IsVideo)

	assert.Equal(t, "thumbnails/"+util.HashPath("media/posts/e2.jpg")+".webp", items[4].Display)
	assert.True(t, items[4].IsVideo)
	assert.Equal(t, 2, items[4].MediaCount)

	assert.True(t, strings.HasPrefix(items[5].Display, "data:image/svg+xml;base64,"))
	assert.True(t, items[5].IsVideo)
}

func TestBuildGrid_LazyThreshold(t *testing.T) {
	out := t.TempDir()
	rctx := testCtx()
	rctx.Config.Grid.LazyLoadAfter = 2

	posts := []*archive.PostRecord{
		post(0, "a.jpg"), post(1, "b.jpg"), post(2, "c.jpg"), post(3, "d.jpg"),
	}
	items := BuildGrid(rctx, posts, out)

	assert.False(t, items[0].Lazy)
	assert.False(t, items[1].Lazy)
	assert.True(t, items[2].Lazy)
	assert.True(t, items[3].Lazy)
}

func TestBuildGrid_CarriesRecordMetadata(t *testing.T) {
	out := t.TempDir()
	likes := 42
	p := post(7, "a.jpg")
	p.Likes = &likes
	p.Blurhash = "LEHV6nWB2yk8pyo0adR*.7kCMdnj"

	items := BuildGrid(testCtx(), []*archive.PostRecord{p}, out)
	require.Len(t, items, 1)
	assert.Equal(t, 7, items[0].Index)
	assert.Equal(t, &likes, items[0].Likes)
	assert.Equal(t, "LEHV6nWB2yk8pyo0adR*.7kCMdnj", items[0].Blurhash)
}

func TestVideoPlaceholderDataURI(t *testing.T) {
	uri := VideoPlaceholderDataURI()
	assert.True(t, strings.HasPrefix(uri, "data:image/svg+xml;base64,"))
	// Stable: the grid and the verifier both rely on it being inline-only
	assert.Equal(t, uri, VideoPlaceholderDataURI())
}

func TestWebpSibling(t *testing.T) {
	assert.Equal(t, "media/a.webp", webpSibling("media/a.jpg"))
	assert.Equal(t, "media/a.webp", webpSibling("media/a.webp"))
	assert.Equal(t, "noext.webp", webpSibling("noext"))
}
