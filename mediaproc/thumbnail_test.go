package mediaproc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/chai2010/webp"
	"github.com/greg-randall/memento-mori/util"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testThumbnailer(outDir string) *Thumbnailer {
	return &Thumbnailer{
		OutDir:      outDir,
		Width:       64,
		Height:      64,
		StoryWidth:  36,
		StoryHeight: 64,
		Quality:     70,
	}
}

func decodeWebpFile(t *testing.T, path string) (int, int) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := webp.Decode(f)
	require.NoError(t, err)
	return img.Bounds().Dx(), img.Bounds().Dy()
}

func TestGenerate_CropsToExactSize(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "wide.png")
	writePng(t, src, 400, 100) // very wide: crop, don't squash

	th := testThumbnailer(filepath.Join(dir, "out"))
	thumb, err := th.Generate(testCtx(), src, "media/posts/wide.png")
	require.NoError(t, err)

	assert.Equal(t, "thumbnails/"+util.HashPath("media/posts/wide.png")+".webp", thumb.Path)
	full := filepath.Join(dir, "out", filepath.FromSlash(thumb.Path))
	w, h := decodeWebpFile(t, full)
	assert.Equal(t, 64, w)
	assert.Equal(t, 64, h)
	assert.NotEmpty(t, thumb.Blurhash)
}

func TestGenerate_CacheHit(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "img.png")
	writePng(t, src, 100, 100)

	th := testThumbnailer(filepath.Join(dir, "out"))
	first, err := th.Generate(testCtx(), src, "media/posts/img.png")
	require.NoError(t, err)

	full := filepath.Join(dir, "out", filepath.FromSlash(first.Path))
	info1, err := os.Stat(full)
	require.NoError(t, err)

	second, err := th.Generate(testCtx(), src, "media/posts/img.png")
	require.NoError(t, err)
	assert.Equal(t, first.Path, second.Path)
	assert.NotEmpty(t, second.Blurhash)

	// The existing artifact was reused, not rewritten
	info2, err := os.Stat(full)
	require.NoError(t, err)
	assert.Equal(t, info1.ModTime(), info2.ModTime())
}

func TestGenerate_VideoWithoutExtractor(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "clip.mp4")
	header := append([]byte{0x00, 0x00, 0x00, 0x18}, []byte("ftypisom")...)
	header = append(header, []byte("\x00\x00\x02\x00isomiso2avc1mp41")...)
	require.NoError(t, os.WriteFile(src, header, 0644))

	th := testThumbnailer(filepath.Join(dir, "out"))
	th.Frames = nil

	_, err := th.Generate(testCtx(), src, "media/posts/clip.mp4")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoThumbnail))
}

func TestGenerate_UndecodableSource(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "junk.jpg")
	require.NoError(t, os.WriteFile(src, []byte("not an image"), 0644))

	th := testThumbnailer(filepath.Join(dir, "out"))
	_, err := th.Generate(testCtx(), src, "media/posts/junk.jpg")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoThumbnail))
}

func TestGenerateStory_UsesStoryDimensions(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "story.png")
	writePng(t, src, 100, 100)

	th := testThumbnailer(filepath.Join(dir, "out"))
	thumb, err := th.GenerateStory(testCtx(), src, "media/stories/story.png")
	require.NoError(t, err)

	assert.Equal(t, "thumbnails/stories/"+util.HashPath("media/stories/story.png")+".webp", thumb.Path)
	w, h := decodeWebpFile(t, filepath.Join(dir, "out", filepath.FromSlash(thumb.Path)))
	assert.Equal(t, 36, w)
	assert.Equal(t, 64, h)
}

func TestGenerate_DistinctSourcesDistinctNames(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "img.png")
	writePng(t, src, 50, 50)

	th := testThumbnailer(filepath.Join(dir, "out"))
	a, err := th.Generate(testCtx(), src, "media/posts/a.png")
	require.NoError(t, err)
	b, err := th.Generate(testCtx(), src, "media/posts/b.png")
	require.NoError(t, err)
	assert.NotEqual(t, a.Path, b.Path)
}
