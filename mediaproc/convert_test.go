package mediaproc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/chai2010/webp"
	"github.com/greg-randall/memento-mori/common/config"
	"github.com/greg-randall/memento-mori/common/runctx"
	"github.com/greg-randall/memento-mori/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCtx() runctx.RunContext {
	return runctx.Initial(config.NewDefaultConfig())
}

func TestConvert_ProducesSmallerWebp(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.png")
	dst := filepath.Join(dir, "out", "src.webp")
	writePng(t, src, 256, 256)

	c := &Converter{Quality: 70}
	result, err := c.Convert(testCtx(), src, dst)
	require.NoError(t, err)

	assert.True(t, result.Converted)
	assert.Equal(t, dst, result.OutPath)
	assert.True(t, util.FileExists(dst))
	assert.Less(t, result.BytesOut, result.BytesIn)

	f, err := os.Open(dst)
	require.NoError(t, err)
	defer f.Close()
	img, err := webp.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 256, img.Bounds().Dx())
	assert.Equal(t, 256, img.Bounds().Dy())
}

func TestConvert_DownscalesOversizedImages(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "wide.png")
	dst := filepath.Join(dir, "out", "wide.webp")
	writePng(t, src, 2000, 100)

	c := &Converter{Quality: 70, MaxDimension: 1200}
	result, err := c.Convert(testCtx(), src, dst)
	require.NoError(t, err)
	require.True(t, result.Converted)

	f, err := os.Open(dst)
	require.NoError(t, err)
	defer f.Close()
	img, err := webp.Decode(f)
	require.NoError(t, err)

	// Longest side capped, aspect ratio kept
	assert.Equal(t, 1200, img.Bounds().Dx())
	assert.Equal(t, 60, img.Bounds().Dy())
}

func TestConvert_NeverUpscalesSmallImages(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "small.png")
	dst := filepath.Join(dir, "out", "small.webp")
	writePng(t, src, 64, 64)

	c := &Converter{Quality: 70, MaxDimension: 1200}
	result, err := c.Convert(testCtx(), src, dst)
	require.NoError(t, err)
	require.True(t, result.Converted)

	f, err := os.Open(dst)
	require.NoError(t, err)
	defer f.Close()
	img, err := webp.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())
	assert.Equal(t, 64, img.Bounds().Dy())
}

func TestConvert_KeepsOriginalWhenWebpNotSmaller(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "tiny.gif")
	dst := filepath.Join(dir, "out", "tiny.webp")

	// A minimal 1x1 GIF. Any WebP encode of it carries more container
	// overhead than these 35 bytes, so the size check must reject it.
	tinyGif := []byte{
		0x47, 0x49, 0x46, 0x38, 0x39, 0x61, // GIF89a
		0x01, 0x00, 0x01, 0x00, 0x80, 0x00, 0x00, // 1x1, 2-color palette
		0x00, 0x00, 0x00, 0xff, 0xff, 0xff, // black, white
		0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, // image descriptor
		0x02, 0x02, 0x44, 0x01, 0x00, // one pixel of LZW data
		0x3b, // trailer
	}
	require.NoError(t, os.WriteFile(src, tinyGif, 0644))

	c := &Converter{Quality: 70}
	result, err := c.Convert(testCtx(), src, dst)
	require.NoError(t, err)

	assert.False(t, result.Converted)
	assert.Equal(t, filepath.Join(dir, "out", "tiny.gif"), result.OutPath)
	assert.Equal(t, result.BytesIn, result.BytesOut)
	assert.False(t, util.FileExists(dst))

	copied, err := os.ReadFile(result.OutPath)
	require.NoError(t, err)
	assert.Equal(t, tinyGif, copied)

	entries, err := os.ReadDir(filepath.Join(dir, "out"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "tiny.gif", entries[0].Name())
}

func TestConvert_UndecodableCopiesOriginal(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "broken.jpg")
	dst := filepath.Join(dir, "out", "broken.webp")
	content := []byte("this is not an image at all")
	require.NoError(t, os.WriteFile(src, content, 0644))

	c := &Converter{Quality: 70}
	result, err := c.Convert(testCtx(), src, dst)
	require.NoError(t, err)

	assert.False(t, result.Converted)
	// Fallback keeps the original extension next to the intended dst
	assert.Equal(t, filepath.Join(dir, "out", "broken.jpg"), result.OutPath)
	assert.True(t, util.FileExists(result.OutPath))
	assert.False(t, util.FileExists(dst))

	copied, err := os.ReadFile(result.OutPath)
	require.NoError(t, err)
	assert.Equal(t, content, copied)
}

func TestConvert_NoTempFilesLeftBehind(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.png")
	outDir := filepath.Join(dir, "out")
	writePng(t, src, 64, 64)

	c := &Converter{Quality: 70}
	_, err := c.Convert(testCtx(), src, filepath.Join(outDir, "src.webp"))
	require.NoError(t, err)

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}
}

func TestSiblingWithExtension(t *testing.T) {
	assert.Equal(t, "/out/a.jpg", siblingWithExtension("/out/a.webp", ".jpg"))
	assert.Equal(t, "/out/a.jpg", siblingWithExtension("/out/a.webp", ".JPG"))
	assert.Equal(t, "out/b.png", siblingWithExtension("out/b.webp", ".png"))
}

func TestDecodeFallback(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "img.png")
	writePng(t, p, 8, 8)
	data, err := os.ReadFile(p)
	require.NoError(t, err)

	img, err := decodeFallback(data)
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())

	_, err = decodeFallback([]byte("garbage"))
	assert.Error(t, err)
}
