package site

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/greg-randall/memento-mori/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePage(t *testing.T, out string, name string, body string) string {
	t.Helper()
	p := filepath.Join(out, name)
	require.NoError(t, os.WriteFile(p, []byte("<html><body>"+body+"</body></html>"), 0644))
	return p
}

func TestVerify_AllPresent(t *testing.T) {
	out := t.TempDir()
	touch(t, out, "media/a.webp")
	page := writePage(t, out, "index.html", `<img src="media/a.webp">`)

	report, err := Verify(testCtx(), out, []string{page}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Checked)
	assert.Equal(t, 0, report.Missing)
	assert.Empty(t, report.Unresolved)
}

func TestVerify_SkipsExternalAndInlineRefs(t *testing.T) {
	out := t.TempDir()
	page := writePage(t, out, "index.html",
		`<img src="data:image/svg+xml;base64,xyz">`+
			`<img src="https://example.com/pic.jpg">`+
			`<img src="#anchor">`)

	report, err := Verify(testCtx(), out, []string{page}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Checked)
}

func TestVerify_RepairsFromAlternateExtension(t *testing.T) {
	out := t.TempDir()
	// Page references the webp, but only the jpg copy made it to disk
	touch(t, out, "media/b.jpg")
	page := writePage(t, out, "index.html", `<img src="media/b.webp">`)

	report, err := Verify(testCtx(), out, []string{page}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Missing)
	assert.Equal(t, 1, report.Repaired)
	assert.Empty(t, report.Unresolved)
	assert.True(t, util.FileExists(filepath.Join(out, "media", "b.webp")))
}

func TestVerify_RepairsByRecopyingSource(t *testing.T) {
	out := t.TempDir()
	srcDir := t.TempDir()
	src := filepath.Join(srcDir, "original.jpg")
	require.NoError(t, os.WriteFile(src, []byte("original bytes"), 0644))

	page := writePage(t, out, "index.html", `<img src="media/c.jpg">`)

	lookup := func(rel string) (string, bool) {
		if rel == "media/c.jpg" {
			return src, true
		}
		return "", false
	}

	report, err := Verify(testCtx(), out, []string{page}, lookup)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Repaired)
	assert.Empty(t, report.Unresolved)

	copied, err := os.ReadFile(filepath.Join(out, "media", "c.jpg"))
	require.NoError(t, err)
	assert.Equal(t, []byte("original bytes"), copied)
}

func TestVerify_ReportsUnresolved(t *testing.T) {
	out := t.TempDir()
	page := writePage(t, out, "index.html", `<img src="media/gone.png"><video src="media/gone.mp4"></video>`)

	report, err := Verify(testCtx(), out, []string{page}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Missing)
	assert.Equal(t, 0, report.Repaired)
	assert.ElementsMatch(t, []string{"media/gone.png", "media/gone.mp4"}, report.Unresolved)
}

func TestVerify_ChecksEachReferenceOnce(t *testing.T) {
	out := t.TempDir()
	touch(t, out, "media/d.webp")
	pageA := writePage(t, out, "index.html", `<img src="media/d.webp"><img src="media/d.webp">`)
	pageB := writePage(t, out, "stories.html", `<img src="media/d.webp">`)

	report, err := Verify(testCtx(), out, []string{pageA, pageB}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Checked)
}
