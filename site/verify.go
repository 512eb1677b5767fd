package site

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/greg-randall/memento-mori/common/runctx"
	"github.com/greg-randall/memento-mori/util"
	"github.com/pkg/errors"
)

// Report summarizes a verification sweep over the generated pages.
type Report struct {
	Checked    int
	Missing    int
	Repaired   int
	Unresolved []string
}

// SourceLookup maps an output-relative media path back to the absolute path
// of the file it was derived from, when one is known.
type SourceLookup func(rel string) (string, bool)

// Verify parses every generated page and checks that each referenced media
// file exists under the output directory. Broken references are repaired in
// two passes: first by looking for a sibling with a different extension
// (conversion may have changed it), then by re-copying the original source.
// Whatever cannot be repaired is reported, never fatal.
func Verify(rctx runctx.RunContext, outDir string, pages []string, lookup SourceLookup) (*Report, error) {
	report := &Report{}
	seen := make(map[string]bool)

	for _, page := range pages {
		refs, err := mediaReferences(page)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse %s", page)
		}
		for _, ref := range refs {
			if seen[ref] {
				continue
			}
			seen[ref] = true
			report.Checked++

			if util.FileExists(filepath.Join(outDir, ref)) {
				continue
			}
			report.Missing++
			rctx.Log.Warn("Missing media reference: ", ref)

			if repairReference(rctx, outDir, ref, lookup) {
				report.Repaired++
			} else {
				report.Unresolved = append(report.Unresolved, ref)
			}
		}
	}

	rctx.Log.Infof("Verified %d references: %d missing, %d repaired, %d unresolved",
		report.Checked, report.Missing, report.Repaired, len(report.Unresolved))
	return report, nil
}

// mediaReferences extracts the output-relative media paths a page uses.
// External URLs, fragments and inline data URIs are not files to check.
func mediaReferences(page string) ([]string, error) {
	f, err := os.Open(page)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return nil, err
	}

	refs := make([]string, 0)
	doc.Find("img, video, source").Each(func(_ int, s *goquery.Selection) {
		for _, attr := range []string{"src", "data-src", "poster"} {
			v, ok := s.Attr(attr)
			if !ok || v == "" {
				continue
			}
			if strings.HasPrefix(v, "data:") || strings.HasPrefix(v, "http:") ||
				strings.HasPrefix(v, "https:") || strings.HasPrefix(v, "#") {
				continue
			}
			refs = append(refs, v)
		}
	})
	return refs, nil
}

func repairReference(rctx runctx.RunContext, outDir string, ref string, lookup SourceLookup) bool {
	// Conversion may have produced the same file under a different still
	// image extension.
	ext := filepath.Ext(ref)
	if ext != "" {
		base := ref[:len(ref)-len(ext)]
		for _, alt := range util.StillImageExtensions() {
			if alt == ext {
				continue
			}
			candidate := filepath.Join(outDir, base+alt)
			if !util.FileExists(candidate) {
				continue
			}
			if _, err := util.CopyFile(candidate, filepath.Join(outDir, ref)); err != nil {
				rctx.Log.Warn("Failed to repair ", ref, ": ", err)
				return false
			}
			rctx.Log.Info("Repaired ", ref, " from ", base+alt)
			return true
		}
	}

	if lookup == nil {
		return false
	}
	src, ok := lookup(ref)
	if !ok || !util.FileExists(src) {
		return false
	}
	if _, err := util.CopyFile(src, filepath.Join(outDir, ref)); err != nil {
		rctx.Log.Warn("Failed to repair ", ref, ": ", err)
		return false
	}
	rctx.Log.Info("Repaired ", ref, " by re-copying the original")
	return true
}
