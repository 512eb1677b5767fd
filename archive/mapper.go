package archive

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Export files move around between export format revisions, so discovery is
// pattern-based rather than hardcoded to one layout.
var filePatterns = map[string][]string{
	"posts": {
		"content/posts*.json",
		"media/posts*.json",
	},
	"insights": {
		"past_instagram_insights/posts.json",
	},
	"profile": {
		"personal_information/personal_information.json",
		"account_information/personal_information.json",
		"personal_information.json",
		"profile_information.json",
	},
	"location": {
		"information_about_you/profile_based_in.json",
	},
	"stories": {
		"content/stories.json",
		"media/stories.json",
	},
}

// Mapper discovers the JSON metadata files inside an extracted export. The
// export tree is read-only to us: discovery never creates or renames
// anything.
type Mapper struct {
	BaseDir string

	fileMap map[string][]string
}

func NewMapper(baseDir string) *Mapper {
	return &Mapper{
		BaseDir: baseDir,
		fileMap: make(map[string][]string),
	}
}

// Discover walks the export once and records every metadata file matching a
// known pattern.
func (m *Mapper) Discover() error {
	info, err := os.Stat(m.BaseDir)
	if err != nil {
		return errors.Wrapf(err, "cannot access export directory %s", m.BaseDir)
	}
	if !info.IsDir() {
		return errors.Errorf("export path %s is not a directory", m.BaseDir)
	}

	matches := make(map[string][]string)
	err = filepath.WalkDir(m.BaseDir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		rel, err := filepath.Rel(m.BaseDir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		for fileType, patterns := range filePatterns {
			for _, pattern := range patterns {
				if matchesSuffixPattern(rel, pattern) {
					matches[fileType] = append(matches[fileType], p)
					break
				}
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "failed to scan export directory")
	}

	for fileType, paths := range matches {
		sort.Strings(paths) // posts_1.json before posts_2.json
		m.fileMap[fileType] = paths
	}
	return nil
}

// matchesSuffixPattern reports whether the relative path ends with the
// given slash-separated pattern; the last pattern element may glob.
func matchesSuffixPattern(rel string, pattern string) bool {
	relParts := strings.Split(rel, "/")
	patParts := strings.Split(pattern, "/")
	if len(relParts) < len(patParts) {
		return false
	}
	relParts = relParts[len(relParts)-len(patParts):]
	for i, pp := range patParts {
		ok, err := filepath.Match(pp, relParts[i])
		if err != nil || !ok {
			return false
		}
	}
	return true
}

// FilePath returns the first discovered file of the given type, or "".
func (m *Mapper) FilePath(fileType string) string {
	if paths := m.fileMap[fileType]; len(paths) > 0 {
		return paths[0]
	}
	return ""
}

// FilePaths returns every discovered file of the given type. Large accounts
// split posts across posts_1.json, posts_2.json, and so on.
func (m *Mapper) FilePaths(fileType string) []string {
	return m.fileMap[fileType]
}

// RequireFiles returns a fatal error naming the first missing required file
// kind. There is no partial-archive mode.
func (m *Mapper) RequireFiles(fileTypes ...string) error {
	for _, fileType := range fileTypes {
		if m.FilePath(fileType) == "" {
			return errors.Errorf("required export file not found: %s (looked for %s under %s)",
				fileType, strings.Join(filePatterns[fileType], ", "), m.BaseDir)
		}
	}
	return nil
}
