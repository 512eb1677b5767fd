package site

import (
	"encoding/json"
	"html/template"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/greg-randall/memento-mori/archive"
	"github.com/greg-randall/memento-mori/common/runctx"
	"github.com/greg-randall/memento-mori/util"
	"github.com/pkg/errors"
)

// Generator renders the static site into the output directory: index.html,
// an optional stories.html, and the css/js assets both pages use.
type Generator struct {
	OutDir string
}

type indexPageData struct {
	Username       string
	Bio            string
	Website        string
	Location       string
	ProfilePicture string
	DateRange      string
	PostCount      int
	StoryCount     int
	HasStories     bool
	Grid           []GridItem
	PostsJSON      template.JS
	StoriesJSON    template.JS
	GenerationDate string
	GtagID         string
}

type storyView struct {
	Index    int
	Display  string
	IsVideo  bool
	Date     string
	Caption  string
	Lazy     bool
	Original string
}

type storiesPageData struct {
	Username       string
	ProfilePicture string
	DateRange      string
	PostCount      int
	StoryCount     int
	Stories        []storyView
	GenerationDate string
	GtagID         string
}

// Generate writes every page and asset, returning the paths of the HTML
// files it produced so the verifier can sweep them.
func (g *Generator) Generate(rctx runctx.RunContext, arc *archive.Archive) ([]string, error) {
	if err := os.MkdirAll(g.OutDir, 0755); err != nil {
		return nil, err
	}
	if err := g.writeStaticAssets(rctx); err != nil {
		return nil, err
	}

	profilePicture, err := g.resolveProfilePicture(rctx, arc)
	if err != nil {
		return nil, err
	}

	postsJSON, err := marshalForPage(resolvedPosts(g.OutDir, arc.Posts))
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode post data")
	}
	storiesJSON, err := marshalForPage(arc.Stories)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode story data")
	}

	data := indexPageData{
		Username:       arc.Profile.Username,
		Bio:            arc.Profile.Bio,
		Website:        arc.Profile.Website,
		Location:       arc.Location,
		ProfilePicture: profilePicture,
		DateRange:      arc.DateRange.Range,
		PostCount:      len(arc.Posts),
		StoryCount:     len(arc.Stories),
		HasStories:     len(arc.Stories) > 0,
		Grid:           BuildGrid(rctx, arc.Posts, g.OutDir),
		PostsJSON:      postsJSON,
		StoriesJSON:    storiesJSON,
		GenerationDate: time.Now().UTC().Format("2006-01-02"),
		GtagID:         rctx.Config.GtagID,
	}

	pages := make([]string, 0, 2)
	indexPath := filepath.Join(g.OutDir, "index.html")
	if err := renderPage("index.html", indexPath, data); err != nil {
		return nil, err
	}
	pages = append(pages, indexPath)
	rctx.Log.Info("Generated ", indexPath)

	if len(arc.Stories) > 0 {
		storiesPath := filepath.Join(g.OutDir, "stories.html")
		storiesData := storiesPageData{
			Username:       arc.Profile.Username,
			ProfilePicture: profilePicture,
			DateRange:      arc.DateRange.Range,
			PostCount:      len(arc.Posts),
			StoryCount:     len(arc.Stories),
			Stories:        g.storyViews(rctx, arc.Stories),
			GenerationDate: data.GenerationDate,
			GtagID:         rctx.Config.GtagID,
		}
		if err := renderPage("stories.html", storiesPath, storiesData); err != nil {
			return nil, err
		}
		pages = append(pages, storiesPath)
		rctx.Log.Info("Generated ", storiesPath)
	}

	return pages, nil
}

func renderPage(name string, outPath string, data interface{}) error {
	t, err := getTemplate(name)
	if err != nil {
		return errors.Wrapf(err, "failed to load template %s", name)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer f.Close()
	if err = t.Execute(f, data); err != nil {
		return errors.Wrapf(err, "failed to render %s", name)
	}
	return nil
}

// resolveProfilePicture prefers a converted copy of the profile photo and
// falls back to a generated identicon when the export has none.
func (g *Generator) resolveProfilePicture(rctx runctx.RunContext, arc *archive.Archive) (string, error) {
	pic := arc.Profile.ProfilePicture
	if pic != "" {
		return resolveMediaPath(g.OutDir, pic), nil
	}

	rctx.Log.Info("No profile picture in export, generating an avatar")
	avatarRel := filepath.ToSlash(filepath.Join("media", "other", "avatar.webp"))
	if err := GenerateAvatar(arc.Profile.Username, filepath.Join(g.OutDir, avatarRel)); err != nil {
		return "", err
	}
	return avatarRel, nil
}

func (g *Generator) storyViews(rctx runctx.RunContext, stories []*archive.StoryRecord) []storyView {
	lazyAfter := rctx.Config.Grid.LazyLoadAfter
	views := make([]storyView, 0, len(stories))
	for i, story := range stories {
		if len(story.Media) == 0 {
			continue
		}
		display := story.Thumb
		if display == "" || !util.FileExists(filepath.Join(g.OutDir, display)) {
			display = resolveMediaPath(g.OutDir, story.Media[0])
		}
		views = append(views, storyView{
			Index:    story.Index,
			Display:  display,
			IsVideo:  util.IsVideoPath(story.Media[0]),
			Date:     story.TakenAtDisplay,
			Caption:  story.Caption,
			Lazy:     i >= lazyAfter,
			Original: resolveMediaPath(g.OutDir, story.Media[0]),
		})
	}
	return views
}

// resolvedPosts returns copies of the records with each media path pointed
// at the file that actually exists in the output tree, so the client never
// has to guess whether conversion produced a .webp. The originals are left
// alone: their paths are the thumbnail hash keys.
func resolvedPosts(outDir string, posts []*archive.PostRecord) []*archive.PostRecord {
	out := make([]*archive.PostRecord, 0, len(posts))
	for _, p := range posts {
		c := *p
		c.Media = make([]string, len(p.Media))
		for i, m := range p.Media {
			c.Media[i] = resolveMediaPath(outDir, m)
		}
		out = append(out, &c)
	}
	return out
}

// resolveMediaPath maps a shortened media path to whichever derived file
// exists in the output: the path itself, or its converted .webp sibling.
func resolveMediaPath(outDir string, media string) string {
	if util.FileExists(filepath.Join(outDir, media)) {
		return media
	}
	if webpCopy := webpSibling(media); util.FileExists(filepath.Join(outDir, webpCopy)) {
		return webpCopy
	}
	return media
}

func marshalForPage(v interface{}) (template.JS, error) {
	// json.Marshal escapes <, > and & so the blob is safe inside a script
	// element.
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return template.JS(b), nil
}

func (g *Generator) writeStaticAssets(rctx runctx.RunContext) error {
	return fs.WalkDir(staticFS, "static", func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel("static", p)
		if err != nil {
			return err
		}
		dst := filepath.Join(g.OutDir, rel)
		if err = os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return err
		}
		data, err := staticFS.ReadFile(p)
		if err != nil {
			return err
		}
		rctx.Log.Debug("Writing asset ", dst)
		return os.WriteFile(dst, data, 0644)
	})
}
