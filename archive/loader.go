package archive

import (
	"encoding/json"
	"html"
	"os"
	"sort"
	"time"

	"github.com/greg-randall/memento-mori/common/runctx"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const timestampDisplayFormat = "January 02, 2006 at 03:04 PM"
const dateRangeFormat = "January 2006"

// Load reads, merges, and orders everything the generator needs from an
// extracted export. Missing required files are fatal; missing optional
// files (location, stories) are not.
func Load(rctx runctx.RunContext, mapper *Mapper) (*Archive, error) {
	if err := mapper.Discover(); err != nil {
		return nil, err
	}
	if err := mapper.RequireFiles("posts", "profile", "insights"); err != nil {
		return nil, err
	}

	profile, err := loadProfile(rctx, mapper.FilePath("profile"))
	if err != nil {
		return nil, err
	}

	location := loadLocation(rctx, mapper.FilePath("location"))

	rawPosts, err := loadPosts(rctx, mapper.FilePaths("posts"))
	if err != nil {
		return nil, err
	}

	insights, err := loadInsights(rctx, mapper.FilePath("insights"))
	if err != nil {
		return nil, err
	}

	posts := mergePosts(rctx, rawPosts, insights)
	stories := loadStories(rctx, mapper.FilePath("stories"))

	rctx.Log.WithFields(logrus.Fields{
		"posts":   len(posts),
		"stories": len(stories),
		"user":    profile.Username,
	}).Info("Loaded export data")

	return &Archive{
		Profile:   *profile,
		Location:  location,
		Posts:     posts,
		Stories:   stories,
		DateRange: dateRangeOf(posts),
	}, nil
}

func loadProfile(rctx runctx.RunContext, path string) (*Profile, error) {
	var raw rawProfileFile
	if err := readJson(path, &raw); err != nil {
		return nil, errors.Wrap(err, "failed to parse profile data")
	}
	if len(raw.ProfileUser) == 0 {
		return nil, errors.Errorf("profile file %s contains no profile_user entries", path)
	}

	user := raw.ProfileUser[0]
	profile := &Profile{
		Username:       user.StringMapData["Username"].Value,
		Bio:            html.UnescapeString(user.StringMapData["Bio"].Value),
		Website:        user.StringMapData["Website"].Value,
		ProfilePicture: user.MediaMapData["Profile Photo"].URI,
	}
	if profile.Username == "" {
		rctx.Log.Warn("Profile data has no username")
		profile.Username = "Unknown"
	}
	return profile, nil
}

func loadLocation(rctx runctx.RunContext, path string) string {
	if path == "" {
		rctx.Log.Debug("No location data in export")
		return ""
	}
	var raw rawLocationFile
	if err := readJson(path, &raw); err != nil {
		rctx.Log.Warn("Failed to parse location data: ", err)
		return ""
	}
	if len(raw.InferredDataPrimaryLocation) == 0 {
		return ""
	}
	return raw.InferredDataPrimaryLocation[0].StringMapData["City Name"].Value
}

func loadPosts(rctx runctx.RunContext, paths []string) ([]rawPost, error) {
	all := make([]rawPost, 0)
	for _, p := range paths {
		var posts []rawPost
		if err := readJson(p, &posts); err != nil {
			return nil, errors.Wrapf(err, "failed to parse posts file %s", p)
		}
		rctx.Log.WithField("file", p).Debugf("Loaded %d posts", len(posts))
		all = append(all, posts...)
	}
	return all, nil
}

func loadInsights(rctx runctx.RunContext, path string) (map[int64]rawInsight, error) {
	var raw rawInsightsFile
	if err := readJson(path, &raw); err != nil {
		return nil, errors.Wrapf(err, "failed to parse insights file %s", path)
	}

	indexed := make(map[int64]rawInsight)
	for _, insight := range raw.OrganicInsightsPosts {
		thumb, ok := insight.MediaMapData["Media Thumbnail"]
		if !ok {
			continue
		}
		indexed[thumb.CreationTimestamp] = insight
	}
	rctx.Log.Debugf("Indexed %d insight entries", len(indexed))
	return indexed, nil
}

func loadStories(rctx runctx.RunContext, path string) []*StoryRecord {
	if path == "" {
		rctx.Log.Debug("No stories data in export")
		return nil
	}
	var raw rawStoriesFile
	if err := readJson(path, &raw); err != nil {
		rctx.Log.Warn("Failed to parse stories data: ", err)
		return nil
	}

	keyed := make(map[int64]*StoryRecord)
	for i, story := range raw.IgStories {
		if story.URI == "" {
			continue
		}
		keyed[story.CreationTimestamp] = &StoryRecord{
			Index:          i,
			Media:          []string{story.URI},
			TakenAt:        story.CreationTimestamp,
			TakenAtDisplay: displayTimestamp(story.CreationTimestamp),
			Caption:        html.UnescapeString(story.Title),
		}
	}

	stories := make([]*StoryRecord, 0, len(keyed))
	for _, s := range keyed {
		stories = append(stories, s)
	}
	sort.Slice(stories, func(i, j int) bool {
		return stories[i].TakenAt > stories[j].TakenAt
	})
	return stories
}

// mergePosts joins raw posts with their insight entries by creation
// timestamp and returns the records newest first. The working store is
// keyed by timestamp: when two posts collide on the exact same second the
// later one in input order wins. Observed export behavior, kept as is.
func mergePosts(rctx runctx.RunContext, rawPosts []rawPost, insights map[int64]rawInsight) []*PostRecord {
	keyed := make(map[int64]*PostRecord)

	for i, post := range rawPosts {
		record := &PostRecord{
			Index: i,
			Media: make([]string, 0, len(post.Media)),
			Title: html.UnescapeString(post.Title),
		}

		record.TakenAt = post.CreationTimestamp
		if record.TakenAt == 0 && len(post.Media) > 0 {
			record.TakenAt = post.Media[0].CreationTimestamp
		}
		record.TakenAtDisplay = displayTimestamp(record.TakenAt)

		for _, media := range post.Media {
			record.Media = append(record.Media, media.URI)
		}
		if len(record.Media) == 0 {
			rctx.Log.Warnf("Post %d has no media entries; skipping", i)
			continue
		}

		if insight, ok := insights[record.TakenAt]; ok {
			record.Impressions = parseCount(insight.StringMapData, "Impressions")
			record.Likes = parseCount(insight.StringMapData, "Likes")
			record.Comments = parseCount(insight.StringMapData, "Comments")
		}

		if existing, ok := keyed[record.TakenAt]; ok {
			rctx.Log.WithFields(logrus.Fields{
				"timestamp": record.TakenAt,
				"loser":     existing.Index,
				"winner":    record.Index,
			}).Debug("Timestamp collision between posts; keeping the later one")
		}
		keyed[record.TakenAt] = record
	}

	posts := make([]*PostRecord, 0, len(keyed))
	for _, p := range keyed {
		posts = append(posts, p)
	}
	sort.Slice(posts, func(i, j int) bool {
		return posts[i].TakenAt > posts[j].TakenAt
	})
	return posts
}

// parseCount coerces an insight value to an int only when it is strictly
// numeric. Anything else - absent, empty, "abc" - stays nil. A nil count
// means "no insight available", which is not the same thing as zero.
func parseCount(data map[string]rawStringValue, key string) *int {
	entry, ok := data[key]
	if !ok || entry.Value == "" {
		return nil
	}
	n := 0
	for _, c := range entry.Value {
		if c < '0' || c > '9' {
			return nil
		}
		n = n*10 + int(c-'0')
	}
	return &n
}

func displayTimestamp(ts int64) string {
	if ts == 0 {
		return ""
	}
	return time.Unix(ts, 0).UTC().Format(timestampDisplayFormat)
}

func dateRangeOf(posts []*PostRecord) DateRange {
	if len(posts) == 0 {
		return DateRange{Newest: "Unknown", Oldest: "Unknown", Range: "Unknown"}
	}
	newest := time.Unix(posts[0].TakenAt, 0).UTC().Format(dateRangeFormat)
	oldest := time.Unix(posts[len(posts)-1].TakenAt, 0).UTC().Format(dateRangeFormat)
	return DateRange{
		Newest: newest,
		Oldest: oldest,
		Range:  oldest + " - " + newest,
	}
}

func readJson(path string, out interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewDecoder(f).Decode(out)
}
