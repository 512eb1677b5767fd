package mediaproc

import (
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/greg-randall/memento-mori/archive"
	"github.com/greg-randall/memento-mori/common/runctx"
	"github.com/greg-randall/memento-mori/pool"
	"github.com/greg-randall/memento-mori/util"
	cache "github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Stats aggregates per-asset outcomes across the worker pool. Counters are
// atomic; workers share no other mutable state besides the filesystem.
type Stats struct {
	Processed  int64
	Converted  int64
	Copied     int64
	Thumbnails int64
	Skipped    int64
	Failed     int64
	BytesIn    int64
	BytesOut   int64

	mu          sync.Mutex
	FailedPaths []string
}

func (s *Stats) recordFailure(path string) {
	atomic.AddInt64(&s.Failed, 1)
	s.mu.Lock()
	s.FailedPaths = append(s.FailedPaths, path)
	s.mu.Unlock()
}

func (s *Stats) SpaceSaved() int64 {
	saved := atomic.LoadInt64(&s.BytesIn) - atomic.LoadInt64(&s.BytesOut)
	if saved < 0 {
		return 0
	}
	return saved
}

// Pipeline copies, converts, and thumbnails every media file an archive
// references, fanning out one task per unique asset. Outputs are keyed by
// deterministic paths, so reruns skip work that is already done.
type Pipeline struct {
	InDir  string
	OutDir string

	converter   *Converter
	thumbnailer *Thumbnailer
	workers     int

	names      *cache.Cache // original rel path -> shortened rel path
	sources    sync.Map     // shortened rel path -> absolute source path
	blurhashes sync.Map     // shortened rel path -> blurhash of its thumbnail
}

func NewPipeline(rctx runctx.RunContext) *Pipeline {
	cfg := rctx.Config
	return &Pipeline{
		InDir:     cfg.Input,
		OutDir:    cfg.Output,
		converter: &Converter{Quality: cfg.Quality, MaxDimension: cfg.MaxDimension},
		thumbnailer: &Thumbnailer{
			OutDir:      cfg.Output,
			Width:       cfg.Thumbnails.Width,
			Height:      cfg.Thumbnails.Height,
			StoryWidth:  cfg.Thumbnails.StoryWidth,
			StoryHeight: cfg.Thumbnails.StoryHeight,
			Quality:     cfg.Quality,
			Frames:      NewFfmpegExtractor(time.Duration(cfg.Ffmpeg.TimeoutSeconds) * time.Second),
		},
		workers: cfg.NumWorkers,
		names:   cache.New(cache.NoExpiration, 0),
	}
}

// ShortenPath maps an export-relative media path to its shortened output
// path. Memoized: every post referencing the same file must agree on the
// name, regardless of which worker got there first.
func (p *Pipeline) ShortenPath(rel string) string {
	if v, ok := p.names.Get(rel); ok {
		return v.(string)
	}
	short := util.ShortenPath(rel)
	p.names.Set(rel, short, cache.NoExpiration)
	return short
}

// SourceFor resolves a shortened output path back to its original source
// file. The verifier uses this for last-resort repairs.
func (p *Pipeline) SourceFor(shortened string) (string, bool) {
	v, ok := p.sources.Load(shortened)
	if !ok {
		return "", false
	}
	return v.(string), true
}

// BlurhashFor returns the blurhash computed for a media item's thumbnail.
func (p *Pipeline) BlurhashFor(shortened string) string {
	if v, ok := p.blurhashes.Load(shortened); ok {
		return v.(string)
	}
	return ""
}

// Process runs the whole media phase: rewrites record media paths to their
// shortened names, then converts/copies and thumbnails each unique asset in
// parallel. Per-asset failures log, count, and continue; only pool setup
// can fail the run.
func (p *Pipeline) Process(rctx runctx.RunContext, arc *archive.Archive) (*Stats, error) {
	stats := &Stats{}

	assets := p.rewriteRecords(rctx, arc)

	queue, err := pool.NewQueue(p.workers, "media")
	if err != nil {
		return nil, errors.Wrap(err, "failed to start media worker pool")
	}
	defer queue.Release()

	total := int64(len(assets))
	rctx.Log.WithFields(logrus.Fields{
		"files":   total,
		"workers": p.workers,
	}).Info("Processing media files")

	var wg sync.WaitGroup
	for _, rel := range assets {
		rel := rel
		wg.Add(1)
		task := func() {
			defer wg.Done()
			p.processOne(rctx, rel, stats)
			done := atomic.AddInt64(&stats.Processed, 1)
			if done%50 == 0 || done == total {
				rctx.Log.Infof("Processed %d/%d media files (%d%%)", done, total, done*100/total)
			}
		}
		if err := queue.Schedule(task); err != nil {
			wg.Done()
			stats.recordFailure(rel)
			rctx.Log.Warn("Failed to schedule media task: ", err)
		}
	}
	wg.Wait()

	p.storyThumbnails(rctx, arc, stats)
	p.annotateBlurhashes(arc)

	rctx.Log.WithFields(logrus.Fields{
		"converted":  atomic.LoadInt64(&stats.Converted),
		"copied":     atomic.LoadInt64(&stats.Copied),
		"thumbnails": atomic.LoadInt64(&stats.Thumbnails),
		"skipped":    atomic.LoadInt64(&stats.Skipped),
		"failed":     atomic.LoadInt64(&stats.Failed),
		"saved":      humanize.Bytes(uint64(stats.SpaceSaved())),
	}).Info("Media processing complete")

	return stats, nil
}

// rewriteRecords swaps every record's media paths for shortened ones and
// returns the unique set of original paths to process. The profile photo
// rides along with post media; both share the same pipeline.
func (p *Pipeline) rewriteRecords(rctx runctx.RunContext, arc *archive.Archive) []string {
	seen := make(map[string]bool)
	ordered := make([]string, 0)

	add := func(rel string) {
		if rel == "" || strings.HasPrefix(rel, "data:") || seen[rel] {
			return
		}
		seen[rel] = true
		ordered = append(ordered, rel)
	}

	if pic := arc.Profile.ProfilePicture; pic != "" {
		if util.FileExists(filepath.Join(p.InDir, pic)) {
			add(pic)
			arc.Profile.ProfilePicture = p.ShortenPath(pic)
		} else {
			rctx.Log.Warn("Profile picture not found in export: ", pic)
			arc.Profile.ProfilePicture = ""
		}
	}

	for _, post := range arc.Posts {
		for i, m := range post.Media {
			add(m)
			post.Media[i] = p.ShortenPath(m)
		}
	}
	for _, story := range arc.Stories {
		for i, m := range story.Media {
			add(m)
			story.Media[i] = p.ShortenPath(m)
		}
	}
	return ordered
}

// processOne handles a single asset end to end: still images convert to
// WebP (or copy) and get a thumbnail; videos copy verbatim and get a
// best-effort thumbnail. "Already exists" means a previous run did the
// work, and counts as a skip.
func (p *Pipeline) processOne(rctx runctx.RunContext, rel string, stats *Stats) {
	src := filepath.Join(p.InDir, rel)
	short := p.ShortenPath(rel)
	dst := filepath.Join(p.OutDir, short)
	p.sources.Store(short, src)

	if !util.FileExists(src) {
		rctx.Log.Warn("Source file referenced but missing: ", rel)
		stats.recordFailure(rel)
		return
	}

	kind, err := DetectKind(src)
	if err != nil {
		rctx.Log.Warn("Cannot inspect media file ", rel, ": ", err)
		stats.recordFailure(rel)
		return
	}

	switch {
	case kind == KindVideo:
		if util.FileExists(dst) {
			atomic.AddInt64(&stats.Skipped, 1)
		} else if n, err := util.CopyFile(src, dst); err != nil {
			rctx.Log.Warn("Failed to copy video ", rel, ": ", err)
			stats.recordFailure(rel)
			return
		} else {
			atomic.AddInt64(&stats.Copied, 1)
			atomic.AddInt64(&stats.BytesIn, n)
			atomic.AddInt64(&stats.BytesOut, n)
		}
	default:
		webpDst := siblingWithExtension(dst, ".webp")
		if util.FileExists(webpDst) || util.FileExists(dst) {
			atomic.AddInt64(&stats.Skipped, 1)
		} else {
			result, err := p.converter.Convert(rctx, src, webpDst)
			if err != nil {
				rctx.Log.Warn("Failed to process image ", rel, ": ", err)
				stats.recordFailure(rel)
				return
			}
			if result.Converted {
				atomic.AddInt64(&stats.Converted, 1)
			} else {
				atomic.AddInt64(&stats.Copied, 1)
			}
			atomic.AddInt64(&stats.BytesIn, result.BytesIn)
			atomic.AddInt64(&stats.BytesOut, result.BytesOut)
		}
	}

	thumb, err := p.thumbnailer.Generate(rctx, src, short)
	if err != nil {
		if errors.Is(err, ErrNoThumbnail) {
			// Expected for videos without an extractor; the grid renders a
			// placeholder instead.
			rctx.Log.Debug("No thumbnail for ", rel)
			atomic.AddInt64(&stats.Skipped, 1)
			return
		}
		rctx.Log.Warn("Failed to thumbnail ", rel, ": ", err)
		stats.recordFailure(rel)
		return
	}
	atomic.AddInt64(&stats.Thumbnails, 1)
	if thumb.Blurhash != "" {
		p.blurhashes.Store(short, thumb.Blurhash)
	}
}

// storyThumbnails renders the 9:16 previews for the stories page. These are
// sequential: accounts carry far fewer stories than posts.
func (p *Pipeline) storyThumbnails(rctx runctx.RunContext, arc *archive.Archive, stats *Stats) {
	for _, story := range arc.Stories {
		if len(story.Media) == 0 {
			continue
		}
		short := story.Media[0]
		src, ok := p.SourceFor(short)
		if !ok {
			continue
		}
		thumb, err := p.thumbnailer.GenerateStory(rctx, src, short)
		if err != nil {
			rctx.Log.Debug("No story thumbnail for ", short, ": ", err)
			continue
		}
		story.Thumb = thumb.Path
		atomic.AddInt64(&stats.Thumbnails, 1)
	}
}

func (p *Pipeline) annotateBlurhashes(arc *archive.Archive) {
	for _, post := range arc.Posts {
		if len(post.Media) > 0 {
			post.Blurhash = p.BlurhashFor(post.Media[0])
		}
	}
}
