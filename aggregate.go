package postgate

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/eringen/postgate/github"
)

type listedFile struct {
	category string
	entry    github.Entry
}

// aggregatePosts lists every category and downloads each markdown file.
// Failures are logged and dropped, never returned: a missing category or
// an unreadable file shrinks the result instead of failing the request.
// Order follows the listings and is not sorted.
func (a *App) aggregatePosts(ctx context.Context) []Post {
	var files []listedFile
	for _, category := range a.Config.Categories {
		entries, err := a.Content.List(ctx, "posts/"+category)
		if err != nil {
			a.aggregateFailures.WithLabelValues("list").Inc()
			a.Log.Warn().Err(err).Str("category", category).Msg("listing category failed")
			continue
		}
		for _, e := range entries {
			if e.IsFile() && strings.HasSuffix(e.Name, ".md") {
				files = append(files, listedFile{category: category, entry: e})
			}
		}
	}

	// Each goroutine owns one slot, so no locking is needed.
	slots := make([]*Post, len(files))
	var g errgroup.Group
	g.SetLimit(a.Config.FetchConcurrency)
	for i, f := range files {
		g.Go(func() error {
			data, err := a.Content.Download(ctx, f.entry.DownloadURL)
			if err != nil {
				a.aggregateFailures.WithLabelValues("fetch").Inc()
				a.Log.Warn().Err(err).Str("path", f.entry.Path).Msg("fetching post failed")
				return nil
			}
			p := newPost(f.category, f.entry.Name, f.entry.SHA, data)
			slots[i] = &p
			return nil
		})
	}
	_ = g.Wait()

	posts := make([]Post, 0, len(files))
	for _, p := range slots {
		if p != nil {
			posts = append(posts, *p)
		}
	}
	return posts
}
