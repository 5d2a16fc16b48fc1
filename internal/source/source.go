// Package source fetches the raw text of knowledge sources.
package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"ragqa/internal/domain"
)

// Fetcher reads one location into a document.
type Fetcher interface {
	Fetch(ctx context.Context, location string) (domain.Document, error)
}

// Router dispatches URLs to HTTP and everything else to files.
type Router struct {
	HTTP Fetcher
	File Fetcher
}

func (r Router) Fetch(ctx context.Context, location string) (domain.Document, error) {
	switch {
	case IsURL(location):
		if r.HTTP == nil {
			return domain.Document{}, fmt.Errorf("no http fetcher for %s", location)
		}
		return r.HTTP.Fetch(ctx, location)
	default:
		if r.File == nil {
			return domain.Document{}, fmt.Errorf("no file fetcher for %s", location)
		}
		return r.File.Fetch(ctx, strings.TrimPrefix(location, "file://"))
	}
}

// IsURL reports whether location is an http(s) URL.
func IsURL(location string) bool {
	l := strings.ToLower(location)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}

// Expand resolves file glob patterns and drops duplicates, keeping first-seen order.
// A pattern that matches nothing is kept as-is so the fetch failure gets reported.
func Expand(locations []string) ([]string, error) {
	seen := make(map[string]struct{}, len(locations))
	var out []string
	add := func(loc string) {
		if _, dup := seen[loc]; dup {
			return
		}
		seen[loc] = struct{}{}
		out = append(out, loc)
	}
	for _, loc := range locations {
		loc = strings.TrimSpace(loc)
		if loc == "" {
			continue
		}
		if IsURL(loc) || !strings.ContainsAny(loc, "*?[") {
			add(loc)
			continue
		}
		matches, err := filepath.Glob(loc)
		if err != nil {
			return nil, fmt.Errorf("bad source pattern %q: %w", loc, err)
		}
		if len(matches) == 0 {
			add(loc)
			continue
		}
		slices.Sort(matches)
		for _, m := range matches {
			if info, err := os.Stat(m); err == nil && info.IsDir() {
				continue
			}
			add(m)
		}
	}
	return out, nil
}
