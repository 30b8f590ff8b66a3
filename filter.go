package main

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	gitignore "github.com/sabhiram/go-gitignore"
)

// PathFilter decides which leaf paths take part in a sync. Paths are matched
// relative to the sync root, without a leading slash.
type PathFilter struct {
	include []string
	exclude *gitignore.GitIgnore
}

func NewPathFilter(include, exclude []string) (*PathFilter, error) {
	for _, pattern := range include {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid include pattern %q", pattern)
		}
	}

	filter := &PathFilter{include: include}
	if len(exclude) > 0 {
		filter.exclude = gitignore.CompileIgnoreLines(exclude...)
	}

	return filter, nil
}

func (f *PathFilter) Allowed(relPath string) bool {
	relPath = strings.TrimPrefix(relPath, "/")

	if f.exclude != nil && f.exclude.MatchesPath(relPath) {
		return false
	}
	if len(f.include) == 0 {
		return true
	}
	for _, pattern := range f.include {
		if ok, _ := doublestar.Match(pattern, relPath); ok {
			return true
		}
	}

	return false
}
