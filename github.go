package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/imroc/req/v3"
)

const (
	githubContents     = "/repos/%s/%s/contents/%s"
	githubAcceptHeader = "application/vnd.github.v3+json"
	githubTypeFile     = "file"
	githubTypeDir      = "dir"
)

type githubEntry struct {
	Type     string `json:"type"`
	Name     string `json:"name"`
	Path     string `json:"path"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// GitHubSource reads a repository tree through the contents API. Paths are
// returned with a leading slash so they line up with workspace paths.
type GitHubSource struct {
	client *req.Client
	owner  string
	repo   string
	ref    string
}

func NewGitHubSource(gc GitHubConfig, timeout time.Duration, retries int) (*GitHubSource, error) {
	if gc.Owner == "" || gc.Repo == "" {
		return nil, fmt.Errorf("github source requires owner and repo")
	}

	client := newAPIClient(gc.BaseURL, timeout, retries).
		SetCommonHeader("Accept", githubAcceptHeader)
	if gc.Token != "" {
		client.SetCommonHeader("Authorization", "token "+gc.Token)
	}

	return &GitHubSource{client: client, owner: gc.Owner, repo: gc.Repo, ref: gc.Ref}, nil
}

func (g *GitHubSource) request(ctx context.Context) *req.Request {
	r := g.client.R().SetContext(ctx)
	if g.ref != "" {
		r.SetQueryParam("ref", g.ref)
	}
	return r
}

// contentsURL escapes each segment but keeps the slashes between them.
func (g *GitHubSource) contentsURL(repoPath string) string {
	segments := strings.Split(strings.Trim(repoPath, "/"), "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return fmt.Sprintf(githubContents, url.PathEscape(g.owner), url.PathEscape(g.repo), strings.Join(segments, "/"))
}

func (g *GitHubSource) List(ctx context.Context, dirPath string) ([]ObjectHandle, error) {
	resp, err := g.request(ctx).Get(g.contentsURL(dirPath))
	if err := handleAPIError(resp, err, "github contents "+dirPath); err != nil {
		return nil, err
	}

	body := resp.Bytes()
	// the contents API answers a file path with a single object
	if trimmed := strings.TrimSpace(string(body)); !strings.HasPrefix(trimmed, "[") {
		var entry githubEntry
		if err := json.Unmarshal(body, &entry); err != nil {
			return nil, fmt.Errorf("decode github contents %s: %w", dirPath, err)
		}
		return []ObjectHandle{{Path: "/" + entry.Path, Kind: Leaf}}, nil
	}

	var entries []githubEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("decode github contents %s: %w", dirPath, err)
	}

	handles := make([]ObjectHandle, 0, len(entries))
	for _, entry := range entries {
		switch entry.Type {
		case githubTypeFile:
			handles = append(handles, ObjectHandle{Path: "/" + entry.Path, Kind: Leaf})
		case githubTypeDir:
			handles = append(handles, ObjectHandle{Path: "/" + entry.Path, Kind: Container})
		}
	}

	return handles, nil
}

func (g *GitHubSource) Read(ctx context.Context, filePath string) (ObjectContent, error) {
	var entry githubEntry
	resp, err := g.request(ctx).
		SetSuccessResult(&entry).
		Get(g.contentsURL(filePath))
	if err := handleAPIError(resp, err, "github contents "+filePath); err != nil {
		return ObjectContent{}, err
	}
	if entry.Type != githubTypeFile {
		return ObjectContent{}, fmt.Errorf("%s is not a file", filePath)
	}

	// the API wraps base64 at 60 columns
	data, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(entry.Content, "\n", ""))
	if err != nil {
		return ObjectContent{}, fmt.Errorf("decode %s: %w", filePath, err)
	}

	return ObjectContent{Data: data, Language: languageForPath(filePath)}, nil
}

var extensionLanguages = map[string]string{
	".py":    "PYTHON",
	".sql":   "SQL",
	".scala": "SCALA",
	".r":     "R",
}

func languageForPath(p string) string {
	if lang, ok := extensionLanguages[strings.ToLower(path.Ext(p))]; ok {
		return lang
	}
	return defaultLanguage
}
