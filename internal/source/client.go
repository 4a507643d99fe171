// Package source fetches file listings and content for configured
// repositories from the GitHub API, honoring rate limits.
package source

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gh "github.com/google/go-github/v80/github"
	"golang.org/x/oauth2"

	"github.com/archonhq/archon/internal/config"
)

const (
	// defaultTimeout is the HTTP request timeout for GitHub calls.
	defaultTimeout = 30 * time.Second

	// maxFileSize is the largest file fetched; files above this are
	// skipped during listing.
	maxFileSize = 1024 * 1024

	// maxRetries bounds transient-error retries per API call.
	maxRetries = 3

	// initialRetryDelay is the first backoff interval.
	initialRetryDelay = time.Second
)

// Client wraps the go-github client with listing and content helpers.
// It is safe for concurrent use.
type Client struct {
	gh      *gh.Client
	limiter *RateLimiter
	logger  *slog.Logger
}

// NewClient creates a GitHub API client. An empty token yields an
// unauthenticated client (60 req/hour, fine for local development).
func NewClient(token string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	var httpClient *http.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(context.Background(), ts)
	} else {
		httpClient = &http.Client{}
	}
	httpClient.Timeout = defaultTimeout

	return &Client{
		gh:      gh.NewClient(httpClient),
		limiter: NewRateLimiter(),
		logger:  logger,
	}
}

// ListFiles lists the files under the configured paths of a repository at
// its configured branch. Binary files and files above maxFileSize are
// excluded. The returned refs carry blob SHAs for content fetching.
func (c *Client) ListFiles(ctx context.Context, repo config.Repository) ([]FileRef, error) {
	owner, name, err := ParseRepoURL(repo.URL)
	if err != nil {
		return nil, err
	}

	var tree *gh.Tree
	err = c.withRetry(ctx, "get tree", func() error {
		if waitErr := c.limiter.Wait(ctx); waitErr != nil {
			return waitErr
		}
		t, resp, treeErr := c.gh.Git.GetTree(ctx, owner, name, repo.Branch, true)
		c.updateFromResponse(resp)
		if treeErr != nil {
			return treeErr
		}
		tree = t
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing %s@%s: %w", repo.URL, repo.Branch, err)
	}

	if tree.GetTruncated() {
		c.logger.Warn("repository tree truncated by GitHub, listing may be incomplete",
			"repository", repo.URL, "branch", repo.Branch)
	}

	refs := make([]FileRef, 0, len(tree.Entries))
	for _, entry := range tree.Entries {
		if entry.GetType() != "blob" {
			continue
		}
		path := entry.GetPath()
		if !underAnyPath(path, repo.Paths) {
			continue
		}
		if isBinaryExtension(path) {
			continue
		}
		if entry.GetSize() > maxFileSize {
			c.logger.Debug("skipping oversized file", "path", path, "size", entry.GetSize())
			continue
		}
		refs = append(refs, FileRef{
			Path: path,
			SHA:  entry.GetSHA(),
			Size: entry.GetSize(),
		})
	}

	return refs, nil
}

// FetchContent fetches and decodes the raw bytes of one file.
func (c *Client) FetchContent(ctx context.Context, repo config.Repository, ref FileRef) ([]byte, error) {
	owner, name, err := ParseRepoURL(repo.URL)
	if err != nil {
		return nil, err
	}

	var blob *gh.Blob
	err = c.withRetry(ctx, "get blob", func() error {
		if waitErr := c.limiter.Wait(ctx); waitErr != nil {
			return waitErr
		}
		b, resp, blobErr := c.gh.Git.GetBlob(ctx, owner, name, ref.SHA)
		c.updateFromResponse(resp)
		if blobErr != nil {
			return blobErr
		}
		blob = b
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetching %s/%s: %w", repo.URL, ref.Path, err)
	}

	if blob.GetEncoding() == "base64" {
		content := strings.ReplaceAll(blob.GetContent(), "\n", "")
		decoded, decErr := base64.StdEncoding.DecodeString(content)
		if decErr != nil {
			return nil, fmt.Errorf("decoding %s/%s: %w", repo.URL, ref.Path, decErr)
		}
		return decoded, nil
	}

	return []byte(blob.GetContent()), nil
}

// updateFromResponse feeds go-github response headers into the rate limiter.
func (c *Client) updateFromResponse(resp *gh.Response) {
	if resp != nil {
		c.limiter.UpdateFromResponse(resp.Response)
	}
}

// withRetry runs fn with bounded exponential backoff on transient errors.
// Non-transient errors fail immediately.
func (c *Client) withRetry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	delay := initialRetryDelay

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isTransient(err) {
			return err
		}
		if attempt == maxRetries {
			break
		}

		c.logger.Debug("retrying after transient github error",
			"op", op, "attempt", attempt+1, "delay", delay, "error", err)

		select {
		case <-ctx.Done():
			return fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay *= 2
		}
	}

	var rateErr *gh.RateLimitError
	var abuseErr *gh.AbuseRateLimitError
	if errors.As(lastErr, &rateErr) || errors.As(lastErr, &abuseErr) {
		return fmt.Errorf("%s after %d retries: %w: %w", op, maxRetries, ErrRateLimited, lastErr)
	}
	return fmt.Errorf("%s after %d retries: %w", op, maxRetries, lastErr)
}

// isTransient reports whether a GitHub API error is worth retrying.
// go-github exposes typed errors for both primary and secondary rate limits.
func isTransient(err error) bool {
	var rateErr *gh.RateLimitError
	if errors.As(err, &rateErr) {
		return true
	}
	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return true
	}
	var respErr *gh.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		code := respErr.Response.StatusCode
		return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
	}
	return false
}
