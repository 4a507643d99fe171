package source

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidRepoURL indicates a repository URL that is not a GitHub URL.
	ErrInvalidRepoURL = errors.New("invalid repository URL")

	// ErrRateLimited indicates the GitHub API quota is exhausted.
	ErrRateLimited = errors.New("github rate limited")
)

// FileRef identifies one file in a repository tree at a specific commit.
type FileRef struct {
	Path string // Path within the repository
	SHA  string // Git blob SHA
	Size int    // Size in bytes
}

// ParseRepoURL extracts owner and name from a GitHub repository URL,
// e.g. https://github.com/archonhq/docs -> ("archonhq", "docs").
func ParseRepoURL(repoURL string) (owner, name string, err error) {
	trimmed := strings.TrimPrefix(repoURL, "https://github.com/")
	if trimmed == repoURL {
		return "", "", fmt.Errorf("%w: %q is not a github.com URL", ErrInvalidRepoURL, repoURL)
	}
	trimmed = strings.TrimSuffix(strings.TrimSuffix(trimmed, "/"), ".git")

	parts := strings.Split(trimmed, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: expected https://github.com/<owner>/<repo>, got %q", ErrInvalidRepoURL, repoURL)
	}
	return parts[0], parts[1], nil
}

// underAnyPath reports whether path is equal to or nested under one of the
// configured path prefixes. An empty prefix list matches everything.
func underAnyPath(path string, prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, prefix := range prefixes {
		clean := strings.Trim(prefix, "/")
		if clean == "" || path == clean || strings.HasPrefix(path, clean+"/") {
			return true
		}
	}
	return false
}

// binaryExtensions are file extensions never treated as documentation.
var binaryExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".ico": true, ".webp": true,
	".pdf": true, ".zip": true, ".tar": true, ".gz": true, ".bz2": true, ".7z": true,
	".exe": true, ".dll": true, ".so": true, ".dylib": true,
	".woff": true, ".woff2": true, ".ttf": true, ".eot": true,
	".mp3": true, ".mp4": true, ".avi": true, ".mov": true,
	".bin": true, ".dat": true, ".db": true, ".sqlite": true,
}

// isBinaryExtension checks if a file extension indicates a binary file.
func isBinaryExtension(path string) bool {
	idx := strings.LastIndex(path, ".")
	if idx < 0 {
		return false
	}
	return binaryExtensions[strings.ToLower(path[idx:])]
}
