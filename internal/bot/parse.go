package bot

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"curator_bot/internal/model"
)

// ErrURLParse is returned when input does not resolve to a supported
// repository URL.
var ErrURLParse = errors.New("unsupported repository URL")

var repositoryURLPattern = regexp.MustCompile(`^https?://(github\.com|gitlab\.com)/([\w.-]+)/([\w.-]+)/?$`)

// ParseRepositoryURL resolves a URL-like string into a repository
// reference on a supported hosting platform.
func ParseRepositoryURL(s string) (model.RepoRef, error) {
	s = strings.TrimSpace(s)
	m := repositoryURLPattern.FindStringSubmatch(s)
	if m == nil {
		return model.RepoRef{}, fmt.Errorf("%w: %q", ErrURLParse, s)
	}

	platform := model.PlatformGitHub
	if m[1] == "gitlab.com" {
		platform = model.PlatformGitLab
	}

	return model.RepoRef{
		Platform: platform,
		Owner:    m[2],
		Name:     strings.TrimSuffix(m[3], ".git"),
	}, nil
}
