package uploader

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const defaultGitHubAPI = "https://api.github.com"

type gitHubUploadRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha,omitempty"`
}

type gitHubContent struct {
	SHA string `json:"sha"`
}

// GitHubUploader publishes feeds as files of a GitHub repository.
type GitHubUploader struct {
	client *resty.Client
	repo   string
	dir    string
	log    logrus.FieldLogger
}

// NewGitHubUploader writes into repo ("owner/name") under dir. baseURL may be
// empty for api.github.com.
func NewGitHubUploader(baseURL, token, repo, dir string, log logrus.FieldLogger) *GitHubUploader {
	if baseURL == "" {
		baseURL = defaultGitHubAPI
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetAuthToken(token).
		SetHeader("Accept", "application/vnd.github+json").
		SetRawPathParam("repo", repo)
	return &GitHubUploader{client: client, repo: repo, dir: strings.Trim(dir, "/"), log: log}
}

// Path is the repository path a feed named name is written to.
func (u *GitHubUploader) Path(name string) string {
	if u.dir == "" {
		return name + ".ics"
	}
	return u.dir + "/" + name + ".ics"
}

// Upload creates or replaces the file for name with content.
func (u *GitHubUploader) Upload(ctx context.Context, name string, content []byte) error {
	path := u.Path(name)

	sha, err := u.currentSHA(ctx, path)
	if err != nil {
		return err
	}

	body := gitHubUploadRequest{
		Message: fmt.Sprintf("Update %s", path),
		Content: base64.StdEncoding.EncodeToString(content),
		SHA:     sha,
	}
	resp, err := u.client.R().
		SetContext(ctx).
		SetRawPathParam("path", path).
		SetBody(body).
		Put("/repos/{repo}/contents/{path}")
	if err != nil {
		return errors.Wrap(err, "error making request")
	}
	if resp.IsError() {
		return errors.Errorf("error uploading to GitHub, status code: %d, response: %.200s", resp.StatusCode(), resp.String())
	}
	u.log.Infof("Uploaded %s to %s", path, u.repo)
	return nil
}

// currentSHA returns the blob sha of an existing file, or "" if there is none.
func (u *GitHubUploader) currentSHA(ctx context.Context, path string) (string, error) {
	var existing gitHubContent
	resp, err := u.client.R().
		SetContext(ctx).
		SetRawPathParam("path", path).
		SetResult(&existing).
		Get("/repos/{repo}/contents/{path}")
	if err != nil {
		return "", errors.Wrap(err, "error looking up existing file")
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return "", nil
	case resp.IsError():
		return "", errors.Errorf("error looking up %s on GitHub, status code: %d", path, resp.StatusCode())
	}
	return existing.SHA, nil
}
