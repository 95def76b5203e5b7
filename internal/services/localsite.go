package services

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"livepreview/internal/config"
	"livepreview/internal/logger"
)

var siteNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,62}$`)

// LocalPublisher copies scaffolds under SitesDir, which the API serves at
// /sites/. Meant for development without hosting credentials.
type LocalPublisher struct {
	root    string
	baseURL string
	log     *logger.Logger
}

func NewLocalPublisher(cfg *config.Config, log *logger.Logger) (*LocalPublisher, error) {
	if err := os.MkdirAll(cfg.SitesDir, 0o755); err != nil {
		return nil, fmt.Errorf("local publisher: %w", err)
	}
	return &LocalPublisher{
		root:    cfg.SitesDir,
		baseURL: cfg.PublicBaseURL,
		log:     log.With("component", "LocalPublisher"),
	}, nil
}

func (p *LocalPublisher) Root() string {
	return p.root
}

func (p *LocalPublisher) Publish(ctx context.Context, sc *Scaffold, siteName string) (string, error) {
	if !siteNamePattern.MatchString(siteName) {
		return "", &PublishError{Stage: StageCreateSite, Msg: fmt.Sprintf("invalid site name %q", siteName)}
	}
	if sc == nil || sc.Dir == "" {
		return "", &PublishError{Stage: StagePackage, Msg: "empty scaffold"}
	}

	dst := filepath.Join(p.root, siteName)
	if err := os.Mkdir(dst, 0o755); err != nil {
		return "", &PublishError{Stage: StageCreateSite, Msg: "create site: " + err.Error(), Err: err}
	}
	if err := copyTree(ctx, sc.Dir, dst); err != nil {
		_ = os.RemoveAll(dst)
		return "", &PublishError{Stage: StageDeploy, Msg: "deploy: " + err.Error(), Err: err}
	}

	liveURL := fmt.Sprintf("%s/sites/%s/", p.baseURL, siteName)
	p.log.Info("Site published locally", "site_name", siteName, "url", liveURL)
	return liveURL, nil
}

func copyTree(ctx context.Context, src, dst string) error {
	return filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(p, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
