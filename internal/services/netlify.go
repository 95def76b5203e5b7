package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"livepreview/internal/config"
	"livepreview/internal/logger"
)

// NetlifyPublisher creates a Netlify site per preview and uploads the zipped
// scaffold as its first deploy. Zip deploys are served as-is: Netlify does
// not run the [build] command from netlify.toml for them.
type NetlifyPublisher struct {
	apiURL string
	token  string
	client *http.Client
	log    *logger.Logger
}

type netlifySite struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	URL    string `json:"url"`
	SSLURL string `json:"ssl_url"`
}

type netlifyDeploy struct {
	ID    string `json:"id"`
	State string `json:"state"`
}

func NewNetlifyPublisher(cfg *config.Config, log *logger.Logger) *NetlifyPublisher {
	return &NetlifyPublisher{
		apiURL: strings.TrimRight(cfg.NetlifyAPIURL, "/"),
		token:  cfg.NetlifyToken,
		client: &http.Client{Timeout: 2 * time.Minute},
		log:    log.With("component", "NetlifyPublisher"),
	}
}

func (p *NetlifyPublisher) Publish(ctx context.Context, sc *Scaffold, siteName string) (string, error) {
	archive, err := ZipScaffold(sc)
	if err != nil {
		return "", &PublishError{Stage: StagePackage, Msg: err.Error(), Err: err}
	}

	// 1. Create a new site
	body, _ := json.Marshal(map[string]string{"name": siteName})
	var site netlifySite
	if err := p.do(ctx, http.MethodPost, "/sites", "application/json", body, &site); err != nil {
		return "", &PublishError{Stage: StageCreateSite, Msg: "create site: " + err.Error(), Err: err}
	}
	if site.ID == "" {
		err := fmt.Errorf("netlify returned a site without an id")
		return "", &PublishError{Stage: StageCreateSite, Msg: "create site: " + err.Error(), Err: err}
	}
	p.log.Info("Netlify site created", "site_id", site.ID, "site_name", siteName)

	// 2. Upload the zipped scaffold
	var deploy netlifyDeploy
	path := "/sites/" + url.PathEscape(site.ID) + "/deploys"
	if err := p.do(ctx, http.MethodPost, path, "application/zip", archive, &deploy); err != nil {
		return "", &PublishError{Stage: StageDeploy, Msg: "deploy: " + err.Error(), Err: err}
	}
	p.log.Info("Netlify deploy created", "site_id", site.ID, "deploy_id", deploy.ID, "state", deploy.State, "bytes", len(archive))

	// 3. Return the live URL
	switch {
	case site.SSLURL != "":
		return site.SSLURL, nil
	case site.URL != "":
		return site.URL, nil
	}
	name := site.Name
	if name == "" {
		name = siteName
	}
	return fmt.Sprintf("https://%s.netlify.app", name), nil
}

func (p *NetlifyPublisher) do(ctx context.Context, method, path, contentType string, body []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, p.apiURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.token)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("netlify returned %d: %s", resp.StatusCode, apiMessage(raw))
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode netlify response: %w", err)
	}
	return nil
}

// apiMessage extracts the "message" field Netlify puts in error bodies.
func apiMessage(raw []byte) string {
	var e struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &e) == nil && e.Message != "" {
		return e.Message
	}
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		s = s[:200]
	}
	if s == "" {
		return "empty response"
	}
	return s
}
