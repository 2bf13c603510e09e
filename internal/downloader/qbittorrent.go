package downloader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zimmermanc/radarr-mvp-sub001/internal/resilience"
)

// QBittorrent talks to a qBittorrent instance over its WebUI API (v2).
// Authentication uses the session cookie from /auth/login; the client logs
// in lazily and re-authenticates when the session expires.
type QBittorrent struct {
	baseURL    string
	username   string
	password   string
	category   string
	httpClient *http.Client

	mu       sync.Mutex
	loggedIn bool
}

var _ Client = (*QBittorrent)(nil)

// QBittorrentOption configures the client.
type QBittorrentOption func(*QBittorrent)

// WithHTTPClient overrides the default HTTP client. The replacement gets the
// session cookie jar installed if it has none.
func WithHTTPClient(client *http.Client) QBittorrentOption {
	return func(c *QBittorrent) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewQBittorrent creates a qBittorrent WebUI client.
func NewQBittorrent(baseURL, username, password, category string, opts ...QBittorrentOption) (*QBittorrent, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("download client base url required")
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	client := &QBittorrent{
		baseURL:    strings.TrimRight(baseURL, "/"),
		username:   username,
		password:   password,
		category:   category,
		httpClient: &http.Client{Timeout: 30 * time.Second, Jar: jar},
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.httpClient.Jar == nil {
		client.httpClient.Jar = jar
	}
	return client, nil
}

// Add submits a magnet link or torrent URL. The returned identifier is the
// infohash for magnets; for plain URLs the transfer is tagged and the hash
// resolved from the tag, since the add endpoint returns no body.
func (c *QBittorrent) Add(ctx context.Context, downloadURL string) (string, error) {
	downloadURL = strings.TrimSpace(downloadURL)
	if downloadURL == "" {
		return "", errors.New("download url must not be empty")
	}

	form := url.Values{}
	form.Set("urls", downloadURL)
	if c.category != "" {
		form.Set("category", c.category)
	}

	hash := magnetHash(downloadURL)
	tag := ""
	if hash == "" {
		tag = "fetcharr-" + uuid.NewString()
		form.Set("tags", tag)
	}

	if err := c.postForm(ctx, "/api/v2/torrents/add", form); err != nil {
		return "", err
	}
	if hash != "" {
		return hash, nil
	}
	return c.resolveTag(ctx, tag)
}

// Status reports progress for one transfer.
func (c *QBittorrent) Status(ctx context.Context, clientID string) (TransferStatus, error) {
	infos, err := c.torrentInfo(ctx, url.Values{"hashes": {clientID}})
	if err != nil {
		return TransferStatus{}, err
	}
	if len(infos) == 0 {
		return TransferStatus{State: TransferMissing}, nil
	}

	info := infos[0]
	status := TransferStatus{
		State:           mapState(info.State, info.Progress),
		TotalBytes:      info.Size,
		DownloadedBytes: info.Completed,
		SpeedBps:        info.DLSpeed,
		ETASeconds:      info.ETA,
	}
	return status, nil
}

// Pause suspends the transfer.
func (c *QBittorrent) Pause(ctx context.Context, clientID string) error {
	return c.postForm(ctx, "/api/v2/torrents/pause", url.Values{"hashes": {clientID}})
}

// Resume continues a paused transfer.
func (c *QBittorrent) Resume(ctx context.Context, clientID string) error {
	return c.postForm(ctx, "/api/v2/torrents/resume", url.Values{"hashes": {clientID}})
}

// Cancel removes the transfer along with its partial data.
func (c *QBittorrent) Cancel(ctx context.Context, clientID string) error {
	form := url.Values{"hashes": {clientID}, "deleteFiles": {"true"}}
	return c.postForm(ctx, "/api/v2/torrents/delete", form)
}

type torrentInfo struct {
	Hash      string  `json:"hash"`
	Name      string  `json:"name"`
	State     string  `json:"state"`
	Size      int64   `json:"size"`
	Completed int64   `json:"completed"`
	DLSpeed   int64   `json:"dlspeed"`
	ETA       int64   `json:"eta"`
	Progress  float64 `json:"progress"`
}

func (c *QBittorrent) torrentInfo(ctx context.Context, params url.Values) ([]torrentInfo, error) {
	if err := c.ensureLogin(ctx); err != nil {
		return nil, err
	}

	endpoint := c.baseURL + "/api/v2/torrents/info?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query torrent info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		// Session expired; force a fresh login on the next call.
		c.mu.Lock()
		c.loggedIn = false
		c.mu.Unlock()
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}

	var infos []torrentInfo
	if err := json.NewDecoder(resp.Body).Decode(&infos); err != nil {
		return nil, fmt.Errorf("decode torrent info: %w", err)
	}
	return infos, nil
}

// resolveTag finds the hash of a freshly added transfer via its unique tag.
// The add endpoint is asynchronous, so a few short polls are allowed.
func (c *QBittorrent) resolveTag(ctx context.Context, tag string) (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		infos, err := c.torrentInfo(ctx, url.Values{"tag": {tag}})
		if err != nil {
			return "", err
		}
		if len(infos) > 0 {
			return infos[0].Hash, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	return "", fmt.Errorf("transfer tagged %s did not appear in client", tag)
}

func (c *QBittorrent) postForm(ctx context.Context, path string, form url.Values) error {
	if err := c.ensureLogin(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		c.mu.Lock()
		c.loggedIn = false
		c.mu.Unlock()
	}
	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	return nil
}

func (c *QBittorrent) ensureLogin(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loggedIn || c.username == "" {
		return nil
	}

	form := url.Values{"username": {c.username}, "password": {c.password}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v2/auth/login", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("login to download client: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64))
	if strings.TrimSpace(string(body)) == "Fails." {
		return &resilience.StatusError{
			Dependency: "download_client",
			Code:       http.StatusUnauthorized,
			Body:       "invalid username or password",
		}
	}
	c.loggedIn = true
	return nil
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &resilience.StatusError{
		Dependency: "download_client",
		Code:       resp.StatusCode,
		Body:       string(body),
		RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
	}
}

func retryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	var seconds int
	if _, err := fmt.Sscanf(value, "%d", &seconds); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return 0
}

// magnetHash extracts the btih infohash from a magnet link, or "" when the
// URL is not a magnet.
func magnetHash(downloadURL string) string {
	lower := strings.ToLower(downloadURL)
	if !strings.HasPrefix(lower, "magnet:") {
		return ""
	}
	const marker = "btih:"
	idx := strings.Index(lower, marker)
	if idx < 0 {
		return ""
	}
	hash := lower[idx+len(marker):]
	for _, sep := range []string{"&", "?"} {
		if cut := strings.Index(hash, sep); cut >= 0 {
			hash = hash[:cut]
		}
	}
	return hash
}

// mapState normalizes qBittorrent's many torrent states onto the transfer
// states the queue tracks.
func mapState(state string, progress float64) TransferState {
	switch state {
	case "pausedDL", "stoppedDL":
		return TransferPaused
	case "uploading", "stalledUP", "queuedUP", "pausedUP", "stoppedUP", "forcedUP", "checkingUP":
		return TransferComplete
	case "error", "missingFiles":
		return TransferErrored
	case "unknown":
		return TransferMissing
	default:
		if progress >= 1 {
			return TransferComplete
		}
		return TransferDownloading
	}
}
