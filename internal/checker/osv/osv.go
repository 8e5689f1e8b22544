// Package osv checks requirements against the OSV database (osv.dev).
//
// Pinned requirements are sent to /v1/querybatch, which answers with advisory
// IDs only. Advisory details (aliases, summary, fixed versions) are then
// fetched from /v1/vulns/{id} concurrently. Both kinds of response are cached
// on disk for the TTL the caller passes.
package osv

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"runtime"
	"strings"
	"time"

	"github.com/dgerlanc/safety-check/internal/cache"
	"github.com/dgerlanc/safety-check/internal/checker"
	"github.com/dgerlanc/safety-check/internal/constants"
	"github.com/dgerlanc/safety-check/internal/logger"
	"github.com/dgerlanc/safety-check/internal/requirement"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

const (
	// Ecosystem is the OSV ecosystem of every query.
	Ecosystem = "PyPI"

	maxBatchSize       = 1000 // OSV querybatch limit
	maxPages           = 100
	defaultConcurrency = 8
	defaultTimeout     = 30 * time.Second
	maxErrorBody       = 512
)

var _ checker.Checker = (*Client)(nil)

var (
	errResultCount  = zerr.New("osv querybatch returned wrong number of results")
	errTooManyPages = zerr.New("osv querybatch kept returning page tokens")
)

// Client is a checker.Checker backed by the OSV HTTP API.
type Client struct {
	baseURL     string
	http        *http.Client
	cacheDir    string
	concurrency int
	log         *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithCacheDir sets where responses are cached. Without it nothing is cached.
func WithCacheDir(dir string) Option {
	return func(c *Client) { c.cacheDir = dir }
}

// WithConcurrency bounds the number of parallel detail requests.
func WithConcurrency(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// New returns a client for the OSV API at baseURL, e.g. https://api.osv.dev.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		http:        &http.Client{Timeout: defaultTimeout},
		concurrency: defaultConcurrency,
		log:         logger.With("component", "osv"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type osvPackage struct {
	Name      string `json:"name"`
	Ecosystem string `json:"ecosystem"`
}

type osvQuery struct {
	Package   osvPackage `json:"package"`
	Version   string     `json:"version"`
	PageToken string     `json:"page_token,omitempty"`
}

type osvBatchRequest struct {
	Queries []osvQuery `json:"queries"`
}

type osvBatchResponse struct {
	Results []struct {
		Vulns []struct {
			ID string `json:"id"`
		} `json:"vulns"`
		NextPageToken string `json:"next_page_token,omitempty"`
	} `json:"results"`
}

// osvVuln is the subset of an OSV record this tool reads.
type osvVuln struct {
	ID       string   `json:"id"`
	Summary  string   `json:"summary"`
	Details  string   `json:"details"`
	Aliases  []string `json:"aliases"`
	Severity []struct {
		Type  string `json:"type"`
		Score string `json:"score"`
	} `json:"severity"`
	Affected []struct {
		Package osvPackage `json:"package"`
		Ranges  []struct {
			Type   string `json:"type"`
			Events []struct {
				Introduced string `json:"introduced,omitempty"`
				Fixed      string `json:"fixed,omitempty"`
			} `json:"events"`
		} `json:"ranges"`
	} `json:"affected"`
	DatabaseSpecific struct {
		Severity string `json:"severity"`
	} `json:"database_specific"`
}

// pinned is a requirement with its exact version.
type pinned struct {
	req     requirement.Requirement
	version string
}

func (p pinned) cacheKey() string {
	return "query:" + Ecosystem + "/" + p.req.NormalizedName() + "@" + p.version
}

// Check implements checker.Checker.
func (c *Client) Check(ctx context.Context, reqs []requirement.Requirement, opts checker.Options) ([]checker.Vulnerability, error) {
	store := cache.New(c.cacheDir, opts.Cached)
	ua := userAgent(opts.Telemetry)

	var pins []pinned
	for _, r := range reqs {
		v, ok := r.Pinned()
		if !ok {
			c.log.Debug("skipping unpinned requirement", "requirement", r.String())
			continue
		}
		pins = append(pins, pinned{req: r, version: v})
	}
	if len(pins) == 0 {
		return nil, nil
	}

	ids, err := c.queryIDs(ctx, store, ua, pins)
	if err != nil {
		return nil, err
	}

	details, err := c.fetchDetails(ctx, store, ua, ids)
	if err != nil {
		return nil, err
	}

	var vulns []checker.Vulnerability
	for i, p := range pins {
		for _, id := range ids[i] {
			vulns = append(vulns, toVulnerability(p, id, details[id]))
		}
	}

	kept, ignored := checker.FilterIgnored(vulns, opts.IgnoreVulns)
	for _, v := range ignored {
		c.log.Debug("ignoring vulnerability", "id", v.ID, "package", v.Package)
	}
	checker.Sort(kept)
	return kept, nil
}

// queryIDs returns the advisory IDs for each pin, index-aligned with pins.
func (c *Client) queryIDs(ctx context.Context, store *cache.Cache, ua string, pins []pinned) ([][]string, error) {
	ids := make([][]string, len(pins))

	var missing []int
	for i, p := range pins {
		if data, ok := store.Get(p.cacheKey()); ok {
			var cached []string
			if err := json.Unmarshal(data, &cached); err == nil {
				ids[i] = cached
				continue
			}
		}
		missing = append(missing, i)
	}
	c.log.Debug("querying osv", "pinned", len(pins), "cached", len(pins)-len(missing))

	for start := 0; start < len(missing); start += maxBatchSize {
		end := min(start+maxBatchSize, len(missing))
		chunk := missing[start:end]

		for _, idx := range chunk {
			ids[idx] = []string{}
		}
		if err := c.queryPages(ctx, ua, pins, chunk, ids); err != nil {
			return nil, err
		}

		for _, idx := range chunk {
			if data, err := json.Marshal(ids[idx]); err == nil {
				if err := store.Put(pins[idx].cacheKey(), data); err != nil {
					c.log.Debug("failed to cache query", "error", err)
				}
			}
		}
	}
	return ids, nil
}

// queryPages runs one querybatch for the pins at indexes pending, then
// re-queries every pin whose result carried a next_page_token until none
// is left. Found IDs are appended to ids.
func (c *Client) queryPages(ctx context.Context, ua string, pins []pinned, pending []int, ids [][]string) error {
	tokens := make(map[int]string)
	for page := 0; len(pending) > 0; page++ {
		if page >= maxPages {
			return zerr.With(errTooManyPages, "pages", page)
		}

		req := osvBatchRequest{Queries: make([]osvQuery, len(pending))}
		for j, idx := range pending {
			req.Queries[j] = osvQuery{
				Package:   osvPackage{Name: pins[idx].req.Name, Ecosystem: Ecosystem},
				Version:   pins[idx].version,
				PageToken: tokens[idx],
			}
		}

		var resp osvBatchResponse
		if err := c.do(ctx, http.MethodPost, "/v1/querybatch", ua, req, &resp); err != nil {
			return zerr.Wrap(err, "osv querybatch failed")
		}
		if len(resp.Results) != len(pending) {
			return zerr.With(
				zerr.With(errResultCount, "want", len(pending)),
				"got", len(resp.Results),
			)
		}

		var next []int
		for j, result := range resp.Results {
			idx := pending[j]
			for _, v := range result.Vulns {
				ids[idx] = append(ids[idx], v.ID)
			}
			if result.NextPageToken != "" {
				tokens[idx] = result.NextPageToken
				next = append(next, idx)
			}
		}
		if len(next) > 0 {
			c.log.Debug("osv results paginated", "page", page+1, "pending", len(next))
		}
		pending = next
	}
	return nil
}

// fetchDetails loads the full record of every distinct ID.
func (c *Client) fetchDetails(ctx context.Context, store *cache.Cache, ua string, ids [][]string) (map[string]*osvVuln, error) {
	unique := make(map[string]*osvVuln)
	for _, list := range ids {
		for _, id := range list {
			unique[id] = nil
		}
	}

	type fetched struct {
		id  string
		rec *osvVuln
	}
	results := make(chan fetched, len(unique))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for id := range unique {
		g.Go(func() error {
			rec, err := c.fetchVuln(gctx, store, ua, id)
			if err != nil {
				return err
			}
			results <- fetched{id: id, rec: rec}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	close(results)

	for f := range results {
		unique[f.id] = f.rec
	}
	return unique, nil
}

func (c *Client) fetchVuln(ctx context.Context, store *cache.Cache, ua, id string) (*osvVuln, error) {
	key := "vuln:" + id
	if data, ok := store.Get(key); ok {
		var v osvVuln
		if err := json.Unmarshal(data, &v); err == nil && v.ID == id {
			return &v, nil
		}
	}

	var v osvVuln
	if err := c.do(ctx, http.MethodGet, "/v1/vulns/"+url.PathEscape(id), ua, nil, &v); err != nil {
		return nil, zerr.With(zerr.Wrap(err, "osv vulnerability lookup failed"), "id", id)
	}
	if v.ID == "" {
		v.ID = id
	}
	if data, err := json.Marshal(&v); err == nil {
		if err := store.Put(key, data); err != nil {
			c.log.Debug("failed to cache vulnerability", "id", id, "error", err)
		}
	}
	return &v, nil
}

// do sends a JSON request and decodes a JSON response into out.
func (c *Client) do(ctx context.Context, method, path, ua string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return zerr.Wrap(err, "failed to marshal request")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return zerr.Wrap(err, "failed to create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", ua)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return zerr.With(
			zerr.With(fmt.Errorf("unexpected status %s", resp.Status), "path", path),
			"body", strings.TrimSpace(string(snippet)),
		)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to decode response"), "path", path)
	}
	return nil
}

// userAgent identifies the client. Version and platform details are only
// sent when telemetry is on.
func userAgent(telemetry bool) string {
	if !telemetry {
		return constants.AppName
	}
	return fmt.Sprintf("%s/%s (%s; %s; %s)", constants.AppName, constants.Version,
		runtime.GOOS, runtime.GOARCH, runtime.Version())
}

func toVulnerability(p pinned, id string, rec *osvVuln) checker.Vulnerability {
	v := checker.Vulnerability{
		ID:      id,
		Package: p.req.Name,
		Version: p.version,
	}
	if rec == nil {
		return v
	}

	v.Aliases = rec.Aliases
	v.Summary = rec.Summary
	if v.Summary == "" {
		v.Summary = firstLine(rec.Details)
	}
	v.Severity = rec.DatabaseSpecific.Severity
	if v.Severity == "" && len(rec.Severity) > 0 {
		v.Severity = rec.Severity[0].Type
	}

	name := p.req.NormalizedName()
	seen := make(map[string]bool)
	for _, a := range rec.Affected {
		if a.Package.Ecosystem != Ecosystem || requirement.Normalize(a.Package.Name) != name {
			continue
		}
		for _, r := range a.Ranges {
			for _, e := range r.Events {
				if e.Fixed != "" && !seen[e.Fixed] {
					seen[e.Fixed] = true
					v.FixedVersions = append(v.FixedVersions, e.Fixed)
				}
			}
		}
	}
	return v
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}
