// Package leaderboard is a best-effort client for the external score store:
// a PostgREST-style HTTP table endpoint (Supabase in the original
// deployment). The session core never depends on it - every failure here
// degrades to a no-op and is only logged.
package leaderboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"coin-arena/internal/config"
)

// Entry is one leaderboard row.
type Entry struct {
	PlayerName string `json:"player_name"`
	Score      int    `json:"score"`
}

// Client talks to the store over its REST interface. A zero-URL config
// produces a disabled client whose methods all short-circuit.
type Client struct {
	cfg  config.LeaderboardConfig
	http *http.Client
}

// New creates a client from config.
func New(cfg config.LeaderboardConfig) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// Enabled reports whether the store is configured at all.
func (c *Client) Enabled() bool {
	return c.cfg.URL != ""
}

// Submit inserts a (playerName, score) row.
func (c *Client) Submit(ctx context.Context, playerName string, score int) error {
	if !c.Enabled() {
		return nil
	}

	body, err := json.Marshal(Entry{PlayerName: playerName, Score: score})
	if err != nil {
		return errors.Wrap(err, "encode leaderboard row")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tableURL(nil), bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build leaderboard insert")
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=minimal")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "leaderboard insert")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return errors.Errorf("leaderboard insert: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// Top returns the top n rows by score descending.
func (c *Client) Top(ctx context.Context, n int) ([]Entry, error) {
	if !c.Enabled() {
		return nil, nil
	}

	q := url.Values{}
	q.Set("select", "player_name,score")
	q.Set("order", "score.desc")
	q.Set("limit", strconv.Itoa(n))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.tableURL(q), nil)
	if err != nil {
		return nil, errors.Wrap(err, "build leaderboard query")
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "leaderboard query")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("leaderboard query: unexpected status %d", resp.StatusCode)
	}

	var entries []Entry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, errors.Wrap(err, "decode leaderboard rows")
	}
	return entries, nil
}

// Rank returns the 1-indexed rank a given score would hold: one plus the
// number of rows scoring strictly higher.
func (c *Client) Rank(ctx context.Context, score int) (int, error) {
	if !c.Enabled() {
		return 0, nil
	}

	q := url.Values{}
	q.Set("select", "score")
	q.Set("score", "gt."+strconv.Itoa(score))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.tableURL(q), nil)
	if err != nil {
		return 0, errors.Wrap(err, "build leaderboard rank query")
	}
	c.setHeaders(req)
	req.Header.Set("Prefer", "count=exact")
	req.Header.Set("Range", "0-0")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, errors.Wrap(err, "leaderboard rank query")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return 0, errors.Errorf("leaderboard rank query: unexpected status %d", resp.StatusCode)
	}

	count, err := parseContentRangeCount(resp.Header.Get("Content-Range"))
	if err != nil {
		return 0, err
	}
	return count + 1, nil
}

func (c *Client) tableURL(q url.Values) string {
	u := strings.TrimRight(c.cfg.URL, "/") + "/" + c.cfg.Table
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func (c *Client) setHeaders(req *http.Request) {
	if c.cfg.APIKey != "" {
		req.Header.Set("apikey", c.cfg.APIKey)
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
}

// parseContentRangeCount extracts the total from a Content-Range header of
// the form "0-0/42" or "*/42".
func parseContentRangeCount(header string) (int, error) {
	idx := strings.LastIndex(header, "/")
	if idx < 0 || idx == len(header)-1 {
		return 0, errors.Errorf("leaderboard rank query: malformed Content-Range %q", header)
	}
	total := header[idx+1:]
	if total == "*" {
		return 0, fmt.Errorf("leaderboard rank query: store did not report a count")
	}
	count, err := strconv.Atoi(total)
	if err != nil {
		return 0, errors.Wrapf(err, "leaderboard rank query: bad count %q", total)
	}
	return count, nil
}
