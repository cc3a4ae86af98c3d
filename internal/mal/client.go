// Package mal implements the MyAnimeList adapter over its REST v2 API.
package mal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jdholdren/anisync/internal/anisync"
	"github.com/jdholdren/anisync/internal/remote"
)

const defaultBaseURL = "https://api.myanimelist.net/v2"

var _ anisync.Client = (*Client)(nil)

// Client talks to the MyAnimeList v2 API.
type Client struct {
	remote    *remote.Client
	baseURL   string
	sendScore bool
}

type Option func(*Client)

// WithBaseURL points the client somewhere else, for tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithoutScores stops the client from transmitting scores at all, for the
// disabled score-sync mode.
func WithoutScores() Option {
	return func(c *Client) { c.sendScore = false }
}

func New(accessToken string, opts ...Option) *Client {
	c := &Client{
		remote:    remote.NewClient(accessToken, nil),
		baseURL:   defaultBaseURL,
		sendScore: true,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

type listItemResp struct {
	Node struct {
		ID          int    `json:"id"`
		Title       string `json:"title"`
		NumEpisodes int    `json:"num_episodes"`
	} `json:"node"`
	ListStatus struct {
		Status             string   `json:"status"`
		Score              *float64 `json:"score"`
		NumEpisodesWatched int      `json:"num_episodes_watched"`
		NumTimesRewatched  int      `json:"num_times_rewatched"`
		IsRewatching       bool     `json:"is_rewatching"`
		Comments           string   `json:"comments"`
		UpdatedAt          string   `json:"updated_at"`
	} `json:"list_status"`
}

// FetchList pulls the user's full anime list, following pagination until
// the remote stops handing back a next page. An empty username means the
// authenticated user.
func (c *Client) FetchList(ctx context.Context, username string) ([]anisync.Entry, error) {
	if username == "" {
		username = "@me"
	}

	next := fmt.Sprintf("%s/users/%s/animelist?%s", c.baseURL, url.PathEscape(username), url.Values{
		"fields": []string{"list_status{updated_at,num_times_rewatched,comments},num_episodes"},
		"limit":  []string{"1000"},
	}.Encode())

	var entries []anisync.Entry
	for next != "" {
		pageURL := next
		resp, err := c.remote.Do(ctx, func() (*http.Request, error) {
			return http.NewRequest(http.MethodGet, pageURL, nil)
		})
		if err != nil {
			return nil, fmt.Errorf("error fetching mal list: %w", err)
		}

		var page struct {
			Data   []listItemResp `json:"data"`
			Paging struct {
				Next string `json:"next"`
			} `json:"paging"`
		}
		err = json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("error decoding mal list: %s", err)
		}

		for _, item := range page.Data {
			entries = append(entries, parseEntry(item))
		}
		next = page.Paging.Next
	}

	slog.Info("fetched mal entries", "count", len(entries))
	return entries, nil
}

func parseEntry(item listItemResp) anisync.Entry {
	ls := item.ListStatus

	var updatedAt *time.Time
	if ls.UpdatedAt != "" {
		if t, err := time.Parse(time.RFC3339, ls.UpdatedAt); err == nil {
			utc := t.UTC()
			updatedAt = &utc
		}
	}

	return anisync.Entry{
		MALID:         item.Node.ID,
		Title:         item.Node.Title,
		Status:        parseStatus(ls.Status),
		Score:         ls.Score,
		Progress:      ls.NumEpisodesWatched,
		TotalEpisodes: item.Node.NumEpisodes,
		RepeatCount:   ls.NumTimesRewatched,
		Notes:         ls.Comments,
		UpdatedAt:     updatedAt,
	}
}

// Update patches the entry's list status on MAL. Scores go out on the
// canonical 0-10 integer scale via the same normalization change detection
// uses, so the two can never disagree.
func (c *Client) Update(ctx context.Context, entry anisync.Entry) (bool, error) {
	if entry.MALID == 0 {
		slog.Warn("cannot update mal entry without an id", "title", entry.Title)
		return false, nil
	}

	form := url.Values{
		"status":               []string{statusToRemote[entry.Status]},
		"num_watched_episodes": []string{strconv.Itoa(entry.Progress)},
	}
	if score, ok := anisync.NormalizeScore(entry.Score); ok && c.sendScore {
		form.Set("score", strconv.Itoa(score))
	}
	if entry.Notes != "" {
		form.Set("comments", entry.Notes)
	}
	if entry.RepeatCount > 0 {
		form.Set("num_times_rewatched", strconv.Itoa(entry.RepeatCount))
	}

	endpoint := fmt.Sprintf("%s/anime/%d/my_list_status", c.baseURL, entry.MALID)
	resp, err := c.remote.Do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPatch, endpoint, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err != nil {
		return false, fmt.Errorf("error updating mal entry %q: %w", entry.Title, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	slog.Info("updated mal entry", "title", entry.Title)
	return true, nil
}

// SearchByTitle looks up catalog candidates by title.
func (c *Client) SearchByTitle(ctx context.Context, title string, limit int) ([]anisync.SearchResult, error) {
	endpoint := fmt.Sprintf("%s/anime?%s", c.baseURL, url.Values{
		"q":     []string{title},
		"limit": []string{strconv.Itoa(limit)},
	}.Encode())

	resp, err := c.remote.Do(ctx, func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, endpoint, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("error searching mal for %q: %w", title, err)
	}
	defer resp.Body.Close()

	var page struct {
		Data []struct {
			Node struct {
				ID    int    `json:"id"`
				Title string `json:"title"`
			} `json:"node"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("error decoding mal search: %s", err)
	}

	results := make([]anisync.SearchResult, 0, len(page.Data))
	for _, item := range page.Data {
		results = append(results, anisync.SearchResult{
			MALID:  item.Node.ID,
			Titles: []string{item.Node.Title},
		})
	}

	return results, nil
}
