// Package anilist implements the AniList adapter over its GraphQL API.
package anilist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jdholdren/anisync/internal/anisync"
	"github.com/jdholdren/anisync/internal/remote"
)

const defaultBaseURL = "https://graphql.anilist.co"

const listQuery = `
query ($userName: String) {
  MediaListCollection(userName: $userName, type: ANIME) {
    lists {
      entries {
        id
        status
        score(format: POINT_10_DECIMAL)
        progress
        repeat
        notes
        startedAt { year month day }
        completedAt { year month day }
        updatedAt
        media {
          id
          idMal
          isFavourite
          title { romaji english native }
          episodes
        }
      }
    }
  }
}`

const searchQuery = `
query ($search: String, $limit: Int) {
  Page(perPage: $limit) {
    media(search: $search, type: ANIME) {
      id
      idMal
      title { romaji english native }
    }
  }
}`

const saveMutation = `
mutation ($mediaId: Int, $status: MediaListStatus, $score: Float, $progress: Int, $repeat: Int, $notes: String) {
  SaveMediaListEntry(mediaId: $mediaId, status: $status, score: $score, progress: $progress, repeat: $repeat, notes: $notes) {
    id
  }
}`

var _ anisync.Client = (*Client)(nil)

// Client talks to the AniList GraphQL API.
type Client struct {
	remote  *remote.Client
	baseURL string

	// Title searches repeat across runs for entries that never acquire an
	// AniList id server-side; caching the raw responses spares the remote.
	// This is adapter-level response caching: the engine itself never
	// holds identity state between runs.
	searchCache *lru.Cache[string, []anisync.SearchResult]
}

type Option func(*Client)

// WithBaseURL points the client somewhere else, for tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

func New(accessToken string, opts ...Option) *Client {
	cache, _ := lru.New[string, []anisync.SearchResult](256)

	c := &Client{
		remote: remote.NewClient(accessToken, map[string]string{
			"Content-Type": "application/json",
			"Accept":       "application/json",
		}),
		baseURL:     defaultBaseURL,
		searchCache: cache,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

type gqlError struct {
	Message string `json:"message"`
}

// query executes one GraphQL request and decodes `data` into out.
func (c *Client) query(ctx context.Context, query string, variables map[string]any, out any) error {
	payload := map[string]any{"query": query}
	if len(variables) > 0 {
		payload["variables"] = variables
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error encoding graphql payload: %s", err)
	}

	resp, err := c.remote.Do(ctx, func() (*http.Request, error) {
		return http.NewRequest(http.MethodPost, c.baseURL, bytes.NewReader(body))
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []gqlError      `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("error decoding graphql response: %s", err)
	}
	if len(envelope.Errors) > 0 {
		msgs := make([]string, 0, len(envelope.Errors))
		for _, e := range envelope.Errors {
			msgs = append(msgs, e.Message)
		}
		return fmt.Errorf("graphql errors: %s", strings.Join(msgs, "; "))
	}

	if out != nil && envelope.Data != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("error decoding graphql data: %s", err)
		}
	}

	return nil
}

type fuzzyDate struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

func (d fuzzyDate) time() *time.Time {
	if d.Year == 0 {
		return nil
	}
	month, day := d.Month, d.Day
	if month == 0 {
		month = 1
	}
	if day == 0 {
		day = 1
	}
	t := time.Date(d.Year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return &t
}

type mediaResp struct {
	ID          int  `json:"id"`
	IDMal       int  `json:"idMal"`
	IsFavourite bool `json:"isFavourite"`
	Title       struct {
		Romaji  string `json:"romaji"`
		English string `json:"english"`
		Native  string `json:"native"`
	} `json:"title"`
	Episodes int `json:"episodes"`
}

type listEntryResp struct {
	Status      string    `json:"status"`
	Score       *float64  `json:"score"`
	Progress    int       `json:"progress"`
	Repeat      int       `json:"repeat"`
	Notes       string    `json:"notes"`
	StartedAt   fuzzyDate `json:"startedAt"`
	CompletedAt fuzzyDate `json:"completedAt"`
	UpdatedAt   int64     `json:"updatedAt"`
	Media       mediaResp `json:"media"`
}

// FetchList pulls the user's full anime list. An empty username means the
// authenticated user.
func (c *Client) FetchList(ctx context.Context, username string) ([]anisync.Entry, error) {
	var variables map[string]any
	if username != "" {
		variables = map[string]any{"userName": username}
	}

	var data struct {
		MediaListCollection struct {
			Lists []struct {
				Entries []listEntryResp `json:"entries"`
			} `json:"lists"`
		} `json:"MediaListCollection"`
	}
	if err := c.query(ctx, listQuery, variables, &data); err != nil {
		return nil, fmt.Errorf("error fetching anilist list: %w", err)
	}

	var entries []anisync.Entry
	for _, group := range data.MediaListCollection.Lists {
		for _, e := range group.Entries {
			entries = append(entries, parseEntry(e))
		}
	}

	slog.Info("fetched anilist entries", "count", len(entries))
	return entries, nil
}

func parseEntry(e listEntryResp) anisync.Entry {
	title := e.Media.Title.Romaji
	if title == "" {
		title = e.Media.Title.English
	}
	if title == "" {
		title = e.Media.Title.Native
	}

	var updatedAt *time.Time
	if e.UpdatedAt != 0 {
		t := time.Unix(e.UpdatedAt, 0).UTC()
		updatedAt = &t
	}

	return anisync.Entry{
		AniListID:     e.Media.ID,
		MALID:         e.Media.IDMal,
		Title:         title,
		Status:        parseStatus(e.Status),
		Score:         e.Score,
		Progress:      e.Progress,
		TotalEpisodes: e.Media.Episodes,
		RepeatCount:   e.Repeat,
		Notes:         e.Notes,
		IsFavorite:    e.Media.IsFavourite,
		StartDate:     e.StartedAt.time(),
		FinishDate:    e.CompletedAt.time(),
		UpdatedAt:     updatedAt,
	}
}

// Update saves the entry's list state on AniList. AniList accepts the full
// score scale, so scores pass through untouched.
func (c *Client) Update(ctx context.Context, entry anisync.Entry) (bool, error) {
	if entry.AniListID == 0 {
		slog.Warn("cannot update anilist entry without an id", "title", entry.Title)
		return false, nil
	}

	variables := map[string]any{
		"mediaId":  entry.AniListID,
		"status":   statusToRemote[entry.Status],
		"progress": entry.Progress,
		"repeat":   entry.RepeatCount,
		"notes":    entry.Notes,
	}
	if entry.Score != nil {
		variables["score"] = *entry.Score
	}

	if err := c.query(ctx, saveMutation, variables, nil); err != nil {
		return false, fmt.Errorf("error updating anilist entry %q: %w", entry.Title, err)
	}

	slog.Info("updated anilist entry", "title", entry.Title)
	return true, nil
}

// SearchByTitle looks up catalog candidates for identity resolution.
func (c *Client) SearchByTitle(ctx context.Context, title string, limit int) ([]anisync.SearchResult, error) {
	key := fmt.Sprintf("%s|%d", strings.ToLower(title), limit)
	if cached, ok := c.searchCache.Get(key); ok {
		return cached, nil
	}

	var data struct {
		Page struct {
			Media []mediaResp `json:"media"`
		} `json:"Page"`
	}
	err := c.query(ctx, searchQuery, map[string]any{"search": title, "limit": limit}, &data)
	if err != nil {
		return nil, fmt.Errorf("error searching anilist for %q: %w", title, err)
	}

	results := make([]anisync.SearchResult, 0, len(data.Page.Media))
	for _, m := range data.Page.Media {
		var titles []string
		for _, t := range []string{m.Title.Romaji, m.Title.English, m.Title.Native} {
			if t != "" {
				titles = append(titles, t)
			}
		}
		results = append(results, anisync.SearchResult{
			AniListID: m.ID,
			MALID:     m.IDMal,
			Titles:    titles,
		})
	}

	c.searchCache.Add(key, results)
	return results, nil
}
