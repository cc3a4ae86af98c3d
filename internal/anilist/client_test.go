package anilist

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdholdren/anisync/internal/anisync"
)

const listResponse = `{
  "data": {
    "MediaListCollection": {
      "lists": [
        {
          "entries": [
            {
              "status": "CURRENT",
              "score": 85,
              "progress": 12,
              "repeat": 0,
              "notes": "solid",
              "startedAt": {"year": 2026, "month": 4, "day": 2},
              "completedAt": {"year": 0, "month": 0, "day": 0},
              "updatedAt": 1767225600,
              "media": {
                "id": 1,
                "idMal": 100,
                "isFavourite": true,
                "title": {"romaji": "Shingeki", "english": "Attack", "native": ""},
                "episodes": 25
              }
            },
            {
              "status": "REWATCHING",
              "score": null,
              "progress": 3,
              "repeat": 1,
              "notes": "",
              "startedAt": {"year": 0},
              "completedAt": {"year": 0},
              "updatedAt": 0,
              "media": {
                "id": 2,
                "idMal": 0,
                "isFavourite": false,
                "title": {"romaji": "", "english": "", "native": "ネイティブ"},
                "episodes": 0
              }
            }
          ]
        }
      ]
    }
  }
}`

func TestFetchList(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(listResponse))
	}))
	defer srv.Close()

	c := New("tok", WithBaseURL(srv.URL))
	entries, err := c.FetchList(context.Background(), "someone")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	vars := gotBody["variables"].(map[string]any)
	assert.Equal(t, "someone", vars["userName"])

	first := entries[0]
	assert.Equal(t, 1, first.AniListID)
	assert.Equal(t, 100, first.MALID)
	assert.Equal(t, "Shingeki", first.Title)
	assert.Equal(t, anisync.StatusWatching, first.Status)
	require.NotNil(t, first.Score)
	assert.Equal(t, 85.0, *first.Score)
	assert.Equal(t, 12, first.Progress)
	assert.True(t, first.IsFavorite)
	require.NotNil(t, first.UpdatedAt)
	require.NotNil(t, first.StartDate)
	assert.Nil(t, first.FinishDate)

	second := entries[1]
	assert.Equal(t, "ネイティブ", second.Title, "falls back to native title")
	assert.Equal(t, anisync.StatusWatching, second.Status, "unknown remote status defaults to watching")
	assert.Nil(t, second.Score)
	assert.Nil(t, second.UpdatedAt)
}

func TestUpdate(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"data": {"SaveMediaListEntry": {"id": 555}}}`))
	}))
	defer srv.Close()

	c := New("tok", WithBaseURL(srv.URL))
	score := 8.0
	ok, err := c.Update(context.Background(), anisync.Entry{
		AniListID: 42,
		Title:     "Trigun",
		Status:    anisync.StatusOnHold,
		Score:     &score,
		Progress:  7,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	vars := gotBody["variables"].(map[string]any)
	assert.Equal(t, float64(42), vars["mediaId"])
	assert.Equal(t, "PAUSED", vars["status"])
	assert.Equal(t, 8.0, vars["score"])
	assert.Equal(t, float64(7), vars["progress"])
}

func TestUpdate_WithoutIDIsRejectedNotAnError(t *testing.T) {
	c := New("tok")
	ok, err := c.Update(context.Background(), anisync.Entry{MALID: 100, Title: "orphan"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpdate_GraphQLErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": null, "errors": [{"message": "Invalid token"}]}`))
	}))
	defer srv.Close()

	c := New("tok", WithBaseURL(srv.URL))
	_, err := c.Update(context.Background(), anisync.Entry{AniListID: 1, Title: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid token")
}

func TestSearchByTitle_CachesResponses(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"data": {"Page": {"media": [
			{"id": 7, "idMal": 70, "title": {"romaji": "Cowboy Bebop", "english": "", "native": ""}}
		]}}}`))
	}))
	defer srv.Close()

	c := New("tok", WithBaseURL(srv.URL))

	first, err := c.SearchByTitle(context.Background(), "Cowboy Bebop", 3)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 7, first[0].AniListID)
	assert.Equal(t, []string{"Cowboy Bebop"}, first[0].Titles)

	second, err := c.SearchByTitle(context.Background(), "cowboy bebop", 3)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls, "case-insensitive repeat search hits the cache")
}
