package repositories

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInspectHandler(t *testing.T) {
	req := require.New(t)
	db := openDB(t)
	repository := NewMessageRepository(db, slog.Default(), nil)
	_, err := repository.Append("public", message("Alice", 1000))
	req.NoError(err)
	_, err = repository.Append("chat1", message("Bob", 2000))
	req.NoError(err)

	server := httptest.NewServer(NewInspectHandler(db))
	defer server.Close()

	tests := []struct {
		name     string
		query    string
		status   int
		contains []string
		excludes []string
	}{
		{
			name:     "every message",
			query:    "",
			status:   http.StatusOK,
			contains: []string{"Alice", "Bob", "public", "chat1", "1970-01-01T00:00:01Z"},
		},
		{
			name:     "one room",
			query:    "?prefix=msg:chat1:",
			status:   http.StatusOK,
			contains: []string{"Bob"},
			excludes: []string{"Alice"},
		},
		{
			name:   "bad limit",
			query:  "?limit=zero",
			status: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			resp, err := http.Get(server.URL + tt.query)
			req.NoError(err)
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			req.NoError(err)

			req.Equal(tt.status, resp.StatusCode)
			for _, s := range tt.contains {
				req.Contains(string(body), s)
			}
			for _, s := range tt.excludes {
				req.NotContains(string(body), s)
			}
		})
	}
}

func TestWriteInspection(t *testing.T) {
	req := require.New(t)
	db := openDB(t)
	repository := NewMessageRepository(db, slog.Default(), nil)
	for _, ts := range []int64{1000, 2000, 3000} {
		_, err := repository.Append("public", message("Alice", ts))
		req.NoError(err)
	}

	var out bytes.Buffer
	req.NoError(WriteInspection(db, &out, "msg:public:", 2))

	req.Contains(out.String(), "1970-01-01T00:00:01Z")
	req.Contains(out.String(), "1970-01-01T00:00:02Z")
	req.NotContains(out.String(), "1970-01-01T00:00:03Z")
}
