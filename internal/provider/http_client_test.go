package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, h http.HandlerFunc) *HTTPClient {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)

	client, err := NewHTTPClient(server.URL, "secret-key", testLogger())
	require.NoError(t, err)
	return client
}

func TestNewHTTPClient_RequiresKey(t *testing.T) {
	_, err := NewHTTPClient("https://provider.test", "", testLogger())
	require.Error(t, err)
}

func TestListWorkspaces_BareArray(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/workspaces", r.URL.Path)
		assert.Equal(t, "50", r.URL.Query().Get("page_limit"))
		assert.Equal(t, "secret-key", r.Header.Get("x-api-key"))
		assert.NotEmpty(t, r.Header.Get("X-Request-Id"))
		w.Write([]byte(`[{"id":"ws-1","name":"formcheck-videos"},{"id":"ws-2","name":"other"}]`))
	})

	got, err := client.ListWorkspaces(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, []Workspace{{ID: "ws-1", Name: "formcheck-videos"}, {ID: "ws-2", Name: "other"}}, got)
}

func TestListWorkspaces_DataEnvelope(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"_id":"ws-9","name":"formcheck-videos"}]}`))
	})

	got, err := client.ListWorkspaces(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, []Workspace{{ID: "ws-9", Name: "formcheck-videos"}}, got)
}

func TestListWorkspaces_MalformedBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>oops</html>`))
	})

	_, err := client.ListWorkspaces(context.Background(), 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedResponse))
}

func TestCreateWorkspace_SendsCapabilities(t *testing.T) {
	var received createWorkspaceRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"ws-new"}`))
	})

	id, err := client.CreateWorkspace(context.Background(), "formcheck-videos", []string{"visual", "audio"})
	require.NoError(t, err)
	assert.Equal(t, "ws-new", id)
	assert.Equal(t, "formcheck-videos", received.Name)
	assert.Equal(t, []string{"visual", "audio"}, received.Capabilities)
}

func TestSubmitJob_URL(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/jobs", r.URL.Path)
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "ws-1", r.FormValue("workspace_id"))
		assert.Equal(t, "https://cdn.test/squat.mp4", r.FormValue("video_url"))
		_, _, err := r.FormFile("video_file")
		assert.Error(t, err)
		w.Write([]byte(`{"id":"job-1"}`))
	})

	id, err := client.SubmitJob(context.Background(), SubmitRequest{WorkspaceID: "ws-1", VideoURL: "https://cdn.test/squat.mp4"})
	require.NoError(t, err)
	assert.Equal(t, "job-1", id)
}

func TestSubmitJob_Inline(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "ws-1", r.FormValue("workspace_id"))
		file, header, err := r.FormFile("video_file")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, []byte("fake-bytes"), data)
		assert.Equal(t, "squat.mov", header.Filename)
		assert.Equal(t, "video/quicktime", header.Header.Get("Content-Type"))
		w.Write([]byte(`{"id":"job-2"}`))
	})

	id, err := client.SubmitJob(context.Background(), SubmitRequest{
		WorkspaceID: "ws-1",
		Video:       &Upload{Filename: "squat.mov", ContentType: "video/quicktime", Data: []byte("fake-bytes")},
	})
	require.NoError(t, err)
	assert.Equal(t, "job-2", id)
}

func TestSubmitJob_MissingIDIsEmpty(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"accepted"}`))
	})

	id, err := client.SubmitJob(context.Background(), SubmitRequest{WorkspaceID: "ws-1", VideoURL: "https://cdn.test/a.mp4"})
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestSubmitJob_APIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":"video_duration_too_long","message":"too long"}`))
	})

	_, err := client.SubmitJob(context.Background(), SubmitRequest{WorkspaceID: "ws-1", VideoURL: "https://cdn.test/a.mp4"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "video_duration_too_long")
	assert.False(t, apiErr.IsServerError())
}

func TestGetJob_MediaIDShapes(t *testing.T) {
	cases := []struct {
		name string
		body string
		want JobStatus
	}{
		{"video_id", `{"status":"ready","video_id":"v-1"}`, JobStatus{Status: "ready", MediaID: "v-1"}},
		{"asset_id", `{"status":"submitted","asset_id":"a-1"}`, JobStatus{Status: "submitted", MediaID: "a-1"}},
		{"video string", `{"status":"ready","video":"v-2"}`, JobStatus{Status: "ready", MediaID: "v-2"}},
		{"video object", `{"status":"ready","video":{"_id":"v-3"}}`, JobStatus{Status: "ready", MediaID: "v-3"}},
		{"none", `{"status":"submitted"}`, JobStatus{Status: "submitted"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/jobs/job-1", r.URL.Path)
				w.Write([]byte(tc.body))
			})

			got, err := client.GetJob(context.Background(), "job-1")
			require.NoError(t, err)
			assert.Equal(t, tc.want, *got)
		})
	}
}

func TestAnalyze_SendsRequestAndReturnsRawBody(t *testing.T) {
	var received AnalyzeRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/analyze", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Write([]byte(`{"data":"Good depth."}`))
	})

	raw, err := client.Analyze(context.Background(), AnalyzeRequest{MediaID: "v-1", Prompt: "review", Temperature: 0.2, MaxTokens: 100})
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":"Good depth."}`, string(raw))
	assert.Equal(t, "v-1", received.MediaID)
	assert.False(t, received.Stream)
	assert.Equal(t, 100, received.MaxTokens)
}

func TestDo_PropagatesRequestID(t *testing.T) {
	var got string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("X-Request-Id")
		w.Write([]byte(`[]`))
	})

	ctx := ContextWithRequestID(context.Background(), "req-abc")
	_, err := client.ListWorkspaces(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "req-abc", got)
}

func TestDo_ContextCancelled(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.ListWorkspaces(ctx, 1)
	require.Error(t, err)
	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}
