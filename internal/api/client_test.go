package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/teamgrid/workspace-client/internal/errors"
	"github.com/teamgrid/workspace-client/internal/models"
)

type staticTokens string

func (s staticTokens) Token(ctx context.Context) (string, error) {
	return string(s), nil
}

type failingTokens struct{}

func (failingTokens) Token(ctx context.Context) (string, error) {
	return "", apperrors.New(apperrors.ErrCredentialExpired, "bearer credential has expired")
}

func messageItem(action models.SyncAction) *models.SyncQueueItem {
	return &models.SyncQueueItem{
		ID:       "q1",
		Action:   action,
		Kind:     models.KindMessage,
		EntityID: "m1",
		Payload:  json.RawMessage(`{"id":"m1","body":"hello","sent_at":1,"modified_at":1}`),
	}
}

func TestPushMessageCreate(t *testing.T) {
	var gotMethod, gotPath, gotAuth, gotContentType string
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"m1","body":"hello","sent_at":1,"modified_at":1}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, staticTokens("tok-1"))

	res, err := c.Push(context.Background(), messageItem(models.ActionCreate))
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/chat/messages", gotPath)
	assert.Equal(t, "Bearer tok-1", gotAuth)
	assert.Equal(t, "application/json", gotContentType)
	assert.JSONEq(t, `{"id":"m1","body":"hello","sent_at":1,"modified_at":1}`, string(gotBody))
	require.NotNil(t, res.ServerPayload)
}

func TestPushDeleteHasNoBody(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, staticTokens("tok-1"))

	res, err := c.Push(context.Background(), messageItem(models.ActionDelete))
	require.NoError(t, err)

	assert.Equal(t, http.MethodDelete, gotMethod)
	assert.Equal(t, "/chat/messages/m1", gotPath)
	assert.Empty(t, gotBody)
	assert.Nil(t, res.ServerPayload, "204 carries no server copy")
}

func TestPushFileCreateMultipart(t *testing.T) {
	var gotMeta string
	var gotFile []byte
	var gotFilename string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Error(err)
			return
		}
		gotMeta = r.FormValue("metadata")
		f, header, err := r.FormFile("file")
		if err != nil {
			t.Error(err)
			return
		}
		defer f.Close()
		gotFilename = header.Filename
		gotFile, _ = io.ReadAll(f)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, staticTokens("tok-1"))

	item := &models.SyncQueueItem{
		ID:       "q1",
		Action:   models.ActionCreate,
		Kind:     models.KindFile,
		EntityID: "f1",
		Payload: json.RawMessage(
			`{"id":"f1","name":"notes.txt","content_type":"text/plain","size":5,` +
				`"data":"aGVsbG8=","uploaded_at":1,"modified_at":1}`),
	}

	_, err := c.Push(context.Background(), item)
	require.NoError(t, err)

	assert.Equal(t, "notes.txt", gotFilename)
	assert.Equal(t, []byte("hello"), gotFile)

	var meta models.FileAsset
	require.NoError(t, json.Unmarshal([]byte(gotMeta), &meta))
	assert.Equal(t, models.UUID("f1"), meta.ID)
	assert.Empty(t, meta.Data, "file contents are carried by the file part only")
}

func TestPushRoutes(t *testing.T) {
	var gotMethod, gotPath string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, staticTokens("tok-1"))
	ctx := context.Background()

	tests := []struct {
		kind       models.EntityKind
		action     models.SyncAction
		payload    string
		wantMethod string
		wantPath   string
	}{
		{models.KindEvent, models.ActionCreate, `{"id":"e1","starts_at":1,"modified_at":1}`, http.MethodPost, "/calendar/events"},
		{models.KindEvent, models.ActionUpdate, `{"id":"e1","starts_at":1,"modified_at":2}`, http.MethodPost, "/calendar/events"},
		{models.KindEvent, models.ActionDelete, `{"id":"e1","starts_at":1,"modified_at":2}`, http.MethodDelete, "/calendar/events/e1"},
		{models.KindUser, models.ActionUpdate, `{"id":"u1","modified_at":1}`, http.MethodPut, "/users/profile"},
	}
	for _, tt := range tests {
		item := &models.SyncQueueItem{
			ID:      "q1",
			Action:  tt.action,
			Kind:    tt.kind,
			Payload: json.RawMessage(tt.payload),
		}
		id, err := models.EntityID(item.Payload)
		require.NoError(t, err)
		item.EntityID = id

		_, err = c.Push(ctx, item)
		require.NoError(t, err, "%s %s", tt.action, tt.kind)
		assert.Equal(t, tt.wantMethod, gotMethod)
		assert.Equal(t, tt.wantPath, gotPath)
	}
}

func TestPushUnroutablePair(t *testing.T) {
	c := NewClient("http://localhost:0", time.Second, staticTokens("tok-1"))

	item := messageItem(models.SyncAction("update"))
	_, err := c.Push(context.Background(), item)
	assert.True(t, apperrors.Is(err, apperrors.ErrQueueUnsupported))
}

func TestPushServerRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second, staticTokens("tok-1"))

	_, err := c.Push(context.Background(), messageItem(models.ActionCreate))
	assert.True(t, apperrors.Is(err, apperrors.ErrRemoteRejected))
	assert.True(t, apperrors.IsRetryable(err))
}

func TestPushUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewClient(srv.URL, time.Second, staticTokens("tok-1"))

	_, err := c.Push(context.Background(), messageItem(models.ActionCreate))
	assert.True(t, apperrors.Is(err, apperrors.ErrTransport))
	assert.True(t, apperrors.IsRetryable(err))
}

func TestPushCredentialFailureIsNotRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request must not reach the server without a credential")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, failingTokens{})

	_, err := c.Push(context.Background(), messageItem(models.ActionCreate))
	assert.True(t, apperrors.Is(err, apperrors.ErrCredentialExpired))
	assert.False(t, apperrors.IsRetryable(err))
}

func TestPingReachableEvenOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "degraded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, staticTokens("tok-1"))
	assert.NoError(t, c.Ping(context.Background()))
}

func TestPingUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewClient(srv.URL, time.Second, staticTokens("tok-1"))

	err := c.Ping(context.Background())
	assert.True(t, apperrors.Is(err, apperrors.ErrTransport))
}
