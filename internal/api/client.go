// Package api provides the HTTP client for the remote workspace API,
// one endpoint family per entity kind.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/teamgrid/workspace-client/internal/errors"
	"github.com/teamgrid/workspace-client/internal/models"
)

// TokenSource yields the bearer credential attached to every request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client calls the remote workspace API. Every call carries a fixed
// timeout; any 2xx is success, everything else is a transport/server
// failure for retry accounting.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
}

// PushResult is the outcome of a delivered mutation. ServerPayload is
// the server's copy of the record when the response carried one; the
// processor compares its modification marker against the local state.
type PushResult struct {
	ServerPayload json.RawMessage
}

// NewClient creates a new Client.
func NewClient(baseURL string, timeout time.Duration, tokens TokenSource) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		tokens: tokens,
	}
}

type routeKey struct {
	kind   models.EntityKind
	action models.SyncAction
}

type route struct {
	method string
	// path builds the request path; id is empty for collection routes.
	path func(id models.UUID) string
}

// routes is the static (action, entityKind) to endpoint mapping.
var routes = map[routeKey]route{
	{models.KindMessage, models.ActionCreate}: {http.MethodPost, func(models.UUID) string { return "/chat/messages" }},
	{models.KindMessage, models.ActionDelete}: {http.MethodDelete, func(id models.UUID) string { return "/chat/messages/" + id.String() }},
	{models.KindFile, models.ActionCreate}:    {http.MethodPost, func(models.UUID) string { return "/files/upload" }},
	{models.KindEvent, models.ActionCreate}:   {http.MethodPost, func(models.UUID) string { return "/calendar/events" }},
	{models.KindEvent, models.ActionUpdate}:   {http.MethodPost, func(models.UUID) string { return "/calendar/events" }},
	{models.KindEvent, models.ActionDelete}:   {http.MethodDelete, func(id models.UUID) string { return "/calendar/events/" + id.String() }},
	{models.KindUser, models.ActionUpdate}:    {http.MethodPut, func(models.UUID) string { return "/users/profile" }},
}

// Push delivers one queued mutation to its endpoint.
func (c *Client) Push(ctx context.Context, item *models.SyncQueueItem) (*PushResult, error) {
	rt, ok := routes[routeKey{item.Kind, item.Action}]
	if !ok {
		return nil, apperrors.New(apperrors.ErrQueueUnsupported,
			fmt.Sprintf("no endpoint for %s %s", item.Action, item.Kind))
	}

	var (
		body        io.Reader
		contentType string
		err         error
	)
	switch {
	case item.Kind == models.KindFile && item.Action == models.ActionCreate:
		body, contentType, err = multipartBody(item.Payload)
		if err != nil {
			return nil, err
		}
	case item.Action == models.ActionDelete:
		// no body
	default:
		body = bytes.NewReader(item.Payload)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, rt.method, c.baseURL+rt.path(item.EntityID), body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternal, "failed to build request", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.Wrap(apperrors.ErrTimeout, "request timed out", err)
		}
		return nil, apperrors.Wrap(apperrors.ErrTransport, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperrors.New(apperrors.ErrRemoteRejected,
			fmt.Sprintf("server returned %d for %s %s", resp.StatusCode, rt.method, rt.path(item.EntityID)))
	}

	result := &PushResult{}
	data, err := io.ReadAll(resp.Body)
	if err == nil && json.Valid(data) && len(bytes.TrimSpace(data)) > 0 {
		result.ServerPayload = json.RawMessage(data)
	}
	return result, nil
}

// Ping checks reachability of the remote API. Any HTTP response counts
// as reachable; only transport-level failures mean offline.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "failed to build request", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrTransport, "remote API unreachable", err)
	}
	resp.Body.Close()
	return nil
}

// multipartBody builds the multipart/form-data body for a file upload:
// a metadata field with the payload JSON (file contents stripped) and a
// file part with the raw data.
func multipartBody(payload json.RawMessage) (io.Reader, string, error) {
	asset := &models.FileAsset{}
	if err := json.Unmarshal(payload, asset); err != nil {
		return nil, "", apperrors.Wrap(apperrors.ErrValidation, "file payload is not decodable", err)
	}

	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	data := asset.Data
	asset.Data = nil
	meta, err := json.Marshal(asset)
	if err != nil {
		return nil, "", apperrors.Wrap(apperrors.ErrInternal, "failed to encode file metadata", err)
	}
	if err := w.WriteField("metadata", string(meta)); err != nil {
		return nil, "", apperrors.Wrap(apperrors.ErrInternal, "failed to write metadata field", err)
	}

	part, err := w.CreateFormFile("file", asset.Name)
	if err != nil {
		return nil, "", apperrors.Wrap(apperrors.ErrInternal, "failed to create file part", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", apperrors.Wrap(apperrors.ErrInternal, "failed to write file data", err)
	}

	if err := w.Close(); err != nil {
		return nil, "", apperrors.Wrap(apperrors.ErrInternal, "failed to finalize multipart body", err)
	}
	return buf, w.FormDataContentType(), nil
}
