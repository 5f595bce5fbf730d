// Package kintone implements recordstore.App over the record store's REST API.
package kintone

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/agentstation/enrollsync/internal/transport"
	"github.com/agentstation/enrollsync/pkg/errors"
	"github.com/agentstation/enrollsync/pkg/logging"
	"github.com/agentstation/enrollsync/pkg/recordstore"
)

const (
	recordsPath = "/k/v1/records.json"
	recordPath  = "/k/v1/record.json"
)

// App is one remote application reached over HTTP.
type App struct {
	base   string
	id     string
	client *transport.Client
}

// New binds an application id and its API token to a store base URL such
// as https://example.cybozu.com.
func New(baseURL, appID, credential string, opts ...transport.Option) *App {
	opts = append([]transport.Option{transport.WithApp(appID)}, opts...)
	return &App{
		base:   strings.TrimRight(baseURL, "/"),
		id:     appID,
		client: transport.New(transport.APITokenAuth(), credential, opts...),
	}
}

// ID implements recordstore.App.
func (a *App) ID() string { return a.id }

type queryResponse struct {
	Records []recordstore.Record `json:"records"`
}

// Query implements recordstore.App.
func (a *App) Query(ctx context.Context, filter recordstore.Filter, fields []string, offset, limit int) ([]recordstore.Record, error) {
	params := url.Values{}
	params.Set("app", a.id)
	params.Set("query", Query(filter, offset, limit))
	for i, f := range fields {
		params.Set("fields["+strconv.Itoa(i)+"]", f)
	}

	var resp queryResponse
	if err := a.client.JSON(ctx, http.MethodGet, a.base+recordsPath+"?"+params.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Records == nil {
		resp.Records = []recordstore.Record{}
	}

	logging.FromContext(ctx).Trace().
		Str("app", a.id).
		Int("offset", offset).
		Int("records", len(resp.Records)).
		Msg("Query returned")
	return resp.Records, nil
}

type createRequest struct {
	App     string               `json:"app"`
	Records []recordstore.Record `json:"records"`
}

// Create implements recordstore.App.
func (a *App) Create(ctx context.Context, records []recordstore.Record) error {
	if len(records) == 0 {
		return nil
	}
	return a.client.JSON(ctx, http.MethodPost, a.base+recordsPath, createRequest{App: a.id, Records: writable(records)}, nil)
}

type updateRequest struct {
	App     string               `json:"app"`
	Records []recordstore.Update `json:"records"`
}

// Update implements recordstore.App.
func (a *App) Update(ctx context.Context, updates []recordstore.Update) error {
	if len(updates) == 0 {
		return nil
	}
	out := make([]recordstore.Update, len(updates))
	for i, u := range updates {
		out[i] = recordstore.Update{ID: u.ID, Record: writableRecord(u.Record)}
	}
	return a.client.JSON(ctx, http.MethodPut, a.base+recordsPath, updateRequest{App: a.id, Records: out}, nil)
}

type updateOneRequest struct {
	App    string             `json:"app"`
	ID     string             `json:"id"`
	Record recordstore.Record `json:"record"`
}

// UpdateOne implements recordstore.App.
func (a *App) UpdateOne(ctx context.Context, u recordstore.Update) error {
	if u.ID == "" {
		return errors.NewValidationError("id", u.ID, "record id is required")
	}
	req := updateOneRequest{App: a.id, ID: u.ID, Record: writableRecord(u.Record)}
	return a.client.JSON(ctx, http.MethodPut, a.base+recordPath, req, nil)
}

// writableRecord drops the field type returned by queries and the record id,
// neither of which the store accepts on writes.
func writableRecord(r recordstore.Record) recordstore.Record {
	out := make(recordstore.Record, len(r))
	for code, f := range r {
		if code == "$id" || code == "$revision" {
			continue
		}
		out[code] = recordstore.Field{Value: f.Value}
	}
	return out
}

func writable(records []recordstore.Record) []recordstore.Record {
	out := make([]recordstore.Record, len(records))
	for i, r := range records {
		out[i] = writableRecord(r)
	}
	return out
}

var _ recordstore.App = (*App)(nil)
