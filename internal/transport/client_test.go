package transport_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/enrollsync/internal/transport"
	"github.com/agentstation/enrollsync/pkg/errors"
	"github.com/agentstation/enrollsync/pkg/logging"
)

func TestClientJSON(t *testing.T) {
	ctx := context.Background()

	t.Run("applies credential and headers", func(t *testing.T) {
		var gotToken, gotContentType, gotBody string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotToken = r.Header.Get(transport.APITokenHeader)
			gotContentType = r.Header.Get("Content-Type")
			b, _ := io.ReadAll(r.Body)
			gotBody = string(b)
			_, _ = w.Write([]byte(`{"ids":["1"]}`))
		}))
		defer srv.Close()

		c := transport.New(transport.APITokenAuth(), "tok", transport.WithApp("10"))
		var out struct {
			IDs []string `json:"ids"`
		}
		err := c.JSON(ctx, http.MethodPost, srv.URL+"/k/v1/records.json", map[string]string{"app": "10"}, &out)
		require.NoError(t, err)
		assert.Equal(t, "tok", gotToken)
		assert.Equal(t, "application/json", gotContentType)
		assert.JSONEq(t, `{"app":"10"}`, gotBody)
		assert.Equal(t, []string{"1"}, out.IDs)
	})

	t.Run("non-200 becomes APIError with store message", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":"CB_VA01","id":"abc","message":"入力内容が正しくありません。"}`))
		}))
		defer srv.Close()

		c := transport.New(transport.APITokenAuth(), "tok", transport.WithApp("10"))
		err := c.JSON(ctx, http.MethodPut, srv.URL+"/k/v1/record.json", map[string]any{}, nil)
		var apiErr *errors.APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, "10", apiErr.App)
		assert.Equal(t, 400, apiErr.StatusCode)
		assert.Equal(t, "/k/v1/record.json", apiErr.Endpoint)
		assert.Contains(t, apiErr.Message, "CB_VA01")
	})

	t.Run("any status other than 200 fails", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte(`accepted`))
		}))
		defer srv.Close()

		err := transport.New(nil, "").JSON(ctx, http.MethodGet, srv.URL, nil, nil)
		var apiErr *errors.APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, "accepted", apiErr.Message)
	})

	t.Run("server errors classify as unavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		err := transport.New(nil, "").JSON(ctx, http.MethodGet, srv.URL, nil, nil)
		assert.True(t, errors.IsStoreUnavailable(err))
	})

	t.Run("throttled request is rate limited and logged", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"code":"GAIA_TM12","message":"リクエスト数が上限を超えています。"}`))
		}))
		defer srv.Close()

		tl := logging.NewTestLogger(t)
		err := transport.New(nil, "", transport.WithApp("3744")).JSON(tl.Context(ctx), http.MethodGet, srv.URL, nil, nil)
		assert.True(t, errors.IsRateLimited(err))
		assert.False(t, errors.IsStoreUnavailable(err))

		entry := tl.AssertMessage(t, zerolog.WarnLevel, "Remote store rejected request")
		assert.Equal(t, "3744", entry.Str("app"))
	})

	t.Run("connection failure classifies as unavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		url := srv.URL
		srv.Close()

		err := transport.New(nil, "", transport.WithHTTPClient(srv.Client())).JSON(ctx, http.MethodGet, url, nil, nil)
		assert.True(t, errors.IsStoreUnavailable(err))
	})

	t.Run("malformed json", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"records":`))
		}))
		defer srv.Close()

		var out map[string]any
		err := transport.New(nil, "").JSON(ctx, http.MethodGet, srv.URL, nil, &out)
		var pe *errors.ParseError
		assert.True(t, errors.As(err, &pe))
	})
}

func TestGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	resp, err := transport.New(&transport.BearerAuth{}, "k").Get(context.Background(), srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	assert.True(t, strings.HasPrefix(string(b), "ok"))
}
