package google

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearch_Web(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		q := r.URL.Query()
		assert.Equal(t, "test-key", q.Get("key"))
		assert.Equal(t, "cx-1", q.Get("cx"))
		assert.Equal(t, `"Jane Doe" "Acme"`, q.Get("q"))
		assert.Empty(t, q.Get("searchType"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[{"title":"Jane Doe | Acme","link":"https://acme.example/team/jane","displayLink":"acme.example","snippet":"Jane Doe leads engineering at Acme."}]}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", "cx-1", WithBaseURL(srv.URL))
	resp, err := client.Search(context.Background(), `"Jane Doe" "Acme"`)

	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "https://acme.example/team/jane", resp.Items[0].Link)
	assert.Equal(t, "Jane Doe leads engineering at Acme.", resp.Items[0].Snippet)
	assert.Nil(t, resp.Items[0].Image)
}

func TestSearch_Image(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "image", q.Get("searchType"))
		assert.Equal(t, "10", q.Get("num"))
		assert.Equal(t, "acme.example", q.Get("siteSearch"))

		_, _ = w.Write([]byte(`{"items":[{"link":"https://acme.example/jane.jpg","displayLink":"acme.example","mime":"image/jpeg","image":{"contextLink":"https://acme.example/team","width":400,"height":410}}]}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", "cx-1", WithBaseURL(srv.URL))
	resp, err := client.Search(context.Background(), "Jane Doe Acme",
		WithSearchType("image"), WithNum(25), WithSiteSearch("acme.example"))

	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	require.NotNil(t, resp.Items[0].Image)
	assert.Equal(t, 400, resp.Items[0].Image.Width)
	assert.Equal(t, 410, resp.Items[0].Image.Height)
}

func TestSearch_NoItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"searchInformation":{"totalResults":"0"}}`))
	}))
	defer srv.Close()

	resp, err := NewClient("k", "cx", WithBaseURL(srv.URL)).Search(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, resp.Items)
}

func TestSearch_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{name: "quota", status: http.StatusTooManyRequests, body: `{"error":{"message":"quota exceeded"}}`, wantErr: "unexpected status 429"},
		{name: "forbidden", status: http.StatusForbidden, body: `{"error":{"message":"bad key"}}`, wantErr: "bad key"},
		{name: "malformed", status: http.StatusOK, body: `{`, wantErr: "unmarshal response"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient("k", "cx", WithBaseURL(srv.URL)).Search(context.Background(), "q")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			if tt.status != http.StatusOK {
				var apiErr *APIError
				require.True(t, errors.As(err, &apiErr))
				assert.Equal(t, tt.status, apiErr.HTTPStatus())
			}
		})
	}
}

func TestWithNum_Clamps(t *testing.T) {
	t.Parallel()
	for in, want := range map[int]string{0: "1", 5: "5", 11: "10"} {
		v := make(map[string][]string)
		WithNum(in)(v)
		assert.Equal(t, []string{want}, v["num"])
	}
}

func TestNewClient_Defaults(t *testing.T) {
	t.Parallel()
	custom := &http.Client{}
	c := NewClient("k", "cx", WithHTTPClient(custom)).(*httpClient)
	assert.Equal(t, defaultBaseURL, c.baseURL)
	assert.Equal(t, "cx", c.cx)
	assert.Same(t, custom, c.http)
}
