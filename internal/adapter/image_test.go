package adapter

import (
	"context"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/profile-cli/internal/config"
	"github.com/sells-group/profile-cli/pkg/google"
	"github.com/sells-group/profile-cli/pkg/google/mocks"
)

func img(u string, w, h int) ImageCandidate {
	return ImageCandidate{URL: u, Width: w, Height: h}
}

func TestFilterImages(t *testing.T) {
	t.Parallel()
	excluded := config.DefaultExcludedHosts

	tests := []struct {
		name  string
		cands []ImageCandidate
		want  []string
	}{
		{
			name: "squares_first_capped_at_three",
			cands: []ImageCandidate{
				img("https://a.example/wide.jpg", 800, 400),
				img("https://a.example/sq1.jpg", 400, 400),
				img("https://a.example/sq2.jpg", 410, 400),
				img("https://a.example/sq3.jpg", 400, 415),
				img("https://a.example/sq4.jpg", 500, 500),
			},
			want: []string{"https://a.example/sq1.jpg", "https://a.example/sq4.jpg", "https://a.example/sq2.jpg"},
		},
		{
			name: "backfill_with_best_non_square",
			cands: []ImageCandidate{
				img("https://a.example/wide.jpg", 900, 300),
				img("https://a.example/sq.jpg", 300, 300),
				img("https://a.example/tall.jpg", 300, 400),
				img("https://a.example/portrait.jpg", 300, 360),
			},
			want: []string{"https://a.example/sq.jpg", "https://a.example/portrait.jpg", "https://a.example/tall.jpg"},
		},
		{
			name: "excluded_hosts_dropped",
			cands: []ImageCandidate{
				img("https://scontent.fbcdn.net/p.jpg", 400, 400),
				img("https://www.linkedin.com/p.jpg", 400, 400),
				{URL: "https://cdn.example/p.jpg", Context: "https://www.instagram.com/jane", Width: 400, Height: 400},
				img("https://acme.example/p.jpg", 400, 400),
			},
			want: []string{"https://acme.example/p.jpg"},
		},
		{
			name: "out_of_range_dropped",
			cands: []ImageCandidate{
				img("https://a.example/tiny.jpg", 100, 100),
				img("https://a.example/huge.jpg", 2000, 2000),
				img("https://a.example/ok.jpg", 200, 200),
				img("https://a.example/edge.jpg", 1500, 1500),
			},
			want: []string{"https://a.example/ok.jpg", "https://a.example/edge.jpg"},
		},
		{
			name: "fallback_to_raw_urls",
			cands: []ImageCandidate{
				{URL: "https://twimg.com/x.jpg"},
				{URL: "https://a.example/1.jpg"},
				img("https://a.example/2.jpg", 50, 50),
				{URL: "https://a.example/3.jpg"},
				{URL: "https://a.example/4.jpg"},
			},
			want: []string{"https://a.example/1.jpg", "https://a.example/2.jpg", "https://a.example/3.jpg"},
		},
		{
			name:  "nothing",
			cands: nil,
			want:  nil,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, FilterImages(tc.cands, excluded))
		})
	}
}

// Whatever the mix, output never includes an excluded or out-of-range image
// when sized candidates exist, and three squares always beat any non-square.
func TestFilterImages_Invariants(t *testing.T) {
	t.Parallel()
	hosts := []string{"acme.example", "cdn.example", "facebook.com", "pinimg.com", "m.reddit.com"}
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		n := rng.Intn(12)
		cands := make([]ImageCandidate, n)
		squares := 0
		sized := 0
		for j := range cands {
			host := hosts[rng.Intn(len(hosts))]
			c := ImageCandidate{URL: fmt.Sprintf("https://%s/%d-%d.jpg", host, i, j)}
			if rng.Intn(5) > 0 {
				c.Width = 100 + rng.Intn(1600)
				c.Height = 100 + rng.Intn(1600)
				if rng.Intn(3) == 0 {
					c.Height = c.Width
				}
			}
			cands[j] = c
			if !excludedHost(c.URL, config.DefaultExcludedHosts) && inBounds(c.Width) && inBounds(c.Height) {
				sized++
				if isSquare(c) {
					squares++
				}
			}
		}

		got := FilterImages(cands, config.DefaultExcludedHosts)
		require.LessOrEqual(t, len(got), 3)

		byURL := make(map[string]ImageCandidate, n)
		for _, c := range cands {
			byURL[c.URL] = c
		}
		for _, u := range got {
			parsed, err := url.Parse(u)
			require.NoError(t, err)
			host := parsed.Hostname()
			assert.False(t, strings.HasSuffix(host, "facebook.com") || strings.HasSuffix(host, "pinimg.com") || strings.HasSuffix(host, "reddit.com"), u)
			if sized > 0 {
				c := byURL[u]
				assert.True(t, inBounds(c.Width) && inBounds(c.Height), u)
				if squares >= 3 {
					assert.True(t, isSquare(c), "non-square %s chosen over squares", u)
				}
			}
		}
	}
}

func isSquare(c ImageCandidate) bool {
	r := float64(c.Width) / float64(c.Height)
	return r >= 0.95 && r <= 1.05
}

func TestImage_Run(t *testing.T) {
	t.Parallel()
	client := mocks.NewMockClient(t)
	client.On("Search", mock.Anything, "Jane Doe Acme", mock.Anything).Return(&google.SearchResponse{
		Items: []google.Item{
			{Link: "https://acme.example/jane.jpg", Image: &google.ImageInfo{ContextLink: "https://acme.example/team", Width: 400, Height: 400}},
			{Link: "https://scontent.fbcdn.net/jane.jpg", Image: &google.ImageInfo{Width: 400, Height: 400}},
			{Link: "https://news.example/jane.jpg", Image: &google.ImageInfo{ContextLink: "https://news.example/a", Width: 600, Height: 300}},
		},
	}, nil).Once()

	res := NewImage(client, testCaller(), time.Second, config.DefaultExcludedHosts).Run(context.Background(), janeDoe)

	require.True(t, res.OK())
	assert.Equal(t, []string{"https://acme.example/jane.jpg", "https://news.example/jane.jpg"}, res.Images.URLs)
	assert.Equal(t, "https://acme.example/jane.jpg", res.Images.Primary())
	assert.Equal(t, "https://acme.example/team", res.Images.Sources["https://acme.example/jane.jpg"])
}

func TestImage_ProviderErrorFails(t *testing.T) {
	t.Parallel()
	client := mocks.NewMockClient(t)
	client.On("Search", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, &google.APIError{StatusCode: 429, Body: "quota"}).Once()

	res := NewImage(client, testCaller(), time.Second, nil).Run(context.Background(), janeDoe)

	require.False(t, res.OK())
	assert.Equal(t, "transient", res.Failure.Kind)
	assert.Contains(t, res.Message(), "429")
}

func TestImage_NoResultsCompletes(t *testing.T) {
	t.Parallel()
	client := mocks.NewMockClient(t)
	client.On("Search", mock.Anything, mock.Anything, mock.Anything).Return(&google.SearchResponse{}, nil).Once()

	res := NewImage(client, testCaller(), time.Second, nil).Run(context.Background(), janeDoe)

	require.True(t, res.OK())
	assert.Empty(t, res.Images.URLs)
	assert.Equal(t, "", res.Images.Primary())
}
