package adapter

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/profile-cli/internal/model"
	"github.com/sells-group/profile-cli/pkg/google"
)

const (
	minImageSide = 200
	maxImageSide = 1500
	squareLow    = 0.95
	squareHigh   = 1.05
	maxImages    = 3
	imageHits    = 10
)

// ImageCandidate is one image search hit.
type ImageCandidate struct {
	URL     string
	Context string
	Width   int
	Height  int
}

// Image searches for portrait candidates and ranks them with FilterImages.
type Image struct {
	client   google.Client
	caller   *Caller
	timeout  time.Duration
	excluded []string
}

// NewImage builds the image adapter. excluded lists hosts whose images are
// never used (social networks, CDNs behind login walls).
func NewImage(client google.Client, caller *Caller, timeout time.Duration, excluded []string) *Image {
	return &Image{client: client, caller: caller, timeout: timeout, excluded: excluded}
}

func (a *Image) Stage() model.Stage { return model.StageImage }

func (a *Image) Provider() string { return googleProvider }

func (a *Image) Run(ctx context.Context, req model.EnrichmentRequest) model.StageResult {
	log := logger(req, model.StageImage, googleProvider)

	query := req.Name + " " + req.Company
	resp, err := call(ctx, a.caller, googleProvider, model.StageImage, a.timeout, func(ctx context.Context) (*google.SearchResponse, error) {
		return a.client.Search(ctx, query, google.WithSearchType("image"), google.WithNum(imageHits))
	})
	if err != nil {
		log.Error("image: search failed", zap.Error(err))
		return failure(ctx, model.StageImage, googleProvider, a.timeout, err)
	}

	cands := make([]ImageCandidate, 0, len(resp.Items))
	for _, it := range resp.Items {
		c := ImageCandidate{URL: strings.TrimSpace(it.Link)}
		if it.Image != nil {
			c.Context = it.Image.ContextLink
			c.Width = it.Image.Width
			c.Height = it.Image.Height
		}
		if c.URL != "" {
			cands = append(cands, c)
		}
	}

	urls := FilterImages(cands, a.excluded)
	payload := model.ImagePayload{URLs: urls}
	if len(urls) > 0 {
		payload.Sources = make(map[string]string, len(urls))
		for _, u := range urls {
			for _, c := range cands {
				if c.URL == u && c.Context != "" {
					payload.Sources[u] = c.Context
					break
				}
			}
		}
	}

	log.Info("image: completed", zap.Int("candidates", len(cands)), zap.Int("selected", len(urls)))
	return model.ImageResult(payload)
}

// FilterImages drops candidates hosted on excluded hosts, keeps images whose
// sides are within bounds and returns at most three. Square images (ratio
// within [0.95, 1.05]) come first, then the remaining slots are backfilled with
// non-square ones; each group is ranked by min(w/h, h/w). When no candidate
// carries usable dimensions, the first three host-passing URLs are returned in
// search order.
func FilterImages(cands []ImageCandidate, excluded []string) []string {
	var (
		allowed []ImageCandidate
		squares []ImageCandidate
		others  []ImageCandidate
	)
	for _, c := range cands {
		if excludedHost(c.URL, excluded) || excludedHost(c.Context, excluded) {
			continue
		}
		allowed = append(allowed, c)
		if !inBounds(c.Width) || !inBounds(c.Height) {
			continue
		}
		if ratio := float64(c.Width) / float64(c.Height); ratio >= squareLow && ratio <= squareHigh {
			squares = append(squares, c)
		} else {
			others = append(others, c)
		}
	}

	if len(squares) == 0 && len(others) == 0 {
		var out []string
		for _, c := range allowed {
			if len(out) == maxImages {
				break
			}
			out = appendUnique(out, c.URL)
		}
		return out
	}

	byScore := func(list []ImageCandidate) {
		sort.SliceStable(list, func(i, j int) bool {
			return squareness(list[i]) > squareness(list[j])
		})
	}
	byScore(squares)
	byScore(others)

	var out []string
	for _, c := range append(squares, others...) {
		if len(out) == maxImages {
			break
		}
		out = appendUnique(out, c.URL)
	}
	return out
}

func inBounds(side int) bool {
	return side >= minImageSide && side <= maxImageSide
}

// squareness is 1 for a square and approaches 0 as the image stretches.
func squareness(c ImageCandidate) float64 {
	w, h := float64(c.Width), float64(c.Height)
	if w < h {
		return w / h
	}
	return h / w
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}

func excludedHost(raw string, excluded []string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host == "" {
		return false
	}
	for _, ex := range excluded {
		ex = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ex)), "www.")
		if ex == "" {
			continue
		}
		if host == ex || strings.HasSuffix(host, "."+ex) {
			return true
		}
	}
	return false
}
