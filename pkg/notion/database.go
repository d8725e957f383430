package notion

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// Queue statuses used on the enrichment queue database.
const (
	StatusQueued   = "Queued"
	StatusEnriched = "Enriched"
	StatusPartial  = "Partial"
	StatusFailed   = "Failed"
)

// QueryAll fetches all pages from a Notion database, following cursors.
// The next page is fetched in the background while the current one is
// appended.
func QueryAll(ctx context.Context, c Client, dbID string, filter *notionapi.DatabaseQueryRequest) ([]notionapi.Page, error) {
	newReq := func(cursor notionapi.Cursor) *notionapi.DatabaseQueryRequest {
		req := &notionapi.DatabaseQueryRequest{StartCursor: cursor}
		if filter != nil {
			req.Filter = filter.Filter
			req.Sorts = filter.Sorts
			req.PageSize = filter.PageSize
		}
		return req
	}

	type result struct {
		resp *notionapi.DatabaseQueryResponse
		err  error
	}

	var all []notionapi.Page
	var pending <-chan result
	for {
		var res result
		if pending != nil {
			res = <-pending
		} else {
			res.resp, res.err = c.QueryDatabase(ctx, dbID, newReq(""))
		}
		if res.err != nil {
			return nil, eris.Wrap(res.err, "notion: query all page")
		}

		all = append(all, res.resp.Results...)
		if !res.resp.HasMore {
			return all, nil
		}

		ch := make(chan result, 1)
		pending = ch
		next := newReq(res.resp.NextCursor)
		go func() {
			r, e := c.QueryDatabase(ctx, dbID, next)
			ch <- result{resp: r, err: e}
		}()
	}
}

// QueryQueued fetches all pages whose Status is Queued.
func QueryQueued(ctx context.Context, c Client, dbID string) ([]notionapi.Page, error) {
	filter := &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: "Status",
			Status: &notionapi.StatusFilterCondition{
				Equals: StatusQueued,
			},
		},
	}
	pages, err := QueryAll(ctx, c, dbID, filter)
	if err != nil {
		return nil, eris.Wrap(err, "notion: query queued entities")
	}
	return pages, nil
}

// SetStatus moves a queue page to status and stamps Last Enriched. A
// non-empty note is written to the Notes property, truncated to 200 chars.
func SetStatus(ctx context.Context, c Client, pageID, status, note string) error {
	now := notionapi.Date(time.Now())
	props := notionapi.Properties{
		"Status": notionapi.StatusProperty{
			Status: notionapi.Status{Name: status},
		},
		"Last Enriched": notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: &now},
		},
	}
	if note != "" {
		if len(note) > 200 {
			n := 200
			for n > 0 && !utf8.RuneStart(note[n]) {
				n--
			}
			note = note[:n]
		}
		props["Notes"] = notionapi.RichTextProperty{
			Type:     notionapi.PropertyTypeRichText,
			RichText: []notionapi.RichText{{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: note}}},
		}
	}

	_, err := c.UpdatePage(ctx, pageID, &notionapi.PageUpdateRequest{Properties: props})
	if err != nil {
		return eris.Wrap(err, fmt.Sprintf("notion: set page %s to %s", pageID, status))
	}
	return nil
}
