package crawl

import (
	"context"
	"net/http"
	"strings"

	"github.com/mmcdole/gofeed"
)

const maxPerFeed = 50

// feedLinks returns the item links of an RSS, Atom or JSON feed, newest
// first as the feed lists them.
func feedLinks(ctx context.Context, client *http.Client, userAgent, feedURL string) ([]string, error) {
	parser := gofeed.NewParser()
	parser.Client = client
	parser.UserAgent = userAgent

	feed, err := parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, err
	}

	var links []string
	for _, item := range feed.Items {
		if len(links) >= maxPerFeed {
			break
		}
		link := strings.TrimSpace(item.Link)
		if link == "" && strings.HasPrefix(item.GUID, "http") {
			link = item.GUID
		}
		if link != "" {
			links = append(links, link)
		}
	}
	return links, nil
}
