// Package feed polls RSS/Atom (with newznab:attr extensions) sources on a
// per-feed interval, classifies each item against history, runs new items
// through the filter engine, and enqueues the accepted ones.
package feed

import (
	"encoding/xml"
	"regexp"
	"strconv"
	"time"

	"github.com/nzbcore/gonzbd/internal/domain"
	"github.com/nzbcore/gonzbd/internal/nzb"
)

// rssDocument is the wire shape of a newznab-flavored RSS 2.0 feed.
type rssDocument struct {
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Items []rssItem `xml:"item"`
}

type rssItem struct {
	Title      string       `xml:"title"`
	GUID       string       `xml:"guid"`
	Link       string       `xml:"link"`
	PubDate    string       `xml:"pubDate"`
	Category   string       `xml:"category"`
	Enclosure  rssEnclosure `xml:"enclosure"`
	Attributes []rssAttr    `xml:"attr"`
}

type rssEnclosure struct {
	URL    string `xml:"url,attr"`
	Length int64  `xml:"length,attr"`
}

type rssAttr struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

func (it rssItem) attr(name string) string {
	for _, a := range it.Attributes {
		if a.Name == name {
			return a.Value
		}
	}
	return ""
}

var seasonEpisodeRe = regexp.MustCompile(`(?i)[sS](\d{1,2})[eE](\d{1,3})`)

// ParseRSS decodes a newznab-style RSS document into FeedItems, with
// season/episode extracted from the title when present and every
// newznab:attr surfaced in Attrs for the filter engine's field lookups.
func ParseRSS(data []byte) ([]*domain.FeedItem, error) {
	var doc rssDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	items := make([]*domain.FeedItem, 0, len(doc.Channel.Items))
	for _, it := range doc.Channel.Items {
		fi := &domain.FeedItem{
			Title:    it.Title,
			URL:      it.Link,
			Category: it.Category,
			Status:   domain.FeedItemNew,
			Attrs:    make(map[string]string, len(it.Attributes)),
		}

		if it.GUID != "" {
			fi.Attrs["guid"] = it.GUID
		}

		if it.Enclosure.URL != "" {
			fi.URL = it.Enclosure.URL
		}
		if it.Enclosure.Length > 0 {
			fi.Size = it.Enclosure.Length
		}

		for _, a := range it.Attributes {
			fi.Attrs[a.Name] = a.Value
			switch a.Name {
			case "size":
				if v, err := strconv.ParseInt(a.Value, 10, 64); err == nil {
					fi.Size = v
				}
			case "category":
				if fi.Category == "" {
					fi.Category = a.Value
				}
			}
		}

		if t, err := time.Parse(time.RFC1123Z, it.PubDate); err == nil {
			fi.Time = t
		}

		if m := seasonEpisodeRe.FindStringSubmatch(it.Title); m != nil {
			fi.Season, _ = strconv.Atoi(m[1])
			fi.Episode, _ = strconv.Atoi(m[2])
		}

		fi.Filename = fi.Title
		fi.DupeKey = domain.DupeKeyFor(fi.Title)
		if fi.Category != "" {
			fi.Attrs["category_name"] = nzb.GetCategoryName(fi.Category)
		}

		items = append(items, fi)
	}

	return items, nil
}
