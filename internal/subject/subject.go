// Package subject derives a usable filename from a raw NZB or feed item
// subject line, the way posters have formatted Usenet subjects for decades:
// either the real filename quoted in double quotes, or a counter/yEnc
// suffix to strip off everything else.
package subject

import (
	"html"
	"regexp"
	"strings"
)

var (
	reYenc       = regexp.MustCompile(`(?i)\s+yenc.*$`)
	reLeadCount  = regexp.MustCompile(`^\[?\(?\d+/\d+\)?\]?\s*`)
	reBadChars   = regexp.MustCompile(`[\\/:*?"<>|]`)
	rePar2Volume = regexp.MustCompile(`(?i)\.vol\d+\+\d+\.par2$`)
)

// Guess extracts a candidate filename from a raw subject line. confirmed
// reports whether the quoted-filename pattern matched (a strong signal) as
// opposed to the metadata-stripping fallback (a weak signal the downloader
// may later override once a yEnc header has parsed).
func Guess(rawSubject string) (name string, confirmed bool) {
	res := html.UnescapeString(rawSubject)

	firstQuote := strings.Index(res, "\"")
	lastQuote := strings.LastIndex(res, "\"")
	if firstQuote != -1 && lastQuote != -1 && firstQuote < lastQuote {
		return sanitize(res[firstQuote+1 : lastQuote]), true
	}

	res = reYenc.ReplaceAllString(res, "")
	res = reLeadCount.ReplaceAllString(res, "")
	return sanitize(res), false
}

func sanitize(name string) string {
	name = reBadChars.ReplaceAllString(name, "_")
	return strings.TrimSpace(name)
}

// IsPar2 reports whether name is a .par2 index or recovery volume file.
func IsPar2(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".par2")
}

// IsPar2Volume reports whether name is specifically a recovery volume
// (name.volNNN+MMM.par2), as opposed to the base index file.
func IsPar2Volume(name string) bool {
	return rePar2Volume.MatchString(name)
}
