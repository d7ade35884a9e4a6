// Package nzb parses NZB XML documents into the job/file/article domain
// model used by the rest of the queue.
package nzb

import (
	"encoding/xml"
	"fmt"
	"io"

	"github.com/segmentio/ksuid"

	"github.com/nzbcore/gonzbd/internal/domain"
	"github.com/nzbcore/gonzbd/internal/infra/logger"
	"github.com/nzbcore/gonzbd/internal/subject"
)

// xmlDocument is the raw XML shape of an NZB file.
type xmlDocument struct {
	Meta  []xmlMeta `xml:"head>meta"`
	Files []xmlFile `xml:"file"`
}

type xmlMeta struct {
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

type xmlFile struct {
	Subject  string       `xml:"subject,attr"`
	Poster   string       `xml:"poster,attr"`
	Date     int64        `xml:"date,attr"`
	Groups   []string     `xml:"groups>group"`
	Segments []xmlSegment `xml:"segments>segment"`
}

type xmlSegment struct {
	Number    int    `xml:"number,attr"`
	Bytes     int64  `xml:"bytes,attr"`
	MessageID string `xml:",chardata"`
}

// Parser turns NZB XML bytes into a Job ready to be queued. One Parser is
// stateless and safe for concurrent use.
type Parser struct {
	logger *logger.Logger
}

// NewParser builds a Parser that logs malformed-file skips through log.
func NewParser(log *logger.Logger) *Parser {
	return &Parser{logger: log}
}

// Parse decodes an NZB document and builds a Job named displayName (the
// filename the NZB arrived under, or the feed item's title). Files with no
// segments, or whose subject yields an empty filename, are skipped with a
// warning rather than failing the whole job (§8 edge cases).
func (p *Parser) Parse(r io.Reader, displayName, sourceName, destDir, category string) (*domain.Job, error) {
	var doc xmlDocument
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("nzb: malformed xml: %w", err)
	}

	job := domain.NewJob(ksuid.New().String(), displayName, sourceName, domain.JobKindNZBCollection)
	job.DestDir = destDir
	job.Category = category
	job.Messages = domain.NewMessageLog(1000)

	var password string
	for _, m := range doc.Meta {
		if m.Type == "password" {
			password = m.Value
		}
	}
	if password != "" {
		job.Parameters = map[string]string{"password": password}
	}

	for i, raw := range doc.Files {
		if len(raw.Segments) == 0 {
			p.warn(job, "skipping file %d: no segments (subject=%q)", i, raw.Subject)
			continue
		}

		name, confirmed := subject.Guess(raw.Subject)
		if name == "" {
			p.warn(job, "skipping file %d: could not derive a filename from subject %q", i, raw.Subject)
			continue
		}

		articles := make([]*domain.Article, 0, len(raw.Segments))
		for _, seg := range raw.Segments {
			if seg.MessageID == "" {
				continue
			}
			articles = append(articles, domain.NewArticle(seg.Number, seg.MessageID, seg.Bytes))
		}
		if len(articles) == 0 {
			p.warn(job, "skipping file %d: no usable segments after validation", i)
			continue
		}

		file := domain.NewFile(ksuid.New().String(), job.ID, raw.Subject, raw.Groups, articles)
		file.SetFilename(name, confirmed)
		job.Files = append(job.Files, file)
	}

	if len(job.Files) == 0 {
		return nil, domain.ErrEmptyJob
	}

	for _, f := range job.Files {
		job.Size += f.TotalSize
		job.FileCount++
	}
	job.RemainingSize = job.Size
	job.RecountParFiles()

	return job, nil
}

func (p *Parser) warn(job *domain.Job, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if p.logger != nil {
		p.logger.Warn("nzb parser: %s", msg)
	}
	if job.Messages != nil {
		job.Messages.Add("WARNING", msg)
	}
}
