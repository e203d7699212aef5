package protocol

import (
	"strconv"
	"strings"
	"time"

	"github.com/granddizzy/ItismAsyncio/pkg/store"
)

// FormatListing builds the LIST body: one "name:size:mtime" record per file
// joined by '\n', mtime in integer unix seconds. An empty store yields an
// empty body.
func FormatListing(records []store.FileRecord) []byte {
	var b strings.Builder
	for i, rec := range records {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(rec.Name)
		b.WriteByte(':')
		b.WriteString(strconv.FormatInt(rec.Size, 10))
		b.WriteByte(':')
		b.WriteString(strconv.FormatInt(rec.ModTime.Unix(), 10))
	}
	return []byte(b.String())
}

// ParseListing decodes a LIST body produced by FormatListing.
func ParseListing(body []byte) ([]store.FileRecord, error) {
	text := strings.TrimRight(string(body), "\n")
	if text == "" {
		return []store.FileRecord{}, nil
	}

	lines := strings.Split(text, "\n")
	records := make([]store.FileRecord, 0, len(lines))
	for _, line := range lines {
		parts := strings.Split(line, ":")
		if len(parts) != 3 {
			return nil, newProtocolError(nil, "listing record %q: want name:size:mtime", line)
		}
		size, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || size < 0 {
			return nil, newProtocolError(nil, "listing record %q: bad size", line)
		}
		mtime, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			return nil, newProtocolError(nil, "listing record %q: bad mtime", line)
		}
		records = append(records, store.FileRecord{
			Name:    parts[0],
			Size:    size,
			ModTime: time.Unix(mtime, 0),
		})
	}
	return records, nil
}
