package protocol

import (
	"errors"
	"testing"
	"time"

	"github.com/granddizzy/ItismAsyncio/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatListing(t *testing.T) {
	records := []store.FileRecord{
		{Name: "report", Size: 5000, ModTime: time.Unix(1700000000, 999)},
		{Name: "notes.txt", Size: 0, ModTime: time.Unix(1600000000, 0)},
	}

	assert.Equal(t, "report:5000:1700000000\nnotes.txt:0:1600000000", string(FormatListing(records)))
	assert.Empty(t, FormatListing(nil))
}

func TestParseListingRoundTrip(t *testing.T) {
	records := []store.FileRecord{
		{Name: "a", Size: 1, ModTime: time.Unix(10, 0)},
		{Name: "b c", Size: 2048, ModTime: time.Unix(20, 0)},
	}

	got, err := ParseListing(FormatListing(records))
	require.NoError(t, err)
	require.Len(t, got, 2)
	for i := range records {
		assert.Equal(t, records[i].Name, got[i].Name)
		assert.Equal(t, records[i].Size, got[i].Size)
		assert.True(t, records[i].ModTime.Equal(got[i].ModTime))
	}
}

func TestParseListingEmpty(t *testing.T) {
	got, err := ParseListing(nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestParseListingMalformed(t *testing.T) {
	for _, body := range []string{"noseparators", "a:1", "a:x:1", "a:1:y", "a:-1:0"} {
		_, err := ParseListing([]byte(body))
		assert.True(t, errors.Is(err, ErrProtocol), "body %q", body)
	}
}
