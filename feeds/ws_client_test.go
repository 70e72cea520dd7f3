package feeds

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleMessage_SnapshotScansForBestLevels(t *testing.T) {
	cache := NewPriceCache()
	c := NewWSClient("", cache)

	// Venue order: bids and asks both worst-first. The best bid is the
	// highest, the best ask the lowest, regardless of position.
	msg := []byte(`[{
		"market": "0xabc",
		"asset_id": "tok-yes",
		"bids": [
			{"price": "0.30", "size": "50"},
			{"price": "0.41", "size": "120"},
			{"price": "0.38", "size": "90"}
		],
		"asks": [
			{"price": "0.60", "size": "40"},
			{"price": "0.44", "size": "200"},
			{"price": "0.51", "size": "75"}
		]
	}]`)
	c.handleMessage(msg)

	entry, ok := cache.GetFresh("tok-yes", time.Minute)
	require.True(t, ok)
	assert.True(t, entry.BestBid.Equal(d("0.41")), "bid %s", entry.BestBid)
	assert.True(t, entry.BestAsk.Equal(d("0.44")), "ask %s", entry.BestAsk)
	assert.True(t, entry.BidSize.Equal(d("120")))
	assert.True(t, entry.AskSize.Equal(d("200")))
}

func TestHandleMessage_SnapshotSkipsUnparsableLevels(t *testing.T) {
	cache := NewPriceCache()
	c := NewWSClient("", cache)

	msg := []byte(`[{
		"asset_id": "tok-no",
		"bids": [{"price": "junk", "size": "10"}, {"price": "0.52", "size": "60"}],
		"asks": [{"price": "0", "size": "10"}, {"price": "0.55", "size": "80"}]
	}]`)
	c.handleMessage(msg)

	entry, ok := cache.GetFresh("tok-no", time.Minute)
	require.True(t, ok)
	assert.True(t, entry.BestBid.Equal(d("0.52")))
	assert.True(t, entry.BestAsk.Equal(d("0.55")))
}
