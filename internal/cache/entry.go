package cache

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"sync/atomic"
	"time"

	"unshub/internal/api"
)

// Entry is the decoded cache value: a topic's configuration plus, when one
// has been observed, its latest data point.
type Entry struct {
	Config api.TopicConfiguration `json:"config"`
	Latest *api.DataPoint         `json:"latest,omitempty"`
}

// l1Item is a hot-tier slot: the decoded entry with access bookkeeping.
type l1Item struct {
	entry        atomic.Pointer[Entry]
	lastAccessed atomic.Int64 // unix milli
	accessCount  atomic.Int64
}

func newL1Item(e Entry) *l1Item {
	item := &l1Item{}
	item.entry.Store(&e)
	item.touch()
	return item
}

func (i *l1Item) touch() {
	i.lastAccessed.Store(time.Now().UnixMilli())
	i.accessCount.Add(1)
}

func (i *l1Item) idle() time.Duration {
	return time.Duration(time.Now().UnixMilli()-i.lastAccessed.Load()) * time.Millisecond
}

// l2Item is a warm-tier slot: the entry as a compressed JSON blob.
type l2Item struct {
	blob         []byte
	lastAccessed atomic.Int64
	accessCount  atomic.Int64
}

func newL2Item(blob []byte, accessCount int64) *l2Item {
	item := &l2Item{blob: blob}
	item.lastAccessed.Store(time.Now().UnixMilli())
	item.accessCount.Store(accessCount)
	return item
}

func (i *l2Item) touch() {
	i.lastAccessed.Store(time.Now().UnixMilli())
	i.accessCount.Add(1)
}

func (i *l2Item) idle() time.Duration {
	return time.Duration(time.Now().UnixMilli()-i.lastAccessed.Load()) * time.Millisecond
}

// l3Item is a cold-tier marker: no payload, only the hint that the
// repository likely knows the key.
type l3Item struct {
	lastAccessed atomic.Int64
}

func newL3Item() *l3Item {
	item := &l3Item{}
	item.lastAccessed.Store(time.Now().UnixMilli())
	return item
}

func (i *l3Item) idle() time.Duration {
	return time.Duration(time.Now().UnixMilli()-i.lastAccessed.Load()) * time.Millisecond
}

// encodeEntry serialises and gzip-compresses an entry for the warm tier.
func encodeEntry(e Entry) ([]byte, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeEntry reverses encodeEntry.
func decodeEntry(blob []byte) (Entry, error) {
	zr, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return Entry{}, err
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return Entry{}, err
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, err
	}
	return e, nil
}
