package ledger

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chatsync/internal/event"
)

func TestLedger_New(t *testing.T) {
	l := New()
	require.NotNil(t, l)
	assert.Equal(t, 0, l.Len())
	assert.False(t, l.Seen("0x1-0"))
}

func TestLedger_RecordThenSeen(t *testing.T) {
	l := New()

	assert.True(t, l.Record("0x1-0"), "first record should report new key")
	assert.True(t, l.Seen("0x1-0"))
	assert.False(t, l.Seen("0x1-1"), "different log index is a different occurrence")

	assert.False(t, l.Record("0x1-0"), "second record should report existing key")
	assert.Equal(t, 1, l.Len())
}

func TestLedger_Reset(t *testing.T) {
	l := New()
	l.Record("0x1-0")
	l.Record("0x2-0")

	l.Reset()

	assert.Equal(t, 0, l.Len())
	assert.False(t, l.Seen("0x1-0"))
}

func TestLedger_ConcurrentRecord(t *testing.T) {
	l := New()
	var wg sync.WaitGroup
	var mu sync.Mutex
	fresh := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Record(event.DedupKey("0xaa-1")) {
				mu.Lock()
				fresh++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, fresh, "exactly one goroutine should win the record")
	assert.Equal(t, 1, l.Len())
}
