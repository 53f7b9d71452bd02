package extract

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerlift/ingest/internal/ingesterr"
)

type fakeExtractor struct {
	name    string
	capable bool
	delay   time.Duration
	result  *Result
}

func (f *fakeExtractor) Name() string             { return f.name }
func (f *fakeExtractor) CanExtract(*Context) bool { return f.capable }

func (f *fakeExtractor) Extract(ctx context.Context, _ *Context) *Result {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
		}
	}
	return f.result
}

func TestDispatcher_FirstCapableWins(t *testing.T) {
	ok := &Result{Success: true, Method: "fake"}
	first := &fakeExtractor{name: "first", capable: false}
	second := &fakeExtractor{name: "second", capable: true, result: ok}
	third := &fakeExtractor{name: "third", capable: true, result: &Result{Method: "never"}}

	d := NewDispatcher([]Extractor{first, second, third}, DefaultDispatchConfig(), testLogger())
	res := d.Dispatch(context.Background(), fileContext("f.csv", "data"))
	assert.Same(t, ok, res)
}

func TestDispatcher_UnsupportedFormat(t *testing.T) {
	d := NewDispatcher([]Extractor{&fakeExtractor{name: "picky"}}, DefaultDispatchConfig(), testLogger())
	res := d.Dispatch(context.Background(), fileContext("f.bin", "\x00\x01"))
	assert.False(t, res.Success)
	assert.Equal(t, ingesterr.CodeUnsupportedFormat, ingesterr.CodeOf(res.Err))
}

func TestDispatcher_UnsupportedArchive(t *testing.T) {
	d := NewDispatcher([]Extractor{&fakeExtractor{name: "picky"}}, DefaultDispatchConfig(), testLogger())
	res := d.Dispatch(context.Background(), fileContext("f.zip", "PK\x03\x04rest"))
	assert.Equal(t, ingesterr.CodeUnsupportedArchive, ingesterr.CodeOf(res.Err))
}

func TestDispatcher_SizeCap(t *testing.T) {
	cfg := DefaultDispatchConfig()
	cfg.SizeCaps = map[string]int64{"fake": 4}

	d := NewDispatcher([]Extractor{&fakeExtractor{name: "fake", capable: true}}, cfg, testLogger())
	res := d.Dispatch(context.Background(), fileContext("big.csv", "way too many bytes"))
	assert.Equal(t, ingesterr.CodeFileTooLarge, ingesterr.CodeOf(res.Err))
	assert.Equal(t, ingesterr.TierValidation, ingesterr.TierOf(res.Err))
}

func TestDispatcher_StageTimeout(t *testing.T) {
	cfg := DefaultDispatchConfig()
	cfg.StageTimeout = 20 * time.Millisecond

	slow := &fakeExtractor{name: "slow", capable: true, delay: 5 * time.Second, result: &Result{Success: true}}
	d := NewDispatcher([]Extractor{slow}, cfg, testLogger())

	start := time.Now()
	res := d.Dispatch(context.Background(), fileContext("f.csv", "data"))
	require.Less(t, time.Since(start), time.Second)
	assert.Equal(t, ingesterr.CodeStageTimeout, ingesterr.CodeOf(res.Err))
}
