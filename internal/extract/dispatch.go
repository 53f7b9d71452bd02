package extract

import (
	"bytes"
	"context"
	"log/slog"
	"time"

	"github.com/ledgerlift/ingest/internal/ingesterr"
)

// Extractor handles one family of statement formats.
type Extractor interface {
	// Name is the stable extraction method name.
	Name() string
	// CanExtract reports whether this extractor recognizes the file.
	// Cheap: extension, MIME type, leading bytes only.
	CanExtract(ec *Context) bool
	// Extract parses the file. Row-level problems are recovered into
	// Warnings; file-level problems set Err and Success=false.
	Extract(ctx context.Context, ec *Context) *Result
}

// DispatchConfig bounds dispatching.
type DispatchConfig struct {
	// SizeCaps limit file size per extraction method; DefaultSizeCap
	// applies to methods not listed.
	SizeCaps       map[string]int64
	DefaultSizeCap int64
	// StageTimeout bounds a single extractor run.
	StageTimeout time.Duration
}

// DefaultDispatchConfig allows 25 MiB files and 2-minute stages.
func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		DefaultSizeCap: 25 << 20,
		StageTimeout:   2 * time.Minute,
	}
}

// Dispatcher routes a file to the first extractor that recognizes it.
// The extractor order is fixed at construction: structured formats are
// probed before heuristic ones.
type Dispatcher struct {
	extractors []Extractor
	cfg        DispatchConfig
	logger     *slog.Logger
}

// NewDispatcher builds a dispatcher over an ordered extractor set.
func NewDispatcher(extractors []Extractor, cfg DispatchConfig, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{extractors: extractors, cfg: cfg, logger: logger}
}

// sizeCap returns the effective cap for an extraction method.
func (d *Dispatcher) sizeCap(method string) int64 {
	if cap, ok := d.cfg.SizeCaps[method]; ok {
		return cap
	}
	return d.cfg.DefaultSizeCap
}

// Dispatch finds the first capable extractor and runs it under the stage
// timeout. No capable extractor yields a stable unsupported_format error;
// an overrun stage yields stage_timeout without hanging the batch.
func (d *Dispatcher) Dispatch(ctx context.Context, ec *Context) *Result {
	for _, ex := range d.extractors {
		if !ex.CanExtract(ec) {
			continue
		}

		if cap := d.sizeCap(ex.Name()); cap > 0 && ec.Size > cap {
			return failed(ex.Name(), ingesterr.New(ingesterr.CodeFileTooLarge, ingesterr.TierValidation,
				"file exceeds the size limit for this format").
				WithLocation("%s (%d bytes, cap %d)", ec.Filename, ec.Size, cap))
		}

		d.logger.Debug("dispatching file", "file", ec.Filename, "extractor", ex.Name())
		return d.runBounded(ctx, ex, ec)
	}

	if isArchive(ec.Data) {
		return failed("", ingesterr.New(ingesterr.CodeUnsupportedArchive, ingesterr.TierValidation,
			"archives are not accepted; upload the statement files directly").WithLocation("%s", ec.Filename))
	}
	return failed("", ingesterr.New(ingesterr.CodeUnsupportedFormat, ingesterr.TierValidation,
		"no extractor recognizes this file type").WithLocation("%s", ec.Filename))
}

// archiveMagics are the leading bytes of common archive containers. XLSX
// is zip-based too, but its extractor claims it by extension before this
// check runs.
var archiveMagics = [][]byte{
	{'P', 'K', 0x03, 0x04}, // zip
	{0x1f, 0x8b},           // gzip
	{'R', 'a', 'r', '!'},   // rar
	{'7', 'z', 0xbc, 0xaf}, // 7z
}

func isArchive(data []byte) bool {
	for _, magic := range archiveMagics {
		if bytes.HasPrefix(data, magic) {
			return true
		}
	}
	return false
}

// runBounded executes one extractor under the stage timeout. The extractor
// goroutine is abandoned on timeout; extractors are pure over their input
// bytes, so an abandoned run holds no resources beyond its own memory.
func (d *Dispatcher) runBounded(ctx context.Context, ex Extractor, ec *Context) *Result {
	if d.cfg.StageTimeout <= 0 {
		return ex.Extract(ctx, ec)
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.StageTimeout)
	defer cancel()

	done := make(chan *Result, 1)
	go func() {
		done <- ex.Extract(ctx, ec)
	}()

	select {
	case res := <-done:
		return res
	case <-ctx.Done():
		d.logger.Error("extraction stage timed out", "file", ec.Filename, "extractor", ex.Name(),
			"timeout", d.cfg.StageTimeout)
		return failed(ex.Name(), ingesterr.Wrap(ingesterr.CodeStageTimeout, ingesterr.TierSystem,
			"extraction did not finish within the stage timeout", ctx.Err()).
			WithLocation("%s via %s", ec.Filename, ex.Name()))
	}
}
