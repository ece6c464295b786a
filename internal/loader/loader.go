// Package loader reads each dataset's file into memory and replaces the
// matching table in the target database.
//
// Datasets are handled one at a time on a single repository. Each table is its
// own unit of work; a failure stops the run and leaves the tables already
// written in place.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"rawload/internal/dataset"
	"rawload/internal/logging"
	"rawload/internal/metrics"
	"rawload/internal/parser/csv"
	"rawload/internal/storage"
	"rawload/internal/tabular"
)

// ReadFunc reads one source file into a typed buffer.
type ReadFunc func(ctx context.Context, path string, opt csv.Options) (*tabular.Buffer, error)

// Options configures a Loader. Zero values select csv.ReadFile, a NullLogger
// and time.Now.
type Options struct {
	Parser csv.Options
	Logger logging.Logger
	Read   ReadFunc
	Now    func() time.Time
}

type Loader struct {
	parser csv.Options
	log    logging.Logger
	read   ReadFunc
	now    func() time.Time
}

func New(opts Options) *Loader {
	l := &Loader{
		parser: opts.Parser,
		log:    opts.Logger,
		read:   opts.Read,
		now:    opts.Now,
	}
	if l.log == nil {
		l.log = logging.NewNullLogger()
	}
	if l.read == nil {
		l.read = csv.ReadFile
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l
}

// Result describes one loaded dataset.
type Result struct {
	Dataset dataset.Descriptor
	Columns int
	Rows    int64
	Read    time.Duration
	Write   time.Duration
}

// Summary is what a completed (or partially completed) Load reports.
type Summary struct {
	Results  []Result
	Duration time.Duration
}

// Rows is the total number of rows written.
func (s Summary) Rows() int64 {
	var n int64
	for _, r := range s.Results {
		n += r.Rows
	}
	return n
}

// Connect opens the repository for cfg. Any failure is an ErrConnection; the
// factories ping before returning, so an unreachable database is reported
// before any file is read or table touched.
func Connect(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	repo, err := storage.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnection, cfg.Kind, err)
	}
	return repo, nil
}

// Load replaces the table of every descriptor, in order.
//
// For each descriptor the file is read completely before the table is
// touched, so a malformed file never drops its table. The returned Summary
// lists the datasets that completed, including on error.
func (l *Loader) Load(ctx context.Context, repo storage.Repository, ds []dataset.Descriptor) (Summary, error) {
	start := l.now()
	var sum Summary

	if len(ds) > 0 {
		if err := dataset.Validate(ds); err != nil {
			return sum, err
		}
	}

	for _, d := range ds {
		res, err := l.loadOne(ctx, repo, d)
		if err != nil {
			sum.Duration = l.now().Sub(start)
			return sum, err
		}
		sum.Results = append(sum.Results, res)
	}

	sum.Duration = l.now().Sub(start)
	return sum, nil
}

func (l *Loader) loadOne(ctx context.Context, repo storage.Repository, d dataset.Descriptor) (Result, error) {
	res := Result{Dataset: d}

	buf, took, err := l.readDataset(ctx, d)
	if err != nil {
		return res, err
	}
	res.Read = took
	res.Columns = len(buf.Columns)

	spec := storage.SpecFromBuffer(d.Table, buf)

	t0 := l.now()
	n, err := repo.ReplaceTable(ctx, spec, buf.Rows)
	res.Write = l.now().Sub(t0)
	if err == nil && n != int64(buf.Len()) {
		err = fmt.Errorf("wrote %d rows, want %d", n, buf.Len())
	}
	if err != nil {
		metrics.RecordStep("write", "error", res.Write)
		l.log.Error("dataset=%s table=%s stage=write error=%v", d.Name, d.Table, err)
		return res, classifyWrite(d, err)
	}
	metrics.RecordStep("write", "ok", res.Write)
	metrics.IncCounter(metrics.RecordsTotal, float64(n), metrics.Labels{"kind": d.Name})
	metrics.IncCounter(metrics.BatchesTotal, 1, nil)

	res.Rows = n
	l.log.Info("dataset=%s table=%s stage=write rows=%d duration=%s", d.Name, d.Table, n, res.Write.Truncate(time.Millisecond))
	return res, nil
}

// readDataset reads and logs one file, classifying failures.
func (l *Loader) readDataset(ctx context.Context, d dataset.Descriptor) (*tabular.Buffer, time.Duration, error) {
	l.log.Verbose("dataset=%s stage=read path=%s", d.Name, d.Path)

	t0 := l.now()
	buf, err := l.read(ctx, d.Path, l.parser)
	took := l.now().Sub(t0)
	if err != nil {
		metrics.RecordStep("read", "error", took)
		l.log.Error("dataset=%s path=%s stage=read error=%v", d.Name, d.Path, err)
		return nil, took, classifyRead(d, err)
	}
	metrics.RecordStep("read", "ok", took)

	l.log.Info("dataset=%s table=%s stage=read rows=%d cols=%d duration=%s",
		d.Name, d.Table, buf.Len(), len(buf.Columns), took.Truncate(time.Millisecond))
	for _, c := range buf.Columns {
		l.log.Verbose("dataset=%s column=%q type=%s", d.Name, c.Name, c.Type)
	}
	return buf, took, nil
}

// Schema is the inferred shape of one dataset file.
type Schema struct {
	Dataset dataset.Descriptor
	Spec    storage.TableSpec
	Rows    int
}

// Inspect parses every file and reports its inferred table without touching
// a database.
func (l *Loader) Inspect(ctx context.Context, ds []dataset.Descriptor) ([]Schema, error) {
	out := make([]Schema, 0, len(ds))
	for _, d := range ds {
		buf, _, err := l.readDataset(ctx, d)
		if err != nil {
			return out, err
		}
		out = append(out, Schema{
			Dataset: d,
			Spec:    storage.SpecFromBuffer(d.Table, buf),
			Rows:    buf.Len(),
		})
	}
	return out, nil
}

// Check compares one table with its source file.
type Check struct {
	Dataset     dataset.Descriptor
	WantColumns []string
	GotColumns  []string
	WantRows    int64
	GotRows     int64
	Missing     bool
}

// OK reports whether the table exists with the file's columns (in order) and
// row count.
func (c Check) OK() bool {
	if c.Missing || c.WantRows != c.GotRows {
		return false
	}
	// Document stores report no columns for an empty collection.
	if c.GotRows == 0 && c.GotColumns == nil {
		return true
	}
	if len(c.WantColumns) != len(c.GotColumns) {
		return false
	}
	for i := range c.WantColumns {
		if c.WantColumns[i] != c.GotColumns[i] {
			return false
		}
	}
	return true
}

// Verify re-reads every file and compares it with the table it was loaded
// into. All datasets are checked; if any differs the error wraps ErrMismatch.
func (l *Loader) Verify(ctx context.Context, repo storage.Repository, ds []dataset.Descriptor) ([]Check, error) {
	out := make([]Check, 0, len(ds))
	var bad []string
	for _, d := range ds {
		buf, _, err := l.readDataset(ctx, d)
		if err != nil {
			return out, err
		}
		c := Check{
			Dataset:     d,
			WantColumns: buf.ColumnNames(),
			WantRows:    int64(buf.Len()),
		}

		info, err := repo.DescribeTable(ctx, d.Table)
		switch {
		case errors.Is(err, storage.ErrTableNotFound):
			c.Missing = true
		case err != nil:
			if IsConnectionError(err) {
				return out, fmt.Errorf("%w: dataset %s: %w", ErrConnection, d.Name, err)
			}
			return out, fmt.Errorf("dataset %s: %w", d.Name, err)
		default:
			c.GotColumns = info.Columns
			c.GotRows = info.Rows
		}

		if !c.OK() {
			bad = append(bad, d.Name)
			l.log.Error("dataset=%s table=%s stage=verify missing=%t rows=%d want_rows=%d", d.Name, d.Table, c.Missing, c.GotRows, c.WantRows)
		} else {
			l.log.Info("dataset=%s table=%s stage=verify rows=%d ok", d.Name, d.Table, c.GotRows)
		}
		out = append(out, c)
	}
	if len(bad) > 0 {
		return out, fmt.Errorf("%w: %d of %d tables differ from their files: %v", ErrMismatch, len(bad), len(ds), bad)
	}
	return out, nil
}

func classifyRead(d dataset.Descriptor, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("dataset %s: %w", d.Name, err)
	}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return fmt.Errorf("%w: dataset %s: %w", ErrFileAccess, d.Name, err)
	}
	return fmt.Errorf("%w: dataset %s: %s: %w", ErrParse, d.Name, d.Path, err)
}

func classifyWrite(d dataset.Descriptor, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("dataset %s: table %s: %w", d.Name, d.Table, err)
	}
	if IsConnectionError(err) {
		return fmt.Errorf("%w: dataset %s: table %s: %w", ErrConnection, d.Name, d.Table, err)
	}
	return fmt.Errorf("%w: dataset %s: table %s: %w", ErrWrite, d.Name, d.Table, err)
}
