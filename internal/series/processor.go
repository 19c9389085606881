package series

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"agribot/internal/models"
)

// IndexLayout formats bucket start times in a DisplaySeries index
const IndexLayout = "02 January, 15:04:05"

// Resample interval bounds, in seconds
const (
	MinResampleSeconds     = 1
	MaxResampleSeconds     = 50
	DefaultResampleSeconds = 25
)

// ErrInvalidInterval is returned for a resample interval outside 1-50 s
var ErrInvalidInterval = errors.New("resample interval out of range")

// ViewConfig is the user's chart selection for one render cycle
type ViewConfig struct {
	// Inclusive time range; a zero bound takes the day-aligned default
	Range TimeRange
	// Selected variables; duplicates are ignored
	Variables       []models.Variable
	ResampleSeconds int
	Live            bool
}

// Validate checks the resample interval
func (c ViewConfig) Validate() error {
	if c.ResampleSeconds < MinResampleSeconds || c.ResampleSeconds > MaxResampleSeconds {
		return fmt.Errorf("%w: %d", ErrInvalidInterval, c.ResampleSeconds)
	}
	return nil
}

// Options holds processor configuration
type Options struct {
	// Most recent samples kept in live mode
	LiveWindow int
	// Most recent samples kept otherwise
	DisplayWindow int
	// Minimum rows x columns in the filtered view
	MinScalars int
	// Upper bound on resampled buckets; wider spans yield EmptyRangeTooWide
	MaxBuckets int
	// Location used to format the index; UTC when nil
	Location *time.Location
}

// DefaultOptions returns the dashboard's display bounds.
func DefaultOptions() Options {
	return Options{
		LiveWindow:    100,
		DisplayWindow: 1000,
		MinScalars:    50,
		MaxBuckets:    10000,
		Location:      time.UTC,
	}
}

// Processor turns a raw reading snapshot into a regularized chart series.
// It holds no state between calls.
type Processor struct {
	opts Options
}

// NewProcessor creates a new processor
func NewProcessor(opts Options) *Processor {
	def := DefaultOptions()
	if opts.LiveWindow <= 0 {
		opts.LiveWindow = def.LiveWindow
	}
	if opts.DisplayWindow <= 0 {
		opts.DisplayWindow = def.DisplayWindow
	}
	if opts.MinScalars <= 0 {
		opts.MinScalars = def.MinScalars
	}
	if opts.MaxBuckets <= 0 {
		opts.MaxBuckets = def.MaxBuckets
	}
	if opts.Location == nil {
		opts.Location = def.Location
	}
	return &Processor{opts: opts}
}

// Process filters and resamples snap according to cfg. Routine empty
// outcomes come back as Result.Empty; errors are reserved for an invalid
// cfg and malformed readings.
func (p *Processor) Process(snap models.Snapshot, cfg ViewConfig) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	if snap.IsEmpty() {
		return empty(EmptyNoData), nil
	}

	readings := snap.Readings()
	if len(readings) == 0 {
		return empty(EmptyNoData), nil
	}
	for _, r := range readings {
		if err := r.Validate(); err != nil {
			return Result{}, err
		}
	}

	window := p.opts.DisplayWindow
	if cfg.Live {
		window = p.opts.LiveWindow
	}
	if len(readings) > window {
		readings = readings[len(readings)-window:]
	}

	all := newFrame(readings)
	filtered := all.slice(DefaultRange(readings, cfg.Range))

	columns := selectedColumns(cfg.Variables)
	filtered = filtered.selectColumns(columns)

	if len(columns) == 0 {
		return empty(EmptyNoVariables), nil
	}
	if all.rows() == 0 {
		return empty(EmptyNoDataFetched), nil
	}
	if filtered.rows() == 0 || filtered.size() < p.opts.MinScalars {
		return Result{Empty: &Empty{
			Kind: EmptyInsufficientData,
			Available: &TimeRange{
				Start: all.times[0],
				End:   all.times[all.rows()-1].Add(time.Minute),
			},
		}}, nil
	}

	interval := time.Duration(cfg.ResampleSeconds) * time.Second
	if n := filtered.buckets(interval); n > int64(p.opts.MaxBuckets) {
		return Result{Empty: &Empty{
			Kind: EmptyRangeTooWide,
			Available: &TimeRange{
				Start: filtered.times[0],
				End:   filtered.times[0].Add(time.Duration(p.opts.MaxBuckets) * interval),
			},
		}}, nil
	}
	resampled := filtered.resample(interval).selectColumns(columns)

	index := make([]string, resampled.rows())
	for i, t := range resampled.times {
		index[i] = t.In(p.opts.Location).Format(IndexLayout)
	}

	return Result{Series: &DisplaySeries{
		Index:    index,
		Times:    resampled.times,
		Columns:  resampled.columns,
		Values:   resampled.values,
		Interval: interval,
	}}, nil
}

// DefaultRange fills zero bounds of r: the start defaults to midnight of
// the first sample's day, the end to 23:59 of the last sample's day.
// readings must be ordered by timestamp.
func DefaultRange(readings []models.Reading, r TimeRange) TimeRange {
	if len(readings) == 0 {
		return r
	}
	if r.Start.IsZero() {
		r.Start = startOfDay(readings[0].Time())
	}
	if r.End.IsZero() {
		r.End = startOfDay(readings[len(readings)-1].Time()).Add(23*time.Hour + 59*time.Minute)
	}
	return r
}

// selectedColumns returns the selected variables in canonical order
func selectedColumns(selected []models.Variable) []models.Variable {
	want := make(map[models.Variable]bool, len(selected))
	for _, v := range selected {
		want[v] = true
	}
	out := make([]models.Variable, 0, len(want))
	for _, v := range models.Variables {
		if want[v] {
			out = append(out, v)
		}
	}
	return out
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// frame is a timestamp-indexed table of variable columns
type frame struct {
	times   []time.Time
	columns []models.Variable
	values  [][]float64
}

func newFrame(readings []models.Reading) frame {
	f := frame{
		times:   make([]time.Time, len(readings)),
		columns: models.Variables,
		values:  make([][]float64, len(readings)),
	}
	for i, r := range readings {
		f.times[i] = r.Time()
		row := make([]float64, len(models.Variables))
		for j, v := range models.Variables {
			row[j] = r.Value(v)
		}
		f.values[i] = row
	}
	return f
}

func (f frame) rows() int { return len(f.times) }

func (f frame) size() int { return len(f.times) * len(f.columns) }

// slice returns the rows whose time lies in r, bounds inclusive
func (f frame) slice(r TimeRange) frame {
	lo := 0
	if !r.Start.IsZero() {
		lo = sort.Search(len(f.times), func(i int) bool { return !f.times[i].Before(r.Start) })
	}
	hi := len(f.times)
	if !r.End.IsZero() {
		hi = sort.Search(len(f.times), func(i int) bool { return f.times[i].After(r.End) })
	}
	if hi < lo {
		hi = lo
	}
	return frame{times: f.times[lo:hi], columns: f.columns, values: f.values[lo:hi]}
}

// selectColumns keeps the given columns in the given order
func (f frame) selectColumns(cols []models.Variable) frame {
	idx := make([]int, 0, len(cols))
	kept := make([]models.Variable, 0, len(cols))
	for _, c := range cols {
		for j, have := range f.columns {
			if have == c {
				idx = append(idx, j)
				kept = append(kept, c)
				break
			}
		}
	}

	values := make([][]float64, len(f.values))
	for i, row := range f.values {
		out := make([]float64, len(idx))
		for k, j := range idx {
			out[k] = row[j]
		}
		values[i] = out
	}
	return frame{times: f.times, columns: kept, values: values}
}

// bucketSpan returns the origin and the first and last bucket numbers of
// the rows for interval. f must not be empty.
func (f frame) bucketSpan(interval time.Duration) (origin time.Time, first, last int64) {
	origin = startOfDay(f.times[0])
	first = int64(f.times[0].Sub(origin) / interval)
	last = int64(f.times[f.rows()-1].Sub(origin) / interval)
	return origin, first, last
}

// buckets returns how many buckets resample would produce
func (f frame) buckets(interval time.Duration) int64 {
	if f.rows() == 0 {
		return 0
	}
	_, first, last := f.bucketSpan(interval)
	return last - first + 1
}

// resample averages rows into fixed-width buckets. Bucket edges are
// origin + k*interval with origin at midnight UTC of the first row's day;
// buckets run from the first to the last one holding a row, and buckets
// without rows hold NaN.
func (f frame) resample(interval time.Duration) frame {
	if f.rows() == 0 {
		return frame{columns: f.columns}
	}

	origin, first, last := f.bucketSpan(interval)
	bucketOf := func(t time.Time) int64 { return int64(t.Sub(origin) / interval) }
	n := int(last-first) + 1

	sums := make([][]float64, n)
	counts := make([][]int, n)
	for b := range sums {
		sums[b] = make([]float64, len(f.columns))
		counts[b] = make([]int, len(f.columns))
	}
	for i, t := range f.times {
		b := bucketOf(t) - first
		for j, v := range f.values[i] {
			if math.IsNaN(v) {
				continue
			}
			sums[b][j] += v
			counts[b][j]++
		}
	}

	out := frame{
		times:   make([]time.Time, n),
		columns: f.columns,
		values:  make([][]float64, n),
	}
	for b := 0; b < n; b++ {
		out.times[b] = origin.Add(time.Duration(first+int64(b)) * interval)
		row := make([]float64, len(f.columns))
		for j := range row {
			if counts[b][j] == 0 {
				row[j] = math.NaN()
			} else {
				row[j] = sums[b][j] / float64(counts[b][j])
			}
		}
		out.values[b] = row
	}
	return out
}
