package archive

import (
	"math"
	"time"

	"github.com/ghalamif/pvarchive/internal/domain"
)

// SampleSource is a forward-only sample stream such as a RawIterator.
type SampleSource interface {
	HasNext() bool
	Next() (domain.Sample, error)
}

// window accumulates the numeric samples of one averaging bucket.
type window struct {
	index   int
	count   int64
	sum     float64
	min     float64
	max     float64
	alarm   domain.Alarm
	display *domain.Display
}

func (w *window) add(s domain.Sample, v float64) {
	lo, hi, n := v, v, int64(1)
	if s.Kind == domain.KindStatistics {
		lo, hi, n = s.Stats.Min, s.Stats.Max, max(s.Stats.Count, 1)
	}
	if w.count == 0 {
		w.min, w.max, w.alarm, w.display = lo, hi, s.Alarm, s.Display
	} else {
		w.min = math.Min(w.min, lo)
		w.max = math.Max(w.max, hi)
		if s.Alarm.Severity > w.alarm.Severity {
			w.alarm = s.Alarm
		}
	}
	w.sum += v * float64(n)
	w.count += n
}

// Averager reduces a time ordered sample stream to at most buckets
// statistics samples over fixed windows of (end-start)/buckets, anchored at
// start. Samples outside [start, end) are counted in the first or last
// window. Samples that carry no number (strings, arrays, NaN and the
// no-value alarm states) are passed through; inside a window they are
// emitted on either side of the window's centre stamp, so each window
// yields one aggregate and the output stays in time order.
type Averager struct {
	start   time.Time
	width   time.Duration
	buckets int

	cur  window
	held []domain.Sample
	out  []domain.Sample
}

func NewAverager(start, end time.Time, buckets int) *Averager {
	width := end.Sub(start) / time.Duration(buckets)
	if width <= 0 {
		width = 1
	}
	return &Averager{start: start, width: width, buckets: buckets}
}

// Add feeds the next sample.
func (a *Averager) Add(s domain.Sample) {
	idx := a.index(s.Time)
	a.closeBefore(idx)

	v, ok := s.Number()
	if !ok || math.IsNaN(v) || isNoValue(s.Alarm) || (s.Kind == domain.KindStatistics && s.Stats.Count == 0) {
		a.held = append(a.held, s)
		return
	}
	a.cur.index = idx
	a.cur.add(s, v)
}

func (a *Averager) index(t time.Time) int {
	idx := int(t.Sub(a.start) / a.width)
	return min(max(idx, 0), a.buckets-1)
}

// closeBefore emits the open window and the held samples of every window
// before idx.
func (a *Averager) closeBefore(idx int) {
	if a.cur.count > 0 && a.cur.index < idx {
		a.flush()
	}
	n := 0
	for n < len(a.held) && a.index(a.held[n].Time) < idx {
		n++
	}
	a.emitHeld(n)
}

func (a *Averager) emitHeld(n int) {
	a.out = append(a.out, a.held[:n]...)
	a.held = append(a.held[:0], a.held[n:]...)
}

// flush emits the open window's aggregate at the window centre, preceded
// and followed by the held samples of that window.
func (a *Averager) flush() {
	w := a.cur
	a.cur = window{}
	if w.count == 0 {
		return
	}
	centre := a.start.Add(a.width*time.Duration(w.index) + a.width/2)

	n := 0
	for n < len(a.held) && a.held[n].Time.Before(centre) {
		n++
	}
	a.emitHeld(n)

	avg := w.sum / float64(w.count)
	// summation error must not push the average out of range
	avg = math.Min(math.Max(avg, w.min), w.max)
	a.out = append(a.out, domain.NewStatistics(centre, w.alarm, domain.Statistics{
		Min:   w.min,
		Max:   w.max,
		Avg:   avg,
		Count: w.count,
	}, w.display))

	n = 0
	for n < len(a.held) && a.index(a.held[n].Time) <= w.index {
		n++
	}
	a.emitHeld(n)
}

// Result closes the last window and returns all emitted samples.
func (a *Averager) Result() []domain.Sample {
	a.flush()
	a.emitHeld(len(a.held))
	return a.out
}

// Average drains src through an Averager.
func Average(src SampleSource, start, end time.Time, buckets int) ([]domain.Sample, error) {
	if buckets <= 1 {
		return nil, ErrInvalidBucketCount
	}
	a := NewAverager(start, end, buckets)
	for src.HasNext() {
		s, err := src.Next()
		if err != nil {
			return nil, err
		}
		a.Add(s)
	}
	return a.Result(), nil
}

func isNoValue(alarm domain.Alarm) bool {
	return alarm.Severity == domain.SeverityUndefined && domain.IsNoValueStatus(alarm.Status)
}
