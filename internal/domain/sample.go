package domain

import (
	"encoding/json"
	"math"
	"time"
)

// ChannelID is the numeric key of a channel in the archive's channel table.
type ChannelID int64

// Channel is a resolved archive channel.
type Channel struct {
	ID   ChannelID `json:"channel_id"`
	Name string    `json:"name"`
}

// Kind tags which variant of a Sample is populated.
type Kind uint8

const (
	KindDouble Kind = iota + 1
	KindInteger
	KindEnum
	KindString
	KindDoubleArray
	KindStatistics
)

func (k Kind) String() string {
	switch k {
	case KindDouble:
		return "double"
	case KindInteger:
		return "integer"
	case KindEnum:
		return "enum"
	case KindString:
		return "string"
	case KindDoubleArray:
		return "double_array"
	case KindStatistics:
		return "statistics"
	default:
		return "unknown"
	}
}

// Display holds the numeric presentation ranges of a channel.
type Display struct {
	Low       float64 `json:"low"`
	High      float64 `json:"high"`
	WarnLow   float64 `json:"warn_low"`
	WarnHigh  float64 `json:"warn_high"`
	AlarmLow  float64 `json:"alarm_low"`
	AlarmHigh float64 `json:"alarm_high"`
	Unit      string  `json:"unit"`
	Precision int     `json:"precision"`
}

// DefaultDisplay is used for channels without numeric or enum metadata.
func DefaultDisplay() *Display {
	nan := math.NaN()
	return &Display{
		Low:       0,
		High:      10,
		WarnLow:   nan,
		WarnHigh:  nan,
		AlarmLow:  nan,
		AlarmHigh: nan,
	}
}

// MarshalJSON writes undefined (NaN) limits as null.
func (d Display) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Low       *float64 `json:"low"`
		High      *float64 `json:"high"`
		WarnLow   *float64 `json:"warn_low"`
		WarnHigh  *float64 `json:"warn_high"`
		AlarmLow  *float64 `json:"alarm_low"`
		AlarmHigh *float64 `json:"alarm_high"`
		Unit      string   `json:"unit"`
		Precision int      `json:"precision"`
	}{
		Low:       finite(d.Low),
		High:      finite(d.High),
		WarnLow:   finite(d.WarnLow),
		WarnHigh:  finite(d.WarnHigh),
		AlarmLow:  finite(d.AlarmLow),
		AlarmHigh: finite(d.AlarmHigh),
		Unit:      d.Unit,
		Precision: d.Precision,
	})
}

// finite maps NaN and the infinities, which JSON cannot carry, to nil.
func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Metadata is the cached per-channel presentation info. Labels is set for
// enumerated channels, Display otherwise.
type Metadata struct {
	Display *Display `json:"display,omitempty"`
	Labels  []string `json:"labels,omitempty"`
}

// IsEnum reports whether the channel carries enumeration labels.
func (m *Metadata) IsEnum() bool {
	return m != nil && len(m.Labels) > 0
}

// Statistics is the payload of a binned sample.
type Statistics struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	Count int64   `json:"count"`
}

// Sample is one decoded archive value. Kind selects which of the value
// fields is meaningful; the rest stay at their zero value.
type Sample struct {
	Time  time.Time `json:"ts"`
	Alarm Alarm     `json:"alarm"`
	Kind  Kind      `json:"kind"`

	Double  float64     `json:"double,omitempty"`
	Int     int64       `json:"int,omitempty"`
	Index   int         `json:"index,omitempty"`
	Labels  []string    `json:"labels,omitempty"`
	Text    string      `json:"text,omitempty"`
	Array   []float64   `json:"array,omitempty"`
	Stats   *Statistics `json:"stats,omitempty"`
	Display *Display    `json:"display,omitempty"`
}

// MarshalJSON writes non-finite doubles and array elements as null.
func (s Sample) MarshalJSON() ([]byte, error) {
	type plain Sample
	out := struct {
		plain
		Double *float64   `json:"double,omitempty"`
		Array  []*float64 `json:"array,omitempty"`
	}{plain: plain(s)}
	if s.Kind == KindDouble {
		out.Double = finite(s.Double)
	}
	if s.Array != nil {
		out.Array = make([]*float64, len(s.Array))
		for i, v := range s.Array {
			out.Array[i] = finite(v)
		}
	}
	return json.Marshal(out)
}

func NewDouble(ts time.Time, alarm Alarm, v float64, display *Display) Sample {
	return Sample{Time: ts, Alarm: alarm, Kind: KindDouble, Double: v, Display: display}
}

func NewInteger(ts time.Time, alarm Alarm, v int64, display *Display) Sample {
	return Sample{Time: ts, Alarm: alarm, Kind: KindInteger, Int: v, Display: display}
}

func NewEnum(ts time.Time, alarm Alarm, index int, labels []string) Sample {
	return Sample{Time: ts, Alarm: alarm, Kind: KindEnum, Index: index, Labels: labels}
}

func NewString(ts time.Time, alarm Alarm, text string) Sample {
	return Sample{Time: ts, Alarm: alarm, Kind: KindString, Text: text}
}

func NewDoubleArray(ts time.Time, alarm Alarm, values []float64, display *Display) Sample {
	return Sample{Time: ts, Alarm: alarm, Kind: KindDoubleArray, Array: values, Display: display}
}

func NewStatistics(ts time.Time, alarm Alarm, stats Statistics, display *Display) Sample {
	return Sample{Time: ts, Alarm: alarm, Kind: KindStatistics, Stats: &stats, Display: display}
}

// Number returns the sample's value as a float64 for numeric kinds.
// Statistics report their average; enums report the index.
func (s Sample) Number() (float64, bool) {
	switch s.Kind {
	case KindDouble:
		return s.Double, true
	case KindInteger:
		return float64(s.Int), true
	case KindEnum:
		return float64(s.Index), true
	case KindStatistics:
		if s.Stats == nil {
			return 0, false
		}
		return s.Stats.Avg, true
	default:
		return 0, false
	}
}

// Label returns the enum label for the sample index, or "" when the index
// is outside the label list.
func (s Sample) Label() string {
	if s.Kind != KindEnum || s.Index < 0 || s.Index >= len(s.Labels) {
		return ""
	}
	return s.Labels[s.Index]
}
