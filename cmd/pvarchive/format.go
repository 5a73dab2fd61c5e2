package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/ghalamif/pvarchive"
)

type sampleWriter struct {
	w   io.Writer
	enc *json.Encoder
}

func newSampleWriter(w io.Writer, asJSON bool) *sampleWriter {
	sw := &sampleWriter{w: w}
	if asJSON {
		sw.enc = json.NewEncoder(w)
	}
	return sw
}

func (sw *sampleWriter) write(s pvarchive.Sample) error {
	if sw.enc != nil {
		return sw.enc.Encode(&s)
	}
	_, err := fmt.Fprintf(sw.w, "%s\t%s\t%s\t%s\n",
		s.Time.UTC().Format(time.RFC3339Nano), formatValue(s), s.Alarm.Severity, s.Alarm.Status)
	return err
}

func formatValue(s pvarchive.Sample) string {
	switch s.Kind {
	case pvarchive.KindDouble:
		return strconv.FormatFloat(s.Double, 'g', -1, 64)
	case pvarchive.KindInteger:
		return strconv.FormatInt(s.Int, 10)
	case pvarchive.KindEnum:
		if label := s.Label(); label != "" {
			return label
		}
		return "<enum " + strconv.Itoa(s.Index) + ">"
	case pvarchive.KindString:
		return strconv.Quote(s.Text)
	case pvarchive.KindDoubleArray:
		return fmt.Sprint(s.Array)
	case pvarchive.KindStatistics:
		if s.Stats == nil {
			return "-"
		}
		return fmt.Sprintf("avg=%g min=%g max=%g n=%d", s.Stats.Avg, s.Stats.Min, s.Stats.Max, s.Stats.Count)
	default:
		return "-"
	}
}
