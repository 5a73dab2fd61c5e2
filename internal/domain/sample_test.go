package domain

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"
)

func TestSampleJSONWithDefaultDisplay(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewDouble(ts, NoAlarm(), 1.25, DefaultDisplay())

	raw, err := json.Marshal(&s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got struct {
		Double  *float64            `json:"double"`
		Display map[string]*float64 `json:"display"`
	}
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal %s: %v", raw, err)
	}
	if got.Double == nil || *got.Double != 1.25 {
		t.Fatalf("double = %v, want 1.25 in %s", got.Double, raw)
	}
	if v := got.Display["high"]; v == nil || *v != 10 {
		t.Fatalf("display.high = %v in %s", v, raw)
	}
	for _, key := range []string{"warn_low", "warn_high", "alarm_low", "alarm_high"} {
		v, ok := got.Display[key]
		if !ok || v != nil {
			t.Fatalf("display.%s should be null in %s", key, raw)
		}
	}
}

func TestSampleJSONNonFiniteValues(t *testing.T) {
	ts := time.Unix(0, 0).UTC()

	raw, err := json.Marshal(NewDouble(ts, NoAlarm(), math.NaN(), nil))
	if err != nil {
		t.Fatalf("marshal NaN double: %v", err)
	}
	if strings.Contains(string(raw), `"double"`) {
		t.Fatalf("NaN double should be omitted: %s", raw)
	}

	raw, err = json.Marshal(NewDoubleArray(ts, NoAlarm(), []float64{1, math.Inf(1), 3}, nil))
	if err != nil {
		t.Fatalf("marshal array: %v", err)
	}
	if !strings.Contains(string(raw), `"array":[1,null,3]`) {
		t.Fatalf("unexpected array encoding: %s", raw)
	}
}

func TestSampleJSONKeepsZeroDouble(t *testing.T) {
	raw, err := json.Marshal(NewDouble(time.Unix(0, 0).UTC(), NoAlarm(), 0, nil))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"double":0`) {
		t.Fatalf("zero double missing: %s", raw)
	}
}
