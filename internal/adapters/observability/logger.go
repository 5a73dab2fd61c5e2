package observability

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/ghalamif/pvarchive/internal/ports"
)

// NewLogger returns a JSON logger at the given level ("debug", "info", ...).
// An empty level means info.
func NewLogger(w io.Writer, level string) (zerolog.Logger, error) {
	lvl := zerolog.InfoLevel
	if level != "" {
		var err error
		lvl, err = zerolog.ParseLevel(level)
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("log level %q: %w", level, err)
		}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Str("component", "pvarchive").Logger(), nil
}

// Nop discards logs and metrics. It is used where no observability is wired.
type Nop struct{}

func (Nop) LogDebug(string, ...ports.Field)        {}
func (Nop) LogInfo(string, ...ports.Field)         {}
func (Nop) LogWarn(string, error, ...ports.Field)  {}
func (Nop) LogError(string, error, ...ports.Field) {}
func (Nop) IncCounter(string, float64)             {}
func (Nop) ObserveLatency(string, float64)         {}
func (Nop) SetGauge(string, float64)               {}
