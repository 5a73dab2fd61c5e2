package archive

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeHandle struct {
	err       error
	cancelled int
}

func (h *fakeHandle) Cancel() error {
	h.cancelled++
	return h.err
}

func TestRegistryCancelAllContinuesPastFailures(t *testing.T) {
	obs := newMockObs()
	reg := NewRegistry(obs)

	ok1, bad, ok2 := &fakeHandle{}, &fakeHandle{err: errors.New("socket closed")}, &fakeHandle{}
	reg.Register(ok1)
	reg.Register(bad)
	reg.Register(ok2)
	require.Equal(t, 3, reg.Len())
	require.Equal(t, 3.0, obs.gauges["pvarchive_inflight_statements"])

	require.Equal(t, 2, reg.CancelAll())
	require.Equal(t, 1, ok1.cancelled)
	require.Equal(t, 1, bad.cancelled)
	require.Equal(t, 1, ok2.cancelled)
	require.Equal(t, 1, obs.warned("statement_cancel_failed"))
	require.Equal(t, 0, reg.Len())
	require.Equal(t, 0.0, obs.gauges["pvarchive_inflight_statements"])
	require.Equal(t, 2.0, obs.counters["pvarchive_cancellations_total"])

	require.Equal(t, 0, reg.CancelAll())
}

func TestRegistryUnregister(t *testing.T) {
	reg := NewRegistry(newMockObs())
	h := &fakeHandle{}
	reg.Register(h)
	reg.Unregister(h)
	reg.Unregister(h)
	require.Equal(t, 0, reg.Len())
	require.Equal(t, 0, reg.CancelAll())
	require.Zero(t, h.cancelled)
}

func TestStatementCancelledByCancelAll(t *testing.T) {
	reg := NewRegistry(newMockObs())
	ctx, st := reg.Begin(context.Background(), "raw #1", 0)
	require.Equal(t, 1, reg.Len())
	require.Equal(t, "raw #1", st.String())

	require.Equal(t, 1, reg.CancelAll())
	<-ctx.Done()
	require.ErrorIs(t, ctx.Err(), context.Canceled)

	st.Done()
	st.Done()
	require.Equal(t, 0, reg.Len())
}

func TestStatementDoneUnregisters(t *testing.T) {
	reg := NewRegistry(newMockObs())
	ctx, st := reg.Begin(context.Background(), "count #1", 0)
	st.Done()
	require.Equal(t, 0, reg.Len())
	require.Error(t, ctx.Err())
}
