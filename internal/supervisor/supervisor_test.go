package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cryorig/refrigctl/internal/severity"
	"github.com/cryorig/refrigctl/internal/values"
)

type fakeSink struct {
	full   bool
	pushed []string
}

func (f *fakeSink) TryPush(device, cmd string) bool {
	if f.full {
		return false
	}
	f.pushed = append(f.pushed, device+" "+cmd)
	return true
}

func newTestSupervisor() (*Supervisor, *values.RoutingTable, *fakeSink) {
	routing := values.NewRoutingTable()
	routing.Add("V13", "box")
	sink := &fakeSink{}
	s := New(values.NewMap(), severity.NewChannel(), routing, map[string]CommandSink{"box": sink})
	return s, routing, sink
}

func TestSendCommandRoutesToWorker(t *testing.T) {
	s, _, sink := newTestSupervisor()
	s.SendCommand("V13", "40")
	require.Equal(t, []string{"V13 40"}, sink.pushed)
}

func TestSendCommandUnknownDeviceIsError(t *testing.T) {
	s, _, _ := newTestSupervisor()
	s.SendCommand("Bogus", "1")
	rec, ok := s.errs.TryRecv()
	require.True(t, ok)
	require.Equal(t, severity.Error, rec.Severity)
}

func TestSendCommandQueueFullIsError(t *testing.T) {
	s, _, sink := newTestSupervisor()
	sink.full = true
	s.SendCommand("V13", "40")
	rec, ok := s.errs.TryRecv()
	require.True(t, ok)
	require.Equal(t, severity.Error, rec.Severity)
	require.Contains(t, rec.Message, "queue of box is full")
}

func TestSendCommandServiceIsNoOp(t *testing.T) {
	s, _, sink := newTestSupervisor()
	s.SendCommand("Service", "anything")
	require.Empty(t, sink.pushed)
	_, ok := s.errs.TryRecv()
	require.False(t, ok)
}

func TestSendCommandStateOverride(t *testing.T) {
	s, _, _ := newTestSupervisor()
	s.SendCommand("State", "OK")
	state, _ := s.State()
	require.Equal(t, "OK", state)
}

func TestHandleDebouncesIdenticalRecords(t *testing.T) {
	s, _, _ := newTestSupervisor()
	terminate1 := s.handle(severity.Warningf("bus hiccup"))
	state1, _ := s.State()
	terminate2 := s.handle(severity.Warningf("bus hiccup"))
	state2, _ := s.State()

	require.False(t, terminate1)
	require.False(t, terminate2)
	require.Equal(t, "WARNING:bus hiccup", state1)
	require.Equal(t, state1, state2)
}

func TestHandleCriticalRequestsTermination(t *testing.T) {
	s, _, _ := newTestSupervisor()
	require.True(t, s.handle(severity.Criticalf("bus client init failed")))
	state, _ := s.State()
	require.Equal(t, "CRITICAL:bus client init failed", state)
}

type fakeRunnable struct {
	ran chan struct{}
}

func (f *fakeRunnable) Run(ctx context.Context, vm *values.Map, errs *severity.Channel) {
	close(f.ran)
	<-ctx.Done()
}

func TestRunStartsRunnablesAndExitsCleanOnCancel(t *testing.T) {
	s, _, _ := newTestSupervisor()
	r := &fakeRunnable{ran: make(chan struct{})}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan int, 1)
	go func() { done <- s.Run(ctx, []Runnable{r}) }()

	select {
	case <-r.ran:
	case <-time.After(time.Second):
		t.Fatal("runnable never started")
	}
	cancel()

	select {
	case code := <-done:
		require.Equal(t, 0, code)
	case <-time.After(time.Second):
		t.Fatal("Run never returned after cancel")
	}
}

func TestRunExitsNonZeroOnCritical(t *testing.T) {
	s, _, _ := newTestSupervisor()
	r := &fakeRunnable{ran: make(chan struct{})}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan int, 1)
	go func() { done <- s.Run(ctx, []Runnable{r}) }()

	<-r.ran
	s.errs.Push(severity.Criticalf("bus client init failed"))

	select {
	case code := <-done:
		require.Equal(t, 1, code)
	case <-time.After(3 * time.Second):
		t.Fatal("Run never returned after critical")
	}
}
