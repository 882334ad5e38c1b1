package resource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exitCalled is raised by the test exit hook so Run never continues past a
// simulated process exit.
type exitCalled struct{ code int }

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	c := New(WithExitFunc(func(code int) { panic(exitCalled{code}) }))
	t.Cleanup(c.Destroy)
	return c
}

// recorder is a handler that satisfies requests from a given level on and
// records every level it was called with.
type recorder struct {
	satisfyFrom Try
	calls       []Try
}

func (r *recorder) handle(try Try, _ any, _ any) Try {
	r.calls = append(r.calls, try)
	if try == TryUnregister || try == TryPanic {
		return TryNone
	}
	if try >= r.satisfyFrom {
		return try
	}
	return TryNone
}

func TestTry_NextIsMonotone(t *testing.T) {
	seq := []Try{TryNone}
	for seq[len(seq)-1] != TryPanic {
		seq = append(seq, seq[len(seq)-1].Next())
	}
	assert.Equal(t, []Try{TryNone, TryOne, TrySome, TryMany, TryAll, TryPanic}, seq)
	assert.Equal(t, TryPanic, TryPanic.Next())
	assert.Equal(t, TryUnregister, TryUnregister.Next())
	assert.False(t, TryUnregister.Satisfies(TryOne))
}

func TestRun_FirstSatisfyingHandlerWins(t *testing.T) {
	c := newTestCollector(t)
	first := &recorder{satisfyFrom: TryOne}
	second := &recorder{satisfyFrom: TryOne}
	c.Register(Mmap, "first", first.handle, nil)
	c.Register(Mmap, "second", second.handle, nil)

	try := TryOne
	require.True(t, c.Run(Mmap, &try, nil))
	assert.Equal(t, TryOne, try)
	assert.Equal(t, []Try{TryOne}, first.calls)
	assert.Empty(t, second.calls)
}

func TestRun_EscalatesMonotonically(t *testing.T) {
	c := newTestCollector(t)
	h := &recorder{satisfyFrom: TryMany}
	c.Register(FileHandle, "h", h.handle, nil)

	try := TryNone
	require.True(t, c.Run(FileHandle, &try, nil))
	assert.Equal(t, TryMany, try)
	assert.Equal(t, []Try{TryOne, TrySome, TryMany}, h.calls)

	for i := 1; i < len(h.calls); i++ {
		assert.Greater(t, h.calls[i], h.calls[i-1])
	}
}

func TestRun_SuccessfulHandlerMovesToFront(t *testing.T) {
	c := newTestCollector(t)
	weak := &recorder{satisfyFrom: TryPanic}
	strong := &recorder{satisfyFrom: TryOne}
	c.Register(Memory, "weak", weak.handle, nil)
	c.Register(Memory, "strong", strong.handle, nil)

	try := TryOne
	require.True(t, c.Run(Memory, &try, nil))
	assert.Len(t, weak.calls, 1)

	// strong is now asked first; weak is not consulted at all
	try = TryOne
	require.True(t, c.Run(Memory, &try, nil))
	assert.Len(t, weak.calls, 1)
	assert.Len(t, strong.calls, 2)
}

func TestRun_TryAllInvokesEveryHandler(t *testing.T) {
	c := newTestCollector(t)
	a := &recorder{satisfyFrom: TryAll}
	b := &recorder{satisfyFrom: TryAll}
	c.Register(DiskCache, "a", a.handle, nil)
	c.Register(DiskCache, "b", b.handle, nil)

	try := TryAll
	require.True(t, c.Run(DiskCache, &try, nil))
	assert.Equal(t, []Try{TryAll}, a.calls)
	assert.Equal(t, []Try{TryAll}, b.calls)
}

func TestRun_PassesDataAndContext(t *testing.T) {
	c := newTestCollector(t)
	var gotData, gotCtx any
	c.Register(CPU, "ctx", func(try Try, data, ctx any) Try {
		if try == TryUnregister {
			return TryNone
		}
		gotData, gotCtx = data, ctx
		return try
	}, "data")

	try := TryOne
	require.True(t, c.Run(CPU, &try, "context"))
	assert.Equal(t, "data", gotData)
	assert.Equal(t, "context", gotCtx)
}

func TestRunUntil_StopsAtLimit(t *testing.T) {
	c := newTestCollector(t)
	h := &recorder{satisfyFrom: TryPanic}
	c.Register(Mmap, "never", h.handle, nil)

	try := TryOne
	assert.False(t, c.RunUntil(Mmap, &try, TrySome, nil))
	assert.Equal(t, TrySome, try)
	assert.Equal(t, []Try{TryOne, TrySome}, h.calls)

	// Already past the limit: nothing is called
	try = TryMany
	assert.False(t, c.RunUntil(Mmap, &try, TrySome, nil))
	assert.Len(t, h.calls, 2)
}

func TestRun_PanicCallsEveryHandlerThenExits(t *testing.T) {
	c := newTestCollector(t)
	mm := &recorder{satisfyFrom: TryPanic + 1}
	fh := &recorder{satisfyFrom: TryPanic + 1}
	c.Register(Mmap, "mm", mm.handle, nil)
	c.Register(FileHandle, "fh", fh.handle, nil)

	try := TryOne
	assert.PanicsWithValue(t, exitCalled{1}, func() {
		c.Run(Mmap, &try, nil)
	})

	assert.Equal(t, []Try{TryOne, TrySome, TryMany, TryAll, TryPanic}, mm.calls)
	assert.Equal(t, []Try{TryPanic}, fh.calls, "handlers of other kinds get the panic pass")
}

func TestRun_NoHandlersReachesPanic(t *testing.T) {
	c := newTestCollector(t)
	try := TryOne
	assert.PanicsWithValue(t, exitCalled{1}, func() {
		c.Run(Memory, &try, nil)
	})
}

func TestUnregister_DeliversUnregisterOnce(t *testing.T) {
	c := newTestCollector(t)
	h := &recorder{satisfyFrom: TryOne}
	r := c.Register(Mmap, "h", h.handle, nil)
	assert.Equal(t, 1, c.Len(Mmap))
	assert.Equal(t, "h", r.Name())
	assert.Equal(t, Mmap, r.Kind())

	c.Unregister(r)
	c.Unregister(r)
	assert.Equal(t, []Try{TryUnregister}, h.calls)
	assert.Equal(t, 0, c.Len(Mmap))
}

func TestDestroy_UnregistersAllAndCloses(t *testing.T) {
	c := New()
	a := &recorder{satisfyFrom: TryOne}
	b := &recorder{satisfyFrom: TryOne}
	c.Register(Mmap, "a", a.handle, nil)
	c.Register(Memory, "b", b.handle, nil)

	c.Destroy()
	assert.Equal(t, []Try{TryUnregister}, a.calls)
	assert.Equal(t, []Try{TryUnregister}, b.calls)

	try := TryOne
	assert.False(t, c.Run(Mmap, &try, nil))
}

type countingMetrics struct {
	satisfied   int
	unsatisfied int
}

func (m *countingMetrics) ObserveEscalation(_ Kind, _ Try, ok bool) {
	if ok {
		m.satisfied++
	} else {
		m.unsatisfied++
	}
}

func TestRun_ReportsMetrics(t *testing.T) {
	m := &countingMetrics{}
	c := New(WithMetrics(m))
	defer c.Destroy()
	h := &recorder{satisfyFrom: TrySome}
	c.Register(Mmap, "h", h.handle, nil)

	try := TryOne
	require.True(t, c.Run(Mmap, &try, nil))
	assert.Equal(t, 1, m.satisfied)
	assert.Equal(t, 1, m.unsatisfied)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "mmap", Mmap.String())
	assert.Len(t, Kinds(), 8)
	assert.Equal(t, "some", TrySome.String())
}
