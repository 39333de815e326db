package dedup

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/voicescreen/internal/client/apierr"
)

// fakeDoer answers every request with a fixed reply after gate is released.
type fakeDoer struct {
	calls atomic.Int32
	gate  chan struct{}

	status int
	body   string
	err    error

	mu       sync.Mutex
	lastBody string
	lastReq  *http.Request
}

func newFakeDoer(status int, body string) *fakeDoer {
	return &fakeDoer{status: status, body: body}
}

func (f *fakeDoer) Do(req *http.Request) (*http.Response, error) {
	f.calls.Add(1)

	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
	}
	f.mu.Lock()
	f.lastBody = string(body)
	f.lastReq = req
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if f.err != nil {
		return nil, f.err
	}
	return &http.Response{
		StatusCode: f.status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(f.body)),
	}, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func getResults() Descriptor {
	return Descriptor{Method: http.MethodGet, URL: "http://api.test/my-results"}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, time.Millisecond)
}

func TestExecute_CoalescesIdenticalRequests(t *testing.T) {
	doer := newFakeDoer(http.StatusOK, `{"results":[1,2,3]}`)
	doer.gate = make(chan struct{})
	c := New(doer)

	const n = 5
	results := make([]*Response, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			r, err := c.Execute(context.Background(), getResults(), false)
			results[i] = r
			return err
		})
	}

	waitFor(t, func() bool { return c.Stats().Coalesced == n-1 })
	require.Equal(t, 1, c.PendingCount())
	close(doer.gate)
	require.NoError(t, g.Wait())

	assert.EqualValues(t, 1, doer.calls.Load())
	for _, r := range results {
		assert.Same(t, results[0], r)
	}
	assert.JSONEq(t, `{"results":[1,2,3]}`, string(results[0].Body))
	assert.Equal(t, 0, c.PendingCount())
}

func TestExecute_DistinctRequestsAreNotCoalesced(t *testing.T) {
	doer := newFakeDoer(http.StatusOK, `{}`)
	c := New(doer)

	descs := []Descriptor{
		{Method: http.MethodPost, URL: "http://api.test/results", Body: []byte(`{"a":1}`)},
		{Method: http.MethodPost, URL: "http://api.test/results", Body: []byte(`{"a":2}`)},
		{Method: http.MethodGet, URL: "http://api.test/results"},
		{Method: http.MethodGet, URL: "http://api.test/other"},
	}

	var g errgroup.Group
	for _, d := range descs {
		g.Go(func() error {
			_, err := c.Execute(context.Background(), d, false)
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.EqualValues(t, len(descs), doer.calls.Load())
}

func TestExecute_SharedFailure(t *testing.T) {
	doer := newFakeDoer(http.StatusInternalServerError, `{"error":"database unavailable"}`)
	doer.gate = make(chan struct{})
	c := New(doer)

	const n = 3
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = c.Execute(context.Background(), getResults(), false)
		}()
	}
	waitFor(t, func() bool { return c.Stats().Coalesced == n-1 })
	close(doer.gate)
	wg.Wait()

	assert.EqualValues(t, 1, doer.calls.Load())
	for _, err := range errs {
		require.ErrorIs(t, err, apierr.ErrRequest)
		assert.Equal(t, "database unavailable", apierr.MessageOf(err))
		assert.Equal(t, http.StatusInternalServerError, apierr.StatusOf(err))
	}
	assert.Equal(t, 0, c.PendingCount())
}

func TestExecute_Unauthorized(t *testing.T) {
	c := New(newFakeDoer(http.StatusUnauthorized, `{"message":"token expired"}`))

	_, err := c.Execute(context.Background(), getResults(), false)
	require.ErrorIs(t, err, apierr.ErrAuthRequired)
	assert.Equal(t, "Authentication required. Please log in again.", apierr.MessageOf(err))
	assert.Equal(t, http.StatusUnauthorized, apierr.StatusOf(err))
}

func TestExecute_NonSuccessWithoutMessage(t *testing.T) {
	c := New(newFakeDoer(http.StatusNotFound, `not json`))

	_, err := c.Execute(context.Background(), getResults(), false)
	require.ErrorIs(t, err, apierr.ErrRequest)
	assert.Equal(t, "API request failed", apierr.MessageOf(err))
}

func TestExecute_MessageFieldFallback(t *testing.T) {
	c := New(newFakeDoer(http.StatusBadRequest, `{"message":"bad input"}`))

	_, err := c.Execute(context.Background(), getResults(), false)
	assert.Equal(t, "bad input", apierr.MessageOf(err))
}

func TestExecute_InvalidJSONOnSuccess(t *testing.T) {
	c := New(newFakeDoer(http.StatusOK, `<html>`))

	_, err := c.Execute(context.Background(), getResults(), false)
	require.ErrorIs(t, err, apierr.ErrDecode)
	assert.Equal(t, 0, c.PendingCount())
}

func TestExecute_EmptySuccessBody(t *testing.T) {
	c := New(newFakeDoer(http.StatusNoContent, ``))

	r, err := c.Execute(context.Background(), getResults(), false)
	require.NoError(t, err)
	assert.Nil(t, r.Body)

	var v struct{ A int }
	require.NoError(t, r.Decode(&v))
	assert.Zero(t, v.A)
}

func TestExecute_NetworkError(t *testing.T) {
	doer := newFakeDoer(0, "")
	doer.err = errors.New("dial tcp: connection refused")
	c := New(doer)

	_, err := c.Execute(context.Background(), getResults(), false)
	require.ErrorIs(t, err, apierr.ErrNetwork)
	assert.Equal(t, 0, c.PendingCount())
}

func TestExecute_SendsMethodHeadersAndBody(t *testing.T) {
	doer := newFakeDoer(http.StatusCreated, `{"id":1}`)
	c := New(doer)

	d := Descriptor{
		Method: "post",
		URL:    "http://api.test/results",
		Header: http.Header{"Authorization": []string{"Bearer t1"}},
		Body:   []byte(`{"disease_status":"NORMAL"}`),
	}
	_, err := c.Execute(context.Background(), d, false)
	require.NoError(t, err)

	doer.mu.Lock()
	defer doer.mu.Unlock()
	assert.Equal(t, http.MethodPost, doer.lastReq.Method)
	assert.Equal(t, "Bearer t1", doer.lastReq.Header.Get("Authorization"))
	assert.Equal(t, `{"disease_status":"NORMAL"}`, doer.lastBody)
}

func TestExecute_EntryRemovedAfterSettlement(t *testing.T) {
	doer := newFakeDoer(http.StatusOK, `{}`)
	c := New(doer)

	_, err := c.Execute(context.Background(), getResults(), false)
	require.NoError(t, err)
	require.False(t, c.IsPending(getResults()))

	_, err = c.Execute(context.Background(), getResults(), false)
	require.NoError(t, err)
	assert.EqualValues(t, 2, doer.calls.Load())
}

func TestExecute_ForceNewBypassesLiveEntry(t *testing.T) {
	doer := newFakeDoer(http.StatusOK, `{}`)
	doer.gate = make(chan struct{})
	c := New(doer)

	var g errgroup.Group
	g.Go(func() error {
		_, err := c.Execute(context.Background(), getResults(), false)
		return err
	})
	waitFor(t, func() bool { return doer.calls.Load() == 1 })

	g.Go(func() error {
		_, err := c.Execute(context.Background(), getResults(), true)
		return err
	})
	waitFor(t, func() bool { return doer.calls.Load() == 2 })

	close(doer.gate)
	require.NoError(t, g.Wait())
	assert.EqualValues(t, 0, c.Stats().Coalesced)
	assert.EqualValues(t, 2, c.Stats().Started)
}

func TestExecute_ExpiredEntryIsReplaced(t *testing.T) {
	clock := newFakeClock()
	first := make(chan struct{})
	second := make(chan struct{})
	doer := newFakeDoer(http.StatusOK, `{}`)
	doer.gate = first
	c := New(doer, WithClock(clock.Now))

	firstDone := make(chan error, 1)
	go func() {
		_, err := c.Execute(context.Background(), getResults(), false)
		firstDone <- err
	}()
	waitFor(t, func() bool { return doer.calls.Load() == 1 })

	// exactly at the TTL the entry is still live
	clock.Advance(DefaultTTL)
	require.True(t, c.IsPending(getResults()))

	clock.Advance(time.Millisecond)
	require.False(t, c.IsPending(getResults()))
	assert.EqualValues(t, 1, c.Stats().Evicted)

	doer.mu.Lock()
	doer.gate = second
	doer.mu.Unlock()
	secondDone := make(chan error, 1)
	go func() {
		_, err := c.Execute(context.Background(), getResults(), false)
		secondDone <- err
	}()
	waitFor(t, func() bool { return doer.calls.Load() == 2 })

	// the stale operation settles first and must leave its successor alone
	close(first)
	require.NoError(t, <-firstDone)
	assert.True(t, c.IsPending(getResults()))

	close(second)
	require.NoError(t, <-secondDone)
	assert.Equal(t, 0, c.PendingCount())
	assert.EqualValues(t, 2, c.Stats().Started)
}

func TestExecute_CustomTTL(t *testing.T) {
	clock := newFakeClock()
	doer := newFakeDoer(http.StatusOK, `{}`)
	doer.gate = make(chan struct{})
	c := New(doer, WithClock(clock.Now), WithTTL(time.Second))
	require.Equal(t, time.Second, c.TTL())

	go func() { _, _ = c.Execute(context.Background(), getResults(), false) }()
	waitFor(t, func() bool { return c.PendingCount() == 1 })

	clock.Advance(2 * time.Second)
	assert.Equal(t, 0, c.PendingCount())
	close(doer.gate)
}

func TestExecute_WaiterCancellationDoesNotFailOthers(t *testing.T) {
	doer := newFakeDoer(http.StatusOK, `{"ok":true}`)
	doer.gate = make(chan struct{})
	c := New(doer)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.Execute(ctx, getResults(), false)
		errCh <- err
	}()
	waitFor(t, func() bool { return doer.calls.Load() == 1 })

	okCh := make(chan error, 1)
	go func() {
		_, err := c.Execute(context.Background(), getResults(), false)
		okCh <- err
	}()
	waitFor(t, func() bool { return c.Stats().Coalesced == 1 })

	cancel()
	err := <-errCh
	require.ErrorIs(t, err, apierr.ErrNetwork)
	require.ErrorIs(t, err, context.Canceled)

	close(doer.gate)
	require.NoError(t, <-okCh)
}

func TestCancel(t *testing.T) {
	doer := newFakeDoer(http.StatusOK, `{}`)
	doer.gate = make(chan struct{})
	c := New(doer)

	done := make(chan error, 1)
	go func() {
		_, err := c.Execute(context.Background(), getResults(), false)
		done <- err
	}()
	waitFor(t, func() bool { return c.IsPending(getResults()) })

	c.Cancel(getResults())
	assert.False(t, c.IsPending(getResults()))
	assert.EqualValues(t, 1, c.Stats().Cancelled)

	// cancelling does not abort the operation already in flight
	close(doer.gate)
	require.NoError(t, <-done)

	c.Cancel(getResults())
	assert.EqualValues(t, 1, c.Stats().Cancelled)
}

func TestCancelAll(t *testing.T) {
	doer := newFakeDoer(http.StatusOK, `{}`)
	doer.gate = make(chan struct{})
	c := New(doer)

	for _, u := range []string{"http://api.test/a", "http://api.test/b", "http://api.test/c"} {
		go func() { _, _ = c.Execute(context.Background(), Descriptor{URL: u}, false) }()
	}
	waitFor(t, func() bool { return c.PendingCount() == 3 })

	assert.Equal(t, 3, c.CancelAll())
	assert.Equal(t, 0, c.PendingCount())
	assert.Equal(t, 0, c.CancelAll())
	close(doer.gate)
}

func TestDo_CoalescesArbitraryOperations(t *testing.T) {
	c := New(nil)

	release := make(chan struct{})
	var runs atomic.Int32
	op := func(context.Context) (any, error) {
		runs.Add(1)
		<-release
		return "token-2", nil
	}

	var g errgroup.Group
	vals := make([]any, 4)
	for i := range vals {
		g.Go(func() error {
			v, err := c.Do(context.Background(), "auth:refresh", false, op)
			vals[i] = v
			return err
		})
	}
	waitFor(t, func() bool { return c.Stats().Coalesced == 3 })
	close(release)
	require.NoError(t, g.Wait())

	assert.EqualValues(t, 1, runs.Load())
	for _, v := range vals {
		assert.Equal(t, "token-2", v)
	}
}

func TestDo_RecoversPanic(t *testing.T) {
	c := New(nil)

	_, err := c.Do(context.Background(), "boom", false, func(context.Context) (any, error) {
		panic("kaboom")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
	assert.Equal(t, 0, c.PendingCount())
}

func TestDebugInfo(t *testing.T) {
	clock := newFakeClock()
	doer := newFakeDoer(http.StatusOK, `{}`)
	doer.gate = make(chan struct{})
	c := New(doer, WithClock(clock.Now))

	b := Descriptor{URL: "http://api.test/b"}
	a := Descriptor{URL: "http://api.test/a"}
	go func() { _, _ = c.Execute(context.Background(), b, false) }()
	waitFor(t, func() bool { return c.PendingCount() == 1 })
	clock.Advance(5 * time.Second)
	go func() { _, _ = c.Execute(context.Background(), a, false) }()
	waitFor(t, func() bool { return c.PendingCount() == 2 })
	clock.Advance(time.Second)

	info := c.DebugInfo()
	require.Len(t, info, 2)
	assert.Equal(t, Fingerprint(a), info[0].Key)
	assert.Equal(t, time.Second, info[0].Age)
	assert.Equal(t, Fingerprint(b), info[1].Key)
	assert.Equal(t, 6*time.Second, info[1].Age)
	close(doer.gate)
}

func TestCollector(t *testing.T) {
	c := New(newFakeDoer(http.StatusOK, `{}`))
	_, err := c.Execute(context.Background(), getResults(), false)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(NewCollector(c)))

	n, err := testutil.GatherAndCount(reg,
		"voicescreen_dedup_pending_requests",
		"voicescreen_dedup_started_total",
		"voicescreen_dedup_coalesced_total",
		"voicescreen_dedup_evicted_total",
		"voicescreen_dedup_cancelled_total",
	)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	expected := `
# HELP voicescreen_dedup_started_total Total number of network operations started
# TYPE voicescreen_dedup_started_total counter
voicescreen_dedup_started_total 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "voicescreen_dedup_started_total"))
}
