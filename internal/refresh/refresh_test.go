package refresh

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelter-api/internal/facility"
)

type fakeSource struct {
	mu    sync.Mutex
	calls int
	recs  []facility.Facility
	err   error
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Load(ctx context.Context) ([]facility.Facility, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.recs, f.err
}

func (f *fakeSource) set(recs []facility.Facility, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs, f.err = recs, err
}

func (f *fakeSource) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func rec(id facility.ID, lat, lon float64) facility.Facility {
	return facility.Facility{ID: id, Latitude: &lat, Longitude: &lon, Place: "Укриття"}
}

func TestLoaderReplacesGeneration(t *testing.T) {
	src := &fakeSource{recs: []facility.Facility{rec(1, 50.45, 30.52), {ID: 2}, rec(3, 50.40, 30.62)}}
	set := &facility.Set{}
	ld := NewLoader(src, set)
	var seen []uint64
	ld.OnReload(func(g *facility.Generation) { seen = append(seen, g.Seq) })

	g, err := ld.Reload(context.Background(), "startup")
	require.NoError(t, err)
	assert.Len(t, g.Facilities, 2)
	assert.Equal(t, 1, g.Skipped)
	assert.Same(t, g, set.Current())
	assert.Equal(t, []uint64{g.Seq}, seen)
}

func TestLoaderKeepsGenerationOnFailure(t *testing.T) {
	src := &fakeSource{recs: []facility.Facility{rec(1, 50.45, 30.52)}}
	set := &facility.Set{}
	ld := NewLoader(src, set)
	first, err := ld.Reload(context.Background(), "startup")
	require.NoError(t, err)

	src.set(nil, errors.New("db down"))
	_, err = ld.Reload(context.Background(), "schedule")
	assert.Error(t, err)

	// 全部记录无坐标
	src.set([]facility.Facility{{ID: 9}}, nil)
	_, err = ld.Reload(context.Background(), "schedule")
	assert.ErrorIs(t, err, ErrEmpty)

	assert.Same(t, first, set.Current(), "失败的刷新不替换当前代际")
}

func TestNextAligned(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 17, 5, 0, time.UTC)
	assert.True(t, nextAligned(now, time.Hour).Equal(time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC)))
	exact := time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC)
	assert.True(t, nextAligned(exact, time.Hour).After(exact), "整点时刻顺延到下一周期")
}

func TestStartPeriodic(t *testing.T) {
	src := &fakeSource{recs: []facility.Facility{rec(1, 50.45, 30.52)}}
	ld := NewLoader(src, &facility.Set{})
	ctx, cancel := context.WithCancel(context.Background())
	done := StartPeriodic(ctx, ld, 10*time.Millisecond)
	require.Eventually(t, func() bool { return src.count() >= 2 }, 3*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		require.FailNow(t, "调度未退出")
	}

	// 周期为 0 表示关闭
	closed := StartPeriodic(context.Background(), ld, 0)
	_, ok := <-closed
	assert.False(t, ok)
}

type fakeReader struct {
	msgs      chan kafka.Message
	mu        sync.Mutex
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func TestListenerCommitsAfterReload(t *testing.T) {
	src := &fakeSource{recs: []facility.Facility{rec(1, 50.45, 30.52)}}
	set := &facility.Set{}
	ld := NewLoader(src, set)
	reloaded := make(chan uint64, 4)
	ld.OnReload(func(g *facility.Generation) { reloaded <- g.Seq })

	r := &fakeReader{msgs: make(chan kafka.Message)}
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		NewListener(r, ld).Run(ctx)
		close(stopped)
	}()

	r.msgs <- kafka.Message{Topic: "shelters.updated", Offset: 10}
	<-reloaded
	src.set(nil, errors.New("db down"))
	r.msgs <- kafka.Message{Topic: "shelters.updated", Offset: 11}
	require.Eventually(t, func() bool { return src.count() >= 2 }, 3*time.Second, time.Millisecond)
	src.set([]facility.Facility{rec(2, 50.40, 30.62)}, nil)
	r.msgs <- kafka.Message{Topic: "shelters.updated", Offset: 12}
	<-reloaded
	cancel()
	<-stopped

	r.mu.Lock()
	defer r.mu.Unlock()
	// 刷新失败的消息不提交
	assert.Equal(t, []int64{10, 12}, r.committed)
	assert.True(t, r.closed)
	_, ok := set.Lookup(2)
	assert.True(t, ok, "最新代际已发布")
}

type fakeWriter struct {
	msgs []kafka.Message
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestPublishUpdated(t *testing.T) {
	w := &fakeWriter{}
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, PublishUpdated(context.Background(), w, UpdatedEvent{Source: "csv", Count: 42, At: at}))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "csv", string(w.msgs[0].Key))
	assert.JSONEq(t, `{"source":"csv","count":42,"at":"2024-03-01T10:00:00Z"}`, string(w.msgs[0].Value))
}
