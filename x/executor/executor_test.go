package executor

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInline_RunsOnCaller(t *testing.T) {
	t.Parallel()

	ran := false
	Inline{}.Post(func() { ran = true })
	assert.True(t, ran)

	assert.NotPanics(t, func() {
		Inline{Log: zerolog.Nop()}.Post(func() { panic("boom") })
	})
}

func TestGo_RunsAsync(t *testing.T) {
	t.Parallel()

	var wg sync.WaitGroup
	var n atomic.Int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		Go{}.Post(func() {
			defer wg.Done()
			n.Add(1)
		})
	}
	wg.Wait()
	assert.Equal(t, int32(10), n.Load())
}

func TestSerial_PreservesOrder(t *testing.T) {
	t.Parallel()

	s := NewSerial("test", zerolog.Nop())

	var mu sync.Mutex
	var got []int
	for i := 0; i < 100; i++ {
		i := i
		s.Post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	s.Close()

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("serial executor did not drain")
	}

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestSerial_SlowTaskDoesNotBlockPost(t *testing.T) {
	t.Parallel()

	s := NewSerial("slow", zerolog.Nop())
	defer s.Close()

	release := make(chan struct{})
	s.Post(func() { <-release })

	posted := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			s.Post(func() {})
		}
		close(posted)
	}()

	select {
	case <-posted:
	case <-time.After(time.Second):
		t.Fatal("post blocked behind a slow task")
	}
	close(release)
}

func TestSerial_PanicDoesNotStopWorker(t *testing.T) {
	t.Parallel()

	s := NewSerial("panicky", zerolog.Nop())
	defer s.Close()

	s.Post(func() { panic("boom") })

	done := make(chan struct{})
	s.Post(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker stopped after panic")
	}
}

func TestSerial_PostAfterClose(t *testing.T) {
	t.Parallel()

	s := NewSerial("closed", zerolog.Nop())
	s.Close()
	<-s.Done()

	done := make(chan struct{})
	s.Post(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task posted after close was dropped")
	}
	assert.Zero(t, s.Len())
}
