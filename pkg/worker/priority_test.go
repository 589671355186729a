package worker

import (
	"context"
	"math"
	"math/rand"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jzx17/prioexec/internal/testutils"
)

func taskEntry(priority int, seq uint64, at time.Time) *entry {
	return &entry{
		kind:        entryTask,
		priority:    priority,
		seq:         seq,
		submittedAt: at,
		fn:          func(ctx context.Context) (any, error) { return nil, nil },
	}
}

// TestEntryOrdering tests the queue comparator
func TestEntryOrdering(t *testing.T) {
	now := time.Now()

	t.Run("LowerPriorityFirst", func(t *testing.T) {
		assert.True(t, taskEntry(1, 2, now).less(taskEntry(2, 1, now)))
		assert.False(t, taskEntry(2, 1, now).less(taskEntry(1, 2, now)))
		assert.True(t, taskEntry(-5, 1, now).less(taskEntry(0, 1, now)))
	})

	t.Run("ProbeAfterEveryTask", func(t *testing.T) {
		probe := newProbe()
		highest := taskEntry(math.MaxInt, 1, now)

		assert.True(t, highest.less(probe))
		assert.False(t, probe.less(highest))
		assert.False(t, probe.less(newProbe()))
	})

	t.Run("EqualPriorityBySubmitTime", func(t *testing.T) {
		earlier := taskEntry(3, 9, now)
		later := taskEntry(3, 1, now.Add(time.Millisecond))

		assert.True(t, earlier.less(later))
		assert.False(t, later.less(earlier))
	})

	t.Run("EqualTimestampBySequence", func(t *testing.T) {
		first := taskEntry(3, 1, now)
		second := taskEntry(3, 2, now)

		assert.True(t, first.less(second))
		assert.False(t, second.less(first))
	})
}

// TestPriorityWorkQueue tests priority work queue functionality
func TestPriorityWorkQueue(t *testing.T) {
	t.Run("TakeReturnsLowestPriority", func(t *testing.T) {
		q := newPriorityWorkQueue()
		now := time.Now()

		priorities := []int{5, 1, 9, 3, 7}
		for i, p := range priorities {
			q.put(taskEntry(p, uint64(i), now))
		}
		q.put(newProbe())
		assert.Equal(t, 6, q.len())
		assert.Equal(t, 5, q.pendingTasks())

		var got []int
		for i := 0; i < len(priorities); i++ {
			e := q.take()
			require.False(t, e.isProbe())
			got = append(got, e.priority)
		}
		assert.Equal(t, []int{1, 3, 5, 7, 9}, got)
		assert.True(t, q.take().isProbe())
		assert.Equal(t, 0, q.len())
	})

	t.Run("FIFOForSamePriorityWithMockClock", func(t *testing.T) {
		mClock := testutils.NewMockClock(t)
		clock := testutils.NewClockWrapper(mClock)
		q := newPriorityWorkQueue()

		// same timestamp: sequence decides
		q.put(taskEntry(2, 3, clock.Now()))
		q.put(taskEntry(2, 1, clock.Now()))
		q.put(taskEntry(2, 2, clock.Now()))

		var seqs []uint64
		for i := 0; i < 3; i++ {
			seqs = append(seqs, q.take().seq)
		}
		assert.Equal(t, []uint64{1, 2, 3}, seqs)
	})

	t.Run("TryTakeOnEmptyQueue", func(t *testing.T) {
		q := newPriorityWorkQueue()
		e, ok := q.tryTake()
		assert.False(t, ok)
		assert.Nil(t, e)

		q.put(taskEntry(1, 1, time.Now()))
		e, ok = q.tryTake()
		assert.True(t, ok)
		assert.Equal(t, 1, e.priority)
	})

	t.Run("TakeBlocksUntilPut", func(t *testing.T) {
		q := newPriorityWorkQueue()
		got := make(chan *entry, 1)
		go func() { got <- q.take() }()

		select {
		case <-got:
			t.Fatal("take returned on an empty queue")
		case <-time.After(20 * time.Millisecond):
		}

		q.put(taskEntry(4, 1, time.Now()))
		select {
		case e := <-got:
			assert.Equal(t, 4, e.priority)
		case <-time.After(time.Second):
			t.Fatal("take did not wake up after put")
		}
	})

	t.Run("ConcurrentProducersAndConsumers", func(t *testing.T) {
		q := newPriorityWorkQueue()
		const producers, perProducer, consumers = 8, 250, 4
		now := time.Now()

		var wg sync.WaitGroup
		for p := 0; p < producers; p++ {
			wg.Add(1)
			go func(p int) {
				defer wg.Done()
				r := rand.New(rand.NewSource(int64(p)))
				for i := 0; i < perProducer; i++ {
					q.put(taskEntry(r.Intn(1000), uint64(p*perProducer+i), now))
				}
			}(p)
		}

		var mu sync.Mutex
		total := 0
		var cwg sync.WaitGroup
		for c := 0; c < consumers; c++ {
			cwg.Add(1)
			go func() {
				defer cwg.Done()
				for {
					if q.take().isProbe() {
						q.put(newProbe())
						return
					}
					mu.Lock()
					total++
					mu.Unlock()
				}
			}()
		}

		wg.Wait()
		q.put(newProbe())
		cwg.Wait()

		assert.Equal(t, producers*perProducer, total)
		assert.Equal(t, 1, q.len())
	})

	t.Run("DrainOrderIsSorted", func(t *testing.T) {
		q := newPriorityWorkQueue()
		r := rand.New(rand.NewSource(42))
		now := time.Now()
		for i := 0; i < 500; i++ {
			q.put(taskEntry(r.Intn(50), uint64(i), now))
		}

		var got []*entry
		for {
			e, ok := q.tryTake()
			if !ok {
				break
			}
			got = append(got, e)
		}
		require.Len(t, got, 500)
		assert.True(t, sort.SliceIsSorted(got, func(i, j int) bool { return got[i].less(got[j]) }))
	})
}

func BenchmarkPriorityWorkQueue_PutTake(b *testing.B) {
	q := newPriorityWorkQueue()
	now := time.Now()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		q.put(taskEntry(i%64, uint64(i), now))
		q.take()
	}
}
