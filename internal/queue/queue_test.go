package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FIFO(t *testing.T) {
	tx, rx := New[int]()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, tx.Send(i))
	}
	assert.Equal(t, 5, rx.Len())

	for i := 0; i < 5; i++ {
		v, err := rx.Recv(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
	assert.Zero(t, rx.Len())
}

func TestQueue_DrainsBufferedItemsAfterRelease(t *testing.T) {
	tx, rx := New[string]()
	ctx := context.Background()

	require.NoError(t, tx.Send("a"))
	require.NoError(t, tx.Send("b"))
	require.NoError(t, tx.Send("c"))
	tx.Release()

	var got []string
	for {
		v, err := rx.Recv(ctx)
		if err == ErrDrained {
			break
		}
		require.NoError(t, err)
		got = append(got, v)
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)

	_, err := rx.Recv(ctx)
	assert.ErrorIs(t, err, ErrDrained, "drained is sticky")
}

func TestQueue_ClosesOnlyWhenLastSenderReleased(t *testing.T) {
	tx, rx := New[int]()
	clone := tx.Clone()
	assert.Equal(t, 2, rx.Senders())

	tx.Release()
	tx.Release() // idempotent
	assert.Equal(t, 1, rx.Senders())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := rx.Recv(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "a live clone keeps the queue open")

	require.NoError(t, clone.Send(7))
	clone.Release()

	v, err := rx.Recv(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	_, err = rx.Recv(context.Background())
	assert.ErrorIs(t, err, ErrDrained)
}

func TestQueue_RecvWakesOnSendAndRelease(t *testing.T) {
	tx, rx := New[int]()

	done := make(chan []int)
	go func() {
		var got []int
		for {
			v, err := rx.Recv(context.Background())
			if err != nil {
				done <- got
				return
			}
			got = append(got, v)
		}
	}()

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, tx.Send(1))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, tx.Send(2))
	tx.Release()

	select {
	case got := <-done:
		assert.Equal(t, []int{1, 2}, got)
	case <-time.After(2 * time.Second):
		t.Fatal("receiver did not observe end of stream")
	}
}

func TestQueue_ConcurrentProducers(t *testing.T) {
	const producers, perProducer = 8, 200
	tx, rx := New[[2]int]()

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		h := tx.Clone()
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			defer h.Release()
			for i := 0; i < perProducer; i++ {
				assert.NoError(t, h.Send([2]int{p, i}))
			}
		}(p)
	}
	tx.Release()

	last := make(map[int]int)
	count := 0
	for {
		v, err := rx.Recv(context.Background())
		if err == ErrDrained {
			break
		}
		require.NoError(t, err)
		if prev, ok := last[v[0]]; ok {
			assert.Greater(t, v[1], prev, "per-producer FIFO")
		}
		last[v[0]] = v[1]
		count++
	}
	wg.Wait()
	assert.Equal(t, producers*perProducer, count)
}

func TestSender_Errors(t *testing.T) {
	t.Run("released handle", func(t *testing.T) {
		tx, _ := New[int]()
		tx.Release()
		assert.ErrorIs(t, tx.Send(1), ErrSenderReleased)

		clone := tx.Clone()
		assert.ErrorIs(t, clone.Send(1), ErrSenderReleased)
	})

	t.Run("receiver closed", func(t *testing.T) {
		tx, rx := New[int]()
		require.NoError(t, tx.Send(1))
		rx.Close()
		assert.ErrorIs(t, tx.Send(2), ErrReceiverClosed)
		assert.Zero(t, rx.Len())
	})

	t.Run("bounded queue full", func(t *testing.T) {
		tx, rx := New[int](WithCapacity(2))
		require.NoError(t, tx.Send(1))
		require.NoError(t, tx.Send(2))
		assert.ErrorIs(t, tx.Send(3), ErrFull)

		_, err := rx.Recv(context.Background())
		require.NoError(t, err)
		assert.NoError(t, tx.Send(3))
	})
}

func TestSender_SendRacingReleaseIsNeverLost(t *testing.T) {
	for i := 0; i < 500; i++ {
		tx, rx := New[int]()

		sent := make(chan error, 1)
		start := make(chan struct{})
		go func() {
			<-start
			sent <- tx.Send(i)
		}()
		go func() {
			<-start
			tx.Release()
		}()
		close(start)

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		received := 0
		for {
			_, err := rx.Recv(ctx)
			if err == ErrDrained {
				break
			}
			require.NoError(t, err)
			received++
		}
		cancel()

		if err := <-sent; err == nil {
			require.Equal(t, 1, received, "iteration %d: accepted item was dropped", i)
		} else {
			require.ErrorIs(t, err, ErrSenderReleased)
			require.Zero(t, received)
		}
	}
}
