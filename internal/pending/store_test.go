package pending

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	Sheet int
}

func TestStore_PutGetTake(t *testing.T) {
	s := New[entry](time.Minute)

	token := s.Put(entry{Sheet: 7})
	require.NotEmpty(t, token)

	v, exp, ok := s.Get(token)
	require.True(t, ok)
	assert.Equal(t, 7, v.Sheet)
	assert.WithinDuration(t, time.Now().Add(time.Minute), exp, 5*time.Second)

	assert.True(t, s.Replace(token, entry{Sheet: 8}))
	v, ok = s.Take(token)
	require.True(t, ok)
	assert.Equal(t, 8, v.Sheet)

	_, ok = s.Take(token)
	assert.False(t, ok, "an entry is handed out once")
	assert.False(t, s.Replace(token, entry{}), "replace does not resurrect")

	s.Restore(token, v)
	_, _, ok = s.Get(token)
	assert.True(t, ok)
	assert.True(t, s.Drop(token))
	assert.False(t, s.Drop(token))
}

func TestStore_Expiry(t *testing.T) {
	s := New[entry](20 * time.Millisecond)
	token := s.Put(entry{Sheet: 1})

	time.Sleep(50 * time.Millisecond)

	_, _, ok := s.Get(token)
	assert.False(t, ok)
	_, ok = s.Take(token)
	assert.False(t, ok)
}

func TestStore_ConcurrentTake(t *testing.T) {
	s := New[entry](time.Minute)
	token := s.Put(entry{Sheet: 3})

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := s.Take(token); ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}
