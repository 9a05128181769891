package clock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSequence(t *testing.T) {
	seq := NewSequence()

	require.NotNil(t, seq)
	assert.Equal(t, int64(0), seq.Current(), "New sequence should start at zero")
}

func TestSequence_Next(t *testing.T) {
	seq := NewSequence()

	assert.Equal(t, int64(1), seq.Next())
	assert.Equal(t, int64(2), seq.Next())
	assert.Equal(t, int64(3), seq.Next())
	assert.Equal(t, int64(3), seq.Current())
}

func TestSequence_Observe(t *testing.T) {
	tests := []struct {
		name     string
		observed int64
		wantNext int64
	}{
		{
			name:     "observe ahead advances counter",
			observed: 10,
			wantNext: 11,
		},
		{
			name:     "observe behind is ignored",
			observed: 0,
			wantNext: 1,
		},
		{
			name:     "observe negative is ignored",
			observed: -5,
			wantNext: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seq := NewSequence()
			seq.Observe(tt.observed)

			assert.Equal(t, tt.wantNext, seq.Next(),
				"Next after Observe should stay ahead of observed value")
		})
	}
}

func TestSequence_Observe_Interleaved(t *testing.T) {
	seq := NewSequence()

	// Локальные сообщения и наблюдения чередуются
	assert.Equal(t, int64(1), seq.Next())
	seq.Observe(7)
	assert.Equal(t, int64(8), seq.Next())
	seq.Observe(3) // уже позади, не откатывает
	assert.Equal(t, int64(9), seq.Next())
}

func TestSequence_Concurrent(t *testing.T) {
	seq := NewSequence()

	const goroutines = 10
	const perGoroutine = 100

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				seq.Next()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(goroutines*perGoroutine), seq.Current(),
		"Concurrent increments should not lose updates")
}
