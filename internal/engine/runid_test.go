package engine

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDv7GeneratorProducesValidSortableIDs(t *testing.T) {
	gen := UUIDv7Generator{}

	first := gen.Generate()
	second := gen.Generate()

	parsed, err := uuid.Parse(first)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())

	assert.NotEqual(t, first, second)
	// v7 embeds the timestamp in the high bits, so later ids sort later.
	assert.Less(t, first, second)
}

func TestFixedGeneratorReturnsIDsInOrder(t *testing.T) {
	gen := NewFixedGenerator("run-1", "run-2")

	assert.Equal(t, "run-1", gen.Generate())
	assert.Equal(t, "run-2", gen.Generate())
	assert.Panics(t, func() { gen.Generate() })
}

func TestFixedGeneratorConcurrentUse(t *testing.T) {
	ids := make([]string, 64)
	for i := range ids {
		ids[i] = "id"
	}
	gen := NewFixedGenerator(ids...)

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			gen.Generate()
		}()
	}
	wg.Wait()

	assert.Panics(t, func() { gen.Generate() })
}
