package transfer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunkPlan(t *testing.T) {
	assert.Nil(t, chunkPlan(0, 1024))

	one := chunkPlan(100, 1024)
	assert.Equal(t, []chunk{{start: 0, end: 99}}, one)

	exact := chunkPlan(2048, 1024)
	assert.Equal(t, []chunk{{start: 0, end: 1023}, {start: 1024, end: 2047}}, exact)

	ragged := chunkPlan(2500, 1024)
	assert.Equal(t, []chunk{
		{start: 0, end: 1023},
		{start: 1024, end: 2047},
		{start: 2048, end: 2499},
	}, ragged)

	var total int64
	for _, c := range ragged {
		total += c.length()
	}
	assert.Equal(t, int64(2500), total)
}
