package database

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolStatsCollector_Describe(t *testing.T) {
	c := NewPoolStatsCollector(nil, "wishlist-service")
	require.NotNil(t, c)

	ch := make(chan *prometheus.Desc, 16)
	c.Describe(ch)
	close(ch)

	var n int
	for range ch {
		n++
	}
	assert.Equal(t, 8, n)
}

func TestPoolStatsCollector_CollectWithoutPoolIsEmpty(t *testing.T) {
	c := NewPoolStatsCollector(nil, "wishlist-service")

	ch := make(chan prometheus.Metric, 16)
	c.Collect(ch)
	close(ch)
	assert.Empty(t, ch)
}

func TestPoolStatsCollector_RegistersWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(NewPoolStatsCollector(nil, "wishlist-service")))

	_, err := reg.Gather()
	assert.NoError(t, err)
}
