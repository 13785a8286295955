package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPoolOptionsDefaults(t *testing.T) {
	got := PoolOptions{}.withDefaults()
	assert.Equal(t, 10, got.MaxOpenConns)
	assert.Equal(t, 5, got.MaxIdleConns)
	assert.Equal(t, time.Hour, got.ConnMaxLifetime)
}

func TestPoolOptionsExplicitValuesKept(t *testing.T) {
	got := PoolOptions{MaxOpenConns: 40, MaxIdleConns: 8, ConnMaxLifetime: 30 * time.Minute}.withDefaults()
	assert.Equal(t, 40, got.MaxOpenConns)
	assert.Equal(t, 8, got.MaxIdleConns)
	assert.Equal(t, 30*time.Minute, got.ConnMaxLifetime)
}

func TestPoolOptionsIdleCappedByOpen(t *testing.T) {
	got := PoolOptions{MaxOpenConns: 3, MaxIdleConns: 9}.withDefaults()
	assert.Equal(t, 3, got.MaxIdleConns)
}
