package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyIsDeterministicAndNamespaced(t *testing.T) {
	a := Key("trends", "enrollment", "Kerala", "month")
	b := Key("trends", "enrollment", "Kerala", "month")
	c := Key("trends", "enrollment", "Kerala", "quarter")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Contains(t, a, "analytics:trends:")

	// Distinct operations never collide even with identical parts
	assert.NotEqual(t, Key("trends", "x"), Key("success_rates", "x"))
}

func TestDisabledCacheNeverHits(t *testing.T) {
	var c Disabled
	ctx := context.Background()

	c.Set(ctx, "k", []int{1, 2, 3})

	var out []int
	assert.False(t, c.Get(ctx, "k", &out))
	assert.Empty(t, out)
}

func TestNewRedisCacheValidation(t *testing.T) {
	_, err := NewRedisCache(nil, nil)
	assert.Error(t, err)
}
