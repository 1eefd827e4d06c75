package mapsafe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	params := map[string]any{
		"max_new_tokens": float64(4000),
		"temperature":    1,
		"do_sample":      true,
		"template":       "gemma",
		"timeout":        "30s",
		"grace":          2.5,
		"empty":          nil,
	}

	assert.Equal(t, 4000, Get(params, "max_new_tokens", 150))
	assert.InDelta(t, 1.0, Get(params, "temperature", 0.7), 1e-9)
	assert.True(t, Get(params, "do_sample", false))
	assert.Equal(t, "gemma", Get(params, "template", "raw"))
	assert.Equal(t, 30*time.Second, Get(params, "timeout", time.Second))
	assert.Equal(t, 2500*time.Millisecond, Get(params, "grace", time.Second))
}

func TestGet_FallsBackToDefault(t *testing.T) {
	params := map[string]any{
		"max_new_tokens": "many",
		"do_sample":      "yes",
		"empty":          nil,
	}

	assert.Equal(t, 150, Get(params, "max_new_tokens", 150))
	assert.False(t, Get(params, "do_sample", false))
	assert.Equal(t, "x", Get(params, "empty", "x"))
	assert.Equal(t, 7, Get(params, "missing", 7))
	assert.Equal(t, 7, Get[int](nil, "missing", 7))
}

func TestHas(t *testing.T) {
	params := map[string]any{"a": 1, "b": nil}

	assert.True(t, Has(params, "a"))
	assert.False(t, Has(params, "b"))
	assert.False(t, Has(params, "c"))
}
