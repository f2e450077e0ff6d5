package ilo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, 1, cfg.GetInt("compiler.optimize"))
	assert.False(t, cfg.GetBool("vm.trace"))
	assert.True(t, cfg.GetBool("jit.enable"))
	assert.Equal(t, 8, cfg.GetInt("jit.max-arity"))
	assert.False(t, cfg.GetBool("builtins.http"))
}

func TestConfigSetAndGetRoundTrip(t *testing.T) {
	cfg := NewConfig()
	cfg.SetString("tool.name", "get")
	assert.Equal(t, "get", cfg.GetString("tool.name"))

	cfg.SetBool("vm.trace", true)
	assert.True(t, cfg.GetBool("vm.trace"))
}

func TestConfigGetMissingKeyPanics(t *testing.T) {
	cfg := NewConfig()
	assert.Panics(t, func() { cfg.GetBool("does.not.exist") })
}

func TestConfigGetWrongTypePanics(t *testing.T) {
	cfg := NewConfig()
	assert.Panics(t, func() { cfg.GetString("vm.trace") })
}
