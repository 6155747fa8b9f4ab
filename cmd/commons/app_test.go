package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/commons/pkg/config"
	"github.com/xhad/commons/pkg/store"
)

func TestFindURL(t *testing.T) {
	assert.Equal(t, "https://example.com/docs", findURL("please read https://example.com/docs today"))
	assert.Equal(t, "http://a.io", findURL("http://a.io"))
	assert.Empty(t, findURL("no links here"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short text", truncate("short\n  text", 80))
	assert.Equal(t, "abc…", truncate("abcdef", 3))
}

func TestNewAppWithMemoryStore(t *testing.T) {
	cfg := &config.Config{}
	cfg.Database.Driver = config.DriverMemory
	cfg.Database.VectorDim = 4
	cfg.Embedding.Dimension = 4

	a, err := newApp(context.Background(), cfg, nil, hooks{})
	require.NoError(t, err)
	defer a.Close(context.Background())

	assert.IsType(t, &store.MemoryStore{}, a.store)
	assert.NotNil(t, a.assistant)
	assert.NotNil(t, a.ingester)
	assert.NotNil(t, a.community)
}

func TestOpenStoreUnknownDriver(t *testing.T) {
	_, err := openStore(context.Background(), config.DatabaseConfig{Driver: "sqlite"})
	assert.Error(t, err)
}
