package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeScraper{name: "hetzi-hinam", baseURL: "https://shop.hazi-hinam.co.il"})

	got, err := reg.Get("hetzi-hinam")
	require.NoError(t, err)
	assert.Equal(t, "hetzi-hinam", got.Name())
}

func TestRegistry_Get_NotFound(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Get("nonexistent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown source")
}

func TestRegistry_All_PreservesOrder(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeScraper{name: "alpha"})
	reg.Register(&fakeScraper{name: "beta"})
	reg.Register(&fakeScraper{name: "gamma"})

	assert.Equal(t, []string{"alpha", "beta", "gamma"}, reg.Names())

	all := reg.All()
	require.Len(t, all, 3)
	assert.Equal(t, "alpha", all[0].Name())
	assert.Equal(t, "gamma", all[2].Name())
}

func TestRegistry_Register_Replaces(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeScraper{name: "alpha", baseURL: "https://old.example"})
	reg.Register(&fakeScraper{name: "alpha", baseURL: "https://new.example"})

	assert.Equal(t, []string{"alpha"}, reg.Names())
	got, err := reg.Get("alpha")
	require.NoError(t, err)
	assert.Equal(t, "https://new.example", got.BaseURL())
}
