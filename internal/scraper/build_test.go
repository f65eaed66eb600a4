package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buy-smart/pricewatch/internal/config"
)

func TestBuildRegistry(t *testing.T) {
	defs := []config.SourceDef{
		{Name: "hetzi-hinam", Kind: "hetzi", BaseURL: "https://shop.hazi-hinam.co.il"},
		{Name: "shufersal", Kind: "shufersal", BaseURL: "https://www.shufersal.co.il"},
	}

	reg, err := BuildRegistry(defs, config.SessionConfig{RefreshMarginSecs: 600, TimeoutSecs: 15})
	require.NoError(t, err)
	assert.Equal(t, []string{"hetzi-hinam", "shufersal"}, reg.Names())

	h, err := reg.Get("hetzi-hinam")
	require.NoError(t, err)
	assert.Equal(t, "https://shop.hazi-hinam.co.il", h.BaseURL())
}

func TestBuildRegistry_UnknownKind(t *testing.T) {
	_, err := BuildRegistry([]config.SourceDef{{Name: "x", Kind: "mystery"}}, config.SessionConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown source kind")
}
