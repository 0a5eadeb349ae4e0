package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseItem(t *testing.T) {
	item, err := parseItem("12:3")
	require.NoError(t, err)
	assert.Equal(t, uint(12), item.ProductID)
	assert.Equal(t, 3, item.Quantity)
	assert.Nil(t, item.SellPrice)

	item, err = parseItem(" 7:1:450.50 ")
	require.NoError(t, err)
	require.NotNil(t, item.SellPrice)
	assert.Equal(t, "450.5", item.SellPrice.String())

	for _, bad := range []string{"", "12", "x:1", "0:1", "12:0", "12:-2", "12:1:abc", "12:1:-5", "1:2:3:4"} {
		_, err := parseItem(bad)
		assert.Error(t, err, bad)
	}
}
