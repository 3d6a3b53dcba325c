package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProductAvailable(t *testing.T) {
	p := &Product{Stock: 10, Reserved: 3}
	assert.Equal(t, 7, p.Available())
}

func TestProductSnapshot_CopiesCatalogFields(t *testing.T) {
	p := &Product{ID: "p1", SKU: "SKU-1", Name: "Widget", UnitPrice: 999}
	snap := p.Snapshot()

	assert.Equal(t, "p1", snap.ProductID)
	assert.Equal(t, "SKU-1", snap.SKU)
	assert.Equal(t, "Widget", snap.Name)
	assert.Equal(t, int64(999), snap.UnitPrice)
	assert.Equal(t, 0, snap.Quantity)
}
