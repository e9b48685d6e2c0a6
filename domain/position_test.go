package domain_test

import (
	"testing"

	"github.com/ghdlabs/ghd-market-maker/domain"
	"github.com/stretchr/testify/assert"
)

func TestPositionExtending(t *testing.T) {
	position := domain.Position{}

	position.ApplyFill(domain.SideBuy, 100.0, 10)
	assert.Equal(t, 10.0, position.Base)
	assert.Equal(t, 100.0, position.AverageCost)

	position.ApplyFill(domain.SideBuy, 110.0, 10)
	assert.Equal(t, 20.0, position.Base)
	assert.Equal(t, 105.0, position.AverageCost)
}

func TestPositionReducing(t *testing.T) {
	position := domain.Position{}

	position.ApplyFill(domain.SideBuy, 100.0, 10)
	position.ApplyFill(domain.SideSell, 120.0, 4)

	assert.Equal(t, 6.0, position.Base)
	assert.Equal(t, 100.0, position.AverageCost)
}

func TestPositionFlipsSign(t *testing.T) {
	position := domain.Position{}

	position.ApplyFill(domain.SideBuy, 100.0, 10)
	position.ApplyFill(domain.SideSell, 120.0, 15)

	assert.Equal(t, -5.0, position.Base)
	assert.Equal(t, 120.0, position.AverageCost)
}

func TestPositionFlat(t *testing.T) {
	position := domain.Position{}

	position.ApplyFill(domain.SideBuy, 100.0, 10)
	position.ApplyFill(domain.SideSell, 105.0, 10)

	assert.Equal(t, 0.0, position.Base)
	assert.Equal(t, 0.0, position.AverageCost)
}
