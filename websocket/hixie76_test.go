package websocket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculatePartDividesDigitsByCountOfSpaces(t *testing.T) {
	// "1 2 3" has digits "123" (N=123) and 2 spaces (S=2): part = 123/2 = 61.
	part, err := calculatePart("1 2 3")
	require.NoError(t, err)
	assert.Equal(t, [4]byte{0x00, 0x00, 0x00, 0x3d}, part)

	// Non-digit characters are ignored entirely; only their presence as
	// spaces or digits matters, matching calculatePart's character scan.
	part2, err := calculatePart("4@a 5@b 0@c ")
	require.NoError(t, err)
	assert.Equal(t, [4]byte{0x00, 0x00, 0x00, 0x96}, part2) // digits "450" / 3 spaces = 150
}

func TestCalculatePartRejectsKeyWithNoDigitsOrNoSpaces(t *testing.T) {
	_, err := calculatePart("no digits here")
	assert.Error(t, err)

	_, err = calculatePart("12345")
	assert.Error(t, err)
}
