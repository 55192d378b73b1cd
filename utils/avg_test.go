package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAvgVal(t *testing.T) {
	var a AvgVal
	assert.Equal(t, 0.0, a.Val())
	a.Add(2)
	a.Add(4)
	assert.Equal(t, 3.0, a.Val())
	a.Add(6)
	assert.Equal(t, 4.0, a.Val())
}
