package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringFromBytes(t *testing.T) {
	orig := []byte("hello")
	shared := StringFromBytes(orig)
	orig[0] = 'H'

	assert.Equal(t, "Hello", shared)
}
