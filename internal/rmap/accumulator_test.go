package rmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEngine_RejectsInvalidArgs(t *testing.T) {
	_, err := NewEngine(0, 1000)
	assert.Error(t, err)

	_, err = NewEngine(1, 0)
	assert.Error(t, err)
}

func TestEngine_PerAG_OutOfRange(t *testing.T) {
	e := newTestEngine(t, 2, 1000)

	_, err := e.PerAG(2)
	assert.Error(t, err)
}

func TestSetAGFLLeftoverCount(t *testing.T) {
	e := newTestEngine(t, 1, 1000)

	p, err := e.PerAG(0)
	require.NoError(t, err)

	require.NoError(t, p.SetAGFLLeftoverCount(3, 118))
	assert.Equal(t, 3, p.AGFLLeftoverCount())

	assert.Error(t, p.SetAGFLLeftoverCount(119, 118))
	assert.Error(t, p.SetAGFLLeftoverCount(-1, 118))
}

func TestNewPerAG_LastStartsEmpty(t *testing.T) {
	e := newTestEngine(t, 1, 1000)

	p, err := e.PerAG(0)
	require.NoError(t, err)

	assert.Equal(t, OwnerUnknown, p.last.Owner)
}
