package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/yl5006/sitl-gazebo/pkg/core"
)

func TestContext_Default(t *testing.T) {
	ctx := NewContext()

	s := ctx.GetSession()
	assert.Equal(t, "No session started", s.Name)
	assert.Empty(t, ctx.ID())
}

func TestContext_SetSession(t *testing.T) {
	ctx := NewContext()
	ctx.SetSession(&core.Session{UUID: "0b6f", Name: "bench"})

	assert.Equal(t, "bench", ctx.GetSession().Name)
	assert.Equal(t, "0b6f", ctx.ID())
}
