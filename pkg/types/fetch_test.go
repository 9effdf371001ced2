package types

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEffectiveMethod(t *testing.T) {
	req := &FetchRequest{}
	assert.Equal(t, http.MethodGet, req.EffectiveMethod())

	req.Method = "POST"
	assert.Equal(t, "POST", req.EffectiveMethod())
}

func TestEffectiveContext(t *testing.T) {
	req := &FetchRequest{}
	assert.Equal(t, DefaultContextName, req.EffectiveContext())

	req.ContextName = "authenticated"
	assert.Equal(t, "authenticated", req.EffectiveContext())
}

func TestContextSpecPersistent(t *testing.T) {
	var nilSpec *ContextSpec
	assert.False(t, nilSpec.Persistent())

	assert.False(t, (&ContextSpec{}).Persistent())
	assert.True(t, (&ContextSpec{UserDataDir: "/var/lib/fetch/profile"}).Persistent())
}

func TestNewPageMethod(t *testing.T) {
	method := NewPageMethod("click", "#submit", map[string]interface{}{"timeout": 500})

	assert.Equal(t, "click", method.Name)
	assert.Len(t, method.Args, 2)
	assert.Equal(t, "#submit", method.Args[0])
	assert.Nil(t, method.Result)
}
