package web

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNonceLifetime(t *testing.T) {
	now := time.Date(2024, 5, 1, 1, 0, 0, 0, time.UTC)
	n := NewNonces("secret")
	n.now = func() time.Time { return now }

	nonce := n.Create("simpletags_admin")
	assert.Len(t, nonce, 20)
	assert.True(t, n.Verify(nonce, "simpletags_admin"))
	assert.False(t, n.Verify(nonce, "st-admin-js"))
	assert.False(t, n.Verify("", "simpletags_admin"))

	now = now.Add(nonceTick)
	assert.True(t, n.Verify(nonce, "simpletags_admin"), "previous tick is still valid")
	assert.NotEqual(t, nonce, n.Create("simpletags_admin"))

	now = now.Add(nonceTick)
	assert.False(t, n.Verify(nonce, "simpletags_admin"))
}

func TestNonceDependsOnSecret(t *testing.T) {
	fixed := func() time.Time { return time.Unix(1700000000, 0) }
	a, b := NewNonces("one"), NewNonces("two")
	a.now, b.now = fixed, fixed

	assert.False(t, b.Verify(a.Create("x"), "x"))
	assert.True(t, a.Verify(a.Create("x"), "x"))
}
