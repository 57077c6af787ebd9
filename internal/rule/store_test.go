package rule

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemoryStore(t *testing.T) {
	t.Run("put then get", func(t *testing.T) {
		s := NewMemoryStore(nil)
		s.Put("Company", Static("Acme"))

		r, ok := s.Get("Company")
		assert.True(t, ok)
		assert.Equal(t, "Acme", r.Value)
	})

	t.Run("put replaces wholly", func(t *testing.T) {
		s := NewMemoryStore(nil)
		s.Put("Company", Prompt("p", "code", "note"))
		s.Put("Company", Static("Acme"))

		r, _ := s.Get("Company")
		assert.Equal(t, Static("Acme"), r)
	})

	t.Run("delete absent reports false and leaves store unchanged", func(t *testing.T) {
		s := NewMemoryStore(Set{"A": Static("1")})
		assert.False(t, s.Delete("Missing"))
		assert.Equal(t, []string{"A"}, s.Fields())
		r, ok := s.Get("A")
		assert.True(t, ok)
		assert.Equal(t, Static("1"), r)
	})

	t.Run("delete present reports true", func(t *testing.T) {
		s := NewMemoryStore(Set{"A": Static("1")})
		assert.True(t, s.Delete("A"))
		_, ok := s.Get("A")
		assert.False(t, ok)
	})

	t.Run("fields lists rule names", func(t *testing.T) {
		s := NewMemoryStore(Set{"B": Static("2"), "A": Static("1")})
		assert.Equal(t, []string{"A", "B"}, s.Fields())
	})

	t.Run("seed is copied", func(t *testing.T) {
		seed := Set{"A": Static("1")}
		s := NewMemoryStore(seed)
		s.Put("B", Static("2"))
		assert.Len(t, seed, 1)
	})
}
