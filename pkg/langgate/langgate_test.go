package langgate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const english = "The quick brown fox jumps over the lazy dog while the children watch from the garden and laugh."

func TestGate(t *testing.T) {
	t.Run("nil gate allows everything", func(t *testing.T) {
		g, err := New(nil)
		require.NoError(t, err)
		allow, decided := g.Allow("anything at all")
		assert.True(t, allow)
		assert.True(t, decided)
	})

	t.Run("short text is undecided", func(t *testing.T) {
		g, err := New([]string{"en"})
		require.NoError(t, err)
		allow, decided := g.Allow("hello there")
		assert.True(t, allow)
		assert.False(t, decided)
	})

	t.Run("allowed language passes", func(t *testing.T) {
		g, err := New([]string{"English"})
		require.NoError(t, err)
		allow, decided := g.Allow(english)
		assert.True(t, decided)
		assert.True(t, allow)
	})

	t.Run("other languages are rejected", func(t *testing.T) {
		g, err := New([]string{"german"})
		require.NoError(t, err)
		allow, decided := g.Allow(english)
		assert.True(t, decided)
		assert.False(t, allow)
	})

	t.Run("unknown names are an error", func(t *testing.T) {
		_, err := New([]string{"klingon"})
		assert.Error(t, err)
	})
}
