package instance

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextPort(t *testing.T) {
	always := func(int) bool { return true }

	t.Run("returns 6379 when no ports used", func(t *testing.T) {
		port, err := nextPort(map[int]bool{}, always)
		require.NoError(t, err)
		assert.Equal(t, 6379, port)
	})

	t.Run("skips ports labelled on containers", func(t *testing.T) {
		port, err := nextPort(map[int]bool{6379: true, 6380: true}, always)
		require.NoError(t, err)
		assert.Equal(t, 6381, port)
	})

	t.Run("skips ports that are already bound", func(t *testing.T) {
		port, err := nextPort(map[int]bool{6379: true}, func(p int) bool { return p > 6385 })
		require.NoError(t, err)
		assert.Equal(t, 6386, port)
	})

	t.Run("exhausted range", func(t *testing.T) {
		_, err := nextPort(map[int]bool{}, func(int) bool { return false })
		assert.EqualError(t, err, "no available Redis ports (range 6379-6478 exhausted)")
	})
}

func TestIsPortBindable(t *testing.T) {
	t.Run("returns true for available port", func(t *testing.T) {
		listener, err := net.Listen("tcp", "localhost:0")
		require.NoError(t, err)
		port := listener.Addr().(*net.TCPAddr).Port
		listener.Close()

		assert.True(t, isPortBindable(port))
	})

	t.Run("returns false for port in use", func(t *testing.T) {
		listener, err := net.Listen("tcp", "localhost:0")
		require.NoError(t, err)
		defer listener.Close()

		assert.False(t, isPortBindable(listener.Addr().(*net.TCPAddr).Port))
	})
}
