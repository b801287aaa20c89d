package cmd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestColumnWidth(t *testing.T) {
	t.Parallel()

	require.Equal(t, 12, columnWidth(40))
	require.Equal(t, 24, columnWidth(100))
	require.Equal(t, 60, columnWidth(400))
}
