package handlers

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOriginPatterns(t *testing.T) {
	require.Equal(t,
		[]string{"localhost:5173", "crm.example.com"},
		originPatterns([]string{"http://localhost:5173", "https://crm.example.com"}))

	require.Equal(t, []string{"*"},
		originPatterns([]string{"https://crm.example.com", "*"}))

	// Bare hosts pass through untouched.
	require.Equal(t, []string{"dashboard.internal:8443"},
		originPatterns([]string{"dashboard.internal:8443"}))
}
