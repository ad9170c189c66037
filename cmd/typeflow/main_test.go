package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodedErrorCarriesExitCode(t *testing.T) {
	var cErr *codedError
	require.True(t, errors.As(errWithCode(nil, exitNotConverged), &cErr))
	require.Equal(t, exitNotConverged, cErr.code)
	require.Empty(t, cErr.Error(), "non-convergence exits silently")
}

func TestCodedErrorMatchesThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("analyze: %w", errWithCode(errors.New("boom"), exitError))

	var cErr *codedError
	require.True(t, errors.As(wrapped, &cErr))
	require.Equal(t, exitError, cErr.code)
	require.Equal(t, "boom", cErr.Error())
}
