package main

import (
	"strings"
	"testing"

	"github.com/openmined/trackd/internal/version"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand_PrintsDetailedVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	require.Equal(t, version.DetailedWithApp(), strings.TrimSpace(out))
}
