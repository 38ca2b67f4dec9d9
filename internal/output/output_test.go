package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatBytes(t *testing.T) {
	require.Equal(t, "512 B", FormatBytes(512))
	require.Equal(t, "1.00 KB", FormatBytes(1024))
	require.Equal(t, "1.50 MB", FormatBytes(1536*1024))
	require.Equal(t, "0 B/s", FormatSpeed(10, 0))
	require.Equal(t, "1.00 KB/s", FormatSpeed(2048, 2))
}

func TestProgressBar(t *testing.T) {
	require.True(t, strings.HasSuffix(ProgressBar(50, 100, 10), "50.0%"))
	require.True(t, strings.HasSuffix(ProgressBar(200, 100, 10), "100.0%"))
	require.True(t, strings.HasSuffix(ProgressBar(0, 0, 10), "100.0%"))
	require.Equal(t, 5, strings.Count(ProgressBar(50, 100, 10), StyleSymbols["hline"]))
}

func TestPrintersUseOut(t *testing.T) {
	var buf bytes.Buffer
	prev := Out
	Out = &buf
	defer func() { Out = prev }()

	PrintSuccess("posted 3 chunks")
	PrintError("collector unreachable")
	require.Contains(t, buf.String(), "posted 3 chunks")
	require.Contains(t, buf.String(), "collector unreachable")
}
