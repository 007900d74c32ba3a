package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const validRecord = `ROUTER_ID,1
INPUTS,6110
OUTPUTS,6201-3-2
`

func TestParseValid(t *testing.T) {
	cfg, err := Parse(strings.NewReader(validRecord))
	require.NoError(t, err)
	require.EqualValues(t, 1, cfg.RouterID)
	require.Equal(t, []uint16{6110}, cfg.Inputs)
	require.Equal(t, []Neighbor{{SendPort: 6201, Cost: 3, ID: 2}}, cfg.Outputs)
}

func TestParseMultipleInputsAndOutputs(t *testing.T) {
	record := "ROUTER_ID,1\nINPUTS,6110 6111\nOUTPUTS,6201-3-2 6202-1-3\n"
	cfg, err := Parse(strings.NewReader(record))
	require.NoError(t, err)
	require.Equal(t, []uint16{6110, 6111}, cfg.Inputs)
	require.Len(t, cfg.Outputs, 2)
}

func TestParseMissingKey(t *testing.T) {
	_, err := Parse(strings.NewReader("ROUTER_ID,1\nINPUTS,6110\n"))
	require.Error(t, err)
}

func TestParseRouterIDOutOfRange(t *testing.T) {
	_, err := Parse(strings.NewReader("ROUTER_ID,64001\nINPUTS,6110\nOUTPUTS,6201-3-2\n"))
	require.Error(t, err)
}

func TestParsePortOutOfRange(t *testing.T) {
	_, err := Parse(strings.NewReader("ROUTER_ID,1\nINPUTS,80\nOUTPUTS,6201-3-2\n"))
	require.Error(t, err)
}

func TestParseOutputOverlapsInput(t *testing.T) {
	_, err := Parse(strings.NewReader("ROUTER_ID,1\nINPUTS,6201\nOUTPUTS,6201-3-2\n"))
	require.Error(t, err)
}

func TestParseCostOutOfRange(t *testing.T) {
	_, err := Parse(strings.NewReader("ROUTER_ID,1\nINPUTS,6110\nOUTPUTS,6201-17-2\n"))
	require.Error(t, err)
}

func TestParseMalformedOutput(t *testing.T) {
	_, err := Parse(strings.NewReader("ROUTER_ID,1\nINPUTS,6110\nOUTPUTS,not-a-descriptor\n"))
	require.Error(t, err)
}

func TestParseIgnoresCommentsAndBlankLines(t *testing.T) {
	record := "# a comment\n\nROUTER_ID,1\nINPUTS,6110\nOUTPUTS,6201-3-2\n"
	_, err := Parse(strings.NewReader(record))
	require.NoError(t, err)
}
