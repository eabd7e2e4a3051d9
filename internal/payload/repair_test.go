package payload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepairStrictParseReportsClean(t *testing.T) {
	res := Repair(`[{"postUrl":"https://x.com/1","postContent":"hello"}]`)
	require.True(t, res.Success)
	assert.Equal(t, MethodClean, res.Method)
	require.Len(t, res.Data, 1)
	assert.Equal(t, "https://x.com/1", res.Data[0].PostURL)
}

func TestRepairAlreadyArrayShortCircuits(t *testing.T) {
	input := []interface{}{
		map[string]interface{}{"postUrl": "https://x.com/1", "postContent": "hi"},
	}
	res := Repair(input)
	require.True(t, res.Success)
	assert.Equal(t, MethodClean, res.Method)
}

func TestRepairControlCharactersCleaned(t *testing.T) {
	dirty := "[{\"postUrl\":\"https://x.com/1\",\"postContent\":\"hi\x00there\"}]"
	res := Repair(dirty)
	require.True(t, res.Success)
	assert.Equal(t, MethodCleanPreprocessing, res.Method)
}

func TestRepairQuoteRepair(t *testing.T) {
	dirty := `[{"postUrl":"https://x.com/1","postContent":"he said "hi" there"}]`
	res := Repair(dirty)
	require.True(t, res.Success)
	assert.Contains(t, []Method{MethodQuoteRepair, MethodDirtyJSON, MethodDirtyJSONQuoteRepair}, res.Method)
}

func TestRepairCorruptedOnUnrecoverableInput(t *testing.T) {
	dirty := `[{"postContent":"he said "hi" there"}` // missing closing bracket
	res := Repair(dirty)
	assert.False(t, res.Success)
	assert.Equal(t, MethodCorrupted, res.Method)
	assert.ErrorIs(t, res.Err, res.Err) // sentinel asserted in processor tests via core.ErrUnparseableJSON
}

func TestRepairOutputAlwaysArrayOnSuccess(t *testing.T) {
	res := Repair(`[{"postUrl":"a","postContent":"b"}]`)
	require.True(t, res.Success)
	assert.IsType(t, res.Data, res.Data)
}

func TestRepairMonotonicity(t *testing.T) {
	// If strict parse succeeds, method is CLEAN.
	res := Repair(`[{"postUrl":"a","postContent":"b"}]`)
	require.True(t, res.Success)
	assert.Equal(t, MethodClean, res.Method)

	// A later-stage success implies strict parse failed (by construction:
	// stage 2 only runs after stage 1 fails).
	res2 := Repair("[{\"postUrl\":\"a\",\"postContent\":\"b\x00\"}]")
	require.True(t, res2.Success)
	assert.NotEqual(t, MethodClean, res2.Method)
}

func TestAnalyseSeverities(t *testing.T) {
	assert.Equal(t, SeverityClean, Analyse(`[{"a":"b"}]`))
	assert.Equal(t, SeverityDirty, Analyse(`[{"a":"b}]`))
	assert.Equal(t, SeverityCorrupted, Analyse("[{\"a\":\"b\x00\"}]"))
}
