package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorCollectorReportAndClear(t *testing.T) {
	c := NewErrorCollector()
	assert.False(t, c.HasFailures())

	c.Report("styles", NewBuildError(ErrCodeStyleCompile, "Expected expression.", nil).WithPath("src/css/main.scss"))
	c.Report("scripts", fmt.Errorf("plain failure"))

	failures := c.Failures()
	require.Len(t, failures, 2)
	assert.Equal(t, "scripts", failures[0].Task)
	assert.Equal(t, "plain failure", failures[0].Message)
	assert.Equal(t, "styles", failures[1].Task)
	assert.Equal(t, ErrCodeStyleCompile, failures[1].Code)
	assert.Equal(t, "src/css/main.scss", failures[1].Path)
	assert.Equal(t, "Expected expression.", failures[1].Message)

	c.Report("styles", nil)
	failures = c.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "scripts", failures[0].Task)

	c.Clear("scripts")
	assert.False(t, c.HasFailures())
}

func TestErrorCollectorLatestWins(t *testing.T) {
	c := NewErrorCollector()
	c.Report("styles", fmt.Errorf("first"))
	c.Report("styles", fmt.Errorf("second"))

	failures := c.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "second", failures[0].Message)
}

func TestErrorCollectorOnChange(t *testing.T) {
	c := NewErrorCollector()
	var seen [][]Failure
	c.OnChange(func(f []Failure) { seen = append(seen, f) })

	c.Report("styles", fmt.Errorf("broken"))
	c.Clear("styles")
	c.Clear("styles")

	require.Len(t, seen, 2)
	assert.Len(t, seen[0], 1)
	assert.Empty(t, seen[1])
}
