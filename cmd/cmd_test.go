package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/mca/internal/archive"
	"github.com/abhisek/mca/internal/pattern"
	"github.com/abhisek/mca/internal/thresholds"
)

func TestParseScores(t *testing.T) {
	s, err := parseScores("3, 3,2,2,3,3,2,3,2,2,1,1")
	require.NoError(t, err)
	assert.Equal(t, [12]int{3, 3, 2, 2, 3, 3, 2, 3, 2, 2, 1, 1}, s.Vector())

	s, err = parseScores("P1=3,m2=1")
	require.NoError(t, err)
	assert.Equal(t, 3, s.P1)
	assert.Equal(t, 1, s.M2)
	assert.Equal(t, 4, s.Total())

	for _, in := range []string{"1,2,3", "1,2,3,4,5,6,7,8,9,x,1,1", "p1", "zz=1", "p1=abc"} {
		_, err := parseScores(in)
		assert.ErrorIs(t, err, pattern.ErrMalformedInput, in)
	}
}

func TestRunEvaluate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labeled.csv")
	rows := []string{
		"p1,p2,p3,p4,m1,m2,m3,e1,e2,e3,r1,r2,label",
		"3,3,3,3,3,3,3,3,3,3,3,3,A",
		"1,1,1,1,1,1,1,1,1,1,1,1,F",
		"1,1,1,1,1,1,1,1,1,1,1,1,B",
	}
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(rows, "\n")+"\n"), 0o644))

	var out bytes.Buffer
	require.NoError(t, runEvaluate(&out, path))
	assert.Contains(t, out.String(), "Accuracy: 66.7% (2/3)")
}

func TestRunEvaluateRejects(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
		return p
	}

	var out bytes.Buffer
	assert.Error(t, runEvaluate(&out, filepath.Join(dir, "missing.csv")))
	assert.ErrorContains(t, runEvaluate(&out, write("empty.csv", "p1,p2,p3,p4,m1,m2,m3,e1,e2,e3,r1,r2,label\n")), "no labeled rows")
	assert.ErrorContains(t, runEvaluate(&out, write("label.csv", "1,1,1,1,1,1,1,1,1,1,1,1,Z\n")), "line 1")
	assert.Error(t, runEvaluate(&out, write("short.csv", "1,1,1\n")))
}

func TestUnitInterval(t *testing.T) {
	assert.NoError(t, unitInterval("x", 0))
	assert.NoError(t, unitInterval("x", 1))
	assert.ErrorIs(t, unitInterval("x", 1.5), pattern.ErrMalformedInput)
}

func TestBuildVersion(t *testing.T) {
	old := version
	t.Cleanup(func() { version = old })

	version = "1.2"
	assert.Equal(t, "v1.2.0", buildVersion())
	version = "v0.3.1"
	assert.Equal(t, "v0.3.1", buildVersion())
	version = "nightly"
	assert.Equal(t, "nightly", buildVersion())
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "abc", truncate("abcdef", 3))
	assert.Equal(t, "ab", truncate("ab", 3))
	assert.Equal(t, "$0.0050", formatCost(0.005))
	assert.Equal(t, "$1.25", formatCost(1.25))
}

func TestPrintArchive(t *testing.T) {
	dir := t.TempDir()
	a, err := archive.New(dir)
	require.NoError(t, err)
	require.NoError(t, a.Archive([]thresholds.FeedbackEntry{
		{ID: "1", UserID: "u1", Predicted: pattern.F, Actual: pattern.F, Accurate: true},
		{ID: "2", UserID: "u1", Predicted: pattern.F, Actual: pattern.B},
		{ID: "3", UserID: "u2", Predicted: pattern.A, Actual: pattern.A, Accurate: true},
	}))
	entries, err := archive.ReadAll(dir)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	var out bytes.Buffer
	printArchive(&out, entries, "u1")
	assert.Contains(t, out.String(), fmt.Sprintf("%-8s %8d %8.1f%%", "F", 2, 50.0))
	assert.Contains(t, out.String(), fmt.Sprintf("%-8s %8d %8.1f%%", "TOTAL", 2, 50.0))
	assert.NotContains(t, out.String(), fmt.Sprintf("%-8s %8d", "A", 1))

	out.Reset()
	printArchive(&out, entries, "")
	assert.Contains(t, out.String(), fmt.Sprintf("%-8s %8d %8.1f%%", "TOTAL", 3, 200.0/3))

	out.Reset()
	printArchive(&out, entries, "nobody")
	assert.Equal(t, "No archived feedback.\n", out.String())
}
