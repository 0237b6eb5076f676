package skills

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(NewCalculator()))
	assert.Error(t, r.Register(NewCalculator()))
	assert.Len(t, r.List(), 1)
}

func TestRegistryMatchFirstWins(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, RegisterBuiltins(r, t.TempDir()))

	skill, args, ok := r.Match("calculate 2 + 3")
	require.True(t, ok)
	assert.Equal(t, "calculator", skill.Name())
	assert.Equal(t, "2 + 3", args["expression"])

	_, _, ok = r.Match("refactor the payment service")
	assert.False(t, ok)
}

func TestCalculatorMatch(t *testing.T) {
	c := NewCalculator()
	cases := []struct {
		prompt string
		expr   string
		ok     bool
	}{
		{"calculate 2+3*4", "2+3*4", true},
		{"what is (1+2)^3?", "(1+2)^3", true},
		{"计算 10 / 4", "10 / 4", true},
		{"calculate the risk of this change", "", false},
		{"deploy to production", "", false},
	}
	for _, tc := range cases {
		args, ok := c.Match(tc.prompt)
		assert.Equal(t, tc.ok, ok, tc.prompt)
		if ok {
			assert.Equal(t, tc.expr, args["expression"])
		}
	}
}

func TestEvaluate(t *testing.T) {
	cases := []struct {
		expr string
		want float64
	}{
		{"2+3*4", 14},
		{"(2+3)*4", 20},
		{"2^3^2", 512}, // right associative
		{"-3 + 5", 2},
		{"2 * -3", -6},
		{"10 % 4", 2},
		{"7 / 2", 3.5},
	}
	for _, tc := range cases {
		got, err := Evaluate(tc.expr)
		require.NoError(t, err, tc.expr)
		assert.InDelta(t, tc.want, got, 1e-9, tc.expr)
	}
}

func TestEvaluateErrors(t *testing.T) {
	for _, expr := range []string{"1/0", "(1+2", "1+", "2 3", ""} {
		_, err := Evaluate(expr)
		assert.Error(t, err, expr)
	}
}

func TestCalculatorExecuteFormatsIntegers(t *testing.T) {
	c := NewCalculator()
	out, err := c.Execute(context.Background(), map[string]string{"expression": "2+3*4"})
	require.NoError(t, err)
	assert.Equal(t, "2+3*4 = 14", out)
}

func TestFileSearch(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))
	for _, name := range []string{"main.py", "util.py", "sub/helper.py", "readme.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), nil, 0o644))
	}

	s := NewFileSearch(root)
	args, ok := s.Match("find files *.py")
	require.True(t, ok)
	assert.Equal(t, "*.py", args["pattern"])

	out, err := s.Execute(context.Background(), args)
	require.NoError(t, err)
	assert.Contains(t, out, "找到 3 个文件")
	assert.Contains(t, out, "main.py")
	assert.Contains(t, out, filepath.Join("sub", "helper.py"))
	assert.NotContains(t, out, "readme.md")
}

func TestFileSearchChinesePattern(t *testing.T) {
	s := NewFileSearch(t.TempDir())
	args, ok := s.Match("搜索 *.go 文件")
	require.True(t, ok)
	assert.Equal(t, "*.go", args["pattern"])

	out, err := s.Execute(context.Background(), args)
	require.NoError(t, err)
	assert.Contains(t, out, "找到 0 个文件")
}

func TestFileSearchCapsResults(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 120; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(root, fmt.Sprintf("file_%03d.txt", i)), nil, 0o644))
	}

	s := NewFileSearch(root)
	out, err := s.Execute(context.Background(), map[string]string{"pattern": "*.txt"})
	require.NoError(t, err)
	assert.Contains(t, out, "找到 100 个文件")
	assert.Contains(t, out, "showing first 100")
}

func TestSystemInfo(t *testing.T) {
	s := NewSystemInfo()
	_, ok := s.Match("show me the system info please")
	assert.True(t, ok)
	_, ok = s.Match("系统信息")
	assert.True(t, ok)
	_, ok = s.Match("fix the login bug")
	assert.False(t, ok)

	out, err := s.Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.Contains(t, out, "platform:")
	assert.Contains(t, out, "cpus:")
}
