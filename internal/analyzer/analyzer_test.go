package analyzer_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apimonitor/internal/analyzer"
)

func analyze(t *testing.T, doc string) ([]analyzer.Metric, []analyzer.Tag) {
	t.Helper()
	value, err := analyzer.Decode([]byte(doc))
	require.NoError(t, err)
	metrics, tags := analyzer.Analyze(value, "")
	return metrics, tags
}

func TestAnalyzeNumericLeaf(t *testing.T) {
	metrics, tags := analyze(t, `{"cpu": {"load": 0.5}}`)

	require.Len(t, metrics, 1)
	assert.Equal(t, "cpu.load", metrics[0].Path)
	assert.Equal(t, "cpu_load", metrics[0].Name)
	assert.Equal(t, "float", metrics[0].Type)
	assert.Empty(t, tags)
}

func TestAnalyzeNumberTypes(t *testing.T) {
	metrics, _ := analyze(t, `{"count": 42}`)
	require.Len(t, metrics, 1)
	assert.Equal(t, "int", metrics[0].Type)

	metrics, _ = analyze(t, `{"ratio": 1.0}`)
	require.Len(t, metrics, 1)
	assert.Equal(t, "float", metrics[0].Type)

	metrics, _ = analyze(t, `{"big": 1e3}`)
	require.Len(t, metrics, 1)
	assert.Equal(t, "float", metrics[0].Type)
}

func TestAnalyzeShortStringBecomesTag(t *testing.T) {
	metrics, tags := analyze(t, `{"status": "ok"}`)

	assert.Empty(t, metrics)
	require.Len(t, tags, 1)
	assert.Equal(t, "status", tags[0].Path)
	assert.Equal(t, "status", tags[0].Name)
}

func TestAnalyzeLongStringIgnored(t *testing.T) {
	long := strings.Repeat("x", 100)
	metrics, tags := analyze(t, `{"status": "`+long+`"}`)

	assert.Empty(t, metrics)
	assert.Empty(t, tags)
}

func TestAnalyzeBooleanAndNullIgnored(t *testing.T) {
	metrics, tags := analyze(t, `{"enabled": true, "owner": null}`)

	assert.Empty(t, metrics)
	assert.Empty(t, tags)
}

func TestAnalyzeArraySamplesFirstElementOnly(t *testing.T) {
	metrics, tags := analyze(t, `{"items": [{"n": 1}, {"n": 2}, {"n": 3}]}`)

	require.Len(t, metrics, 1)
	assert.Equal(t, "items[*].n", metrics[0].Path)
	assert.Empty(t, tags)
}

func TestAnalyzeEmptyContainersIgnored(t *testing.T) {
	metrics, tags := analyze(t, `{"empty_obj": {}, "empty_arr": []}`)

	assert.Empty(t, metrics)
	assert.Empty(t, tags)
}

func TestAnalyzeMetricAndTagPathsDisjoint(t *testing.T) {
	metrics, tags := analyze(t, `{
		"cpu": {"load": 0.5, "cores": 8},
		"status": "ok",
		"host": {"name": "dev-1", "uptime": 12345},
		"notes": null,
		"active": true
	}`)

	metricPaths := map[string]bool{}
	for _, m := range metrics {
		assert.False(t, metricPaths[m.Path], "duplicate metric path %s", m.Path)
		metricPaths[m.Path] = true
	}
	for _, tag := range tags {
		assert.False(t, metricPaths[tag.Path], "path %s classified as both metric and tag", tag.Path)
	}

	assert.Len(t, metrics, 3)
	assert.Len(t, tags, 2)
}

func TestDeeplyNested(t *testing.T) {
	sixDeep, err := analyzer.Decode([]byte(`{"a":{"b":{"c":{"d":{"e":{"f":1}}}}}}`))
	require.NoError(t, err)
	assert.True(t, analyzer.DeeplyNested(sixDeep))

	threeDeep, err := analyzer.Decode([]byte(`{"a":{"b":{"c":1}}}`))
	require.NoError(t, err)
	assert.False(t, analyzer.DeeplyNested(threeDeep))
}

func TestDeeplyNestedThroughArrays(t *testing.T) {
	value, err := analyzer.Decode([]byte(`{"a":[{"b":[{"c":{"d":1}}]}]}`))
	require.NoError(t, err)
	assert.True(t, analyzer.DeeplyNested(value))
}

func TestDeeplyNestedEmptyContainersDoNotCount(t *testing.T) {
	value, err := analyzer.Decode([]byte(`{"a":{"b":{"c":{"d":{"e":{}}}}}}`))
	require.NoError(t, err)
	assert.False(t, analyzer.DeeplyNested(value))

	scalar, err := analyzer.Decode([]byte(`42`))
	require.NoError(t, err)
	assert.False(t, analyzer.DeeplyNested(scalar))
}

func TestDeeplyNestedDoesNotChangeClassification(t *testing.T) {
	doc := `{"a":{"b":{"c":{"d":{"e":{"f":1,"g":"ok"}}}}}}`
	metrics, tags := analyze(t, doc)

	require.Len(t, metrics, 1)
	assert.Equal(t, "a.b.c.d.e.f", metrics[0].Path)
	assert.Equal(t, "a_b_c_d_e_f", metrics[0].Name)
	require.Len(t, tags, 1)
	assert.Equal(t, "a.b.c.d.e.g", tags[0].Path)
}
