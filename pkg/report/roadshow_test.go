package report

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaveai/weaveai/pkg/models"
)

func roadshowSession() *models.Session {
	completed := time.Date(2026, 3, 2, 10, 2, 0, 0, time.UTC)
	return &models.Session{
		ID:          "sess-zip",
		Status:      models.SessionStatusCompleted,
		Profile:     testProfile(),
		FinalReport: "# Report\n\nBody.",
		EvidencePack: map[string]any{
			"version": "phase3.v1",
		},
		MemorySnapshot: map[string]any{
			"version": "phase3.memory.v1",
		},
		CreatedAt:   time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		CompletedAt: &completed,
	}
}

func readZip(t *testing.T, data []byte) map[string][]byte {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	out := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		content, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		out[f.Name] = content
	}
	return out
}

func TestWriteRoadshowZIP(t *testing.T) {
	session := roadshowSession()
	var buf bytes.Buffer

	err := WriteRoadshowZIP(&buf, RoadshowInputs{
		Session:     session,
		Demo:        DemoMetrics{StabilityScore: 92, StabilityLevel: "excellent"},
		Bundle:      BuildChartBundle(session.ID, session.Profile, DemoMetrics{}, emptyToolMetrics(), pinnedTime()),
		ReportHTML:  []byte("<!doctype html><html></html>"),
		FinalReport: session.FinalReport,
		ExportedAt:  pinnedTime(),
	})
	require.NoError(t, err)

	entries := readZip(t, buf.Bytes())
	root := "weaveai-roadshow-sess-zip/"
	wantNames := []string{
		"report.html",
		"executive_summary.md",
		"session_snapshot.json",
		"evidence_pack.json",
		"memory_snapshot.json",
		"demo_metrics.json",
		"tool_metrics.json",
		"report_charts.json",
		"workflow_timeline.json",
		"manifest.json",
	}
	require.Len(t, entries, len(wantNames))
	for _, name := range wantNames {
		assert.Contains(t, entries, root+name)
	}

	var manifest map[string]any
	require.NoError(t, json.Unmarshal(entries[root+"manifest.json"], &manifest))
	assert.Equal(t, RoadshowPackage, manifest["package"])
	assert.Equal(t, RoadshowManifestVersion, manifest["version"])
	assert.Equal(t, "sess-zip", manifest["session_id"])
	assert.Equal(t, "completed", manifest["status"])
	assert.Equal(t, "2026-03-02T10:05:00Z", manifest["exported_at"])

	// The manifest lists every entry written before it, itself excluded.
	files, ok := manifest["files"].([]any)
	require.True(t, ok)
	assert.Len(t, files, len(wantNames)-1)
	assert.NotContains(t, files, "manifest.json")

	var demo DemoMetrics
	require.NoError(t, json.Unmarshal(entries[root+"demo_metrics.json"], &demo))
	assert.Equal(t, 92, demo.StabilityScore)

	var charts ChartBundle
	require.NoError(t, json.Unmarshal(entries[root+"report_charts.json"], &charts))
	assert.Equal(t, ChartSpecVersion, charts.SpecVersion)

	assert.Contains(t, string(entries[root+"executive_summary.md"]), "# WeaveAI Roadshow Executive Summary")
}

func TestWriteRoadshowZIPWithoutReportHTML(t *testing.T) {
	var buf bytes.Buffer

	err := WriteRoadshowZIP(&buf, RoadshowInputs{
		Session:    roadshowSession(),
		ExportedAt: pinnedTime(),
	})
	require.NoError(t, err)

	entries := readZip(t, buf.Bytes())
	root := "weaveai-roadshow-sess-zip/"
	assert.NotContains(t, entries, root+"report.html")
	assert.Contains(t, entries, root+"manifest.json")

	var manifest map[string]any
	require.NoError(t, json.Unmarshal(entries[root+"manifest.json"], &manifest))
	assert.NotContains(t, manifest["files"], "report.html")
}

func TestWriteRoadshowZIPSanitizesPackageRoot(t *testing.T) {
	var buf bytes.Buffer
	session := roadshowSession()
	session.ID = "../weird id"

	err := WriteRoadshowZIP(&buf, RoadshowInputs{Session: session, ExportedAt: pinnedTime()})
	require.NoError(t, err)

	entries := readZip(t, buf.Bytes())
	assert.Contains(t, entries, "weaveai-roadshow-_weird_id/manifest.json")
}

func TestWriteRoadshowZIPEmptyPacksStayObjects(t *testing.T) {
	var buf bytes.Buffer
	session := roadshowSession()
	session.EvidencePack = nil
	session.MemorySnapshot = nil

	err := WriteRoadshowZIP(&buf, RoadshowInputs{Session: session, ExportedAt: pinnedTime()})
	require.NoError(t, err)

	entries := readZip(t, buf.Bytes())
	root := "weaveai-roadshow-sess-zip/"
	assert.JSONEq(t, "{}", string(entries[root+"evidence_pack.json"]))
	assert.JSONEq(t, "{}", string(entries[root+"memory_snapshot.json"]))
	assert.JSONEq(t, "[]", string(entries[root+"workflow_timeline.json"]))
}
