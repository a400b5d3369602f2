package report

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/weaveai/weaveai/pkg/models"
	"github.com/weaveai/weaveai/pkg/tools"
)

// Roadshow package identity, checked by consumers before unpacking.
const (
	RoadshowPackage         = "weaveai_roadshow_zip"
	RoadshowManifestVersion = "phase5.v1"
)

// RoadshowInputs collects everything the ZIP carries. ReportHTML is the
// rendered document; when empty the report.html entry is skipped and the
// manifest says so.
type RoadshowInputs struct {
	Session     *models.Session
	Results     []*models.AgentResult
	Debates     []*models.DebateExchange
	Events      []*models.WorkflowEvent
	Demo        DemoMetrics
	Tool        tools.AggregatedMetrics
	Bundle      ChartBundle
	ReportHTML  []byte
	FinalReport string
	ExportedAt  time.Time
}

// WriteRoadshowZIP streams the roadshow package for one session: the
// report, the executive summary, and every JSON artifact a demo audience
// asks about afterwards, all under one package root named after the
// session. The manifest closes the archive and lists what made it in.
func WriteRoadshowZIP(w io.Writer, in RoadshowInputs) error {
	session := in.Session
	if session == nil {
		session = &models.Session{}
	}
	exportedAt := in.ExportedAt
	if exportedAt.IsZero() {
		exportedAt = time.Now()
	}
	root := "weaveai-roadshow-" + SafeSessionID(session.ID)

	zw := zip.NewWriter(w)
	var files []string

	addText := func(name, content string) error {
		f, err := zw.Create(root + "/" + name)
		if err != nil {
			return fmt.Errorf("create zip entry %s: %w", name, err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			return fmt.Errorf("write zip entry %s: %w", name, err)
		}
		files = append(files, name)
		return nil
	}
	addJSON := func(name string, v any) error {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal zip entry %s: %w", name, err)
		}
		return addText(name, string(data))
	}

	if len(in.ReportHTML) > 0 {
		if err := addText("report.html", string(in.ReportHTML)); err != nil {
			return err
		}
	}

	summary := BuildExecutiveSummary(SummaryInputs{
		Session:     session,
		Results:     in.Results,
		Debates:     in.Debates,
		Demo:        in.Demo,
		Tool:        in.Tool,
		FinalReport: in.FinalReport,
		ExportedAt:  exportedAt,
	})
	if err := addText("executive_summary.md", summary); err != nil {
		return err
	}

	evidence := session.EvidencePack
	if evidence == nil {
		evidence = map[string]any{}
	}
	memory := session.MemorySnapshot
	if memory == nil {
		memory = map[string]any{}
	}
	events := in.Events
	if events == nil {
		events = []*models.WorkflowEvent{}
	}

	for _, entry := range []struct {
		name string
		v    any
	}{
		{"session_snapshot.json", session},
		{"evidence_pack.json", evidence},
		{"memory_snapshot.json", memory},
		{"demo_metrics.json", in.Demo},
		{"tool_metrics.json", in.Tool},
		{"report_charts.json", in.Bundle},
		{"workflow_timeline.json", events},
	} {
		if err := addJSON(entry.name, entry.v); err != nil {
			return err
		}
	}

	manifest := map[string]any{
		"package":     RoadshowPackage,
		"version":     RoadshowManifestVersion,
		"session_id":  session.ID,
		"exported_at": exportedAt.UTC().Format(time.RFC3339),
		"status":      session.Status,
		"files":       files,
	}
	if err := addJSON("manifest.json", manifest); err != nil {
		return err
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("close roadshow zip: %w", err)
	}
	return nil
}
