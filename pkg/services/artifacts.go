package services

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/weaveai/weaveai/pkg/report"
	"github.com/weaveai/weaveai/pkg/tools"
)

// ReportHTML renders the session report with the live chart bundle
// embedded. The file the engine wrote at finalize has no charts; serving
// re-renders from the persisted report so readers get the full document.
// Sessions without a synthesized report fall back to that file; missing
// both is not found.
func (s *InsightService) ReportHTML(ctx context.Context, sessionID string) ([]byte, error) {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if session.FinalReport == "" {
		data, err := s.renderer.ReadHTML(sessionID)
		if err != nil {
			return nil, fmt.Errorf("report for session %s: %w", sessionID, ErrNotFound)
		}
		return data, nil
	}

	rows, err := s.loadRows(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	demo := report.ComputeDemoMetrics(session, rows.results, rows.events)
	toolMetrics := tools.AggregateMetrics(rows.tools)
	bundle := report.BuildChartBundle(session.ID, session.Profile, demo, toolMetrics, time.Time{})

	doc := report.BuildDocument(report.DocumentInputs{
		SessionID: session.ID,
		Markdown:  session.FinalReport,
		Profile:   session.Profile,
		Bundle:    &bundle,
	})
	return []byte(doc), nil
}

// Export streams the roadshow ZIP for a finished session to w. Sessions
// that have not reached a terminal status are not exportable.
func (s *InsightService) Export(ctx context.Context, sessionID string, w io.Writer) error {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if !session.Status.IsTerminal() {
		return fmt.Errorf("session %s still %s: %w", sessionID, session.Status, ErrNotFound)
	}

	rows, err := s.loadRows(ctx, sessionID)
	if err != nil {
		return err
	}
	demo := report.ComputeDemoMetrics(session, rows.results, rows.events)
	toolMetrics := tools.AggregateMetrics(rows.tools)
	bundle := report.BuildChartBundle(session.ID, session.Profile, demo, toolMetrics, time.Time{})

	var html []byte
	if session.FinalReport != "" {
		html = []byte(report.BuildDocument(report.DocumentInputs{
			SessionID: session.ID,
			Markdown:  session.FinalReport,
			Profile:   session.Profile,
			Bundle:    &bundle,
		}))
	}

	return report.WriteRoadshowZIP(w, report.RoadshowInputs{
		Session:     session,
		Results:     rows.results,
		Debates:     rows.debates,
		Events:      rows.events,
		Demo:        demo,
		Tool:        toolMetrics,
		Bundle:      bundle,
		ReportHTML:  html,
		FinalReport: session.FinalReport,
	})
}
