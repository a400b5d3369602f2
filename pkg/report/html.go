package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/weaveai/weaveai/pkg/models"
)

// DocumentInputs carries everything the HTML document can embed. Bundle
// is optional: without one the charts section is omitted entirely, which
// is how the engine renders at finalize.
type DocumentInputs struct {
	SessionID   string
	Markdown    string
	Profile     models.UserProfile
	Bundle      *ChartBundle
	GeneratedAt time.Time
}

var markdownHTML = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
)

// convertMarkdown renders markdown to an HTML fragment. Goldmark only
// fails on writer errors, but a report is not worth losing over one: the
// fallback ships the raw text escaped in a pre block.
func convertMarkdown(src string) string {
	var buf bytes.Buffer
	if err := markdownHTML.Convert([]byte(src), &buf); err != nil {
		return "<pre>" + html.EscapeString(src) + "</pre>"
	}
	return buf.String()
}

const emptyReportMarkdown = "# Market Insight Report\n\nNo content available."

// BuildDocument renders the standalone HTML report document: header with
// the profile grid, the optional chart section with its client-side
// Vega-Lite renderer and text fallback, the converted markdown body, and
// the footer. Everything interpolated from session data is escaped; the
// markdown body is trusted goldmark output.
func BuildDocument(in DocumentInputs) string {
	source := in.Markdown
	if strings.TrimSpace(source) == "" {
		source = emptyReportMarkdown
	}

	generatedAt := in.GeneratedAt
	if generatedAt.IsZero() {
		generatedAt = time.Now()
	}

	var b strings.Builder
	b.WriteString("<!doctype html>\n<html lang=\"en\">\n<head>\n")
	b.WriteString("  <meta charset=\"utf-8\" />\n")
	b.WriteString("  <meta name=\"viewport\" content=\"width=device-width, initial-scale=1\" />\n")
	fmt.Fprintf(&b, "  <title>WeaveAI Report - %s</title>\n", html.EscapeString(in.SessionID))
	b.WriteString("  <style>\n")
	b.WriteString(documentCSS)
	b.WriteString("\n  </style>\n</head>\n<body>\n")
	b.WriteString("  <div class=\"wrap\">\n    <article class=\"card\">\n")
	b.WriteString("      <header class=\"header\">\n")
	b.WriteString("        <h1>WeaveAI Market Insight Report</h1>\n")
	fmt.Fprintf(&b, "        <div>Session ID: %s</div>\n", html.EscapeString(in.SessionID))
	b.WriteString(profileMeta(in.Profile))
	b.WriteString("      </header>\n")
	b.WriteString(chartSection(in.Bundle))
	fmt.Fprintf(&b, "      <main class=\"content\">%s</main>\n", convertMarkdown(source))
	b.WriteString("      <footer class=\"footer\">\n")
	fmt.Fprintf(&b, "        <span>Generated at: %s</span>\n", generatedAt.Format("2006-01-02 15:04:05"))
	b.WriteString("        <span>Exported automatically by WeaveAI 2.0</span>\n")
	b.WriteString("      </footer>\n")
	b.WriteString("    </article>\n  </div>\n</body>\n</html>\n")
	return b.String()
}

func profileMeta(profile models.UserProfile) string {
	if profile == (models.UserProfile{}) {
		return ""
	}
	field := func(v string) string {
		if v == "" {
			return "Not provided"
		}
		return html.EscapeString(v)
	}
	var b strings.Builder
	b.WriteString("        <section class=\"meta\">\n")
	fmt.Fprintf(&b, "          <div><strong>Target market:</strong> %s</div>\n", field(profile.TargetMarket))
	fmt.Fprintf(&b, "          <div><strong>Core category:</strong> %s</div>\n", field(profile.SupplyChain))
	fmt.Fprintf(&b, "          <div><strong>Seller type:</strong> %s</div>\n", field(profile.SellerType))
	fmt.Fprintf(&b, "          <div><strong>Price range:</strong> %s</div>\n", html.EscapeString(profile.PriceRange()))
	b.WriteString("        </section>\n")
	return b.String()
}

// ChartBundleElementID is the id of the JSON script tag carrying the
// chart bundle inside the document. Smoke checks grep for it.
const ChartBundleElementID = "weaveai-chart-bundle"

// chartSection renders the chart cards, the embedded bundle payload, and
// the client-side renderer with its fallback path. Sections with no
// renderable charts collapse to nothing.
func chartSection(bundle *ChartBundle) string {
	if bundle == nil || len(bundle.Charts) == 0 {
		return ""
	}

	var cards strings.Builder
	for i, chart := range bundle.Charts {
		id := SafeSessionID(chart.ID)
		if chart.ID == "" {
			id = fmt.Sprintf("chart_%d", i+1)
		}
		title := chart.Title
		if title == "" {
			title = fmt.Sprintf("Key chart %d", i+1)
		}
		fallback := chart.FallbackText
		if fallback == "" {
			fallback = "Chart rendering failed; showing the text fallback and raw spec."
		}
		rawSpec, err := json.MarshalIndent(chart.Spec, "", "  ")
		if err != nil {
			rawSpec = []byte("{}")
		}

		fmt.Fprintf(&cards, "        <article class=\"chart-card\" id=\"chart-card-%s\">\n", id)
		cards.WriteString("          <header>\n")
		fmt.Fprintf(&cards, "            <h3>%s</h3>\n", html.EscapeString(title))
		fmt.Fprintf(&cards, "            <p>%s</p>\n", html.EscapeString(chart.Description))
		cards.WriteString("          </header>\n")
		fmt.Fprintf(&cards, "          <div class=\"chart-canvas\" id=\"weave-chart-%s\" aria-label=\"%s\"></div>\n", id, html.EscapeString(title))
		fmt.Fprintf(&cards, "          <div class=\"chart-fallback\" id=\"weave-chart-fallback-%s\">\n", id)
		fmt.Fprintf(&cards, "            <div class=\"chart-fallback-text\">%s</div>\n", html.EscapeString(fallback))
		fmt.Fprintf(&cards, "            <div class=\"chart-error\" id=\"weave-chart-error-%s\">Waiting for render...</div>\n", id)
		cards.WriteString("            <details>\n")
		cards.WriteString("              <summary>Raw chart spec (Vega-Lite)</summary>\n")
		fmt.Fprintf(&cards, "              <pre id=\"weave-chart-raw-%s\">%s</pre>\n", id, html.EscapeString(string(rawSpec)))
		cards.WriteString("            </details>\n")
		cards.WriteString("          </div>\n")
		cards.WriteString("        </article>\n")
	}

	// json.Marshal escapes < > & inside strings, so the payload cannot
	// terminate its own script element.
	payload, err := json.Marshal(map[string]any{"charts": bundle.Charts})
	if err != nil {
		payload = []byte(`{"charts":[]}`)
	}

	var b strings.Builder
	b.WriteString("      <section class=\"charts-wrap\">\n")
	b.WriteString("        <h2>Key Charts (Vega-Lite)</h2>\n")
	b.WriteString("        <p class=\"charts-note\">Charts support the narrative; they do not replace the findings in the body. If rendering fails, the text fallback and raw spec stand in automatically.</p>\n")
	b.WriteString("        <div class=\"charts-grid\">\n")
	b.WriteString(cards.String())
	b.WriteString("        </div>\n")
	b.WriteString("      </section>\n")
	fmt.Fprintf(&b, "      <script type=\"application/json\" id=\"%s\">%s</script>\n", ChartBundleElementID, payload)
	b.WriteString(chartRenderScript)
	return b.String()
}

const documentCSS = `    :root {
      color-scheme: light;
      --bg: #f8fafc;
      --card: #ffffff;
      --text: #0f172a;
      --muted: #475569;
      --line: #e2e8f0;
      --accent: #2563eb;
    }
    * { box-sizing: border-box; }
    body {
      margin: 0;
      font-family: "Segoe UI", "PingFang SC", "Microsoft YaHei", sans-serif;
      background: radial-gradient(circle at top right, #e2e8f0 0%, var(--bg) 55%);
      color: var(--text);
      line-height: 1.7;
    }
    .wrap { max-width: 980px; margin: 40px auto; padding: 0 20px; }
    .card {
      background: var(--card);
      border: 1px solid var(--line);
      border-radius: 14px;
      box-shadow: 0 14px 34px rgba(15, 23, 42, 0.08);
      overflow: hidden;
    }
    .header {
      padding: 24px 28px;
      border-bottom: 1px solid var(--line);
      background: linear-gradient(120deg, #eff6ff 0%, #f8fafc 100%);
    }
    .header h1 { margin: 0 0 8px 0; font-size: 26px; }
    .meta {
      margin-top: 14px;
      display: grid;
      grid-template-columns: repeat(auto-fit, minmax(220px, 1fr));
      gap: 8px 14px;
      font-size: 14px;
      color: var(--muted);
    }
    .charts-wrap { padding: 18px 28px 8px 28px; border-bottom: 1px solid var(--line); }
    .charts-wrap h2 { margin: 0 0 8px 0; font-size: 20px; color: #0b3b82; }
    .charts-note { margin: 0 0 14px 0; color: var(--muted); font-size: 13px; }
    .charts-grid { display: grid; gap: 14px; grid-template-columns: repeat(auto-fit, minmax(260px, 1fr)); }
    .chart-card { border: 1px solid var(--line); border-radius: 12px; padding: 12px; background: #fff; }
    .chart-card h3 { margin: 0; font-size: 16px; color: #0f172a; }
    .chart-card p { margin: 6px 0 10px 0; font-size: 13px; color: var(--muted); }
    .chart-canvas { min-height: 220px; width: 100%; }
    .chart-fallback { display: block; border: 1px dashed #94a3b8; border-radius: 10px; padding: 10px; background: #f8fafc; }
    .chart-fallback-text { color: #0f172a; font-size: 13px; margin-bottom: 8px; }
    .chart-error { color: #b91c1c; font-size: 12px; margin-bottom: 8px; }
    .chart-fallback details { margin-top: 8px; }
    .chart-fallback pre { max-height: 220px; overflow: auto; background: #0f172a; color: #e2e8f0; padding: 10px; border-radius: 8px; font-size: 11px; line-height: 1.5; }
    .content { padding: 26px 28px 34px 28px; }
    .content h1, .content h2, .content h3 { color: #0b3b82; margin-top: 1.2em; }
    .content h1 { font-size: 30px; }
    .content h2 { font-size: 24px; }
    .content h3 { font-size: 20px; }
    .content table { width: 100%; border-collapse: collapse; margin: 1em 0; font-size: 14px; }
    .content th, .content td { border: 1px solid #cbd5e1; padding: 10px; text-align: left; vertical-align: top; }
    .content th { background: #f1f5f9; }
    .content code { background: #f1f5f9; padding: 2px 6px; border-radius: 6px; }
    .content pre { background: #0f172a; color: #e2e8f0; padding: 14px; border-radius: 10px; overflow: auto; }
    .footer {
      border-top: 1px solid var(--line);
      padding: 14px 28px;
      color: var(--muted);
      font-size: 13px;
      display: flex;
      justify-content: space-between;
      gap: 12px;
      flex-wrap: wrap;
    }
    a { color: var(--accent); }`

const chartRenderScript = `      <script src="https://cdn.jsdelivr.net/npm/vega@5"></script>
      <script src="https://cdn.jsdelivr.net/npm/vega-lite@5"></script>
      <script src="https://cdn.jsdelivr.net/npm/vega-embed@6"></script>
      <script>
      (function () {
        const payloadEl = document.getElementById('weaveai-chart-bundle');
        if (!payloadEl) return;

        let payload = {};
        try {
          payload = JSON.parse(payloadEl.textContent || '{}');
        } catch (err) {
          console.warn('chart payload parse failed', err);
        }

        const charts = Array.isArray(payload.charts) ? payload.charts : [];

        async function renderOne(chart) {
          const chartId = String(chart.id || '').replace(/[^a-zA-Z0-9_-]/g, '_');
          const mount = document.getElementById('weave-chart-' + chartId);
          const fallback = document.getElementById('weave-chart-fallback-' + chartId);
          const errorEl = document.getElementById('weave-chart-error-' + chartId);
          const rawEl = document.getElementById('weave-chart-raw-' + chartId);

          if (!mount || !fallback) return;

          if (rawEl) {
            try {
              rawEl.textContent = JSON.stringify(chart.spec || {}, null, 2);
            } catch (err) {
              rawEl.textContent = '{}';
            }
          }

          if (typeof window.vegaEmbed !== 'function') {
            if (errorEl) errorEl.textContent = 'Vega engine not loaded; showing text fallback.';
            fallback.style.display = 'block';
            return;
          }

          try {
            mount.innerHTML = '';
            await window.vegaEmbed(mount, chart.spec || {}, {
              actions: false,
              renderer: 'svg'
            });
            fallback.style.display = 'none';
          } catch (err) {
            const message = err && err.message ? err.message : String(err);
            if (errorEl) errorEl.textContent = 'Render failed: ' + message;
            fallback.style.display = 'block';
            mount.innerHTML = '';
          }
        }

        async function renderAll() {
          for (const chart of charts) {
            try {
              await renderOne(chart);
            } catch (err) {
              console.warn('chart render failed', err);
            }
          }
        }

        if (document.readyState === 'loading') {
          document.addEventListener('DOMContentLoaded', renderAll, { once: true });
        } else {
          renderAll();
        }
      })();
      </script>
`
