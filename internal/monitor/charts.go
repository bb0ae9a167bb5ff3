package monitor

import (
	"bytes"
	"fmt"
	"image/color"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/bevandicjuraj/CamCorder/internal/httputil"
	"github.com/bevandicjuraj/CamCorder/internal/tracking"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// trailSeries splits a trail into the points that were seen. Image y grows
// downward, so y is negated for display.
func trailSeries(points []tracking.TrailPoint) plotter.XYs {
	xys := make(plotter.XYs, 0, len(points))
	for _, p := range points {
		if !p.OK {
			continue
		}
		xys = append(xys, plotter.XY{X: float64(p.X), Y: -float64(p.Y)})
	}
	return xys
}

func nodeSeries(nodes []tracking.Node) plotter.XYs {
	xys := make(plotter.XYs, len(nodes))
	for i, n := range nodes {
		xys[i] = plotter.XY{X: float64(n.X), Y: -float64(n.Y)}
	}
	return xys
}

func scatterData(xys plotter.XYs) []opts.ScatterData {
	data := make([]opts.ScatterData, len(xys))
	for i, p := range xys {
		data[i] = opts.ScatterData{Value: []interface{}{p.X, p.Y}}
	}
	return data
}

// handleTrailChart renders the raw and filtered trails of one camera as an
// interactive scatter chart.
// Query params:
//   - camera (required)
func (ws *WebServer) handleTrailChart(w http.ResponseWriter, r *http.Request) {
	camera, ok := ws.cameraParam(w, r)
	if !ok {
		return
	}
	snap, _ := ws.status.Snapshot(camera)
	raw := trailSeries(snap.Raw)
	filtered := trailSeries(snap.Filtered)
	nodes := ws.status.Nodes(camera)

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "CamCorder Trail", Theme: "dark", Width: "900px", Height: "700px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("Camera %d", camera), Subtitle: fmt.Sprintf("raw=%d filtered=%d nodes=%d", len(raw), len(filtered), len(nodes))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "x (px)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "-y (px)", NameLocation: "middle", NameGap: 35}),
	)
	scatter.AddSeries("raw", scatterData(raw), charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))
	scatter.AddSeries("filtered", scatterData(filtered), charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))
	scatter.AddSeries("nodes", scatterData(nodeSeries(nodes)), charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 12}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to render chart: %v", err)
		return
	}
	httputil.WriteBody(w, "text/html; charset=utf-8", buf.Bytes())
}

// trailPlot draws the trails and nodes of one camera.
func trailPlot(camera int, snap tracking.Snapshot, nodes []tracking.Node) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Camera %d trail", camera)
	p.X.Label.Text = "x (px)"
	p.Y.Label.Text = "-y (px)"
	p.Add(plotter.NewGrid())

	if raw := trailSeries(snap.Raw); len(raw) > 0 {
		s, err := plotter.NewScatter(raw)
		if err != nil {
			return nil, fmt.Errorf("raw trail: %w", err)
		}
		s.GlyphStyle.Color = color.RGBA{R: 200, G: 60, B: 60, A: 255}
		s.GlyphStyle.Radius = vg.Points(1.5)
		p.Add(s)
		p.Legend.Add("raw", s)
	}
	if filtered := trailSeries(snap.Filtered); len(filtered) > 1 {
		l, err := plotter.NewLine(filtered)
		if err != nil {
			return nil, fmt.Errorf("filtered trail: %w", err)
		}
		l.Color = color.RGBA{R: 40, G: 100, B: 220, A: 255}
		l.Width = vg.Points(1)
		p.Add(l)
		p.Legend.Add("filtered", l)
	}
	if len(nodes) > 0 {
		s, err := plotter.NewScatter(nodeSeries(nodes))
		if err != nil {
			return nil, fmt.Errorf("nodes: %w", err)
		}
		s.GlyphStyle.Color = color.RGBA{R: 30, G: 150, B: 60, A: 255}
		s.GlyphStyle.Radius = vg.Points(5)
		p.Add(s)
		p.Legend.Add("nodes", s)
	}
	return p, nil
}

// handleTrailPlot renders the same trail as a static PNG.
// Query params:
//   - camera (required)
func (ws *WebServer) handleTrailPlot(w http.ResponseWriter, r *http.Request) {
	camera, ok := ws.cameraParam(w, r)
	if !ok {
		return
	}
	snap, _ := ws.status.Snapshot(camera)
	p, err := trailPlot(camera, snap, ws.status.Nodes(camera))
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	wt, err := p.WriterTo(8*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to render plot: %v", err)
		return
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, "failed to encode plot: %v", err)
		return
	}
	httputil.WriteBody(w, "image/png", buf.Bytes())
}
