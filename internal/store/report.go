package store

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/footscan/internal/scan/session"
)

// ReportFiles lists the PNGs written by RenderReport.
type ReportFiles struct {
	Latency string
	Points  string
}

// RenderReport plots frame latency/stride and output point counts for a
// session into outDir. An empty sessionID selects the latest session.
func (db *DB) RenderReport(sessionID, outDir string) (ReportFiles, error) {
	if sessionID == "" {
		id, err := db.LatestSessionID()
		if err != nil {
			return ReportFiles{}, err
		}
		sessionID = id
	}
	frames, err := db.FrameStats(sessionID)
	if err != nil {
		return ReportFiles{}, err
	}
	if len(frames) == 0 {
		return ReportFiles{}, fmt.Errorf("session %s has no frames", sessionID)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return ReportFiles{}, fmt.Errorf("create output dir: %w", err)
	}

	latency := make(plotter.XYs, 0, len(frames))
	stride := make(plotter.XYs, 0, len(frames))
	points := make(plotter.XYs, 0, len(frames))
	for _, f := range frames {
		x := float64(f.Seq)
		if f.Outcome == string(session.OutcomeEmitted) || f.Outcome == string(session.OutcomeRaw) {
			latency = append(latency, plotter.XY{X: x, Y: float64(f.Duration.Microseconds()) / 1000})
			points = append(points, plotter.XY{X: x, Y: float64(f.Output)})
		}
		if f.NextStride > 0 {
			stride = append(stride, plotter.XY{X: x, Y: float64(f.NextStride)})
		}
	}

	files := ReportFiles{
		Latency: filepath.Join(outDir, fmt.Sprintf("%s_latency.png", sessionID)),
		Points:  filepath.Join(outDir, fmt.Sprintf("%s_points.png", sessionID)),
	}

	pLat := plot.New()
	pLat.Title.Text = fmt.Sprintf("Session %s: processing latency and stride", sessionID)
	pLat.X.Label.Text = "Frame seq"
	pLat.Y.Label.Text = "ms / stride"
	pLat.Legend.Top = true
	if err := addLine(pLat, "latency (ms)", latency, color.RGBA{R: 220, G: 60, B: 60, A: 255}); err != nil {
		return ReportFiles{}, err
	}
	if err := addLine(pLat, "next stride", stride, color.RGBA{R: 40, G: 110, B: 220, A: 255}); err != nil {
		return ReportFiles{}, err
	}

	pPts := plot.New()
	pPts.Title.Text = fmt.Sprintf("Session %s: output points", sessionID)
	pPts.X.Label.Text = "Frame seq"
	pPts.Y.Label.Text = "Points"
	if err := addLine(pPts, "points", points, color.RGBA{R: 30, G: 160, B: 90, A: 255}); err != nil {
		return ReportFiles{}, err
	}

	if err := pLat.Save(14*vg.Inch, 6*vg.Inch, files.Latency); err != nil {
		return ReportFiles{}, fmt.Errorf("save latency plot: %w", err)
	}
	if err := pPts.Save(14*vg.Inch, 6*vg.Inch, files.Points); err != nil {
		return ReportFiles{}, fmt.Errorf("save points plot: %w", err)
	}
	return files, nil
}

func addLine(p *plot.Plot, name string, xys plotter.XYs, c color.Color) error {
	if len(xys) == 0 {
		return nil
	}
	line, err := plotter.NewLine(xys)
	if err != nil {
		return fmt.Errorf("%s line: %w", name, err)
	}
	line.Color = c
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add(name, line)
	return nil
}
