package viz

import (
	"fmt"
	"strings"

	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/hpmcpatch/internal/metrics"
	"github.com/san-kum/hpmcpatch/internal/storage"
)

// Summary renders a finished run as a bordered panel.
func Summary(meta storage.RunMetadata, energies []float64) string {
	total := meta.Accepted + meta.Rejected
	ratio := 0.0
	if total > 0 {
		ratio = float64(meta.Accepted) / float64(total)
	}

	row := func(label, value string) string {
		return MetricLabel.Render(label) + MetricValue.Render(value)
	}
	lines := []string{
		Title.Render("run " + shortID(meta.ID)),
		row("preset", meta.Preset),
		row("device", meta.Device),
		row("steps", fmt.Sprintf("%d", meta.Steps)),
		row("kT", fmt.Sprintf("%g", meta.KT)),
		row("box", fmt.Sprintf("%g", meta.Box)),
		row("acceptance", fmt.Sprintf("%.3f ", ratio)) + ProgressBar(ratio, 20),
		row("final energy", fmt.Sprintf("%.6g", meta.FinalEnergy)),
	}
	for _, name := range metrics.Names(meta.Metrics) {
		lines = append(lines, row(strings.ReplaceAll(name, "_", " "), fmt.Sprintf("%.6g", meta.Metrics[name])))
	}
	if meta.RecordID != "" {
		lines = append(lines, row("record", meta.RecordID))
	}
	if len(energies) > 0 {
		lines = append(lines, MetricLabel.Render("energy")+Sparkline(energies, 40))
	}
	return Panel.Render(strings.Join(lines, "\n"))
}

// EnergyPlot draws the per-step energy trace.
func EnergyPlot(energies []float64, caption string) string {
	if len(energies) == 0 {
		return Subtle.Render("no energies recorded")
	}
	return asciigraph.Plot(energies,
		asciigraph.Height(10),
		asciigraph.Width(80),
		asciigraph.Caption(caption),
	)
}

// Profile draws a pair energy sampled at evenly spaced separations from lo
// to hi.
func Profile(energies []float64, lo, hi float64, caption string) string {
	if len(energies) == 0 {
		return Subtle.Render("no samples")
	}
	return asciigraph.Plot(energies,
		asciigraph.Height(15),
		asciigraph.Width(80),
		asciigraph.Caption(fmt.Sprintf("%s, r in [%g, %g]", caption, lo, hi)),
	)
}

func Failure(err error) string {
	return StatusFail.Render("error: ") + err.Error()
}

func Success(msg string) string {
	return StatusOK.Render("ok: ") + msg
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
