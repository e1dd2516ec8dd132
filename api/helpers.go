package api

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/logrusorgru/aurora"
	"github.com/olekukonko/tablewriter"
)

// HandleExit exits with 0 for succeeded pipelines and 1 otherwise
func HandleExit(pipeline *Pipeline) {

	if pipeline == nil || pipeline.Status != PipelineStatusSucceeded {
		os.Exit(1)
	}

	os.Exit(0)
}

// RenderStats prints a table with one row per job and the pipeline totals in the footer
func RenderStats(w io.Writer, pipeline *Pipeline, colors bool) {

	data := make([][]string, 0, len(pipeline.Jobs))

	durationTotal := 0.0
	attemptsTotal := 0
	artifactsTotal := 0

	for _, j := range pipeline.Jobs {

		duration := j.Duration().Seconds()
		attempts := 0
		if j.StartedAt != nil {
			attempts = j.Attempt()
		}

		durationTotal += duration
		attemptsTotal += attempts
		artifactsTotal += len(j.ArtifactIDs)

		data = append(data, []string{
			j.Name,
			strings.Join(j.DependsOn, ","),
			fmt.Sprintf("%v", attempts),
			fmt.Sprintf("%v", len(j.ArtifactIDs)),
			fmt.Sprintf("%.0f", duration),
			string(j.Status),
		})
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Job", "Depends on", "Attempts", "Artifacts", "Run (s)", "Status"})
	table.SetFooter([]string{"", "Total", fmt.Sprintf("%v", attemptsTotal), fmt.Sprintf("%v", artifactsTotal), fmt.Sprintf("%.0f", durationTotal), string(pipeline.Status)})
	table.SetBorder(false)
	table.AppendBulk(data)
	table.Render()

	fmt.Fprintln(w, Summary(pipeline, colors))
}

// Summary returns a single line describing the outcome of a pipeline run
func Summary(pipeline *Pipeline, colors bool) string {

	au := aurora.NewAurora(colors)

	var status aurora.Value
	switch pipeline.Status {
	case PipelineStatusSucceeded:
		status = au.Green(pipeline.Status)
	case PipelineStatusFailed:
		status = au.Red(pipeline.Status)
	case PipelineStatusCancelled:
		status = au.Yellow(pipeline.Status)
	default:
		status = au.Cyan(pipeline.Status)
	}

	line := fmt.Sprintf("Pipeline %v %v", au.Bold(pipeline.Name), status)

	if pipeline.StartedAt != nil && pipeline.FinishedAt != nil {
		line += fmt.Sprintf(" in %v", pipeline.FinishedAt.Sub(*pipeline.StartedAt).Round(time.Second))
	}
	if pipeline.GateResult != nil && len(pipeline.GateResult.Warnings) > 0 {
		line += fmt.Sprintf(", gate warnings: %v", strings.Join(pipeline.GateResult.Warnings, ", "))
	}
	if pipeline.Error != "" {
		line += fmt.Sprintf(": %v", pipeline.Error)
	}

	return line
}
