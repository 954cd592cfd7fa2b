package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pithecene-io/groupcat/metrics"
	"github.com/pithecene-io/groupcat/types"
)

// RunReport is the structured JSON report written by --report.
type RunReport struct {
	RunID        string              `json:"run_id"`
	Iteration    int                 `json:"iteration"`
	Outcome      types.OutcomeStatus `json:"outcome"`
	Message      string              `json:"message"`
	ExitCode     int                 `json:"exit_code"`
	DurationMs   int64               `json:"duration_ms"`
	RecordErrors int64               `json:"record_errors"`

	Groups  []ReportGroup     `json:"groups"`
	Outputs []ReportOutput    `json:"outputs"`
	Metrics *metrics.Snapshot `json:"metrics"`
}

// ReportGroup describes one discovered group.
type ReportGroup struct {
	ID       string   `json:"id"`
	Resolved bool     `json:"resolved"`
	Members  []string `json:"members,omitempty"`
	Records  int      `json:"records"`
}

// ReportOutput describes one written bundle.
type ReportOutput struct {
	Group   string `json:"group"`
	Path    string `json:"path"`
	MapPath string `json:"map_path,omitempty"`
	Bytes   int64  `json:"bytes"`
	SHA256  string `json:"sha256"`
}

// BuildRunReport composes a RunReport from a RunResult and metrics snapshot.
func BuildRunReport(result *RunResult, snap metrics.Snapshot) *RunReport {
	report := &RunReport{
		RunID:        result.RunMeta.RunID,
		Iteration:    result.RunMeta.Iteration,
		Outcome:      result.Outcome.Status,
		Message:      result.Outcome.Message,
		ExitCode:     ExitCode(result.Outcome.Status),
		DurationMs:   result.Duration.Milliseconds(),
		RecordErrors: result.RecordErrors,
		Groups:       make([]ReportGroup, 0, len(result.Groups)),
		Outputs:      make([]ReportOutput, 0, len(result.Outputs)),
		Metrics:      &snap,
	}
	for _, g := range result.Groups {
		report.Groups = append(report.Groups, ReportGroup{
			ID:       string(g.ID),
			Resolved: g.Resolved,
			Members:  groupStrings(g.Members),
			Records:  len(g.Records),
		})
	}
	for _, o := range result.Outputs {
		report.Outputs = append(report.Outputs, ReportOutput{
			Group:   string(o.Group),
			Path:    o.Written.Path,
			MapPath: o.Written.MapPath,
			Bytes:   o.Written.Bytes,
			SHA256:  o.Written.SHA256,
		})
	}
	return report
}

// WriteRunReport writes the report as JSON to the specified path.
// If path is "-", writes to stderr.
func WriteRunReport(report *RunReport, path string) error {
	if path == "" {
		return errors.New("report path must not be empty")
	}
	if path == "-" {
		if err := writeRunReportTo(report, os.Stderr); err != nil {
			return fmt.Errorf("failed to write report to stderr: %w", err)
		}
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	if err := writeRunReportTo(report, f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	return f.Close()
}

func writeRunReportTo(report *RunReport, w io.Writer) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
