// Package report renders sweep results for external consumption: CSV tables
// and metric-versus-dimension plots. It is a read-only consumer of
// engine.GridResult.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/signalworks/gridsweep/internal/engine"
)

// CSVWriter writes the per-section summary table. One row is emitted per
// (section, evaluator, element); scalar metrics have a single element 0.
type CSVWriter struct {
	dims []string // dimension names, in grid order
	w    *csv.Writer
}

// NewCSVWriter creates a writer for a sweep over the named dimensions.
func NewCSVWriter(out io.Writer, dims []string) *CSVWriter {
	return &CSVWriter{dims: dims, w: csv.NewWriter(out)}
}

// WriteHeader writes the column header.
func (c *CSVWriter) WriteHeader() error {
	header := []string{"section"}
	header = append(header, c.dims...)
	header = append(header, "status", "drops", "failures",
		"evaluator", "element", "mean", "half_width", "count", "state")
	return c.w.Write(header)
}

// WriteSection writes all rows for one section result.
func (c *CSVWriter) WriteSection(s engine.SectionResult) error {
	prefix := []string{strconv.Itoa(s.Index)}
	for _, d := range c.dims {
		prefix = append(prefix, fmt.Sprintf("%v", s.Params[d]))
	}
	prefix = append(prefix, string(s.Status), strconv.Itoa(s.Drops), strconv.Itoa(s.Failures))

	for _, ev := range s.Evaluators {
		if len(ev.Estimates) == 0 {
			row := append(append([]string{}, prefix...),
				ev.Name, "0", "", "", "0", "")
			if err := c.w.Write(row); err != nil {
				return err
			}
			continue
		}
		for el, est := range ev.Estimates {
			row := append(append([]string{}, prefix...),
				ev.Name,
				strconv.Itoa(el),
				strconv.FormatFloat(est.Mean, 'g', -1, 64),
				strconv.FormatFloat(est.HalfWidth, 'g', -1, 64),
				strconv.Itoa(est.Count),
				string(est.State),
			)
			if err := c.w.Write(row); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteResult writes the header and every section, then flushes.
func (c *CSVWriter) WriteResult(res *engine.GridResult) error {
	if err := c.WriteHeader(); err != nil {
		return err
	}
	for _, s := range res.Sections {
		if err := c.WriteSection(s); err != nil {
			return err
		}
	}
	c.w.Flush()
	return c.w.Error()
}
