package bench

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/codeGROOVE-dev/reclaimbench/ds"
)

// Header is the CSV column row.
var Header = []string{
	"ds", "mm", "threads", "sampling_period", "non_coop", "get_rate", "ops_per_cs",
	"throughput", "peak_mem", "avg_mem",
}

// DefaultOutput is the results file used when none is given.
func DefaultOutput(k ds.Kind) string {
	return k.String() + "_results.csv"
}

// Record renders r as a CSV row matching Header.
func (r Result) Record() []string {
	c := r.Config
	return []string{
		c.DS.String(),
		c.MM.String(),
		strconv.Itoa(c.Threads),
		strconv.FormatInt(c.SamplingPeriod.Milliseconds(), 10),
		strconv.Itoa(c.NonCoop),
		strconv.Itoa(c.GetRate),
		strconv.Itoa(c.OpsPerCS),
		strconv.FormatUint(r.Throughput, 10),
		strconv.FormatUint(r.PeakMem, 10),
		strconv.FormatUint(r.AvgMem, 10),
	}
}

// ResultsFile is a results CSV opened for appending.
type ResultsFile struct {
	f *os.File
	w *csv.Writer
}

// OpenCSV opens path for appending. If this call creates the file, the header
// is written and flushed before it returns.
func OpenCSV(path string) (*ResultsFile, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	created := err == nil
	if errors.Is(err, fs.ErrExist) {
		f, err = os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	}
	if err != nil {
		return nil, fmt.Errorf("open results: %w", err)
	}

	rf := &ResultsFile{f: f, w: csv.NewWriter(f)}
	if created {
		if err := rf.write(Header); err != nil {
			f.Close() //nolint:errcheck,gosec // write error takes precedence
			return nil, fmt.Errorf("write header: %w", err)
		}
	}
	return rf, nil
}

// Append writes r as one row and flushes it.
func (rf *ResultsFile) Append(r Result) error {
	if err := rf.write(r.Record()); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

func (rf *ResultsFile) write(record []string) error {
	if err := rf.w.Write(record); err != nil {
		return err
	}
	rf.w.Flush()
	return rf.w.Error()
}

func (rf *ResultsFile) Close() error {
	if err := rf.f.Close(); err != nil {
		return fmt.Errorf("close results: %w", err)
	}
	return nil
}

// AppendCSV appends r to path, writing the header first if the file is new.
func AppendCSV(path string, r Result) error {
	rf, err := OpenCSV(path)
	if err != nil {
		return err
	}
	if err := rf.Append(r); err != nil {
		rf.Close() //nolint:errcheck,gosec // write error takes precedence
		return err
	}
	return rf.Close()
}
