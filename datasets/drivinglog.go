package datasets

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// LogRecord is one row of the driving log: the three camera frames captured
// at the same instant and the steering angle recorded for the center camera.
type LogRecord struct {
	Center   string
	Left     string
	Right    string
	Steering float32
}

// Path returns the stored path for the given camera.
func (r LogRecord) Path(c Camera) string {
	switch c {
	case Left:
		return r.Left
	case Right:
		return r.Right
	default:
		return r.Center
	}
}

// LogStats summarizes a pass over a driving log.
type LogStats struct {
	Rows    int
	Records int
	Skipped int

	// Errors holds the first few parse errors, for reporting.
	Errors []error
}

// maxReportedErrors bounds LogStats.Errors and BuildStats.Errors.
const maxReportedErrors = 10

func (s *LogStats) skip(err error) {
	s.Skipped++
	if len(s.Errors) < maxReportedErrors {
		s.Errors = append(s.Errors, err)
	}
}

// minLogFields is center, left, right, steering. The simulator also writes
// throttle, brake and speed, which are ignored.
const minLogFields = 4

// ParseLogRow converts the fields of one driving-log row into a LogRecord.
// line is only used for error reporting.
func ParseLogRow(line int, fields []string) (LogRecord, error) {
	if len(fields) < minLogFields {
		return LogRecord{}, &LogParseError{
			Line: line,
			Err:  errors.Errorf("expected at least %d fields, got %d", minLogFields, len(fields)),
		}
	}
	names := [3]string{"center", "left", "right"}
	var paths [3]string
	for i := range paths {
		paths[i] = strings.TrimSpace(fields[i])
		if paths[i] == "" {
			return LogRecord{}, &LogParseError{Line: line, Field: names[i], Err: errors.New("empty image path")}
		}
	}
	angle, err := parseFloat32(fields[3])
	if err != nil {
		return LogRecord{}, &LogParseError{Line: line, Field: "steering", Err: err}
	}
	return LogRecord{
		Center:   paths[0],
		Left:     paths[1],
		Right:    paths[2],
		Steering: angle,
	}, nil
}

// ReadDrivingLog reads every record of the driving log at path. The first row
// is data, not a header. Malformed rows are skipped with a warning and
// counted in the returned LogStats; only failing to open or read the file is
// an error.
func ReadDrivingLog(path string) ([]LogRecord, LogStats, error) {
	rows, err := countCSVRows(path)
	if err != nil {
		return nil, LogStats{}, errors.Wrapf(err, "failed to read driving log %s", path)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, LogStats{}, errors.Wrapf(err, "failed to open driving log %s", path)
	}
	defer file.Close()

	records, stats, err := readDrivingLog(file, rows)
	if err != nil {
		return nil, stats, errors.Wrapf(err, "failed to read driving log %s", path)
	}
	klog.V(1).Infof("driving log %s: %d rows, %d records, %d skipped", path, stats.Rows, stats.Records, stats.Skipped)
	return records, stats, nil
}

// ReadDrivingLogFrom is ReadDrivingLog over an already open reader.
func ReadDrivingLogFrom(r io.Reader) ([]LogRecord, LogStats, error) {
	return readDrivingLog(r, 0)
}

func readDrivingLog(r io.Reader, sizeHint int) ([]LogRecord, LogStats, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records := make([]LogRecord, 0, sizeHint)
	var stats LogStats
	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if !errors.As(err, &perr) {
				return nil, stats, err
			}
			stats.Rows++
			stats.skip(&LogParseError{Line: perr.StartLine, Err: perr.Err})
			klog.Warningf("skipping driving log line %d: %v", perr.StartLine, perr.Err)
			continue
		}
		stats.Rows++
		line, _ := reader.FieldPos(0)
		rec, err := ParseLogRow(line, fields)
		if err != nil {
			stats.skip(err)
			klog.Warningf("skipping %v", err)
			continue
		}
		records = append(records, rec)
	}
	stats.Records = len(records)
	return records, stats, nil
}
