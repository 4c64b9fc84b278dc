package datasets

import "fmt"

// LogParseError reports a driving-log row that could not be turned into a
// LogRecord. The row is skipped by ReadDrivingLog.
type LogParseError struct {
	// Line is the 1-based line number within the log file.
	Line  int
	Field string
	Err   error
}

func (e *LogParseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("driving log line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("driving log line %d, field %s: %v", e.Line, e.Field, e.Err)
}

func (e *LogParseError) Unwrap() error { return e.Err }

// ImageDecodeError reports a camera frame that is missing or cannot be
// decoded. The (record, camera) pair is skipped by the builder.
type ImageDecodeError struct {
	Path   string
	Camera Camera
	Err    error
}

func (e *ImageDecodeError) Error() string {
	return fmt.Sprintf("%s camera image %q: %v", e.Camera, e.Path, e.Err)
}

func (e *ImageDecodeError) Unwrap() error { return e.Err }
