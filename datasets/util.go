package datasets

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

func parseFloat32(s string) (float32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty string")
	}
	v, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.Errorf("%q is not a finite number", s)
	}
	return float32(v), nil
}

// countCSVRows counts the number of rows in a CSV file. Driving logs carry no
// header, so every row counts. Rows that fail to parse still count.
func countCSVRows(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	count := 0
	for {
		_, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				count++
				continue
			}
			return 0, err
		}
		count++
	}

	return count, nil
}

// DrivingLogName is the file name the simulator writes its log to.
const DrivingLogName = "driving_log.csv"

// FindDrivingLog finds the driving log in dir: driving_log.csv if present,
// otherwise the first CSV file in the directory.
func FindDrivingLog(dir string) (string, error) {
	preferred := filepath.Join(dir, DrivingLogName)
	if st, err := os.Stat(preferred); err == nil && !st.IsDir() {
		return preferred, nil
	}
	pattern := filepath.Join(dir, "*.csv")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", errors.Errorf("no CSV files found in %s", dir)
	}
	return matches[0], nil
}
