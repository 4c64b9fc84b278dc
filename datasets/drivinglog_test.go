package datasets

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
)

func TestReadDrivingLog(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, DrivingLogName)
	writeCSV(t, path, []string{
		`IMG/center_1.jpg, IMG/left_1.jpg, IMG/right_1.jpg, 0.5, 0.9, 0, 30.1`,
		`C:\sim\IMG\center_2.jpg,C:\sim\IMG\left_2.jpg,C:\sim\IMG\right_2.jpg,-0.25`,
		`center,left,right,steering`,
		`IMG/center_4.jpg,IMG/left_4.jpg,IMG/right_4.jpg`,
		`IMG/center_5.jpg,,IMG/right_5.jpg,0`,
		`/abs/center_6.jpg,/abs/left_6.jpg,/abs/right_6.jpg,0`,
	})

	records, stats, err := ReadDrivingLog(path)
	if err != nil {
		t.Fatalf("ReadDrivingLog failed: %v", err)
	}

	want := []LogRecord{
		{Center: "IMG/center_1.jpg", Left: "IMG/left_1.jpg", Right: "IMG/right_1.jpg", Steering: 0.5},
		{Center: `C:\sim\IMG\center_2.jpg`, Left: `C:\sim\IMG\left_2.jpg`, Right: `C:\sim\IMG\right_2.jpg`, Steering: -0.25},
		{Center: "/abs/center_6.jpg", Left: "/abs/left_6.jpg", Right: "/abs/right_6.jpg", Steering: 0},
	}
	if diff := cmp.Diff(want, records); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}
	if stats.Rows != 6 || stats.Records != 3 || stats.Skipped != 3 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	// The header-looking row is data: it fails on the steering column.
	var perr *LogParseError
	if !errors.As(stats.Errors[0], &perr) {
		t.Fatalf("expected LogParseError, got %T: %v", stats.Errors[0], stats.Errors[0])
	}
	if perr.Line != 3 || perr.Field != "steering" {
		t.Fatalf("unexpected parse error location: line=%d field=%q", perr.Line, perr.Field)
	}
	if !errors.As(stats.Errors[1], &perr) || perr.Line != 4 || perr.Field != "" {
		t.Fatalf("expected short-row error on line 4, got %v", stats.Errors[1])
	}
	if !errors.As(stats.Errors[2], &perr) || perr.Field != "left" {
		t.Fatalf("expected empty left path error, got %v", stats.Errors[2])
	}
}

func TestReadDrivingLogMissingFile(t *testing.T) {
	_, _, err := ReadDrivingLog(filepath.Join(t.TempDir(), "missing.csv"))
	if err == nil {
		t.Fatal("expected error for missing driving log")
	}
}

func TestReadDrivingLogFromEmpty(t *testing.T) {
	records, stats, err := ReadDrivingLogFrom(strings.NewReader(""))
	if err != nil {
		t.Fatalf("ReadDrivingLogFrom failed: %v", err)
	}
	if len(records) != 0 || stats.Rows != 0 {
		t.Fatalf("expected nothing from empty log, got %d records, %+v", len(records), stats)
	}
}

func TestParseLogRow(t *testing.T) {
	rec, err := ParseLogRow(7, []string{"a.jpg", " b.jpg", "c.jpg ", " -0.0617599 "})
	if err != nil {
		t.Fatalf("ParseLogRow failed: %v", err)
	}
	if rec.Path(Center) != "a.jpg" || rec.Path(Left) != "b.jpg" || rec.Path(Right) != "c.jpg" {
		t.Fatalf("unexpected paths: %+v", rec)
	}
	if rec.Steering != float32(-0.0617599) {
		t.Fatalf("unexpected steering %v", rec.Steering)
	}

	_, err = ParseLogRow(9, []string{"a.jpg", "b.jpg", "c.jpg", "left"})
	var perr *LogParseError
	if !errors.As(err, &perr) || perr.Line != 9 {
		t.Fatalf("expected LogParseError on line 9, got %v", err)
	}

	for _, angle := range []string{"nan", "NaN", "inf", "+Inf", "-inf"} {
		_, err = ParseLogRow(11, []string{"a.jpg", "b.jpg", "c.jpg", angle})
		perr = nil
		if !errors.As(err, &perr) || perr.Field != "steering" {
			t.Errorf("angle %q: expected steering LogParseError, got %v", angle, err)
		}
	}
}

func TestReadDrivingLogSkipsNonFiniteAngles(t *testing.T) {
	records, stats, err := ReadDrivingLogFrom(strings.NewReader("a,b,c,nan\nd,e,f,0.25\ng,h,i,-Inf\n"))
	if err != nil {
		t.Fatalf("ReadDrivingLogFrom failed: %v", err)
	}
	if len(records) != 1 || records[0].Center != "d" || records[0].Steering != 0.25 {
		t.Fatalf("unexpected records: %+v", records)
	}
	if stats.Skipped != 2 {
		t.Fatalf("expected 2 skipped rows, got %+v", stats)
	}
}

func TestFindDrivingLog(t *testing.T) {
	tmp := t.TempDir()
	if _, err := FindDrivingLog(tmp); err == nil {
		t.Fatal("expected error for directory without CSV files")
	}
	writeCSV(t, filepath.Join(tmp, "other.csv"), []string{"a,b,c,0"})
	got, err := FindDrivingLog(tmp)
	if err != nil || filepath.Base(got) != "other.csv" {
		t.Fatalf("expected fallback to other.csv, got %q (%v)", got, err)
	}
	writeCSV(t, filepath.Join(tmp, DrivingLogName), []string{"a,b,c,0"})
	got, err = FindDrivingLog(tmp)
	if err != nil || filepath.Base(got) != DrivingLogName {
		t.Fatalf("expected %s, got %q (%v)", DrivingLogName, got, err)
	}
}
