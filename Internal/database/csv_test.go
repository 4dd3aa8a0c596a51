package datafeed

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fazecat/vwapsim/Internal/strategy/sessions"
)

const sampleCSV = `Datetime,Open,High,Low,Close,Volume,Dividends
2024-03-04 09:30:00-05:00,100.0,100.5,99.5,100.2,1200,0
2024-03-04 09:31:00-05:00,100.2,101.0,100.1,100.9,800.0,0
2024-03-04 09:32:00-05:00,100.9,101.1,100.4,100.5,650,0
`

func TestReadCSV(t *testing.T) {
	bars, bad, err := ReadCSV(strings.NewReader(sampleCSV), nil)
	if err != nil {
		t.Fatalf("ReadCSV() error = %v", err)
	}
	if len(bad) != 0 {
		t.Errorf("unexpected row errors: %v", bad)
	}
	if len(bars) != 3 {
		t.Fatalf("got %d bars, want 3", len(bars))
	}
	first := bars[0]
	if first.Open != 100 || first.High != 100.5 || first.Low != 99.5 || first.Close != 100.2 || first.Volume != 1200 {
		t.Errorf("first bar = %+v", first)
	}
	if _, off := first.Timestamp.Zone(); off != -5*3600 {
		t.Errorf("offset = %d, want -5h", off)
	}
	if bars[1].Volume != 800 {
		t.Errorf("float volume parsed as %d", bars[1].Volume)
	}
}

func TestReadCSV_NaiveTimesUseLocation(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)
	in := "datetime,open,high,low,close,volume\n2024-03-04 09:30:00,1,1,1,1,10\n"
	bars, _, err := ReadCSV(strings.NewReader(in), est)
	if err != nil {
		t.Fatalf("ReadCSV() error = %v", err)
	}
	if bars[0].Timestamp.Location() != est || bars[0].Timestamp.Hour() != 9 {
		t.Errorf("timestamp = %v", bars[0].Timestamp)
	}
}

func TestReadCSV_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", "read header"},
		{"missing column", "Datetime,Open,High,Low,Close\n", "missing column \"volume\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ReadCSV(strings.NewReader(tt.in), nil)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("ReadCSV() error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestReadCSV_BadRowsAreReported(t *testing.T) {
	const header = "Datetime,Open,High,Low,Close,Volume\n"
	tests := []struct {
		name     string
		row      string
		wantDate string // empty when the row is dropped
		wantErr  string
	}{
		{"bad time", "yesterday,1,1,1,1,1", "", "unrecognized datetime"},
		{"bad price", "2024-03-05 09:30:00,x,1,1,1,1", "2024-03-05", "open"},
		{"short row", "2024-03-05 09:30:00,1,1", "2024-03-05", "missing"},
		{"empty volume", "2024-03-05 09:30:00,100,101,99,100,", "2024-03-05", "volume"},
		{"nan volume", "2024-03-05 09:30:00,100,101,99,100,NaN", "2024-03-05", "non-finite"},
		{"bare quote", `2024-03-05 09:30:00,1"0,1,1,1,1`, "", "bare"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := header + "2024-03-04 09:30:00,1,1,1,1,10\n" + tt.row + "\n"
			bars, bad, err := ReadCSV(strings.NewReader(in), nil)
			if err != nil {
				t.Fatalf("ReadCSV() error = %v", err)
			}
			if len(bad) != 1 {
				t.Fatalf("row errors = %v, want 1", bad)
			}
			if bad[0].Line != 3 || bad[0].Date != tt.wantDate || !strings.Contains(bad[0].Error(), tt.wantErr) {
				t.Errorf("row error = %+v (%v)", bad[0], bad[0])
			}
			wantBars := 1
			if tt.wantDate != "" {
				wantBars = 2
			}
			if len(bars) != wantBars {
				t.Fatalf("got %d bars, want %d", len(bars), wantBars)
			}
			if bars[0].Close != 1 || bars[0].Volume != 10 {
				t.Errorf("good row = %+v", bars[0])
			}
		})
	}
}

func TestReadCSV_BadRowCostsOnlyItsSession(t *testing.T) {
	in := "Datetime,Open,High,Low,Close,Volume\n" +
		"2024-01-02 09:30:00,100,101,99,100,1000\n" +
		"2024-01-02 09:31:00,100,102,99,101,900\n" +
		"2024-01-03 09:30:00,100,101,99,100,\n" +
		"2024-01-03 09:31:00,100,101,99,100,700\n"
	bars, bad, err := ReadCSV(strings.NewReader(in), nil)
	if err != nil {
		t.Fatalf("ReadCSV() error = %v", err)
	}
	if len(bad) != 1 || bad[0].Line != 4 || bad[0].Date != "2024-01-03" {
		t.Fatalf("row errors = %+v", bad)
	}

	days, dataErrs := sessions.Build("QQQ", bars, sessions.RegularHours())
	if len(days) != 1 || days[0].Key() != "2024-01-02" || len(days[0].Bars) != 2 {
		t.Errorf("sessions = %+v, want only 2024-01-02 with 2 bars", days)
	}
	if len(dataErrs) != 1 || dataErrs[0].Date != "2024-01-03" {
		t.Errorf("data errors = %v, want 2024-01-03", dataErrs)
	}
}

func TestCSVSource_LoadAll(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "QQQ_60day_1min_data.csv"), []byte(sampleCSV), 0644); err != nil {
		t.Fatal(err)
	}
	src := CSVSource{Dir: dir}

	got, err := LoadAll(context.Background(), src, []string{"QQQ"})
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if len(got["QQQ"]) != 3 {
		t.Errorf("QQQ bars = %d, want 3", len(got["QQQ"]))
	}

	broken := sampleCSV + "2024-03-05 09:30:00-05:00,100.0,100.5,99.5,100.2,,0\n"
	if err := os.WriteFile(filepath.Join(dir, "SPY_60day_1min_data.csv"), []byte(broken), 0644); err != nil {
		t.Fatal(err)
	}
	got, err = LoadAll(context.Background(), src, []string{"SPY"})
	if err != nil {
		t.Fatalf("LoadAll() with a malformed row error = %v", err)
	}
	if len(got["SPY"]) != 4 {
		t.Errorf("SPY bars = %d, want 4 including the placeholder", len(got["SPY"]))
	}

	if _, err := LoadAll(context.Background(), src, []string{"QQQ", "TQQQ"}); err == nil {
		t.Errorf("LoadAll() should fail for a missing file")
	}
}
