package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/samber/mo"
	"github.com/xuri/excelize/v2"

	"afreeca-dl/internal/pagedlist"
	"afreeca-dl/pkg/models"
)

func sampleRecords() []*models.MediaRecord {
	single := &models.MediaRecord{
		ID:         "36164052",
		Platform:   models.PlatformAfreecaTV,
		Kind:       models.KindSingle,
		Title:      "Single",
		Uploader:   "dailyapril",
		UploaderID: "dailyapril",
		Duration:   mo.Some(3600),
		UploadDate: mo.Some("20160503"),
		Sources: []models.StreamSource{
			{FormatID: "http", URL: "https://v.example.com/a.mp4", Kind: models.DeliveryHTTP, Ext: "mp4"},
		},
	}
	multi := &models.MediaRecord{
		ID:    "18650793",
		Kind:  models.KindMultiVideo,
		Title: "Multi",
		Entries: []*models.MediaRecord{
			{ID: "18650793_1", Kind: models.KindSingle, Title: "Multi (part 1)"},
			{ID: "18650793_2", Kind: models.KindSingle, Title: "Multi (part 2)"},
		},
	}
	return []*models.MediaRecord{single, multi}
}

func TestFlatten(t *testing.T) {
	rows := Flatten(sampleRecords())
	if len(rows) != 3 {
		t.Fatalf("Expected 3 rows, got %d", len(rows))
	}
	if rows[1].ID != "18650793_1" || rows[2].ID != "18650793_2" {
		t.Errorf("Expected parts in order, got %s and %s", rows[1].ID, rows[2].ID)
	}
}

func TestExportCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "records.csv")
	exporter := NewDataExporter(ExportConfig{Format: FormatCSV, FilePath: path})

	if err := exporter.ExportRecords(sampleRecords()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("Expected file, got %v", err)
	}
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("Expected valid CSV, got %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("Expected header and 3 rows, got %d", len(rows))
	}
	if rows[0][0] != "ID" {
		t.Errorf("Expected ID header, got %s", rows[0][0])
	}
	if rows[1][2] != "Single" || rows[1][5] != "3600" || rows[1][6] != "20160503" {
		t.Errorf("Unexpected first row %v", rows[1])
	}
	if rows[1][10] != "https://v.example.com/a.mp4" {
		t.Errorf("Expected best URL, got %s", rows[1][10])
	}
	if rows[2][5] != "" {
		t.Errorf("Expected empty duration for part, got %q", rows[2][5])
	}
}

func TestExportXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.xlsx")
	exporter := NewDataExporter(ExportConfig{Format: FormatXLSX, FilePath: path})

	if err := exporter.ExportRecords(sampleRecords()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("Expected workbook, got %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Records")
	if err != nil {
		t.Fatalf("Expected Records sheet, got %v", err)
	}
	if len(rows) != 4 {
		t.Errorf("Expected 4 rows, got %d", len(rows))
	}

	sources, err := f.GetRows("Sources")
	if err != nil {
		t.Fatalf("Expected Sources sheet, got %v", err)
	}
	if len(sources) != 2 || sources[1][1] != "http" {
		t.Errorf("Unexpected sources sheet %v", sources)
	}
}

func TestExportJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.json")
	exporter := NewDataExporter(ExportConfig{Format: FormatJSON, FilePath: path})

	if err := exporter.ExportRecords(sampleRecords()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Expected file, got %v", err)
	}

	var out struct {
		Count   int `json:"count"`
		Records []struct {
			ID      string `json:"id"`
			Entries []struct {
				ID string `json:"id"`
			} `json:"entries"`
		} `json:"records"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Expected valid JSON, got %v", err)
	}
	if out.Count != 2 || len(out.Records[1].Entries) != 2 {
		t.Errorf("Expected nested records, got %+v", out)
	}
}

func TestExportTXT(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.txt")
	exporter := NewDataExporter(ExportConfig{Format: FormatTXT, FilePath: path})

	if err := exporter.ExportRecords(sampleRecords()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "Total Records: 3") {
		t.Errorf("Expected record count in report, got %q", data)
	}
}

func TestCollectEntries(t *testing.T) {
	pages := pagedlist.New(func(ctx context.Context, n int) ([]*models.MediaRecord, error) {
		if n >= 3 {
			return nil, nil
		}
		return []*models.MediaRecord{{ID: string(rune('a' + n))}}, nil
	}, 1)

	all, err := CollectEntries(context.Background(), pages, 0)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Expected 3 entries, got %d", len(all))
	}

	limited, err := CollectEntries(context.Background(), pages, 2)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("Expected 2 entries, got %d", len(limited))
	}
}

func TestCollectEntriesError(t *testing.T) {
	failure := errors.New("page failed")
	pages := pagedlist.New(func(ctx context.Context, n int) ([]*models.MediaRecord, error) {
		if n == 1 {
			return nil, failure
		}
		return []*models.MediaRecord{{ID: "a"}}, nil
	}, 1)

	entries, err := CollectEntries(context.Background(), pages, 0)
	if !errors.Is(err, failure) {
		t.Errorf("Expected page error, got %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected entries read before the error, got %d", len(entries))
	}
}

func TestDefaultFilePath(t *testing.T) {
	tests := []struct {
		title    string
		format   ExportFormat
		expected string
	}{
		{"rlantnghks - review", FormatCSV, "rlantnghks - review.csv"},
		{"다시보기: 1/2", FormatXLSX, "다시보기_ 1_2.xlsx"},
		{"  ..  ", FormatJSON, "afreeca-export.json"},
	}

	for _, test := range tests {
		if got := DefaultFilePath(test.title, test.format); got != test.expected {
			t.Errorf("DefaultFilePath(%q) = %q, expected %q", test.title, got, test.expected)
		}
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		config  ExportConfig
		wantErr bool
	}{
		{ExportConfig{Format: FormatCSV, FilePath: "a.csv"}, false},
		{ExportConfig{Format: FormatCSV}, true},
		{ExportConfig{Format: "pdf", FilePath: "a.pdf"}, true},
	}

	for _, test := range tests {
		if err := ValidateConfig(test.config); (err != nil) != test.wantErr {
			t.Errorf("ValidateConfig(%+v): expected error %v, got %v", test.config, test.wantErr, err)
		}
	}
}
