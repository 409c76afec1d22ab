package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/xuri/excelize/v2"

	"afreeca-dl/internal/utils"
	"afreeca-dl/pkg/models"
)

const defaultFileName = "afreeca-export"

// ExportFormat represents different export formats
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatXLSX ExportFormat = "xlsx"
	FormatJSON ExportFormat = "json"
	FormatTXT  ExportFormat = "txt"
)

// ExportConfig holds configuration for data export
type ExportConfig struct {
	Format        ExportFormat
	FilePath      string
	Columns       []string
	DateFormat    string
	Delimiter     rune
	IncludeHeader bool
}

// DataExporter writes media records to a file
type DataExporter struct {
	config ExportConfig
}

// NewDataExporter creates a new data exporter
func NewDataExporter(config ExportConfig) *DataExporter {
	if config.DateFormat == "" {
		config.DateFormat = "2006-01-02 15:04:05"
	}
	if config.Delimiter == 0 {
		config.Delimiter = ','
	}
	if len(config.Columns) == 0 {
		config.Columns = getDefaultColumns()
	}
	config.IncludeHeader = true

	return &DataExporter{
		config: config,
	}
}

// ExportRecords exports records to the configured format. Multi-part
// records are written one row per part.
func (de *DataExporter) ExportRecords(records []*models.MediaRecord) error {
	if err := os.MkdirAll(filepath.Dir(de.config.FilePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	rows := Flatten(records)

	switch de.config.Format {
	case FormatCSV:
		return de.exportToCSV(rows)
	case FormatXLSX:
		return de.exportToXLSX(rows)
	case FormatJSON:
		return de.exportToJSON(records)
	case FormatTXT:
		return de.exportToTXT(rows)
	default:
		return fmt.Errorf("unsupported export format: %s", de.config.Format)
	}
}

// Flatten replaces multi-part records with their parts
func Flatten(records []*models.MediaRecord) []*models.MediaRecord {
	return lo.FlatMap(records, func(r *models.MediaRecord, _ int) []*models.MediaRecord {
		if r.Kind == models.KindMultiVideo && len(r.Entries) > 0 {
			return r.Entries
		}
		return []*models.MediaRecord{r}
	})
}

// CollectEntries reads the entries of a paged playlist. A pageLimit of
// zero or less reads every page.
func CollectEntries(ctx context.Context, pages models.Pager, pageLimit int) ([]*models.MediaRecord, error) {
	var entries []*models.MediaRecord

	if pageLimit <= 0 {
		for entry, err := range pages.All(ctx) {
			if err != nil {
				return entries, err
			}
			entries = append(entries, entry)
		}
		return entries, nil
	}

	for n := 0; n < pageLimit; n++ {
		items, err := pages.Page(ctx, n)
		if err != nil {
			return entries, err
		}
		if len(items) == 0 {
			break
		}
		entries = append(entries, items...)
	}

	return entries, nil
}

// exportToCSV exports data to CSV format
func (de *DataExporter) exportToCSV(records []*models.MediaRecord) error {
	file, err := os.Create(de.config.FilePath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	writer.Comma = de.config.Delimiter

	if de.config.IncludeHeader {
		if err := writer.Write(de.config.Columns); err != nil {
			return fmt.Errorf("failed to write CSV header: %w", err)
		}
	}

	for _, record := range records {
		if err := writer.Write(de.recordToRow(record)); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// exportToXLSX exports records to a "Records" sheet and their stream
// sources to a "Sources" sheet
func (de *DataExporter) exportToXLSX(records []*models.MediaRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheetName = "Records"
	f.SetSheetName("Sheet1", sheetName)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold: true,
			Size: 12,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6E6FA"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	rows := lo.Map(records, func(r *models.MediaRecord, _ int) []string {
		return de.recordToRow(r)
	})
	if err := writeSheet(f, sheetName, de.config.Columns, rows, headerStyle); err != nil {
		return err
	}

	if _, err := f.NewSheet("Sources"); err != nil {
		return fmt.Errorf("failed to create sources sheet: %w", err)
	}
	sourceRows := lo.FlatMap(records, func(r *models.MediaRecord, _ int) [][]string {
		return lo.Map(r.Sources, func(s models.StreamSource, _ int) []string {
			return sourceToRow(r.ID, s)
		})
	})
	if err := writeSheet(f, "Sources", sourceColumns, sourceRows, headerStyle); err != nil {
		return err
	}

	if err := f.SaveAs(de.config.FilePath); err != nil {
		return fmt.Errorf("failed to save XLSX file: %w", err)
	}

	return nil
}

// writeSheet writes a header row and data rows, then freezes the header
func writeSheet(f *excelize.File, sheet string, columns []string, rows [][]string, headerStyle int) error {
	for i, column := range columns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		f.SetCellValue(sheet, cell, column)
		f.SetCellStyle(sheet, cell, cell, headerStyle)

		colName, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheet, colName, colName, columnWidth(column))
	}

	for i, row := range rows {
		for j, value := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+2)
			if err != nil {
				return err
			}
			f.SetCellValue(sheet, cell, value)
		}
	}

	if len(columns) > 0 {
		endCell, err := excelize.CoordinatesToCellName(len(columns), len(rows)+1)
		if err != nil {
			return err
		}
		f.AutoFilter(sheet, "A1:"+endCell, []excelize.AutoFilterOptions{})
	}

	return f.SetPanes(sheet, &excelize.Panes{
		Freeze: true,
		Split:  false,
		XSplit: 0,
		YSplit: 1,
	})
}

func columnWidth(column string) float64 {
	switch strings.ToLower(column) {
	case "title":
		return 40
	case "url", "best url":
		return 60
	case "id", "uploader", "upload date", "timestamp":
		return 20
	default:
		return 15
	}
}

// exportToJSON exports records to JSON format
func (de *DataExporter) exportToJSON(records []*models.MediaRecord) error {
	exportData := struct {
		ExportedAt time.Time             `json:"exported_at"`
		Count      int                   `json:"count"`
		Records    []*models.MediaRecord `json:"records"`
	}{
		ExportedAt: time.Now(),
		Count:      len(records),
		Records:    records,
	}

	data, err := json.MarshalIndent(exportData, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if err := os.WriteFile(de.config.FilePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write JSON file: %w", err)
	}

	return nil
}

// exportToTXT exports data to plain text format
func (de *DataExporter) exportToTXT(records []*models.MediaRecord) error {
	file, err := os.Create(de.config.FilePath)
	if err != nil {
		return fmt.Errorf("failed to create TXT file: %w", err)
	}
	defer file.Close()

	fmt.Fprintf(file, "AfreecaTV Extraction Report\n")
	fmt.Fprintf(file, "Generated: %s\n", time.Now().Format(de.config.DateFormat))
	fmt.Fprintf(file, "Total Records: %d\n", len(records))
	fmt.Fprintf(file, "%s\n\n", strings.Repeat("=", 50))

	for i, record := range records {
		fmt.Fprintf(file, "Record %d:\n", i+1)
		fmt.Fprintf(file, "  ID: %s\n", record.ID)
		fmt.Fprintf(file, "  Kind: %s\n", record.Kind)
		fmt.Fprintf(file, "  Title: %s\n", record.Title)
		if record.Uploader != "" {
			fmt.Fprintf(file, "  Uploader: %s (%s)\n", record.Uploader, record.UploaderID)
		}
		if d, ok := record.Duration.Get(); ok {
			fmt.Fprintf(file, "  Duration: %d seconds\n", d)
		}
		if record.URL != "" {
			fmt.Fprintf(file, "  URL: %s\n", record.URL)
		}
		for _, s := range record.Sources {
			fmt.Fprintf(file, "  Source %s [%s/%s]: %s\n", s.FormatID, s.Kind, s.Ext, s.URL)
		}
		fmt.Fprintf(file, "\n")
	}

	return nil
}

// recordToRow converts a MediaRecord to a row of strings
func (de *DataExporter) recordToRow(record *models.MediaRecord) []string {
	best, hasBest := record.BestSource()

	return lo.Map(de.config.Columns, func(column string, _ int) string {
		switch strings.ToLower(column) {
		case "id":
			return record.ID
		case "platform":
			return string(record.Platform)
		case "kind":
			return string(record.Kind)
		case "title":
			return record.Title
		case "uploader":
			return record.Uploader
		case "uploader id", "uploader_id":
			return record.UploaderID
		case "duration":
			if d, ok := record.Duration.Get(); ok {
				return strconv.Itoa(d)
			}
			return ""
		case "thumbnail":
			return record.Thumbnail.OrEmpty()
		case "upload date", "upload_date":
			return record.UploadDate.OrEmpty()
		case "timestamp":
			if ts, ok := record.Timestamp.Get(); ok {
				return time.Unix(ts, 0).Format(de.config.DateFormat)
			}
			return ""
		case "live", "is_live":
			return strconv.FormatBool(record.IsLive)
		case "sources":
			return strconv.Itoa(len(record.Sources))
		case "best format", "best_format":
			if hasBest {
				return best.FormatID
			}
			return ""
		case "best url", "best_url":
			if hasBest {
				return best.URL
			}
			return ""
		case "url":
			return record.URL
		default:
			return ""
		}
	})
}

var sourceColumns = []string{
	"Record ID",
	"Format ID",
	"Kind",
	"Ext",
	"Quality",
	"Rank",
	"Width",
	"Height",
	"Bandwidth",
	"URL",
}

func sourceToRow(recordID string, s models.StreamSource) []string {
	return []string{
		recordID,
		s.FormatID,
		string(s.Kind),
		s.Ext,
		s.Quality,
		strconv.Itoa(s.Rank),
		strconv.Itoa(s.Width),
		strconv.Itoa(s.Height),
		strconv.Itoa(s.Bandwidth),
		s.URL,
	}
}

// getDefaultColumns returns default column names
func getDefaultColumns() []string {
	return []string{
		"ID",
		"Kind",
		"Title",
		"Uploader",
		"Uploader ID",
		"Duration",
		"Upload Date",
		"Timestamp",
		"Live",
		"Best Format",
		"Best URL",
		"URL",
	}
}

// GetSupportedFormats returns list of supported export formats
func GetSupportedFormats() []ExportFormat {
	return []ExportFormat{FormatCSV, FormatXLSX, FormatJSON, FormatTXT}
}

// ValidateConfig validates export configuration
func ValidateConfig(config ExportConfig) error {
	if config.FilePath == "" {
		return fmt.Errorf("file path is required")
	}

	if !lo.Contains(GetSupportedFormats(), config.Format) {
		return fmt.Errorf("unsupported format: %s", config.Format)
	}

	return nil
}

// DefaultFilePath returns a file name for an export of the record titled
// title. An empty or unusable title falls back to afreeca-export.
func DefaultFilePath(title string, format ExportFormat) string {
	name := utils.SanitizeFilename(title)
	if name == "" {
		name = defaultFileName
	}
	return name + "." + string(format)
}
