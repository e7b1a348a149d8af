package ingest

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/brunobiangulo/synqa/sources"
)

// Source table columns.
const (
	ColumnContent    = "content"
	ColumnTextOnly   = "text_only"
	ColumnIdentifier = "source_identifier"
	ColumnType       = "type"
	ColumnCluster    = "cluster"
	ColumnFileName   = "file_name"

	// EmbeddingColumnPrefix precedes the embedding model id in the name of
	// the embedding column, e.g. "embeddings_text-embedding-3-small".
	EmbeddingColumnPrefix = "embeddings_"
)

// ClusteredSuffix marks a source table written by the clustering stage.
const ClusteredSuffix = "_clustered"

// Record text length bounds, in characters, applied before embedding.
const (
	MinTextLength = 50
	MaxTextLength = 150_000
)

var (
	ErrUnsupportedFormat = errors.New("ingest: unsupported table format")
	ErrMissingColumn     = errors.New("ingest: missing column")
)

// Table is a loaded source table.
type Table struct {
	Document *sources.Document
	// EmbeddingModel is the model id of the embedding column, if any.
	EmbeddingModel string
}

// ReadTable loads a CSV or XLSX source table. The document is named after
// the file_name column when present, otherwise after the file itself with
// any clustered suffix removed. Tables whose identifier ordinals do not
// strictly increase are rejected with sources.ErrOrdering.
func ReadTable(path string) (*Table, error) {
	var rows [][]string
	var err error
	switch Format(path) {
	case "csv":
		rows, err = readCSV(path)
	case "xlsx":
		rows, err = readXLSX(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(path))
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}

	t, err := parseTable(DocumentName(path), rows)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return t, nil
}

// DocumentName derives a document name from a table path:
// "out/paper_clustered.csv" becomes "paper".
func DocumentName(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.TrimSuffix(base, ClusteredSuffix)
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening XLSX: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets in XLSX")
	}
	return f.GetRows(sheets[0])
}

func parseTable(name string, rows [][]string) (*Table, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: empty table", ErrMissingColumn)
	}

	col := make(map[string]int)
	t := &Table{}
	embCol := -1
	for i, h := range rows[0] {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		col[h] = i
		if strings.HasPrefix(h, EmbeddingColumnPrefix) && embCol < 0 {
			embCol = i
			t.EmbeddingModel = strings.TrimPrefix(h, EmbeddingColumnPrefix)
		}
	}
	for _, required := range []string{ColumnContent, ColumnIdentifier} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, required)
		}
	}

	cell := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	records := make([]sources.Record, 0, len(rows)-1)
	for n, row := range rows[1:] {
		r := sources.Record{
			Content:    cell(row, ColumnContent),
			TextOnly:   cell(row, ColumnTextOnly),
			Identifier: strings.TrimSpace(cell(row, ColumnIdentifier)),
			Type:       sources.NormalizeType(cell(row, ColumnType)),
		}
		if r.Identifier == "" {
			return nil, fmt.Errorf("row %d: empty %s", n+2, ColumnIdentifier)
		}
		if c := strings.TrimSpace(cell(row, ColumnCluster)); c != "" {
			v, err := strconv.Atoi(c)
			if err != nil {
				return nil, fmt.Errorf("row %d: cluster %q: %w", n+2, c, err)
			}
			r.Cluster = v
		}
		if embCol >= 0 && embCol < len(row) && strings.TrimSpace(row[embCol]) != "" {
			if err := json.Unmarshal([]byte(row[embCol]), &r.Embedding); err != nil {
				return nil, fmt.Errorf("row %d: embedding: %w", n+2, err)
			}
		}
		if n == 0 {
			if fn := strings.TrimSpace(cell(row, ColumnFileName)); fn != "" {
				name = fn
			}
		}
		records = append(records, r)
	}

	t.Document = sources.NewDocument(name, records)
	if err := t.Document.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// FilterRows drops records whose text is too short to carry a question or
// too long to embed.
func FilterRows(doc *sources.Document) *sources.Document {
	kept := make([]sources.Record, 0, doc.Len())
	for _, r := range doc.Records {
		n := utf8.RuneCountInString(r.EmbedText())
		if n > MinTextLength && n < MaxTextLength {
			kept = append(kept, r)
		}
	}
	if dropped := doc.Len() - len(kept); dropped > 0 {
		slog.Info("ingest: rows filtered by length",
			"file", doc.FileName, "kept", len(kept), "dropped", dropped)
	}
	return sources.NewDocument(doc.FileName, kept)
}

// WriteTable writes a clustered document as a CSV or XLSX source table,
// embeddings serialised as JSON arrays under embeddings_<model>.
func WriteTable(path string, doc *sources.Document, embeddingModel string) error {
	header := []string{ColumnContent, ColumnTextOnly, ColumnIdentifier, ColumnType,
		ColumnFileName, ColumnCluster, EmbeddingColumnPrefix + embeddingModel}
	rows := [][]string{header}
	for _, r := range doc.Records {
		emb := ""
		if len(r.Embedding) > 0 {
			data, err := json.Marshal(r.Embedding)
			if err != nil {
				return fmt.Errorf("encoding embedding of %s: %w", r.Identifier, err)
			}
			emb = string(data)
		}
		rows = append(rows, []string{r.Content, r.TextOnly, r.Identifier, string(r.Type),
			doc.FileName, strconv.Itoa(r.Cluster), emb})
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	switch Format(path) {
	case "csv":
		return writeCSV(path, rows)
	case "xlsx":
		return writeXLSX(path, rows)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(path))
	}
}

func writeCSV(path string, rows [][]string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// writeXLSX fails on cells beyond the spreadsheet limit of 32,767
// characters; long documents should use CSV.
func writeXLSX(path string, rows [][]string) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		vals := make([]any, len(row))
		for j, v := range row {
			vals[j] = v
		}
		if err := f.SetSheetRow(sheet, cell, &vals); err != nil {
			return fmt.Errorf("row %d: %w", i+1, err)
		}
	}
	return f.SaveAs(path)
}
