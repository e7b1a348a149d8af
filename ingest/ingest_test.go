package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/synqa/sources"
)

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

func TestRegistryBuiltInReaders(t *testing.T) {
	reg := NewRegistry()
	for _, format := range []string{"pdf", "htm", "html", "txt", "tex", "md"} {
		rd, err := reg.Get(format)
		require.NoError(t, err, format)
		assert.Contains(t, rd.SupportedFormats(), format)
	}
	assert.Len(t, reg.Formats(), 6)
}

func TestRegistryUnknown(t *testing.T) {
	reg := NewRegistry()
	for _, format := range []string{"docx", "csv", ""} {
		_, err := reg.Get(format)
		assert.Error(t, err, format)
	}
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "pdf", Format("/a/b/Report.PDF"))
	assert.Equal(t, "tex", Format("paper.tex"))
	assert.Equal(t, "", Format("README"))
}

func TestRawTextPlain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paper.tex")
	require.NoError(t, os.WriteFile(path, []byte("\\section{Intro}\n\nBody."), 0644))

	got, err := NewRegistry().RawText(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "\\section{Intro}\n\nBody.", got)
}

func TestRawTextHTML(t *testing.T) {
	page := `<html><head><title>T</title><style>p{}</style></head>
<body>
<h1>Annual   Report</h1>
<script>var x = 1;</script>
<p>Revenue grew
by 12%.</p>
<table><tr><td>2023</td> <td>4.2</td></tr></table>
</body></html>`
	path := filepath.Join(t.TempDir(), "filing.htm")
	require.NoError(t, os.WriteFile(path, []byte(page), 0644))

	got, err := NewRegistry().RawText(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "Annual Report Revenue grew by 12%. 2023 4.2", got)
}

func TestRawTextMissingFile(t *testing.T) {
	_, err := NewRegistry().RawText(context.Background(), filepath.Join(t.TempDir(), "gone.pdf"))
	assert.Error(t, err)
}

// ---------------------------------------------------------------------------
// Source tables
// ---------------------------------------------------------------------------

const sampleCSV = `,content,text_only,source_identifier,type,file_name
0,"<tr><td>1</td></tr>",1,Source_0,Table,report.pdf
1,"Plain ""quoted"" paragraph",,Source_1,text,report.pdf
`

func TestReadCSVTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0644))

	tbl, err := ReadTable(path)
	require.NoError(t, err)
	doc := tbl.Document
	assert.Equal(t, "report.pdf", doc.FileName)
	require.Equal(t, 2, doc.Len())
	assert.Equal(t, sources.TypeTable, doc.Records[0].Type)
	assert.Equal(t, "1", doc.Records[0].TextOnly)
	assert.Equal(t, `Plain "quoted" paragraph`, doc.Records[1].Content)
	assert.Equal(t, sources.TypeText, doc.Records[1].Type)
	assert.Empty(t, tbl.EmbeddingModel)
	assert.Nil(t, doc.Records[0].Embedding)
}

func TestReadTableMissingColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("content,type\nx,text\n"), 0644))
	_, err := ReadTable(path)
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestReadTableRejectsOrdering(t *testing.T) {
	for name, ids := range map[string][]string{
		"out of order": {"Source_1", "Source_90", "Source_3", "Source_4"},
		"duplicate":    {"Source_1", "Source_2", "Source_2"},
	} {
		t.Run(name, func(t *testing.T) {
			var b strings.Builder
			b.WriteString("content,source_identifier,type\n")
			for _, id := range ids {
				b.WriteString("paragraph," + id + ",text\n")
			}
			path := filepath.Join(t.TempDir(), "paper.csv")
			require.NoError(t, os.WriteFile(path, []byte(b.String()), 0644))

			_, err := ReadTable(path)
			assert.ErrorIs(t, err, sources.ErrOrdering)
		})
	}
}

func TestReadTableUnsupported(t *testing.T) {
	_, err := ReadTable("x.parquet")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestDocumentName(t *testing.T) {
	assert.Equal(t, "paper", DocumentName("out/paper_clustered.csv"))
	assert.Equal(t, "paper", DocumentName("paper.xlsx"))
}

func clusteredDoc() *sources.Document {
	return sources.NewDocument("paper.pdf", []sources.Record{
		{Content: "first, with a comma", Identifier: "Source_0", Type: sources.TypeText, Cluster: 1, Embedding: []float32{0.25, -1.5}},
		{Content: "<table/>", TextOnly: "cells", Identifier: "Source_2", Type: sources.TypeTable, Cluster: 0, Embedding: []float32{3, 0.125}},
	})
}

func TestWriteReadTableRoundTrip(t *testing.T) {
	for _, ext := range []string{"csv", "xlsx"} {
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "out", "paper"+ClusteredSuffix+"."+ext)
			want := clusteredDoc()
			require.NoError(t, WriteTable(path, want, "text-embedding-3-small"))

			tbl, err := ReadTable(path)
			require.NoError(t, err)
			assert.Equal(t, "text-embedding-3-small", tbl.EmbeddingModel)
			assert.Equal(t, "paper.pdf", tbl.Document.FileName)
			assert.Equal(t, want.Records, tbl.Document.Records)
		})
	}
}

func TestFilterRows(t *testing.T) {
	doc := sources.NewDocument("f", []sources.Record{
		{Content: strings.Repeat("a", 50), Identifier: "Source_0"},
		{Content: strings.Repeat("b", 51), Identifier: "Source_1"},
		{Content: "short", TextOnly: strings.Repeat("c", 60), Identifier: "Source_2"},
		{Content: strings.Repeat("d", MaxTextLength), Identifier: "Source_3"},
		// Length is counted in characters, not bytes.
		{Content: strings.Repeat("é", 40), Identifier: "Source_4"},
	})
	got := FilterRows(doc)
	var ids []string
	for _, r := range got.Records {
		ids = append(ids, r.Identifier)
	}
	assert.Equal(t, []string{"Source_1", "Source_2"}, ids)
	assert.NoError(t, got.Validate())
}
