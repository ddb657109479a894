package analyze

import (
	"archive/zip"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHash_Deterministic(t *testing.T) {
	t.Parallel()

	a := Hash([]byte("payload"))
	b := Hash([]byte("payload"))
	c := Hash([]byte("payload!"))
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
	require.Len(t, a, 64)
}

func TestAnalyze_CSV(t *testing.T) {
	t.Parallel()

	data := []byte("id,name,score\n1,alice,9.5\n2,bob,7\n3,carol,8.25\n")
	dims := Analyze(data, "csv")
	require.True(t, dims.Success)
	require.Equal(t, int64(3), dims.RowCount, "header excluded from the row count")
	require.Equal(t, int64(3), dims.ColumnCount)
	require.Equal(t, []string{"id:int", "name:str", "score:float"}, dims.SchemaPreview)
}

func TestAnalyze_CSV_FormatNormalization(t *testing.T) {
	t.Parallel()

	data := []byte("a,b\n1,2\n")
	for _, format := range []string{"CSV", " csv ", ".csv", "Csv"} {
		dims := Analyze(data, format)
		require.True(t, dims.Success, "format %q", format)
		require.Equal(t, int64(1), dims.RowCount, "format %q", format)
	}
}

func TestAnalyze_TSV(t *testing.T) {
	t.Parallel()

	data := []byte("id\tname\n1\talice\n2\tbob\n")
	dims := Analyze(data, "tsv")
	require.True(t, dims.Success)
	require.Equal(t, int64(2), dims.RowCount)
	require.Equal(t, int64(2), dims.ColumnCount)
}

func TestAnalyze_CSV_Empty(t *testing.T) {
	t.Parallel()

	dims := Analyze(nil, "csv")
	require.True(t, dims.Success)
	require.Zero(t, dims.RowCount)
	require.Zero(t, dims.ColumnCount)
}

func TestNaiveSplit(t *testing.T) {
	t.Parallel()

	data := []byte("a,b,c\n1,2,3\n\n4,5,6\n")
	dims := naiveSplit(data, ',')
	require.True(t, dims.Success)
	require.Equal(t, int64(2), dims.RowCount, "blank lines skipped, header excluded")
	require.Equal(t, int64(3), dims.ColumnCount)

	require.True(t, naiveSplit(nil, ',').Success)
	require.Zero(t, naiveSplit(nil, ',').RowCount)
}

func TestAnalyze_JSONArray(t *testing.T) {
	t.Parallel()

	data := []byte(`[{"id":1,"name":"a"},{"id":2,"name":"b"}]`)
	dims := Analyze(data, "json")
	require.True(t, dims.Success)
	require.Equal(t, int64(2), dims.RowCount)
	require.Equal(t, int64(2), dims.ColumnCount)
	require.Equal(t, []string{"id", "name"}, dims.SchemaPreview)
}

func TestAnalyze_JSONObject(t *testing.T) {
	t.Parallel()

	data := []byte(`{"title":"x","count":3,"tags":["a"]}`)
	dims := Analyze(data, "json")
	require.True(t, dims.Success)
	require.Equal(t, int64(1), dims.RowCount)
	require.Equal(t, int64(3), dims.ColumnCount)
}

func TestAnalyze_JSONScalarArray(t *testing.T) {
	t.Parallel()

	dims := Analyze([]byte(`[1,2,3,4]`), "json")
	require.True(t, dims.Success)
	require.Equal(t, int64(4), dims.RowCount)
	require.Zero(t, dims.ColumnCount)
}

func TestAnalyze_InvalidJSONDegrades(t *testing.T) {
	t.Parallel()

	dims := Analyze([]byte(`{"broken`), "json")
	require.False(t, dims.Success)
	require.NotEmpty(t, dims.Error)
	require.Zero(t, dims.RowCount)
}

func TestAnalyze_ZIPWithCSVMember(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create("data/table.csv")
	require.NoError(t, err)
	_, err = f.Write([]byte("a,b,c\n1,2,3\n4,5,6\n"))
	require.NoError(t, err)
	readme, err := w.Create("README.md")
	require.NoError(t, err)
	_, err = readme.Write([]byte("ignored"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	dims := Analyze(buf.Bytes(), "zip")
	require.True(t, dims.Success)
	require.Equal(t, int64(2), dims.RowCount)
	require.Equal(t, int64(3), dims.ColumnCount)
}

func TestAnalyze_ZIPWithoutTabularMembers(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte("x"))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	dims := Analyze(buf.Bytes(), "zip")
	require.True(t, dims.Success)
	require.Equal(t, int64(3), dims.RowCount, "file count stands in for rows")
}

func TestAnalyze_XLSX(t *testing.T) {
	t.Parallel()

	sheet := `<?xml version="1.0"?>
<worksheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">
  <sheetData>
    <row r="1"><c r="A1"/><c r="B1"/><c r="C1"/></row>
    <row r="2"><c r="A2"/><c r="B2"/><c r="C2"/></row>
    <row r="3"><c r="A3"/><c r="B3"/><c r="C3"/></row>
  </sheetData>
</worksheet>`

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create("xl/worksheets/sheet1.xml")
	require.NoError(t, err)
	_, err = f.Write([]byte(sheet))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	dims := Analyze(buf.Bytes(), "xlsx")
	require.True(t, dims.Success)
	require.Equal(t, int64(2), dims.RowCount, "header row excluded")
	require.Equal(t, int64(3), dims.ColumnCount)
}

func TestAnalyze_XML(t *testing.T) {
	t.Parallel()

	data := []byte(`<records>
  <record><id>1</id><name>a</name></record>
  <record><id>2</id><name>b</name></record>
  <record><id>3</id><name>c</name></record>
</records>`)
	dims := Analyze(data, "xml")
	require.True(t, dims.Success)
	require.Equal(t, int64(3), dims.RowCount)
	require.Equal(t, int64(2), dims.ColumnCount)
	require.Equal(t, []string{"id", "name"}, dims.SchemaPreview)
}

func TestAnalyze_SniffUnknownFormat(t *testing.T) {
	t.Parallel()

	t.Run("json-shaped payload", func(t *testing.T) {
		t.Parallel()
		dims := Analyze([]byte(`[{"k":1},{"k":2}]`), "")
		require.True(t, dims.Success)
		require.Equal(t, int64(2), dims.RowCount)
	})

	t.Run("csv-shaped payload", func(t *testing.T) {
		t.Parallel()
		dims := Analyze([]byte("a,b\n1,2\n3,4\n"), "data")
		require.True(t, dims.Success)
		require.Equal(t, int64(2), dims.RowCount)
		require.Equal(t, int64(2), dims.ColumnCount)
	})

	t.Run("opaque payload counts one row", func(t *testing.T) {
		t.Parallel()
		dims := Analyze([]byte(strings.Repeat("\x00binary", 10)), "bin")
		require.True(t, dims.Success)
		require.Equal(t, int64(1), dims.RowCount)
	})
}
