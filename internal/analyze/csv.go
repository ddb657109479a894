package analyze

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const schemaPreviewRows = 100

// analyzeCSV parses delimited text: row count is non-empty lines minus the
// header, column count and types come from the first rows. A parse failure
// falls back to a naive split so malformed CSV still yields an estimate.
func analyzeCSV(data []byte, delimiter rune) Dimensions {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return Dimensions{Success: true}
	}
	if err != nil {
		return naiveSplit(data, delimiter)
	}

	var rows int64
	var sample [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return naiveSplit(data, delimiter)
		}
		rows++
		if len(sample) < schemaPreviewRows {
			sample = append(sample, record)
		}
	}

	return Dimensions{
		RowCount:      rows,
		ColumnCount:   int64(len(header)),
		SchemaPreview: schemaFromSample(header, sample),
		Success:       true,
	}
}

// naiveSplit estimates dimensions for CSV the structured parser rejected:
// non-empty line count minus one, columns from splitting the first line.
func naiveSplit(data []byte, delimiter rune) Dimensions {
	lines := strings.Split(string(data), "\n")
	var nonEmpty int64
	var first string
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if nonEmpty == 0 {
			first = line
		}
		nonEmpty++
	}
	if nonEmpty == 0 {
		return Dimensions{Success: true}
	}
	cols := int64(len(strings.Split(first, string(delimiter))))
	rows := nonEmpty - 1
	return Dimensions{RowCount: rows, ColumnCount: cols, Success: true}
}

// schemaFromSample labels each header column with a coarse dtype inferred
// from the sampled rows: int, float, or str.
func schemaFromSample(header []string, sample [][]string) []string {
	schema := make([]string, len(header))
	for i, name := range header {
		dtype := "str"
		sawValue := false
		allInt, allFloat := true, true
		for _, row := range sample {
			if i >= len(row) {
				continue
			}
			v := strings.TrimSpace(row[i])
			if v == "" {
				continue
			}
			sawValue = true
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				allInt = false
			}
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				allFloat = false
			}
		}
		if sawValue {
			if allInt {
				dtype = "int"
			} else if allFloat {
				dtype = "float"
			}
		}
		schema[i] = fmt.Sprintf("%s:%s", strings.TrimSpace(name), dtype)
	}
	return schema
}
