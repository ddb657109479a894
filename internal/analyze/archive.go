package analyze

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strings"
)

// maxArchiveMemberBytes bounds how much of a single archive member gets
// decompressed for analysis.
const maxArchiveMemberBytes = 64 << 20

// analyzeZIP inspects the first CSV and/or JSON member found inside the
// archive and unions their dimensions. An archive with neither falls back to
// its file count as the row count.
func analyzeZIP(data []byte) Dimensions {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Dimensions{Success: false, Error: fmt.Sprintf("invalid zip archive: %v", err)}
	}

	var union Dimensions
	found := false
	sawCSV, sawJSON := false, false
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		ext := strings.ToLower(path.Ext(f.Name))
		if ext != ".csv" && ext != ".json" {
			continue
		}
		if ext == ".csv" && sawCSV {
			continue
		}
		if ext == ".json" && sawJSON {
			continue
		}

		member, err := readArchiveMember(f)
		if err != nil {
			continue
		}
		var dims Dimensions
		if ext == ".csv" {
			dims = analyzeCSV(member, ',')
			sawCSV = true
		} else {
			dims = analyzeJSON(member)
			sawJSON = true
		}
		if !dims.Success {
			continue
		}
		found = true
		union.RowCount += dims.RowCount
		if dims.ColumnCount > union.ColumnCount {
			union.ColumnCount = dims.ColumnCount
			union.SchemaPreview = dims.SchemaPreview
		}
		if sawCSV && sawJSON {
			break
		}
	}

	if !found {
		var files int64
		for _, f := range r.File {
			if !f.FileInfo().IsDir() {
				files++
			}
		}
		return Dimensions{RowCount: files, ColumnCount: 0, Success: true}
	}
	union.Success = true
	return union
}

func readArchiveMember(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(io.LimitReader(rc, maxArchiveMemberBytes))
}

// analyzeXLSX counts rows of the first worksheet. An xlsx file is a zip of
// XML parts; the row elements of xl/worksheets/sheet1.xml are what we need,
// so a streaming decoder over that one member is enough.
func analyzeXLSX(data []byte) Dimensions {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Dimensions{Success: false, Error: fmt.Sprintf("invalid workbook: %v", err)}
	}

	var sheet *zip.File
	for _, f := range r.File {
		if strings.HasPrefix(f.Name, "xl/worksheets/sheet") && strings.HasSuffix(f.Name, ".xml") {
			sheet = f
			break
		}
	}
	if sheet == nil {
		return Dimensions{Success: false, Error: "workbook has no worksheets"}
	}

	rc, err := sheet.Open()
	if err != nil {
		return Dimensions{Success: false, Error: fmt.Sprintf("failed to open worksheet: %v", err)}
	}
	defer rc.Close()

	decoder := xml.NewDecoder(io.LimitReader(rc, maxArchiveMemberBytes))
	var rows, maxCols, rowCols int64
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Dimensions{Success: false, Error: fmt.Sprintf("failed to parse worksheet: %v", err)}
		}
		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "row":
				rows++
				rowCols = 0
			case "c":
				rowCols++
				if rowCols > maxCols {
					maxCols = rowCols
				}
			}
		}
	}

	// First row is assumed to be the header, matching the CSV rule.
	if rows > 0 {
		rows--
	}
	return Dimensions{RowCount: rows, ColumnCount: maxCols, Success: true}
}

// analyzeXML counts repetitions of the dominant child element under the
// document root as rows, and the distinct child names of the first such
// element as columns.
func analyzeXML(data []byte) Dimensions {
	decoder := xml.NewDecoder(bytes.NewReader(data))

	var rootSeen bool
	var recordName string
	var rows int64
	var fields []string
	depth := 0
	inFirstRecord := false

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Dimensions{Success: false, Error: fmt.Sprintf("invalid XML payload: %v", err)}
		}
		switch el := tok.(type) {
		case xml.StartElement:
			depth++
			switch depth {
			case 1:
				rootSeen = true
			case 2:
				if recordName == "" {
					recordName = el.Name.Local
					inFirstRecord = true
				}
				if el.Name.Local == recordName {
					rows++
				}
			case 3:
				if inFirstRecord {
					fields = append(fields, el.Name.Local)
				}
			}
		case xml.EndElement:
			if depth == 2 && el.Name.Local == recordName {
				inFirstRecord = false
			}
			depth--
		}
	}

	if !rootSeen {
		return Dimensions{Success: false, Error: "XML payload has no root element"}
	}
	return Dimensions{
		RowCount:      rows,
		ColumnCount:   int64(len(fields)),
		SchemaPreview: fields,
		Success:       true,
	}
}
