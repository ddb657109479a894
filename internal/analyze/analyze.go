package analyze

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Dimensions is the structural summary of one fetched payload. A failed
// computation is not fatal upstream: Success is false, Error carries the
// cause, and the counts degrade to zero.
type Dimensions struct {
	RowCount      int64
	ColumnCount   int64
	SchemaPreview []string
	Success       bool
	Error         string
}

// Hash returns the hex SHA-256 content hash used for drift detection.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Analyze computes structural dimensions for a payload given its declared
// resource format. Unknown formats go through a sniffing path. Analyze never
// panics and never returns an error; failures degrade the result instead so
// the snapshot write still happens.
func Analyze(data []byte, declaredFormat string) Dimensions {
	format := strings.ToLower(strings.TrimSpace(declaredFormat))
	format = strings.TrimPrefix(format, ".")

	var dims Dimensions
	switch format {
	case "csv", "txt":
		dims = analyzeCSV(data, ',')
	case "tsv":
		dims = analyzeCSV(data, '\t')
	case "json", "geojson":
		dims = analyzeJSON(data)
	case "zip":
		dims = analyzeZIP(data)
	case "xls", "xlsx":
		dims = analyzeXLSX(data)
	case "xml", "rdf":
		dims = analyzeXML(data)
	default:
		dims = sniff(data)
	}

	if dims.Success {
		MetricAnalyses.WithLabelValues(format, "success").Inc()
	} else {
		MetricAnalyses.WithLabelValues(format, "degraded").Inc()
	}
	return dims
}

// sniff handles undeclared formats: CSV-like first, then JSON, then a single
// opaque record.
func sniff(data []byte) Dimensions {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		if dims := analyzeJSON(data); dims.Success {
			return dims
		}
	}
	if dims := analyzeCSV(data, ','); dims.Success && dims.ColumnCount > 1 {
		return dims
	}
	if dims := analyzeJSON(data); dims.Success {
		return dims
	}
	return Dimensions{RowCount: 1, ColumnCount: 0, Success: true}
}
