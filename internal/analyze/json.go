package analyze

import (
	"encoding/json"
	"sort"
)

// analyzeJSON treats a top-level array as a table (one row per element,
// columns from the first element's keys) and a top-level object as a single
// record.
func analyzeJSON(data []byte) Dimensions {
	var arr []map[string]any
	if err := json.Unmarshal(data, &arr); err == nil {
		dims := Dimensions{RowCount: int64(len(arr)), Success: true}
		if len(arr) > 0 {
			dims.ColumnCount = int64(len(arr[0]))
			dims.SchemaPreview = sortedKeys(arr[0])
		}
		return dims
	}

	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err == nil {
		return Dimensions{
			RowCount:      1,
			ColumnCount:   int64(len(obj)),
			SchemaPreview: sortedKeys(obj),
			Success:       true,
		}
	}

	// Arrays of scalars still count as rows.
	var rawArr []json.RawMessage
	if err := json.Unmarshal(data, &rawArr); err == nil {
		return Dimensions{RowCount: int64(len(rawArr)), Success: true}
	}

	return Dimensions{Success: false, Error: "invalid JSON payload"}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
