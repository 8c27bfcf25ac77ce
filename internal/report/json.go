package report

import (
	"encoding/json"
	"io"
)

// WriteReportJSON writes the document in the structure shown on screen
func WriteReportJSON(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
