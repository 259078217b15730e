package output

import (
	"encoding/json"
	"io"
)

// JSONFormatter writes data as indented JSON. HTML escaping is off so that
// URLs and query strings in access events print as they were requested.
type JSONFormatter struct{}

// Format writes data followed by a newline.
func (f *JSONFormatter) Format(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}
