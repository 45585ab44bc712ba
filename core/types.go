// Package core defines the shared types, interfaces, and error kinds
// for EXIF surgery on in-memory image containers.
package core

// MetaField represents a single metadata key-value pair.
type MetaField struct {
	Key      string // Canonical field name (e.g. "Make", "DateTimeOriginal")
	Value    string // String representation of the value
	Category string // IFD the field lives in (e.g. "IFD0", "Exif", "GPS")
	Editable bool   // Whether this field can be written back by surgery
	Raw      string // Raw / hex representation if different from Value
}

// Metadata holds all metadata extracted from a single container.
type Metadata struct {
	FilePath  string
	Format    string // Human-readable format name (e.g. "JPEG", "PNG", "WebP")
	ByteOrder string // "II" or "MM"; empty when no EXIF segment exists
	Fields    []MetaField
}

// Summary returns the most telling field for quick display: the capture
// time, then the camera make or model. It falls back to the format name.
func (m *Metadata) Summary() string {
	for _, key := range []string{"DateTimeOriginal", "Make", "Model"} {
		for _, f := range m.Fields {
			if f.Key == key {
				return f.Key + ": " + f.Value
			}
		}
	}
	return m.Format
}

// StripOptions controls which parts of metadata to remove.
type StripOptions struct {
	// StripGPS removes the GPS sub-IFD only and keeps every other tag.
	StripGPS bool
}

// EditOptions holds field changes for an edit operation.
type EditOptions struct {
	// Set is a map of tag name → textual value for fields to set or update.
	Set map[string]string
	// Delete is a list of tag names to remove.
	Delete []string
}

// FormatInfo describes what a format handler supports.
type FormatInfo struct {
	Name       string   // "JPEG"
	Extensions []string // [".jpg", ".jpeg"]
	MIMETypes  []string
	Envelope   string // Where the EXIF segment lives in the container
	Notes      string // Any caveats or notes
}

// Handler is the interface every container format exposes. All methods
// operate on caller-owned buffers and return new buffers; the input is
// never modified.
type Handler interface {
	// View decodes and returns the EXIF fields found in data.
	View(data []byte) (*Metadata, error)
	// Edit applies field changes and returns the rewritten container.
	Edit(data []byte, opts EditOptions) ([]byte, error)
	// Strip removes EXIF metadata and returns the rewritten container.
	Strip(data []byte, opts StripOptions) ([]byte, error)
	// Info returns format capabilities.
	Info() FormatInfo
}
