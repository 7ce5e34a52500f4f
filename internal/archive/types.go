package archive

import "time"

// ExportFile describes one processed EMR export.
type ExportFile struct {
	Name       string    `json:"name"`
	Kind       string    `json:"kind"` // outpatient|inpatient
	SHA256     string    `json:"sha256"`
	Size       int       `json:"size"`
	Outcome    string    `json:"outcome"` // imported|duplicate|failed
	ImportedAt time.Time `json:"imported_at"`
}

// ManifestEntry is one JSONL line in the monthly manifest file.
type ManifestEntry struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	SHA256     string `json:"sha256"`
	S3Key      string `json:"s3_key"`
	Outcome    string `json:"outcome"`
	ArchivedAt string `json:"archived_at"`
}
