package batch

import (
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"

	"tryon-compositor/internal/attach"
	"tryon-compositor/internal/measure"
)

// Manifest describes one replay run.
type Manifest struct {
	Session     string          `json:"session"`
	Created     time.Time       `json:"created"`
	Recording   string          `json:"recording"`
	Attachments attach.Snapshot `json:"attachments"`
	Frames      []ManifestEntry `json:"frames"`
	Final       *measure.Result `json:"final_measurement,omitempty"`
}

// ManifestEntry represents one frame in the output manifest.
type ManifestEntry struct {
	Seq         uint64          `json:"seq"`
	Image       string          `json:"image,omitempty"`
	Pose        bool            `json:"pose"`
	ArmsUp      bool            `json:"arms_up,omitempty"`
	Measurement *measure.Result `json:"measurement,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// NewManifest builds the manifest for results under a fresh session id.
func NewManifest(recordingDir string, snap attach.Snapshot, results []Result, final *measure.Result) Manifest {
	m := Manifest{
		Session:     uuid.NewString(),
		Created:     time.Now().UTC(),
		Recording:   recordingDir,
		Attachments: snap,
		Frames:      make([]ManifestEntry, len(results)),
		Final:       final,
	}
	for i, r := range results {
		e := ManifestEntry{
			Seq:    r.Seq,
			Image:  r.Image,
			Pose:   r.Output.HasPose,
			ArmsUp: r.Output.ArmsUp,
			Error:  r.Error,
		}
		if r.Output.Measured && r.Output.MeasureErr == nil {
			mr := r.Output.Measure
			e.Measurement = &mr
		}
		m.Frames[i] = e
	}
	return m
}

// WriteManifest writes the manifest as indented JSON.
func WriteManifest(path string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
