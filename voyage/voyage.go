// Package voyage defines the domain types shared by every stage of the
// towed-camera pipeline: deployments, media files, run configuration and
// per-file outcome reports.
package voyage

import (
	"path/filepath"
	"strings"
)

// Kind describes the role of a raw deployment file.
type Kind string

const (
	KindImage     Kind = "image"
	KindVideo     Kind = "video"
	KindSensorLog Kind = "sensor-log"
	KindUnknown   Kind = "unknown"
)

// Stage describes how far a deployment has advanced through the pipeline.
// Transitions are one-directional: Imported -> Processed -> Packaged.
type Stage int

const (
	StageNone Stage = iota
	StageImported
	StageProcessed
	StagePackaged
)

func (s Stage) String() string {

	switch s {
	case StageImported:
		return "imported"
	case StageProcessed:
		return "processed"
	case StagePackaged:
		return "packaged"
	default:
		return "none"
	}
}

// FileStatus is the per-file outcome tracked independently of the
// deployment-level stage.
type FileStatus string

const (
	StatusPending FileStatus = "pending"
	StatusSuccess FileStatus = "success"
	StatusSkipped FileStatus = "skipped"
	StatusFailed  FileStatus = "failed"
)

// KindForKey derives a Kind from a file's extension. Extensions are matched
// case-insensitively.
func KindForKey(key string) Kind {

	ext := strings.ToLower(filepath.Ext(key))

	switch ext {
	case ".jpg", ".jpeg":
		return KindImage
	case ".mp4":
		return KindVideo
	case ".csv":
		return KindSensorLog
	default:
		return KindUnknown
	}
}
