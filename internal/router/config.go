// Package router implements C2 Router Config Sync: translating the path
// store into the media router's declarative configuration, writing it
// atomically, debouncing reloads, and brokering ephemeral test-connection
// paths (spec.md §4.2).
package router

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// PathEntry is one camera's router-facing configuration (spec.md's
// "canonical form produced by C2"). Field names are fixed for router
// compatibility.
type PathEntry struct {
	Source                string `yaml:"source"`
	SourceOnDemand        bool   `yaml:"sourceOnDemand"`
	Record                bool   `yaml:"record"`
	RecordPath            string `yaml:"recordPath,omitempty"`
	RecordSegmentDuration string `yaml:"recordSegmentDuration,omitempty"`
	ReadUser              string `yaml:"readUser,omitempty"`
	ReadPass              string `yaml:"readPass,omitempty"`
}

// Document is the full MediaMTX-style configuration file C2 maintains.
type Document struct {
	Paths map[string]PathEntry `yaml:"paths"`
}

// Marshal renders doc as the canonical YAML bytes written to disk.
func (d Document) Marshal() ([]byte, error) {
	out, err := yaml.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal router config: %w", err)
	}
	return out, nil
}

// PathSpec is what the store layer knows about one camera's stream; it is
// the input to BuildDocument.
type PathSpec struct {
	Slug                string
	RTSPUrl             string
	ContinuousRecording bool
	StorageRoot         string
	CameraID            uint
	ReadUser            string
	ReadPass            string
}

// BuildDocument assembles the canonical Document from the current set of
// camera path specs (spec.md §4.2, §9 config shape).
func BuildDocument(specs []PathSpec) Document {
	paths := make(map[string]PathEntry, len(specs))
	for _, s := range specs {
		entry := PathEntry{
			Source:         s.RTSPUrl,
			SourceOnDemand: true,
			Record:         s.ContinuousRecording,
			ReadUser:       s.ReadUser,
			ReadPass:       s.ReadPass,
		}
		if s.ContinuousRecording {
			entry.RecordPath = fmt.Sprintf("%s/continuous/%d/%%Y%%m%%d_%%H%%M%%S", s.StorageRoot, s.CameraID)
			entry.RecordSegmentDuration = "900s"
		}
		paths[s.Slug] = entry
	}
	return Document{Paths: paths}
}
