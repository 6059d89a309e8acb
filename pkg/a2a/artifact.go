package a2a

import "github.com/google/uuid"

/*
Artifact is an output of a task.  Artifacts are chunkable: later
artifact-update events may append parts to an artifact that already exists
under the same id.
*/
type Artifact struct {
	ArtifactID  string         `json:"artifactId"`
	Name        string         `json:"name,omitempty"`
	Description string         `json:"description,omitempty"`
	Parts       []Part         `json:"parts"`
	Extensions  []string       `json:"extensions,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func NewArtifact(name string, parts ...Part) Artifact {
	return Artifact{
		ArtifactID: uuid.NewString(),
		Name:       name,
		Parts:      parts,
	}
}

func NewTextArtifact(name string, text string) Artifact {
	return NewArtifact(name, NewTextPart(text))
}

func NewFileArtifact(name string, mimeType string, data []byte) Artifact {
	return NewArtifact(name, NewFilePart(name, mimeType, data))
}
