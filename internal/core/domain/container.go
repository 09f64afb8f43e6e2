package domain

import "time"

// Labels stamped on every image and container the bootstrapper creates.
const (
	LabelManaged       = "io.lighthouse.preview"
	LabelBuildID       = "io.lighthouse.preview.build-id"
	LabelSpecDigest    = "io.lighthouse.preview.spec-digest"
	LabelContentDigest = "io.lighthouse.preview.content-digest"
	LabelPort          = "io.lighthouse.preview.port"
)

// ImageArtifact is a fully built and tagged preview image.
type ImageArtifact struct {
	ID            string    `json:"id"`
	Tag           string    `json:"tag"`
	BuildID       string    `json:"build_id"`
	SpecDigest    string    `json:"spec_digest"`
	ContentDigest string    `json:"content_digest"`
	Port          int       `json:"port"`
	CreatedAt     time.Time `json:"created_at"`
	Reused        bool      `json:"reused"`
}

// Ref returns the reference a container should be created from.
func (a ImageArtifact) Ref() string {
	if a.Tag != "" {
		return a.Tag
	}
	return a.ID
}

// RunningProcess is a started preview container.
type RunningProcess struct {
	ContainerID string        `json:"container_id"`
	Name        string        `json:"name"`
	Image       string        `json:"image"`
	Binding     ServerBinding `json:"binding"`
	StartedAt   time.Time     `json:"started_at"`
}

// Preview represents a preview container as listed by the runtime.
type Preview struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Image     string `json:"image"`
	Status    string `json:"status"`
	State     string `json:"state"` // running, exited, etc.
	IPAddress string `json:"ip_address"`
	HostPort  int    `json:"host_port"`
	// Port is the container port the server listens on.
	Port int `json:"port"`
}
