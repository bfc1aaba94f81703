// Package runtime starts and stops slot workloads on the host.
package runtime

import "context"

const (
	LabelEnabled  = "bluegreen.enabled"
	LabelEnv      = "bluegreen.env"
	LabelSlot     = "bluegreen.slot"
	LabelArtifact = "bluegreen.artifact"
)

type Workload struct {
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Image  string            `json:"image"`
	State  string            `json:"state"`
	Labels map[string]string `json:"labels"`
}

type WorkloadSpec struct {
	Name          string
	Image         string
	HostIP        string
	HostPort      int
	ContainerPort int
	Env           []string
	Labels        map[string]string
}

type Runtime interface {
	Ping(ctx context.Context) error
	Start(ctx context.Context, spec WorkloadSpec) (Workload, error)
	// Stop stops and removes the workload. Stopping a missing workload is not an error.
	Stop(ctx context.Context, id string) error
	List(ctx context.Context, labels map[string]string) ([]Workload, error)
}
