package runtime

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// dockerAPI is the part of *client.Client the runtime uses.
type dockerAPI interface {
	Ping(ctx context.Context) (types.Ping, error)
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig,
		networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
}

type Docker struct {
	cli         dockerAPI
	stopTimeout time.Duration
	log         zerolog.Logger
}

// NewDocker connects to the engine configured by the DOCKER_* environment.
func NewDocker(stopTimeout time.Duration, log zerolog.Logger) (*Docker, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return newDocker(cli, stopTimeout, log), nil
}

func newDocker(cli dockerAPI, stopTimeout time.Duration, log zerolog.Logger) *Docker {
	return &Docker{cli: cli, stopTimeout: stopTimeout, log: log}
}

func (d *Docker) Close() error {
	if c, ok := d.cli.(*client.Client); ok {
		return c.Close()
	}
	return nil
}

// Shutdown implements do.Shutdownable.
func (d *Docker) Shutdown() error { return d.Close() }

func (d *Docker) Ping(ctx context.Context) error {
	if _, err := d.cli.Ping(ctx); err != nil {
		return fmt.Errorf("ping docker engine: %w", err)
	}
	return nil
}

func (d *Docker) Start(ctx context.Context, spec WorkloadSpec) (Workload, error) {
	port, err := nat.NewPort("tcp", strconv.Itoa(spec.ContainerPort))
	if err != nil {
		return Workload{}, fmt.Errorf("invalid container port %d: %w", spec.ContainerPort, err)
	}
	labels := lo.Assign(spec.Labels, map[string]string{LabelEnabled: "true"})

	resp, err := d.cli.ContainerCreate(ctx,
		&container.Config{
			Image:        spec.Image,
			Env:          spec.Env,
			Labels:       labels,
			ExposedPorts: nat.PortSet{port: struct{}{}},
		},
		&container.HostConfig{
			PortBindings: nat.PortMap{
				port: []nat.PortBinding{{HostIP: spec.HostIP, HostPort: strconv.Itoa(spec.HostPort)}},
			},
			RestartPolicy: container.RestartPolicy{
				Name: container.RestartPolicyUnlessStopped,
			},
		}, nil, nil, spec.Name)
	if err != nil {
		return Workload{}, fmt.Errorf("failed to create container: %w", err)
	}
	for _, w := range resp.Warnings {
		d.log.Warn().Str("container", resp.ID).Msg(w)
	}

	if err := d.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		// a created-but-unstarted container still owns its name
		rmCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.stopTimeout)
		defer cancel()
		if rmErr := d.cli.ContainerRemove(rmCtx, resp.ID, container.RemoveOptions{Force: true}); rmErr != nil {
			d.log.Error().Err(rmErr).Str("container", resp.ID).Msg("failed to remove unstarted container")
		}
		return Workload{}, fmt.Errorf("failed to start container: %w", err)
	}

	d.log.Info().Str("container", resp.ID).Str("image", spec.Image).Int("host_port", spec.HostPort).Msg("started new container")

	return Workload{ID: resp.ID, Name: spec.Name, Image: spec.Image, State: "running", Labels: labels}, nil
}

func (d *Docker) Stop(ctx context.Context, id string) error {
	timeout := int(d.stopTimeout.Seconds())
	if err := d.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout}); err != nil {
		if cerrdefs.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to stop container %s: %w", id, err)
	}
	if err := d.cli.ContainerRemove(ctx, id, container.RemoveOptions{}); err != nil && !cerrdefs.IsNotFound(err) {
		return fmt.Errorf("failed to remove container %s: %w", id, err)
	}
	d.log.Info().Str("container", id).Msg("removed container")
	return nil
}

func (d *Docker) List(ctx context.Context, labels map[string]string) ([]Workload, error) {
	args := filters.NewArgs(filters.Arg("label", LabelEnabled+"=true"))
	for k, v := range labels {
		args.Add("label", k+"="+v)
	}
	containers, err := d.cli.ContainerList(ctx, container.ListOptions{All: true, Filters: args})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}
	return lo.Map(containers, func(c container.Summary, _ int) Workload {
		return Workload{
			ID:     c.ID,
			Name:   strings.TrimPrefix(lo.FirstOr(c.Names, ""), "/"),
			Image:  c.Image,
			State:  string(c.State),
			Labels: c.Labels,
		}
	}), nil
}
