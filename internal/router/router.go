// Package router repoints the reverse proxy at a slot.
//
// Each slot has its own config snippet <dir>/<env>-<slot>.conf; the proxy
// includes <dir>/<env>.conf, a symlink to one of them. Replacing the symlink
// is a single rename, so the proxy always sees exactly one slot.
package router

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/moby/sys/atomicwriter"
	"github.com/rs/zerolog"
	"github.com/yz4230/bluegreen/internal/entity"
	"github.com/yz4230/bluegreen/internal/utils"
)

type Settings struct {
	Dir           string   `yaml:"dir"`
	Upstream      string   `yaml:"upstream"`
	HostIP        string   `yaml:"host_ip"`
	VerifyCommand []string `yaml:"verify_command"`
	ReloadCommand []string `yaml:"reload_command"`
}

// CommandRunner runs argv and fails on a non-zero exit.
type CommandRunner func(ctx context.Context, argv []string) error

type SymlinkRouter struct {
	env      string
	settings Settings
	ports    map[entity.SlotID]int
	run      CommandRunner

	mu sync.Mutex
}

func NewSymlinkRouter(env string, settings Settings, ports map[entity.SlotID]int) *SymlinkRouter {
	if settings.Upstream == "" {
		settings.Upstream = utils.SanitizeName(env) + "_backend"
	}
	if settings.HostIP == "" {
		settings.HostIP = "127.0.0.1"
	}
	return &SymlinkRouter{env: env, settings: settings, ports: ports, run: execCommand}
}

// WithRunner replaces the command runner used for verify and reload.
func (r *SymlinkRouter) WithRunner(run CommandRunner) *SymlinkRouter {
	r.run = run
	return r
}

func (r *SymlinkRouter) LinkPath() string {
	return filepath.Join(r.settings.Dir, utils.EnsureSuffix(r.env, ".conf"))
}

func (r *SymlinkRouter) slotConfigName(id entity.SlotID) string {
	return fmt.Sprintf("%s-%s.conf", r.env, strings.ToLower(id.String()))
}

// Active reports the slot the link points at.
func (r *SymlinkRouter) Active(ctx context.Context) (entity.SlotID, bool, error) {
	target, err := os.Readlink(r.LinkPath())
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: read link: %v", entity.ErrRouter, err)
	}
	for _, id := range entity.SlotIDs {
		if filepath.Base(target) == r.slotConfigName(id) {
			return id, true, nil
		}
	}
	return "", false, fmt.Errorf("%w: link points at unknown config %s", entity.ErrRouter, target)
}

// SwitchTo routes traffic to slot id. It is a no-op when the link already
// points there. On a failed verify or reload the previous link is put back
// before ErrRouter is returned. An empty id removes the link.
func (r *SymlinkRouter) SwitchTo(ctx context.Context, id entity.SlotID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	log := zerolog.Ctx(ctx).With().Str("env", r.env).Str("slot", id.String()).Logger()

	if id != "" && !id.Valid() {
		return fmt.Errorf("%w: unknown slot %q", entity.ErrRouter, id)
	}

	prev, err := os.Readlink(r.LinkPath())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: read link: %v", entity.ErrRouter, err)
	}
	desired := ""
	if id != "" {
		desired = r.slotConfigName(id)
	}
	if prev == desired {
		log.Debug().Msg("router already points at slot")
		return nil
	}

	// only the config being switched to is written; the live one stays as loaded
	if id != "" {
		if err := r.writeSlotConfig(id); err != nil {
			return fmt.Errorf("%w: %v", entity.ErrRouter, err)
		}
	}
	if err := r.replaceLink(desired); err != nil {
		return fmt.Errorf("%w: replace link: %v", entity.ErrRouter, err)
	}

	if err := r.runStep(ctx, "verify", r.settings.VerifyCommand); err != nil {
		r.restore(ctx, prev, false)
		return fmt.Errorf("%w: verify: %v", entity.ErrRouter, err)
	}
	if err := r.runStep(ctx, "reload", r.settings.ReloadCommand); err != nil {
		r.restore(ctx, prev, true)
		return fmt.Errorf("%w: reload: %v", entity.ErrRouter, err)
	}

	log.Info().Str("from", prev).Str("to", desired).Msg("switched traffic")
	return nil
}

func (r *SymlinkRouter) restore(ctx context.Context, prev string, reload bool) {
	log := zerolog.Ctx(ctx)
	if err := r.replaceLink(prev); err != nil {
		log.Error().Err(err).Str("target", prev).Msg("failed to restore router link")
		return
	}
	log.Warn().Str("target", prev).Msg("restored router link")
	if !reload {
		return
	}
	// the failed reload may have been partial; bring the proxy back to the old config
	restoreCtx := context.WithoutCancel(ctx)
	if err := r.runStep(restoreCtx, "reload", r.settings.ReloadCommand); err != nil {
		log.Error().Err(err).Msg("failed to reload restored config")
	}
}

func (r *SymlinkRouter) replaceLink(target string) error {
	link := r.LinkPath()
	if target == "" {
		if err := os.Remove(link); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}
	tmp := fmt.Sprintf("%s.tmp-%s", link, uuid.NewString()[:8])
	if err := os.Symlink(target, tmp); err != nil {
		return err
	}
	if err := os.Rename(tmp, link); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func (r *SymlinkRouter) writeSlotConfig(id entity.SlotID) error {
	if err := os.MkdirAll(r.settings.Dir, 0o755); err != nil {
		return fmt.Errorf("create router dir: %w", err)
	}
	path := filepath.Join(r.settings.Dir, r.slotConfigName(id))
	content := []byte(r.renderSlotConfig(id))
	if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, content) {
		return nil
	}
	if err := atomicwriter.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("write slot config %s: %w", path, err)
	}
	return nil
}

func (r *SymlinkRouter) renderSlotConfig(id entity.SlotID) string {
	return fmt.Sprintf("# managed by bluegreen: env=%s slot=%s\nupstream %s {\n    server %s:%d;\n}\n",
		r.env, id, r.settings.Upstream, r.settings.HostIP, r.ports[id])
}

func (r *SymlinkRouter) runStep(ctx context.Context, step string, argv []string) error {
	if len(argv) == 0 {
		return nil
	}
	zerolog.Ctx(ctx).Debug().Str("step", step).Strs("command", argv).Msg("executing router command")
	return r.run(ctx, argv)
}

func execCommand(ctx context.Context, argv []string) error {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.Stdout = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w: %s", strings.Join(argv, " "), err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
