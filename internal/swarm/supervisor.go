package swarm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Default locations and timing for supervised agents.
const (
	DefaultCheckpointDir = ".agent-checkpoints"
	DefaultLogDir        = ".agent-run-logs"
	DefaultKillGrace     = 1500 * time.Millisecond
)

// EnvPrefix is the configuration environment prefix read by `wikiagent run`.
const EnvPrefix = "WIKIAGENT_"

// Supervisor starts one child process per roster member and stops them all
// when its context ends: SIGTERM first, SIGKILL after KillGrace.
type Supervisor struct {
	Binary        string
	Args          []string // arguments passed to every child, e.g. run --config x
	Env           []string // base environment; defaults to os.Environ()
	CheckpointDir string
	LogDir        string
	KillGrace     time.Duration
	Output        io.Writer // receives every child's output with a [slug] prefix
	Logger        *zap.Logger
}

// Process is the launch plan for one member.
type Process struct {
	Name       string
	Slug       string
	Args       []string
	Env        []string
	MemoryPath string
	LogPath    string
}

// Plan builds the launch plan for every member without starting anything.
func (s *Supervisor) Plan(r *Roster) []Process {
	checkpointDir := orDefault(s.CheckpointDir, DefaultCheckpointDir)
	logDir := orDefault(s.LogDir, DefaultLogDir)
	base := s.Env
	if base == nil {
		base = os.Environ()
	}

	procs := make([]Process, 0, len(r.Agents))
	for _, m := range r.Agents {
		slug := m.Slug()
		p := Process{
			Name:       m.Name,
			Slug:       slug,
			Args:       append([]string(nil), s.Args...),
			MemoryPath: filepath.Join(checkpointDir, slug+".memory.json"),
			LogPath:    filepath.Join(logDir, slug+".log"),
		}

		overrides := map[string]string{
			"AGENT_NAME":               m.Name,
			"POLICY_SALT":              slug,
			"MEMORY_BACKEND":           "file",
			"MEMORY_PATH":              p.MemoryPath,
			"LOGGING_DIR":              logDir,
			"MARKETPLACE_ACCESS_TOKEN": m.AccessToken,
			"POLICY_ALWAYS_RESPOND":    strconv.FormatBool(r.Shared.AlwaysRespond),
		}
		if m.AlwaysRespond != nil {
			overrides["POLICY_ALWAYS_RESPOND"] = strconv.FormatBool(*m.AlwaysRespond)
		}
		if mcp := orDefault(m.MCPURL, r.Shared.MCPURL); mcp != "" {
			overrides["MARKETPLACE_MCP_URL"] = mcp
		}
		if r.Shared.Mode != "" {
			overrides["AGENT_MODE"] = r.Shared.Mode
		}
		if len(m.Interests) > 0 {
			overrides["POLICY_INTERESTS"] = strings.Join(m.Interests, ",")
		}
		if m.PersonaFile != "" {
			overrides["AGENT_PERSONA_FILE"] = m.PersonaFile
		}
		if r.Shared.WikiDiscovery != nil {
			overrides["POLICY_WIKI_DISCOVERY"] = strconv.FormatBool(*r.Shared.WikiDiscovery)
		}
		if r.Shared.Reactions != nil {
			overrides["POLICY_REACTIONS_ENABLED"] = strconv.FormatBool(*r.Shared.Reactions)
		}
		if r.Shared.MaxWikis > 0 {
			overrides["POLICY_WIKI_MAX_SUBSCRIPTIONS"] = strconv.Itoa(r.Shared.MaxWikis)
		}

		// Later entries win when exec sees duplicate keys.
		p.Env = append([]string(nil), base...)
		for _, k := range sortedKeys(overrides) {
			p.Env = append(p.Env, EnvPrefix+k+"="+overrides[k])
		}
		procs = append(procs, p)
	}
	return procs
}

// Run starts every member and waits for all of them to exit. Exits caused
// by ctx ending are not errors; the first other failure is returned once
// every child has stopped.
func (s *Supervisor) Run(ctx context.Context, r *Roster) error {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	procs := s.Plan(r)

	for _, dir := range []string{orDefault(s.CheckpointDir, DefaultCheckpointDir), orDefault(s.LogDir, DefaultLogDir)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	out := &lockedWriter{w: s.Output}
	if s.Output == nil {
		out.w = io.Discard
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// On a start failure the children already running are stopped too.
	abort := func(g *errgroup.Group, err error) error {
		cancel()
		_ = g.Wait()
		return err
	}

	var g errgroup.Group
	for _, p := range procs {
		logFile, err := os.Create(p.LogPath)
		if err != nil {
			return abort(&g, fmt.Errorf("failed to create log file for %s: %w", p.Name, err))
		}

		cmd := s.command(ctx, p)
		w := io.MultiWriter(logFile, &prefixWriter{prefix: "[" + p.Slug + "] ", out: out})
		cmd.Stdout = w
		cmd.Stderr = w

		if err := cmd.Start(); err != nil {
			logFile.Close()
			return abort(&g, fmt.Errorf("failed to start %s: %w", p.Name, err))
		}
		logger.Info("agent started",
			zap.String("agent", p.Name),
			zap.Int("pid", cmd.Process.Pid),
			zap.String("memory", p.MemoryPath),
			zap.String("log", p.LogPath),
		)

		g.Go(func() error {
			defer logFile.Close()
			err := cmd.Wait()
			logger.Info("agent exited", zap.String("agent", p.Name), zap.String("state", cmd.ProcessState.String()))
			if err != nil && ctx.Err() == nil {
				return fmt.Errorf("agent %s exited: %w", p.Name, err)
			}
			return nil
		})
	}
	logger.Info("swarm started", zap.Int("agents", len(procs)))

	return g.Wait()
}

func (s *Supervisor) command(ctx context.Context, p Process) *exec.Cmd {
	grace := s.KillGrace
	if grace <= 0 {
		grace = DefaultKillGrace
	}

	cmd := exec.CommandContext(ctx, s.Binary, p.Args...)
	cmd.Env = p.Env
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = grace
	return cmd
}

// lockedWriter serialises writes from several children.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// prefixWriter prefixes each complete line. A trailing partial line is
// held until its newline arrives.
type prefixWriter struct {
	prefix string
	out    io.Writer
	buf    []byte
}

func (p *prefixWriter) Write(b []byte) (int, error) {
	p.buf = append(p.buf, b...)
	for {
		i := bytes.IndexByte(p.buf, '\n')
		if i < 0 {
			break
		}
		line := append([]byte(p.prefix), p.buf[:i+1]...)
		if _, err := p.out.Write(line); err != nil {
			return len(b), err
		}
		p.buf = p.buf[i+1:]
	}
	return len(b), nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
