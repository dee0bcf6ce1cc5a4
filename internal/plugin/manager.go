// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Bluefox Contributors

// Package plugin discovers plugin sources, compiles them, loads the results
// into the library registry and extracts each plugin's descriptor.
package plugin

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bluefox-game/bluefox/internal/native"
	"github.com/bluefox-game/bluefox/internal/plugin/capability"
	"github.com/bluefox-game/bluefox/internal/registry"
	"github.com/bluefox-game/bluefox/internal/toolchain"
	"github.com/bluefox-game/bluefox/pkg/errutil"
)

// TracerName is the instrumentation scope of the pipeline's spans.
const TracerName = "bluefox/plugin"

// CodeCancelled is returned by LoadAll when its context ends mid-scan.
const CodeCancelled = "DISCOVERY_CANCELLED"

// Manager runs the discovery pipeline over one plugin directory.
type Manager struct {
	pluginsDir string
	suffix     string
	compiler   toolchain.Compiler
	libs       *registry.Registry
	policy     *capability.Policy
	caller     EntryCaller
	metrics    *Metrics
	tracer     trace.Tracer
	logger     *slog.Logger
}

// ManagerOption configures the Manager.
type ManagerOption func(*Manager)

// WithPolicy sets the trust policy. The default trusts every source.
func WithPolicy(p *capability.Policy) ManagerOption {
	return func(m *Manager) { m.policy = p }
}

// WithCaller replaces the entry symbol caller (for testing).
func WithCaller(c EntryCaller) ManagerOption {
	return func(m *Manager) { m.caller = c }
}

// WithMetrics records pipeline metrics.
func WithMetrics(mt *Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = mt }
}

// WithTracerProvider sets where plugin.load spans go. The default is the
// global provider at the time NewManager runs.
func WithTracerProvider(tp trace.TracerProvider) ManagerOption {
	return func(m *Manager) {
		if tp != nil {
			m.tracer = tp.Tracer(TracerName)
		}
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// WithSuffix changes the recognized source suffix.
func WithSuffix(s string) ManagerOption {
	return func(m *Manager) {
		if s != "" {
			m.suffix = s
		}
	}
}

// NewManager creates a plugin manager. The registry is owned by the caller,
// which must tear it down after every descriptor it needs has been used.
// Panics if compiler or libs is nil.
func NewManager(pluginsDir string, compiler toolchain.Compiler, libs *registry.Registry, opts ...ManagerOption) *Manager {
	if compiler == nil {
		panic("plugin: compiler cannot be nil")
	}
	if libs == nil {
		panic("plugin: registry cannot be nil")
	}
	m := &Manager{
		pluginsDir: pluginsDir,
		suffix:     DefaultSuffix,
		compiler:   compiler,
		libs:       libs,
		policy:     capability.AllowAll(),
		caller:     NativeCaller,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.tracer == nil {
		m.tracer = otel.GetTracerProvider().Tracer(TracerName)
	}
	return m
}

// Candidate is one entry of the plugin directory. Err is set when the entry
// was rejected without compilation.
type Candidate struct {
	Entry  string
	Source Source
	Err    error
}

// Discover lists the direct entries of the plugin directory.
// A missing directory yields no candidates and no error.
func (m *Manager) Discover(_ context.Context) ([]Candidate, error) {
	entries, err := os.ReadDir(m.pluginsDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, oops.Code("PLUGIN_DIR_UNREADABLE").With("dir", m.pluginsDir).Wrap(err)
	}

	candidates := make([]Candidate, 0, len(entries))
	for _, entry := range entries {
		path := filepath.Join(m.pluginsDir, entry.Name())
		c := Candidate{Entry: entry.Name()}

		if entry.IsDir() {
			c.Err = oops.Code(CodeNotPluginSource).With("path", path).Errorf("%s is a directory", entry.Name())
		} else {
			c.Source, c.Err = ParseSource(path, m.suffix)
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

// LoadAll discovers and loads every plugin in the plugin directory.
//
// Per-candidate failures are logged and recorded in the report; they never
// stop the scan. An error is returned only if the directory cannot be read
// the registry reports a fatal condition, or ctx ends before every candidate
// has been tried. The report then holds the outcomes processed so far.
func (m *Manager) LoadAll(ctx context.Context) (*Report, error) {
	report := &Report{RunID: ulid.Make().String()}
	logger := m.logger.With("run_id", report.RunID)

	candidates, err := m.Discover(ctx)
	if err != nil {
		return report, err
	}

	logger.InfoContext(ctx, "discovering plugins", "dir", m.pluginsDir, "entries", len(candidates))

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			logger.WarnContext(ctx, "plugin discovery cancelled",
				"processed", len(report.Outcomes),
				"remaining", len(candidates)-len(report.Outcomes))
			return report, oops.Code(CodeCancelled).With("dir", m.pluginsDir).Wrap(err)
		}

		var o Outcome
		if c.Err != nil {
			o = Outcome{Entry: c.Entry, State: StateFailed, FailedIn: StatePending, Kind: KindLoad, Err: c.Err}
			logger.DebugContext(ctx, "skipping entry", "entry", c.Entry, "error", c.Err)
		} else {
			o = m.run(ctx, logger, c)
		}

		m.metrics.recordOutcome(o)
		report.Outcomes = append(report.Outcomes, o)

		if registry.IsFatal(o.Err) {
			return report, o.Err
		}
	}

	logger.InfoContext(ctx, "plugin discovery finished",
		"loaded", len(report.Descriptors()),
		"failed", len(report.Failed()))
	return report, nil
}

// Load runs the full sequence for the source at path. Loading the same
// source twice registers two libraries.
func (m *Manager) Load(ctx context.Context, path string) (Descriptor, error) {
	src, err := ParseSource(path, m.suffix)
	if err != nil {
		return Descriptor{}, err
	}
	o := m.run(ctx, m.logger, Candidate{Entry: filepath.Base(path), Source: src})
	m.metrics.recordOutcome(o)
	if o.Err != nil {
		return Descriptor{}, o.Err
	}
	return *o.Descriptor, nil
}

// candidate tracks one source through the state machine.
type candidate struct {
	outcome Outcome
	logger  *slog.Logger
	ctx     context.Context
}

func (c *candidate) advance(next State) {
	c.logger.DebugContext(c.ctx, "plugin state",
		"from", c.outcome.State.String(),
		"to", next.String())
	c.outcome.State = next
}

// stageStarted follows the compiler into each stage as it begins.
func (c *candidate) stageStarted(stage toolchain.Stage) {
	if stage == toolchain.StageNative && c.outcome.State == StateCompilingToAssembly {
		c.advance(StateCompilingToNative)
	}
}

func (c *candidate) fail(err error) Outcome {
	c.outcome.FailedIn = failedInFor(c.outcome.State, err)
	c.outcome.State = StateFailed
	c.outcome.Kind = KindOf(err)
	c.outcome.Err = err
	return c.outcome
}

// run drives one eligible candidate to a terminal state.
func (m *Manager) run(ctx context.Context, logger *slog.Logger, cand Candidate) Outcome {
	src := cand.Source
	ctx, span := m.tracer.Start(ctx, "plugin.load")
	defer span.End()
	span.SetAttributes(
		attribute.String("plugin.name", src.Name),
		attribute.String("plugin.source", src.Path),
	)

	logger = logger.With("plugin", src.Name)
	c := &candidate{
		outcome: Outcome{Entry: cand.Entry, Source: src, State: StatePending},
		logger:  logger,
		ctx:     ctx,
	}

	desc, err := m.compileAndLoad(ctx, c)
	if err != nil {
		o := c.fail(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("plugin.failed_in", o.FailedIn.String()))
		if errutil.Code(err) == capability.CodeNotTrusted {
			errutil.LogWarn(logger, "plugin not trusted, skipping", err, "kind", o.Kind.String())
		} else {
			errutil.LogError(logger, "failed to load plugin", err,
				"kind", o.Kind.String(),
				"failed_in", o.FailedIn.String())
		}
		return o
	}

	c.advance(StateDone)
	c.outcome.Descriptor = &desc
	logger.InfoContext(ctx, "loaded plugin", "name", desc.Name, "index", desc.Index)
	return c.outcome
}

func (m *Manager) compileAndLoad(ctx context.Context, c *candidate) (Descriptor, error) {
	src := c.outcome.Source

	if err := m.policy.Check(src.Name, src.Path); err != nil {
		return Descriptor{}, err
	}

	c.advance(StateCompilingToAssembly)
	art, err := m.compiler.Compile(toolchain.WithStageHook(ctx, c.stageStarted), src.Path, src.Name)
	if err != nil {
		return Descriptor{}, err
	}
	if c.outcome.State != StateCompilingToNative {
		c.advance(StateCompilingToNative)
	}

	c.advance(StateLoading)
	var name string
	index, err := m.libs.Load(art.Library, func(_ int, lib native.Library) error {
		c.advance(StateResolvingSymbol)
		n, err := resolveName(lib, m.caller)
		name = n
		return err
	})
	if n, lenErr := m.libs.Len(); lenErr == nil {
		m.metrics.setLibraries(n)
	}
	if err != nil {
		return Descriptor{}, oops.With("plugin", src.Name, "library", art.Library).Wrap(err)
	}

	return Descriptor{
		Name:    name,
		Source:  src.Path,
		Library: art.Library,
		Index:   index,
	}, nil
}
