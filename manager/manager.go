// Package manager implements the Knowledge Manager: the single trusted
// coordinator that complex graph mutations are escalated to.
//
// The manager owns a FIFO queue drained by one worker goroutine, so all
// writes through a manager instance are strictly serialized. Each
// escalation runs the full pipeline: validate, detect conflicts, resolve,
// reason, apply, audit, with backend rollback when apply fails partway.
// Exactly one audit entry is recorded per request that entered the queue,
// regardless of outcome.
package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/knograph/kgcoord/audit"
	"github.com/knograph/kgcoord/backend"
	"github.com/knograph/kgcoord/comms"
	"github.com/knograph/kgcoord/conflict"
	"github.com/knograph/kgcoord/eventbus"
	"github.com/knograph/kgcoord/kg"
	"github.com/knograph/kgcoord/reasoning"
	"github.com/knograph/kgcoord/registry"
	"github.com/knograph/kgcoord/validation"
)

// DomainRule is a domain-specific reasoning hook, looked up by domain
// name during escalation processing. It returns human-readable strings
// describing what it applied.
type DomainRule func(req kg.UpdateRequest) []string

// Options configures a Manager. Backend is required; everything else has
// working defaults.
type Options struct {
	// AgentID is the manager's identity, used for its mailbox and
	// registry entry. Default: "knowledge_manager".
	AgentID string

	// Backend is the graph store all writes go through. Required.
	Backend backend.Backend

	// Bus receives complex-operation events. Default: in-process bus.
	Bus eventbus.Bus

	// Channel is the agent mailbox transport. Default: in-memory channel.
	Channel comms.Channel

	// Registry is used by RegisterSelf. Default: in-memory registry.
	Registry registry.Registry

	// Logger defaults to slog.Default.
	Logger *slog.Logger

	// TracerProvider and MeterProvider enable tracing and metrics. Both
	// are optional; when nil the manager skips instrumentation.
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider

	// QueueCapacity is the escalation queue depth. Default: 64.
	QueueCapacity int

	// ShutdownTimeout bounds how long Close waits for the worker.
	// Default: 30s.
	ShutdownTimeout time.Duration
}

// pendingRequest pairs an escalation with the channel its result is
// delivered on. The channel is buffered so the worker never blocks on a
// caller that timed out.
type pendingRequest struct {
	req  kg.UpdateRequest
	resp chan kg.UpdateResult
}

// Manager is the Knowledge Manager coordinator.
type Manager struct {
	agentID  string
	backend  backend.Backend
	bus      eventbus.Bus
	channel  comms.Channel
	registry registry.Registry
	logger   *slog.Logger

	validation *validation.Engine
	conflicts  *conflict.Resolver
	reasoning  *reasoning.Engine
	auditLog   *audit.Log

	tracer  trace.Tracer
	metrics *managerMetrics

	mu          sync.RWMutex
	domainRules map[string][]DomainRule

	queue           chan *pendingRequest
	done            chan struct{}
	wg              sync.WaitGroup
	closeOnce       sync.Once
	shutdownTimeout time.Duration
}

// New creates a Manager and starts its worker. Call Close to stop it.
func New(opts Options) (*Manager, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("manager: backend is required")
	}
	if opts.AgentID == "" {
		opts.AgentID = "knowledge_manager"
	}
	if opts.Bus == nil {
		opts.Bus = eventbus.NewLocalBus()
	}
	if opts.Channel == nil {
		opts.Channel = comms.NewInMemoryChannel()
	}
	if opts.Registry == nil {
		opts.Registry = registry.NewInMemoryRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = 64
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 30 * time.Second
	}

	m := &Manager{
		agentID:         opts.AgentID,
		backend:         opts.Backend,
		bus:             opts.Bus,
		channel:         opts.Channel,
		registry:        opts.Registry,
		logger:          opts.Logger.With("agent_id", opts.AgentID),
		validation:      validation.NewEngine(),
		conflicts:       conflict.NewResolver(opts.Backend, opts.Logger),
		reasoning:       reasoning.NewEngine(),
		auditLog:        audit.NewLog(),
		domainRules:     make(map[string][]DomainRule),
		queue:           make(chan *pendingRequest, opts.QueueCapacity),
		done:            make(chan struct{}),
		shutdownTimeout: opts.ShutdownTimeout,
	}

	if opts.TracerProvider != nil {
		m.tracer = opts.TracerProvider.Tracer("github.com/knograph/kgcoord/manager")
	}
	if opts.MeterProvider != nil {
		metrics, err := newManagerMetrics(opts.MeterProvider.Meter("github.com/knograph/kgcoord/manager"))
		if err != nil {
			return nil, fmt.Errorf("manager: failed to create metrics: %w", err)
		}
		m.metrics = metrics
	}

	m.subscribeComplexOperations()

	m.wg.Add(1)
	go m.worker()

	return m, nil
}

// AuditLog exposes the manager's audit log.
func (m *Manager) AuditLog() *audit.Log {
	return m.auditLog
}

// Validation exposes the validation engine so callers can register
// custom rules.
func (m *Manager) Validation() *validation.Engine {
	return m.validation
}

// Reasoning exposes the reasoning engine.
func (m *Manager) Reasoning() *reasoning.Engine {
	return m.reasoning
}

// AgentID returns the manager's identity.
func (m *Manager) AgentID() string {
	return m.agentID
}

// RegisterDomainRule attaches a reasoning hook to a domain. Rules run in
// registration order during escalation processing for that domain.
func (m *Manager) RegisterDomainRule(domain string, rule DomainRule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.domainRules[domain] = append(m.domainRules[domain], rule)
}

// RegisterSelf advertises the manager: a node in the graph describing its
// capabilities, and a registry entry so peers can discover it.
func (m *Manager) RegisterSelf(ctx context.Context, info registry.AgentInfo) error {
	err := m.backend.AddEntity(ctx, "agent_"+m.agentID, map[string]any{
		"type": "knowledge_manager",
		"capabilities": []any{
			"complex_validation",
			"conflict_resolution",
			"reasoning",
			"audit_trail",
			"batch_processing",
		},
		"status": "active",
	})
	if err != nil {
		return fmt.Errorf("failed to record manager entity: %w", err)
	}

	info.Role = kg.RoleKnowledgeManager
	if info.AgentID == "" {
		info.AgentID = m.agentID
	}
	if info.StartedAt.IsZero() {
		info.StartedAt = time.Now().UTC()
	}
	if err := m.registry.Register(ctx, info); err != nil {
		return fmt.Errorf("failed to register manager: %w", err)
	}
	return nil
}

// EscalateUpdate submits a request to the manager's queue and waits for
// the result. The call is synchronous from the caller's perspective, but
// the request is processed by the single background worker so updates are
// serialized in arrival order.
//
// When ctx expires before the result arrives, the request stays queued
// and will still be processed and audited; the returned error tells the
// caller the call did not complete, not that the update failed.
func (m *Manager) EscalateUpdate(ctx context.Context, req kg.UpdateRequest) (kg.UpdateResult, error) {
	pending := &pendingRequest{req: req, resp: make(chan kg.UpdateResult, 1)}

	select {
	case <-m.done:
		return kg.UpdateResult{}, fmt.Errorf("manager: closed")
	default:
	}

	select {
	case m.queue <- pending:
	case <-m.done:
		return kg.UpdateResult{}, fmt.Errorf("manager: closed")
	case <-ctx.Done():
		return kg.UpdateResult{}, ctx.Err()
	}

	select {
	case result := <-pending.resp:
		return result, nil
	case <-ctx.Done():
		return kg.UpdateResult{}, ctx.Err()
	case <-m.done:
		// Shutdown. The worker answers every queued request while
		// draining, so the response still arrives; the wait is bounded
		// by the same timeout Close uses.
		select {
		case result := <-pending.resp:
			return result, nil
		case <-ctx.Done():
			return kg.UpdateResult{}, ctx.Err()
		case <-time.After(m.shutdownTimeout):
			return kg.UpdateResult{}, fmt.Errorf("manager: closed")
		}
	}
}

// Close stops the worker after it finishes in-flight work, bounded by the
// shutdown timeout. Requests still queued at close are answered with a
// failure result and audited, not silently dropped.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		close(m.done)
	})

	drained := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-time.After(m.shutdownTimeout):
		return fmt.Errorf("manager: shutdown timed out after %s", m.shutdownTimeout)
	}
}

// worker drains the queue one request at a time. It is the only writer
// through this manager, which serializes all graph mutations.
func (m *Manager) worker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.done:
			m.drainQueue()
			return
		case pending := <-m.queue:
			result := m.process(context.Background(), pending.req)
			pending.resp <- result
		}
	}
}

// drainQueue answers every request still queued at shutdown with a
// failure result. Drained requests are audited like processed ones, so
// every request that entered the queue has an audit entry.
func (m *Manager) drainQueue() {
	for {
		select {
		case pending := <-m.queue:
			result := kg.UpdateResult{
				RequestID:        pending.req.RequestID,
				ValidationErrors: []string{},
				ReasoningApplied: []string{},
				ErrorMessage:     "manager shut down before processing",
				Timestamp:        time.Now().UTC(),
			}
			m.auditLog.Record(pending.req.SourceAgent, pending.req.UpdateType, result)
			m.logger.Warn("request rejected at shutdown", "request_id", pending.req.RequestID)
			pending.resp <- result
		default:
			return
		}
	}
}

// process runs one escalation through the full pipeline. Every path out
// of this function records exactly one audit entry.
func (m *Manager) process(ctx context.Context, req kg.UpdateRequest) (result kg.UpdateResult) {
	start := time.Now()

	var span trace.Span
	if m.tracer != nil {
		ctx, span = m.tracer.Start(ctx, "manager.escalate_update")
		span.SetAttributes(
			attribute.String("request.id", req.RequestID),
			attribute.String("request.update_type", string(req.UpdateType)),
			attribute.String("request.domain", req.Domain),
			attribute.Int("request.entities", len(req.Entities)),
			attribute.Int("request.relationships", len(req.Relationships)),
		)
		defer span.End()
	}

	defer func() {
		result.Timestamp = time.Now().UTC()
		m.auditLog.Record(req.SourceAgent, req.UpdateType, result)
		m.recordMetrics(ctx, req, result, time.Since(start))
		if span != nil {
			if result.Success {
				span.SetStatus(codes.Ok, "committed")
			} else {
				span.SetStatus(codes.Error, result.ErrorMessage)
			}
		}
		m.logger.Info("escalation processed",
			"request_id", req.RequestID,
			"update_type", string(req.UpdateType),
			"success", result.Success,
			"nodes_created", result.NodesCreated,
			"edges_created", result.EdgesCreated,
			"conflicts_resolved", result.ConflictsResolved,
			"rollback_performed", result.RollbackPerformed,
		)
	}()

	result = kg.UpdateResult{
		RequestID:        req.RequestID,
		ValidationErrors: []string{},
		ReasoningApplied: []string{},
	}

	// Structural validation. Failures are terminal and non-retryable
	// without caller correction.
	if errs := validateRequest(req); len(errs) > 0 {
		result.ValidationErrors = errs
		result.ErrorMessage = "validation failed"
		return result
	}

	events := requestEvents(req)
	batchNames := requestEntityNames(req)

	// Conflict detection. Relationship endpoints that arrive in the same
	// request are not dangling, so those conflicts are filtered out.
	var allConflicts []kg.Conflict
	for _, event := range events {
		detected, err := m.conflicts.DetectConflicts(ctx, event)
		if err != nil {
			m.logger.Warn("conflict detection failed", "request_id", req.RequestID, "error", err)
			continue
		}
		allConflicts = append(allConflicts, filterBatchLocal(detected, batchNames)...)
	}

	skipEdges := make(map[string]bool)
	stubEntities := make(map[string]bool)
	if len(allConflicts) > 0 {
		plan := m.conflicts.CreateResolutionPlan(allConflicts)
		resolved := m.conflicts.ApplyAutomaticResolutions(ctx, allConflicts)
		result.ConflictsResolved = len(resolved)
		if plan.RequiresManualIntervention {
			m.logger.Warn("conflicts require manual intervention",
				"request_id", req.RequestID, "conflicts", plan.ConflictsCount)
		}
		for _, c := range allConflicts {
			switch c.Type {
			case kg.ConflictCircularRelationship:
				skipEdges[backend.EdgeKey(c.EntityID, "", c.EntityID)] = true
			case kg.ConflictDuplicateRelationship:
				skipEdges[backend.EdgeKey(c.Source, c.RelType, c.Target)] = true
			case kg.ConflictMissingSourceEntity, kg.ConflictMissingTargetEntity:
				stubEntities[c.EntityID] = true
			}
		}
	}

	// Reasoning: per-event rules, domain-specific hooks, and a
	// cross-event consistency pass. Output is advisory text.
	for _, event := range events {
		outcome := m.reasoning.Apply(event)
		result.ReasoningApplied = append(result.ReasoningApplied, outcome.AppliedRules...)
		for _, warning := range outcome.Warnings {
			m.logger.Debug("reasoning warning", "request_id", req.RequestID, "warning", warning)
		}
	}
	for _, rule := range m.rulesForDomain(req.Domain) {
		result.ReasoningApplied = append(result.ReasoningApplied, rule(req)...)
	}
	advanced := m.reasoning.ApplyAdvanced(events)
	result.ReasoningApplied = append(result.ReasoningApplied, advanced.OptimizationSuggestions...)

	// Apply phase: all writes for the request form one logical unit.
	// Any backend failure rolls back every write already applied.
	writesApplied := 0
	fail := func(err error) kg.UpdateResult {
		m.rollback(ctx, writesApplied)
		result.Success = false
		result.RollbackPerformed = true
		result.ErrorMessage = err.Error()
		return result
	}

	for _, entity := range req.Entities {
		id := entity.Name()
		if err := m.backend.AddEntity(ctx, id, entity); err != nil {
			return fail(fmt.Errorf("failed to create entity %s: %w", id, err))
		}
		writesApplied++
		result.NodesCreated++
	}

	for id := range stubEntities {
		if batchNames[id] {
			continue
		}
		if err := m.backend.AddEntity(ctx, id, map[string]any{"name": id, "auto_created": true}); err != nil {
			return fail(fmt.Errorf("failed to create stub entity %s: %w", id, err))
		}
		writesApplied++
		result.NodesCreated++
	}

	for _, rel := range req.Relationships {
		source, target, relType := rel.Source(), rel.Target(), rel.Type()
		if skipEdges[backend.EdgeKey(source, relType, target)] ||
			(source == target && skipEdges[backend.EdgeKey(source, "", target)]) {
			continue
		}
		if err := m.backend.AddRelationship(ctx, source, relType, target, rel); err != nil {
			return fail(fmt.Errorf("failed to create relationship %s-[%s]->%s: %w", source, relType, target, err))
		}
		writesApplied++
		result.EdgesCreated++
	}

	result.Success = true
	return result
}

// rollback undoes the n most recent backend writes, best effort.
func (m *Manager) rollback(ctx context.Context, n int) {
	for i := 0; i < n; i++ {
		if err := m.backend.Rollback(ctx); err != nil {
			m.logger.Error("rollback step failed", "step", i, "error", err)
		}
	}
}

func (m *Manager) rulesForDomain(domain string) []DomainRule {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rules := make([]DomainRule, len(m.domainRules[domain]))
	copy(rules, m.domainRules[domain])
	return rules
}

// validateRequest checks the escalation envelope itself. A failure here
// rejects the request before anything reaches the backend.
func validateRequest(req kg.UpdateRequest) []string {
	var errs []string
	if len(req.Entities) == 0 && len(req.Relationships) == 0 {
		errs = append(errs, "at least entities or relationships must be provided")
	}
	if req.Domain == "" {
		errs = append(errs, "no domain specified")
	}
	for i, entity := range req.Entities {
		if entity.Name() == "" {
			errs = append(errs, fmt.Sprintf("entity %d is missing a name", i))
		}
	}
	for i, rel := range req.Relationships {
		if rel.Source() == "" || rel.Target() == "" {
			errs = append(errs, fmt.Sprintf("relationship %d is missing source or target", i))
		}
	}
	return errs
}

// requestEvents expands the request into per-item knowledge events. The
// manager acts with its own role: the escalation already crossed the
// trust boundary. Entity names are present, guaranteed by validateRequest.
func requestEvents(req kg.UpdateRequest) []kg.KnowledgeEvent {
	events := make([]kg.KnowledgeEvent, 0, len(req.Entities)+len(req.Relationships))
	for _, entity := range req.Entities {
		id := entity.Name()
		events = append(events, kg.KnowledgeEvent{
			Action: kg.ActionCreateEntity,
			Data:   map[string]any{"id": id, "properties": map[string]any(entity)},
			Role:   kg.RoleKnowledgeManager,
		})
	}
	for _, rel := range req.Relationships {
		events = append(events, kg.KnowledgeEvent{
			Action: kg.ActionCreateRelationship,
			Data: map[string]any{
				"source": rel.Source(),
				"target": rel.Target(),
				"type":   rel.Type(),
			},
			Role: kg.RoleKnowledgeManager,
		})
	}
	return events
}

func requestEntityNames(req kg.UpdateRequest) map[string]bool {
	names := make(map[string]bool, len(req.Entities))
	for _, entity := range req.Entities {
		names[entity.Name()] = true
	}
	return names
}

// filterBatchLocal drops missing-entity conflicts whose entity arrives in
// the same request.
func filterBatchLocal(conflicts []kg.Conflict, batchNames map[string]bool) []kg.Conflict {
	filtered := conflicts[:0:0]
	for _, c := range conflicts {
		switch c.Type {
		case kg.ConflictMissingSourceEntity, kg.ConflictMissingTargetEntity:
			if batchNames[c.EntityID] {
				continue
			}
		}
		filtered = append(filtered, c)
	}
	return filtered
}
