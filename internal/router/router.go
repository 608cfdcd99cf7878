// Package router watches the message store for new inbound messages and
// drives agent conversations through the group queue. It owns the hot
// state caches (cursors, sessions, registered groups); every cache write
// goes to the store first so a crash never loses more than in-flight work.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	re2 "github.com/wasilibs/go-re2"

	"github.com/aatumaykin/nanoclaw/internal/container"
	"github.com/aatumaykin/nanoclaw/internal/logger"
	"github.com/aatumaykin/nanoclaw/internal/queue"
	"github.com/aatumaykin/nanoclaw/internal/snapshot"
	"github.com/aatumaykin/nanoclaw/internal/store"
)

// AgentRunner executes one agent invocation in a container.
type AgentRunner interface {
	Run(ctx context.Context, group *store.RegisteredGroup, input container.AgentInput, onStart container.StartedFn, timeout time.Duration) (*container.AgentOutput, error)
}

// Deps are the collaborators the router drives.
type Deps struct {
	Store       *store.Store
	Queue       *queue.GroupQueue
	Snapshots   *snapshot.Writer
	Runner      AgentRunner
	SendMessage func(ctx context.Context, jid, text string) error
	// SetTyping shows a typing indicator while the agent works. Best
	// effort, may be nil.
	SetTyping func(ctx context.Context, jid string, typing bool)
}

// Config tunes the router.
type Config struct {
	AssistantName  string
	MainFolder     string
	TriggerPattern string
	GroupsDir      string
	PollInterval   time.Duration
}

// Router is the message poll loop plus the state caches behind it.
type Router struct {
	deps    Deps
	cfg     Config
	logger  *logger.Logger
	trigger *re2.Regexp

	mu            sync.Mutex
	lastTimestamp string
	agentCursors  map[string]string
	sessions      map[string]string
	groups        map[string]*store.RegisteredGroup
	groupTriggers map[string]*re2.Regexp

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRouter creates a Router. Call LoadState before Start.
func NewRouter(deps Deps, cfg Config, log *logger.Logger) (*Router, error) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	trigger, err := re2.Compile(cfg.TriggerPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid trigger pattern %q: %w", cfg.TriggerPattern, err)
	}
	return &Router{
		deps:          deps,
		cfg:           cfg,
		logger:        log,
		trigger:       trigger,
		agentCursors:  make(map[string]string),
		sessions:      make(map[string]string),
		groups:        make(map[string]*store.RegisteredGroup),
		groupTriggers: make(map[string]*re2.Regexp),
	}, nil
}

// LoadState populates the caches from the store.
func (r *Router) LoadState() error {
	lastTimestamp, err := r.deps.Store.RouterState("last_timestamp")
	if err != nil {
		return fmt.Errorf("load last_timestamp: %w", err)
	}

	agentCursors := make(map[string]string)
	if raw, err := r.deps.Store.RouterState("last_agent_timestamp"); err != nil {
		return fmt.Errorf("load last_agent_timestamp: %w", err)
	} else if raw != "" {
		if err := json.Unmarshal([]byte(raw), &agentCursors); err != nil {
			r.logger.Warn("corrupted last_agent_timestamp state, resetting")
			agentCursors = make(map[string]string)
		}
	}

	sessions, err := r.deps.Store.AllSessions()
	if err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}
	groups, err := r.deps.Store.RegisteredGroups()
	if err != nil {
		return fmt.Errorf("load registered groups: %w", err)
	}

	r.mu.Lock()
	r.lastTimestamp = lastTimestamp
	r.agentCursors = agentCursors
	r.sessions = sessions
	r.groups = groups
	r.mu.Unlock()

	r.logger.Info("state loaded", logger.Field{Key: "group_count", Value: len(groups)})
	return nil
}

// saveState persists both cursors. Callers hold no lock.
func (r *Router) saveState() {
	r.mu.Lock()
	lastTimestamp := r.lastTimestamp
	raw, err := json.Marshal(r.agentCursors)
	r.mu.Unlock()
	if err != nil {
		r.logger.Error("failed to marshal agent cursors", err)
		return
	}
	if err := r.deps.Store.SetRouterState("last_timestamp", lastTimestamp); err != nil {
		r.logger.Error("failed to persist last_timestamp", err)
	}
	if err := r.deps.Store.SetRouterState("last_agent_timestamp", string(raw)); err != nil {
		r.logger.Error("failed to persist last_agent_timestamp", err)
	}
}

// Groups returns a snapshot of the registered groups keyed by chat JID.
func (r *Router) Groups() map[string]*store.RegisteredGroup {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]*store.RegisteredGroup, len(r.groups))
	for jid, g := range r.groups {
		out[jid] = g
	}
	return out
}

// Group returns one registered group by chat JID, or nil.
func (r *Router) Group(jid string) *store.RegisteredGroup {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.groups[jid]
}

// Session returns a group's live session id, or "".
func (r *Router) Session(groupFolder string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[groupFolder]
}

// RegisterGroup persists a group, updates the cache, and creates its
// storage area.
func (r *Router) RegisterGroup(g *store.RegisteredGroup) error {
	if err := r.deps.Store.RegisterGroup(g); err != nil {
		return err
	}
	r.mu.Lock()
	r.groups[g.JID] = g
	delete(r.groupTriggers, g.JID)
	r.mu.Unlock()

	if err := os.MkdirAll(filepath.Join(r.cfg.GroupsDir, g.Folder, "logs"), 0755); err != nil {
		return fmt.Errorf("create group folder: %w", err)
	}
	r.logger.Info("group registered",
		logger.Field{Key: "jid", Value: g.JID},
		logger.Field{Key: "name", Value: g.Name},
		logger.Field{Key: "folder", Value: g.Folder})
	return nil
}

// Start launches the message poll loop. It returns immediately.
func (r *Router) Start() {
	if r.cancel != nil {
		r.logger.Debug("message loop already running, skipping duplicate start")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	r.logger.Info("message loop started",
		logger.Field{Key: "trigger", Value: r.cfg.TriggerPattern})

	go r.loop(ctx)
}

// Stop halts the poll loop. Jobs already queued keep running.
func (r *Router) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
	r.cancel = nil
}

func (r *Router) loop(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		r.tick()
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// tick advances the global cursor past every new message and enqueues one
// check per affected group. The cursor moves BEFORE the work runs; the
// per-group agent cursor is what guarantees no message is lost if a run
// fails, and RecoverPending covers a crash in between.
func (r *Router) tick() {
	r.mu.Lock()
	jids := make([]string, 0, len(r.groups))
	for jid := range r.groups {
		jids = append(jids, jid)
	}
	cursor := r.lastTimestamp
	r.mu.Unlock()

	messages, newCursor, err := r.deps.Store.NewMessagesSince(jids, cursor, r.botPrefix())
	if err != nil {
		r.logger.Error("failed to poll for new messages", err)
		return
	}
	if newCursor == cursor && len(messages) == 0 {
		return
	}

	r.mu.Lock()
	r.lastTimestamp = newCursor
	r.mu.Unlock()
	r.saveState()

	if len(messages) == 0 {
		return
	}
	r.logger.Info("new messages", logger.Field{Key: "count", Value: len(messages)})

	affected := make(map[string]struct{})
	for _, m := range messages {
		affected[m.ChatJID] = struct{}{}
	}
	for jid := range affected {
		r.enqueueCheck(jid)
	}
}

func (r *Router) enqueueCheck(chatJID string) {
	r.deps.Queue.EnqueueMessageCheck(chatJID, func(ctx context.Context) error {
		return r.ProcessMessages(ctx, chatJID)
	})
}

// RecoverPending re-enqueues groups whose agent cursor lags the stored
// messages. Covers a crash between cursor advance and processing.
func (r *Router) RecoverPending() {
	for jid, group := range r.Groups() {
		pending, err := r.deps.Store.MessagesSince(jid, r.agentCursor(jid), r.botPrefix())
		if err != nil {
			r.logger.Error("recovery scan failed", err,
				logger.Field{Key: "chat_jid", Value: jid})
			continue
		}
		if len(pending) > 0 {
			r.logger.Info("recovery: found unprocessed messages",
				logger.Field{Key: "group", Value: group.Name},
				logger.Field{Key: "pending_count", Value: len(pending)})
			r.enqueueCheck(jid)
		}
	}
}

func (r *Router) agentCursor(chatJID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.agentCursors[chatJID]
}

// advanceAgentCursor persists the new cursor before touching the cache.
// On a failed write the cache keeps the old value, so the messages stay
// pending and are replayed next turn.
func (r *Router) advanceAgentCursor(chatJID, ts string) error {
	r.mu.Lock()
	next := make(map[string]string, len(r.agentCursors)+1)
	for jid, cur := range r.agentCursors {
		next[jid] = cur
	}
	next[chatJID] = ts
	r.mu.Unlock()

	raw, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("marshal agent cursors: %w", err)
	}
	if err := r.deps.Store.SetRouterState("last_agent_timestamp", string(raw)); err != nil {
		return fmt.Errorf("persist last_agent_timestamp: %w", err)
	}

	r.mu.Lock()
	r.agentCursors[chatJID] = ts
	r.mu.Unlock()
	return nil
}

func (r *Router) botPrefix() string {
	return r.cfg.AssistantName + ":"
}

// ProcessMessages runs one agent turn over everything the group's agent
// has not seen yet. Returning an error makes the queue retry with
// backoff; the agent cursor only advances on success, so a failed run is
// replayed in full.
func (r *Router) ProcessMessages(ctx context.Context, chatJID string) error {
	group := r.Group(chatJID)
	if group == nil {
		return nil
	}
	isMain := group.Folder == r.cfg.MainFolder

	missed, err := r.deps.Store.MessagesSince(chatJID, r.agentCursor(chatJID), r.botPrefix())
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}
	if len(missed) == 0 {
		return nil
	}

	if !isMain && group.RequiresTrigger && !r.hasTrigger(group, missed) {
		return nil
	}

	prompt := formatPrompt(missed)
	r.logger.Info("processing messages",
		logger.Field{Key: "group", Value: group.Name},
		logger.Field{Key: "message_count", Value: len(missed)})

	if r.deps.SetTyping != nil {
		r.deps.SetTyping(ctx, chatJID, true)
		defer r.deps.SetTyping(ctx, chatJID, false)
	}

	result, err := r.runAgent(ctx, group, chatJID, prompt)
	if err != nil {
		return err
	}

	if err := r.advanceAgentCursor(chatJID, missed[len(missed)-1].Timestamp); err != nil {
		r.logger.Error("failed to persist agent cursor", err,
			logger.Field{Key: "chat_jid", Value: chatJID})
	}

	if result.OutputType == "message" && result.UserMessage != "" {
		if err := r.deps.SendMessage(ctx, chatJID, r.cfg.AssistantName+": "+result.UserMessage); err != nil {
			r.logger.Error("failed to send agent reply", err,
				logger.Field{Key: "chat_jid", Value: chatJID})
		}
	}
	if result.InternalLog != "" {
		r.logger.Info("agent: "+result.InternalLog,
			logger.Field{Key: "group", Value: group.Name},
			logger.Field{Key: "output_type", Value: result.OutputType})
	}
	return nil
}

// runAgent refreshes every snapshot the agent reads, then invokes the
// container with the group's live session.
func (r *Router) runAgent(ctx context.Context, group *store.RegisteredGroup, chatJID, prompt string) (*container.AgentResult, error) {
	r.deps.Snapshots.WriteAll(group.Folder, r.Groups())

	output, err := r.deps.Runner.Run(ctx, group, container.AgentInput{
		Prompt:      prompt,
		SessionID:   r.Session(group.Folder),
		GroupFolder: group.Folder,
		ChatJID:     chatJID,
		IsMain:      group.Folder == r.cfg.MainFolder,
	}, func(handle *container.Handle, containerName string) {
		r.deps.Queue.RegisterProcess(chatJID, handle, containerName)
	}, 0)
	if err != nil {
		return nil, fmt.Errorf("agent run: %w", err)
	}

	if output.NewSessionID != "" {
		if err := r.deps.Store.SetSession(group.Folder, output.NewSessionID); err != nil {
			r.logger.Error("failed to persist session", err,
				logger.Field{Key: "group", Value: group.Folder})
		}
		r.mu.Lock()
		r.sessions[group.Folder] = output.NewSessionID
		r.mu.Unlock()
	}

	if output.Status == "error" {
		msg := output.Error
		if msg == "" {
			msg = "unknown agent error"
		}
		return nil, errors.New(msg)
	}
	if output.Result == nil {
		return &container.AgentResult{OutputType: "log"}, nil
	}
	return output.Result, nil
}

// hasTrigger reports whether any missed message matches the group's
// trigger pattern (falling back to the global one).
func (r *Router) hasTrigger(group *store.RegisteredGroup, msgs []*store.Message) bool {
	trigger := r.trigger
	if group.TriggerPattern != "" {
		trigger = r.compiledGroupTrigger(group)
	}
	for _, m := range msgs {
		if trigger.MatchString(strings.TrimSpace(m.Content)) {
			return true
		}
	}
	return false
}

func (r *Router) compiledGroupTrigger(group *store.RegisteredGroup) *re2.Regexp {
	r.mu.Lock()
	defer r.mu.Unlock()
	if compiled, ok := r.groupTriggers[group.JID]; ok {
		return compiled
	}
	compiled, err := re2.Compile(group.TriggerPattern)
	if err != nil {
		r.logger.Warn("invalid group trigger pattern, using default",
			logger.Field{Key: "jid", Value: group.JID},
			logger.Field{Key: "pattern", Value: group.TriggerPattern})
		compiled = r.trigger
	}
	r.groupTriggers[group.JID] = compiled
	return compiled
}
