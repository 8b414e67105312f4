// Package flow implements the chat orchestrator state machine.
package flow

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/openai/openai-go"

	"github.com/supportflow/supportflow/internal/genai"
	"github.com/supportflow/supportflow/internal/knowledge"
	"github.com/supportflow/supportflow/internal/models"
)

// Defaults for orchestrator tuning knobs.
const (
	// DefaultHistoryLimit bounds the rolling chat history used by the
	// free-form chat path.
	DefaultHistoryLimit = 10
	// DefaultMaxSteps bounds node evaluation per inbound message, guarding
	// against a misconfigured graph chaining actions without user input.
	DefaultMaxSteps = 16
	// DefaultRetrievalLimit is the number of knowledge documents injected
	// into the free-form chat context.
	DefaultRetrievalLimit = 5
)

// Context-injection roles for retrieved knowledge documents.
const (
	ContextRoleSystem    = models.RoleSystem
	ContextRoleAssistant = models.RoleAssistant
)

// ContextRetriever supplies knowledge documents relevant to a query for the
// free-form chat path.
type ContextRetriever interface {
	Search(ctx context.Context, query string, limit int) ([]knowledge.SearchResult, error)
}

// Orchestrator routes each inbound message to an active flow, a newly
// triggered flow, or free-form AI chat, advancing flow nodes and applying the
// retry/escalation policy. Message handling is serialized per user id;
// messages for different users proceed in parallel.
type Orchestrator struct {
	def            *models.FlowDefinition
	actions        *Registry
	sessions       SessionStore
	llm            genai.ClientInterface
	retriever      ContextRetriever
	systemPrompt   string
	contextRole    string
	historyLimit   int
	maxSteps       int
	retrievalLimit int

	locks [lockStripes]sync.Mutex
}

// lockStripes sizes the fixed lock table serializing per-user handling. Users
// hashing to the same stripe share a lock, so memory stays constant no matter
// how many users come and go.
const lockStripes = 64

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRetriever attaches a knowledge retriever to the free-form chat path.
func WithRetriever(r ContextRetriever) Option {
	return func(o *Orchestrator) { o.retriever = r }
}

// WithSystemPrompt sets the system prompt for the free-form chat path.
func WithSystemPrompt(prompt string) Option {
	return func(o *Orchestrator) { o.systemPrompt = prompt }
}

// WithContextRole sets the role used when injecting retrieved knowledge into
// the chat context. Accepts ContextRoleSystem or ContextRoleAssistant.
func WithContextRole(role string) Option {
	return func(o *Orchestrator) { o.contextRole = role }
}

// WithHistoryLimit overrides the rolling chat history bound.
func WithHistoryLimit(n int) Option {
	return func(o *Orchestrator) { o.historyLimit = n }
}

// WithMaxSteps overrides the per-message node evaluation bound.
func WithMaxSteps(n int) Option {
	return func(o *Orchestrator) { o.maxSteps = n }
}

// WithRetrievalLimit overrides the number of retrieved context documents.
func WithRetrievalLimit(n int) Option {
	return func(o *Orchestrator) { o.retrievalLimit = n }
}

// NewOrchestrator creates an orchestrator over the given flow definition,
// action registry, session store, and LLM client. The definition is validated
// against the registry here so configuration errors surface before any
// message is handled.
func NewOrchestrator(def *models.FlowDefinition, actions *Registry, sessions SessionStore, llm genai.ClientInterface, opts ...Option) (*Orchestrator, error) {
	if def == nil {
		return nil, fmt.Errorf("flow definition is required")
	}
	if actions == nil {
		return nil, fmt.Errorf("action registry is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if llm == nil {
		return nil, fmt.Errorf("llm client is required")
	}
	if err := def.Validate(actions.Has); err != nil {
		return nil, fmt.Errorf("invalid flow definition: %w", err)
	}

	o := &Orchestrator{
		def:            def,
		actions:        actions,
		sessions:       sessions,
		llm:            llm,
		contextRole:    ContextRoleSystem,
		historyLimit:   DefaultHistoryLimit,
		maxSteps:       DefaultMaxSteps,
		retrievalLimit: DefaultRetrievalLimit,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.contextRole != ContextRoleSystem && o.contextRole != ContextRoleAssistant {
		return nil, fmt.Errorf("invalid context role %q", o.contextRole)
	}
	if o.historyLimit < 0 || o.maxSteps <= 0 {
		return nil, fmt.Errorf("invalid orchestrator limits: history %d, steps %d", o.historyLimit, o.maxSteps)
	}
	slog.Debug("Orchestrator created", "nodes", def.Len(), "actions", len(actions.Names()), "contextRole", o.contextRole)
	return o, nil
}

// HandleMessage processes one inbound message for a user and returns the
// reply text, mutating and persisting session state as a side effect. It is
// the sole entry point of the orchestrator.
func (o *Orchestrator) HandleMessage(ctx context.Context, userID, text string) (string, error) {
	if userID == "" {
		return "", models.ErrEmptyUserID
	}

	lock := o.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	session, err := o.sessions.GetSession(userID)
	if err != nil {
		slog.Error("Orchestrator HandleMessage session load failed", "error", err, "userID", userID)
		return "", fmt.Errorf("failed to load session for %s: %w", userID, err)
	}
	if session == nil {
		session = models.NewSession(userID)
		slog.Debug("Orchestrator HandleMessage created session", "userID", userID)
	}

	var reply string
	switch {
	case session.InFlow():
		slog.Debug("Orchestrator routing to active flow", "userID", userID, "flow", session.ActiveFlow, "node", session.CurrentNode)
		reply, err = o.advanceFlow(ctx, session, text)
	default:
		if triggerID, ok := o.detectIntent(text); ok {
			slog.Info("Orchestrator trigger matched, starting flow", "userID", userID, "trigger", triggerID)
			o.startFlow(session, triggerID)
			reply, err = o.evaluate(ctx, session)
		} else {
			slog.Debug("Orchestrator routing to free-form chat", "userID", userID)
			reply, err = o.chat(ctx, session, text)
		}
	}
	if err != nil {
		return "", err
	}

	session.UpdatedAt = time.Now()
	if err := o.sessions.SaveSession(*session); err != nil {
		slog.Error("Orchestrator HandleMessage session save failed", "error", err, "userID", userID)
		return "", fmt.Errorf("failed to save session for %s: %w", userID, err)
	}
	return reply, nil
}

// userLock returns the stripe mutex serializing message handling for a user.
func (o *Orchestrator) userLock(userID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return &o.locks[h.Sum32()%lockStripes]
}

// detectIntent scans trigger nodes in definition order and returns the first
// whose phrases match the inbound text. Matching is case-insensitive
// substring containment; first match wins.
func (o *Orchestrator) detectIntent(text string) (string, bool) {
	lowered := strings.ToLower(text)
	for _, id := range o.def.NodeIDs() {
		node, _ := o.def.Node(id)
		if node.Type != models.NodeTypeTrigger {
			continue
		}
		for _, phrase := range node.Trigger.MatchPhrases {
			if phrase != "" && strings.Contains(lowered, strings.ToLower(phrase)) {
				return id, true
			}
		}
	}
	return "", false
}

// startFlow initializes a new flow instance on the session: variables and
// retry counters start fresh, the cursor moves to the trigger's next node.
func (o *Orchestrator) startFlow(session *models.Session, triggerID string) {
	node, _ := o.def.Node(triggerID)
	session.ActiveFlow = triggerID
	session.CurrentNode = node.Trigger.Next
	session.Variables = make(map[string]string)
	session.Retries = make(map[string]int)
}

// advanceFlow consumes an inbound message for a session with an active flow:
// the waiting prompt captures its expected variable, the cursor advances, and
// evaluation continues until the flow produces a reply.
func (o *Orchestrator) advanceFlow(ctx context.Context, session *models.Session, text string) (string, error) {
	node, ok := o.def.Node(session.CurrentNode)
	if !ok {
		return "", fmt.Errorf("flow %q cursor references unknown node %q", session.ActiveFlow, session.CurrentNode)
	}

	switch node.Type {
	case models.NodeTypePrompt:
		if node.Prompt.Expects != "" && text != "" {
			session.Variables[node.Prompt.Expects] = text
			slog.Debug("Orchestrator captured variable", "userID", session.UserID, "variable", node.Prompt.Expects)
		}
		session.CurrentNode = node.Prompt.Next
	case models.NodeTypeAction, models.NodeTypeExit:
		// Evaluation handles these in place.
	default:
		return "", fmt.Errorf("flow %q resting on unexpected node %q of type %s", session.ActiveFlow, node.ID, node.Type)
	}
	return o.evaluate(ctx, session)
}

// evaluate runs nodes at the session cursor without consuming new input until
// a prompt is rendered or the flow exits. The loop is bounded by maxSteps so
// a graph chaining actions back into each other cannot spin forever.
func (o *Orchestrator) evaluate(ctx context.Context, session *models.Session) (string, error) {
	for step := 0; step < o.maxSteps; step++ {
		node, ok := o.def.Node(session.CurrentNode)
		if !ok {
			return "", fmt.Errorf("flow %q references unknown node %q", session.ActiveFlow, session.CurrentNode)
		}

		switch node.Type {
		case models.NodeTypePrompt:
			return renderTemplate(node.Prompt.Text, session.Variables), nil

		case models.NodeTypeExit:
			return o.exitFlow(session, node.Exit.Reason), nil

		case models.NodeTypeAction:
			reply, done, err := o.runAction(ctx, session, node)
			if err != nil {
				return "", err
			}
			if done {
				return reply, nil
			}

		default:
			return "", fmt.Errorf("flow %q reached %s node %q during evaluation", session.ActiveFlow, node.Type, node.ID)
		}
	}
	return "", fmt.Errorf("flow %q exceeded %d evaluation steps without producing a reply", session.ActiveFlow, o.maxSteps)
}

// runAction executes an action node and applies the branch policy. It returns
// done=true with the reply when the flow terminated, or done=false when the
// cursor advanced and evaluation should continue.
func (o *Orchestrator) runAction(ctx context.Context, session *models.Session, node *models.FlowNode) (string, bool, error) {
	action, ok := o.actions.Get(node.Action.Function)
	if !ok {
		return "", false, fmt.Errorf("action %q is not registered", node.Action.Function)
	}

	slog.Debug("Orchestrator executing action", "userID", session.UserID, "node", node.ID, "function", node.Action.Function)
	result, err := action.Execute(ctx, session.Variables)
	if err != nil {
		slog.Error("Orchestrator action failed", "error", err, "userID", session.UserID, "function", node.Action.Function)
		return "", false, fmt.Errorf("action %q: %w", node.Action.Function, err)
	}

	switch {
	case result.Escalate:
		// Escalation bypasses the retry budget entirely.
		human, _ := o.def.Node(node.Action.Next.Human)
		slog.Info("Orchestrator action escalated to human", "userID", session.UserID, "function", node.Action.Function)
		return o.exitFlow(session, human.Exit.Reason), true, nil

	case result.Success:
		session.CurrentNode = node.Action.Next.Success
		return "", false, nil

	default:
		session.Retries[node.Action.Function]++
		count := session.Retries[node.Action.Function]
		if count <= node.Action.Retries {
			slog.Debug("Orchestrator action failed, retrying", "userID", session.UserID, "function", node.Action.Function, "attempt", count, "budget", node.Action.Retries)
			session.CurrentNode = node.Action.Next.Error
			return "", false, nil
		}
		errExit, _ := o.def.Node(models.ErrorExitNodeID)
		slog.Info("Orchestrator action retry budget exhausted", "userID", session.UserID, "function", node.Action.Function, "failures", count)
		return o.exitFlow(session, errExit.Exit.Reason), true, nil
	}
}

// exitFlow tears down the flow instance and returns the reason as the reply.
// Chat history survives; everything else flow-related is cleared. This is the
// single terminal transition: a new trigger match is required to start
// another flow.
func (o *Orchestrator) exitFlow(session *models.Session, reason string) string {
	slog.Info("Orchestrator flow exited", "userID", session.UserID, "flow", session.ActiveFlow, "reason", reason)
	session.ClearFlowState()
	return reason
}

// chat handles the free-form fallback path: the message joins the rolling
// history, retrieved knowledge is injected into the context, and the LLM
// produces the reply. LLM failures propagate; the transport layer owns the
// user-visible fallback.
func (o *Orchestrator) chat(ctx context.Context, session *models.Session, text string) (string, error) {
	session.History = append(session.History, models.ConversationMessage{
		Role:      models.RoleUser,
		Content:   text,
		Timestamp: time.Now(),
	})
	session.History = truncateHistory(session.History, o.historyLimit)

	messages := o.buildChatMessages(ctx, session, text)

	reply, err := o.llm.GenerateWithMessages(ctx, messages)
	if err != nil {
		slog.Error("Orchestrator chat completion failed", "error", err, "userID", session.UserID)
		return "", fmt.Errorf("chat completion for %s: %w", session.UserID, err)
	}

	session.History = append(session.History, models.ConversationMessage{
		Role:      models.RoleAssistant,
		Content:   reply,
		Timestamp: time.Now(),
	})
	session.History = truncateHistory(session.History, o.historyLimit)
	return reply, nil
}

// buildChatMessages assembles the LLM context: system prompt, retrieved
// knowledge (role configurable), then the bounded session history.
func (o *Orchestrator) buildChatMessages(ctx context.Context, session *models.Session, query string) []openai.ChatCompletionMessageParamUnion {
	var messages []openai.ChatCompletionMessageParamUnion
	if o.systemPrompt != "" {
		messages = append(messages, openai.SystemMessage(o.systemPrompt))
	}

	if o.retriever != nil {
		results, err := o.retriever.Search(ctx, query, o.retrievalLimit)
		if err != nil {
			// Retrieval is best-effort; chat proceeds without context.
			slog.Warn("Orchestrator knowledge retrieval failed", "error", err, "userID", session.UserID)
		} else if len(results) > 0 {
			contextBlock := formatContext(results)
			if o.contextRole == ContextRoleAssistant {
				messages = append(messages, openai.AssistantMessage(contextBlock))
			} else {
				messages = append(messages, openai.SystemMessage(contextBlock))
			}
			slog.Debug("Orchestrator injected retrieved context", "userID", session.UserID, "documents", len(results), "role", o.contextRole)
		}
	}

	for _, msg := range session.History {
		switch msg.Role {
		case models.RoleUser:
			messages = append(messages, openai.UserMessage(msg.Content))
		case models.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		}
	}
	return messages
}

// formatContext renders retrieved documents as a single context block.
func formatContext(results []knowledge.SearchResult) string {
	var sb strings.Builder
	sb.WriteString("Context information:\n")
	for _, r := range results {
		if r.Title != "" {
			sb.WriteString(r.Title)
			sb.WriteString(": ")
		}
		sb.WriteString(r.Content)
		sb.WriteString("\n\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// truncateHistory keeps the most recent limit entries.
func truncateHistory(history []models.ConversationMessage, limit int) []models.ConversationMessage {
	if limit <= 0 || len(history) <= limit {
		return history
	}
	return history[len(history)-limit:]
}
