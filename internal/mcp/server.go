package mcp

import (
	"context"
	"errors"
	"fmt"

	mcp "github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/server"

	"github.com/felixgeelhaar/temario/internal/adaptive"
	"github.com/felixgeelhaar/temario/internal/domain"
	"github.com/felixgeelhaar/temario/internal/session"
)

// Version is reported to MCP clients
var Version = "0.1.0"

// Server wraps the MCP server with Temario functionality
type Server struct {
	mcpServer *server.Server
	sessions  session.SessionService
}

// Config contains configuration for the MCP server
type Config struct {
	Sessions session.SessionService
}

// NewServer creates a new MCP server for Temario
func NewServer(cfg Config) *Server {
	s := &Server{
		sessions: cfg.Sessions,
	}

	s.mcpServer = server.New(server.Info{
		Name:    "temario",
		Version: Version,
	}, server.WithInstructions(`
Temario builds practice sessions from a bank of exam questions about laws,
articles and syllabus topics.

Available tools:
- select_questions: Build an ordered question plan for a topic or a set of laws
- advance_session: Report the answer to the current question of an adaptive session
- get_session: Show the state of an adaptive session
- abandon_session: End an adaptive session

Selection modes:
- prioritized: never-seen questions first, then the rest (default)
- failed_review: only questions the user has failed, in the requested order
- adaptive: a small active window whose difficulty follows the learner's accuracy
`))

	s.registerTools()

	return s
}

// registerTools registers all Temario MCP tools
func (s *Server) registerTools() {
	s.mcpServer.Tool("select_questions").
		Description("Select and order questions for a practice session").
		Handler(s.handleSelect)

	s.mcpServer.Tool("advance_session").
		Description("Record the answer to the current question and get the next one").
		Handler(s.handleAdvance)

	s.mcpServer.Tool("get_session").
		Description("Show the adaptive state of a session").
		Handler(s.handleGet)

	s.mcpServer.Tool("abandon_session").
		Description("End an adaptive session").
		Handler(s.handleAbandon)
}

// Tool input/output types

type SelectInput struct {
	Count                 int                 `json:"count" jsonschema:"description=Number of questions wanted"`
	UserID                string              `json:"user_id,omitempty" jsonschema:"description=Learner id; enables history-aware ordering"`
	Topic                 int                 `json:"topic,omitempty" jsonschema:"description=Syllabus topic number"`
	PositionType          string              `json:"position_type,omitempty" jsonschema:"description=Position type the topic belongs to (e.g. auxiliar)"`
	Laws                  []string            `json:"laws,omitempty" jsonschema:"description=Law short names when no topic is given"`
	ArticlesByLaw         map[string][]string `json:"articles_by_law,omitempty" jsonschema:"description=Article numbers per law to narrow the scope"`
	Section               string              `json:"section,omitempty" jsonschema:"description=Section slug; needs exactly one law"`
	Difficulty            string              `json:"difficulty,omitempty" jsonschema:"description=easy, medium, hard, extreme or random (default)"`
	OnlyOfficial          bool                `json:"only_official,omitempty" jsonschema:"description=Only questions from official exams"`
	OnlyEssentialArticles bool                `json:"only_essential_articles,omitempty" jsonschema:"description=Only questions on essential articles"`
	OnlyFailed            bool                `json:"only_failed,omitempty" jsonschema:"description=Only questions the user has failed"`
	FailedOrder           string              `json:"failed_order,omitempty" jsonschema:"description=most_failed, most_recent_failure, oldest_failure or shuffled"`
	ExcludeRecentDays     *int                `json:"exclude_recent_days,omitempty" jsonschema:"description=Skip questions answered in the last N days"`
	Adaptive              bool                `json:"adaptive,omitempty" jsonschema:"description=Start an adaptive session"`
	Seed                  int64               `json:"seed,omitempty" jsonschema:"description=Shuffle seed for a reproducible plan"`
}

type SelectOutput struct {
	SessionID    string   `json:"session_id"`
	Mode         string   `json:"mode"`
	Requested    int      `json:"requested"`
	Available    int      `json:"available"`
	Delivered    int      `json:"delivered"`
	Questions    []string `json:"questions"`
	ActiveWindow []string `json:"active_window,omitempty"`
	Pool         []string `json:"pool,omitempty"`
	Message      string   `json:"message"`
}

type AdvanceInput struct {
	SessionID  string `json:"session_id" jsonschema:"description=Session ID from select_questions"`
	QuestionID string `json:"question_id" jsonschema:"description=The question that was answered"`
	Correct    bool   `json:"correct" jsonschema:"description=Whether the answer was correct"`
	Sequence   int    `json:"sequence,omitempty" jsonschema:"description=Answer number from get_session; rejects replays"`
}

type SessionInput struct {
	SessionID string `json:"session_id" jsonschema:"description=Session ID from select_questions"`
}

type SessionOutput struct {
	SessionID    string   `json:"session_id"`
	Status       string   `json:"status"`
	Phase        string   `json:"phase"`
	Bias         string   `json:"bias"`
	Target       string   `json:"target_difficulty,omitempty"`
	Accuracy     float64  `json:"accuracy"`
	Next         string   `json:"next_question,omitempty"`
	ActiveWindow []string `json:"active_window"`
	Answered     int      `json:"answered"`
	Remaining    int      `json:"remaining"`
	Sequence     int      `json:"sequence"`
	Version      int      `json:"version"`
}

// Tool handlers

func (s *Server) handleSelect(ctx context.Context, input SelectInput) (SelectOutput, error) {
	difficulty, err := domain.ParseDifficultyMode(input.Difficulty)
	if err != nil {
		return SelectOutput{}, toolError("select questions", err)
	}

	plan, err := s.sessions.Select(ctx, domain.SelectionRequest{
		Count:                 input.Count,
		UserID:                input.UserID,
		Topic:                 input.Topic,
		PositionType:          input.PositionType,
		Laws:                  input.Laws,
		ArticlesByLaw:         input.ArticlesByLaw,
		Section:               input.Section,
		Difficulty:            difficulty,
		OnlyOfficial:          input.OnlyOfficial,
		OnlyEssentialArticles: input.OnlyEssentialArticles,
		OnlyFailed:            input.OnlyFailed,
		FailedOrder:           domain.FailedOrder(input.FailedOrder),
		ExcludeRecentDays:     input.ExcludeRecentDays,
		Adaptive:              input.Adaptive,
		Seed:                  input.Seed,
	})
	if err != nil {
		return SelectOutput{}, toolError("select questions", err)
	}

	out := SelectOutput{
		SessionID:    plan.SessionID,
		Mode:         string(plan.Mode),
		Requested:    plan.Requested,
		Available:    plan.Available,
		Delivered:    plan.Delivered,
		Questions:    plan.Questions,
		ActiveWindow: plan.ActiveWindow,
		Pool:         plan.Pool,
	}
	switch {
	case plan.Empty():
		out.Message = "No questions available with this configuration."
	case plan.Delivered < plan.Requested:
		out.Message = fmt.Sprintf("Only %d of %d requested questions are available.", plan.Delivered, plan.Requested)
	default:
		out.Message = fmt.Sprintf("Selected %d questions (%s).", plan.Delivered, plan.Mode)
	}
	return out, nil
}

func (s *Server) handleAdvance(ctx context.Context, input AdvanceInput) (SessionOutput, error) {
	if input.QuestionID == "" {
		return SessionOutput{}, toolError("advance session", fmt.Errorf("%w: question_id is required", domain.ErrInvalidRequest))
	}

	sess, err := s.sessions.Advance(ctx, input.SessionID, adaptive.Result{
		QuestionID: input.QuestionID,
		Correct:    input.Correct,
		Sequence:   input.Sequence,
	})
	if err != nil {
		return SessionOutput{}, toolError("advance session", err)
	}
	return sessionOutput(sess), nil
}

func (s *Server) handleGet(ctx context.Context, input SessionInput) (SessionOutput, error) {
	sess, err := s.sessions.Get(ctx, input.SessionID)
	if err != nil {
		return SessionOutput{}, toolError("get session", err)
	}
	return sessionOutput(sess), nil
}

func (s *Server) handleAbandon(ctx context.Context, input SessionInput) (SessionOutput, error) {
	sess, err := s.sessions.Abandon(ctx, input.SessionID)
	if err != nil {
		return SessionOutput{}, toolError("abandon session", err)
	}
	return sessionOutput(sess), nil
}

func sessionOutput(sess *session.Session) SessionOutput {
	v := sess.View()
	return SessionOutput{
		SessionID:    v.SessionID,
		Status:       string(v.Status),
		Phase:        string(v.Phase),
		Bias:         string(v.Bias),
		Target:       string(v.Target),
		Accuracy:     v.Accuracy,
		Next:         v.Next,
		ActiveWindow: v.ActiveWindow,
		Answered:     v.Answered,
		Remaining:    v.Remaining,
		Sequence:     v.Sequence,
		Version:      v.Version,
	}
}

// toolError gives the client a short reason it can act on
func toolError(op string, err error) error {
	switch {
	case errors.Is(err, domain.ErrSessionExpired):
		return fmt.Errorf("%s: session expired, start a new one: %w", op, err)
	case errors.Is(err, domain.ErrSessionNotFound):
		return fmt.Errorf("%s: unknown session: %w", op, err)
	case errors.Is(err, domain.ErrStateConflict):
		return fmt.Errorf("%s: session changed, call get_session and retry: %w", op, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// ServeStdio starts the MCP server on stdio
func (s *Server) ServeStdio(ctx context.Context) error {
	return mcp.ServeStdio(ctx, s.mcpServer)
}

// ServeHTTP starts the MCP server on HTTP
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	return mcp.ServeHTTP(ctx, s.mcpServer, addr)
}

// GetMCPServer returns the underlying MCP server
func (s *Server) GetMCPServer() *server.Server {
	return s.mcpServer
}
