package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"strings"

	"github.com/felixgeelhaar/temario/internal/domain"
	"github.com/felixgeelhaar/temario/internal/session"
)

// cmdSelect asks the daemon for a question plan
func cmdSelect(args []string) error {
	fs := flag.NewFlagSet("select", flag.ContinueOnError)
	count := fs.Int("count", 10, "number of questions")
	user := fs.String("user", "", "learner id")
	topic := fs.Int("topic", 0, "syllabus topic number")
	position := fs.String("position", "", "position type of the topic")
	laws := fs.String("laws", "", "comma-separated law short names")
	section := fs.String("section", "", "section slug (one law only)")
	difficulty := fs.String("difficulty", "random", "easy, medium, hard, extreme or random")
	official := fs.Bool("official", false, "only questions from official exams")
	essential := fs.Bool("essential", false, "only questions on essential articles")
	failed := fs.Bool("failed", false, "only questions the user has failed")
	order := fs.String("order", "", "failed review order")
	excludeRecent := fs.Int("exclude-recent", -1, "skip questions answered in the last N days")
	adaptiveMode := fs.Bool("adaptive", false, "start an adaptive session")
	seed := fs.Int64("seed", 0, "shuffle seed")
	if err := fs.Parse(args); err != nil {
		return err
	}

	mode, err := domain.ParseDifficultyMode(*difficulty)
	if err != nil {
		return err
	}

	req := domain.SelectionRequest{
		Count:                 *count,
		UserID:                *user,
		Topic:                 *topic,
		PositionType:          *position,
		Section:               *section,
		Difficulty:            mode,
		OnlyOfficial:          *official,
		OnlyEssentialArticles: *essential,
		OnlyFailed:            *failed,
		FailedOrder:           domain.FailedOrder(*order),
		Adaptive:              *adaptiveMode,
		Seed:                  *seed,
	}
	if *laws != "" {
		req.Laws = strings.Split(*laws, ",")
	}
	if *excludeRecent >= 0 {
		req.ExcludeRecentDays = excludeRecent
	}

	var plan domain.SessionPlan
	if err := callDaemon(http.MethodPost, "/selection", req, &plan); err != nil {
		return err
	}

	if plan.Empty() {
		fmt.Println("No questions available with this configuration.")
		return nil
	}

	fmt.Printf("Session:   %s\n", plan.SessionID)
	fmt.Printf("Mode:      %s\n", plan.Mode)
	fmt.Printf("Delivered: %d of %d requested (%d available)\n", plan.Delivered, plan.Requested, plan.Available)
	if plan.Adaptive {
		fmt.Printf("Window:    %s\n", strings.Join(plan.ActiveWindow, ", "))
		fmt.Printf("Pool:      %d questions\n", len(plan.Pool))
		return nil
	}
	fmt.Println()
	for i, id := range plan.Questions {
		fmt.Printf("%3d. %s\n", i+1, id)
	}
	return nil
}

// cmdSession shows an adaptive session
func cmdSession(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: temario session <session-id>")
	}
	var view session.View
	if err := callDaemon(http.MethodGet, "/selection/"+args[0], nil, &view); err != nil {
		return err
	}
	printView(view)
	return nil
}

// cmdAdvance reports one answer
func cmdAdvance(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: temario advance <session-id> <question-id> <correct|wrong> [--seq N]")
	}
	var correct bool
	switch args[2] {
	case "correct", "ok", "true":
		correct = true
	case "wrong", "fail", "false":
	default:
		return fmt.Errorf("result must be correct or wrong, got %q", args[2])
	}

	fs := flag.NewFlagSet("advance", flag.ContinueOnError)
	seq := fs.Int("seq", 0, "answer sequence number from 'temario session'")
	if err := fs.Parse(args[3:]); err != nil {
		return err
	}

	body := map[string]any{
		"last_result": correct,
		"question_id": args[1],
	}
	if *seq > 0 {
		body["sequence"] = *seq
	}

	var view session.View
	if err := callDaemon(http.MethodPost, "/selection/"+args[0]+"/advance", body, &view); err != nil {
		return err
	}
	printView(view)
	return nil
}

// cmdAbandon ends an adaptive session
func cmdAbandon(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: temario abandon <session-id>")
	}
	var view session.View
	if err := callDaemon(http.MethodDelete, "/selection/"+args[0], nil, &view); err != nil {
		return err
	}
	fmt.Printf("✓ Session %s %s\n", view.SessionID, view.Status)
	return nil
}

func printView(v session.View) {
	fmt.Printf("Session:   %s (%s)\n", v.SessionID, v.Status)
	fmt.Printf("Phase:     %s, bias %s\n", v.Phase, v.Bias)
	if v.Target != "" {
		fmt.Printf("Target:    %s\n", v.Target)
	}
	fmt.Printf("Accuracy:  %.0f%%\n", v.Accuracy*100)
	fmt.Printf("Progress:  %d answered, %d remaining\n", v.Answered, v.Remaining)
	if v.Next != "" {
		fmt.Printf("Next:      %s (sequence %d)\n", v.Next, v.Sequence)
	}
}

// callDaemon sends a JSON request and decodes the response into out.
// Error bodies surface their code and message.
func callDaemon(method, path string, body, out any) error {
	if !isRunning() {
		return fmt.Errorf("daemon not running (run 'temario start' first)")
	}

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	req, err := http.NewRequest(method, daemonAddr()+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("call daemon: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error   string `json:"error"`
			Code    string `json:"code"`
			Details string `json:"details"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
			return fmt.Errorf("daemon returned %s", resp.Status)
		}
		if apiErr.Details != "" {
			return fmt.Errorf("%s (%s): %s", apiErr.Error, apiErr.Code, apiErr.Details)
		}
		return fmt.Errorf("%s (%s)", apiErr.Error, apiErr.Code)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
