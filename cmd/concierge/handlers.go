package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/tclaveria/concierge/internal/engine"
	"github.com/tclaveria/concierge/pkg/models"
)

// projectSeq numbers demo projects within one process so responses read
// naturally in a chat session.
var projectSeq atomic.Int64

// registerDemoHandlers binds the built-in project-management handlers the
// bundled catalog (configs/capabilities.yaml) declares. They are stubs: each
// produces a plausible response, output data for sequential chains, and
// memory hints, without talking to any real backend.
func registerDemoHandlers(eng *engine.Engine) {
	eng.RegisterHandler("create_project", engine.HandlerFunc(createProject))
	eng.RegisterHandler("generate_charter", engine.HandlerFunc(generateCharter))
	eng.RegisterHandler("analyze_risks", engine.HandlerFunc(analyzeRisks))
	eng.RegisterHandler("show_schedule", engine.HandlerFunc(showSchedule))
	eng.RegisterHandler("estimate_budget", engine.HandlerFunc(estimateBudget))
	eng.RegisterHandler("delete_project", engine.HandlerFunc(deleteProject))
}

func createProject(_ context.Context, params map[string]string, _ *engine.Context) (*models.HandlerOutput, error) {
	name := strings.TrimSpace(params["name"])
	if name == "" {
		return nil, engine.Permanent("project name must not be empty", nil)
	}

	id := fmt.Sprintf("P-%03d-%s", projectSeq.Add(1), uuid.NewString()[:8])
	return &models.HandlerOutput{
		Response: fmt.Sprintf("Project %q created with id %s.", name, id),
		Data: map[string]string{
			"project_id":   id,
			"project_name": name,
		},
		MemoryHints: map[string]string{
			"last_project_id":   id,
			"last_project_name": name,
		},
	}, nil
}

func generateCharter(_ context.Context, params map[string]string, sessCtx *engine.Context) (*models.HandlerOutput, error) {
	projectID := params["project_id"]
	name := params["project_name"]
	if name == "" {
		name = sessCtx.Memory["last_project_name"]
	}
	if name == "" {
		name = projectID
	}

	charter := fmt.Sprintf(
		"Charter for %s:\n- Objective: deliver %s on time and in scope\n- Sponsor: TBD\n- Milestones: kickoff, midpoint review, delivery",
		projectID, name)
	return &models.HandlerOutput{
		Response: charter,
		Data:     map[string]string{"charter_project_id": projectID},
		MemoryHints: map[string]string{
			"last_charter_project": projectID,
		},
	}, nil
}

func analyzeRisks(_ context.Context, params map[string]string, sessCtx *engine.Context) (*models.HandlerOutput, error) {
	scope := params["project_id"]
	if scope == "" {
		scope = sessCtx.Memory["last_project_id"]
	}
	if scope == "" {
		scope = "the current portfolio"
	}
	return &models.HandlerOutput{
		Response: fmt.Sprintf("Top risks for %s: scope creep (high), single-person staffing (medium), vendor lead times (low).", scope),
	}, nil
}

func showSchedule(_ context.Context, params map[string]string, sessCtx *engine.Context) (*models.HandlerOutput, error) {
	scope := params["project_id"]
	if scope == "" {
		scope = sessCtx.Memory["last_project_id"]
	}
	if scope == "" {
		scope = "the current portfolio"
	}
	return &models.HandlerOutput{
		Response: fmt.Sprintf("Schedule for %s: kickoff next Monday, midpoint review in 3 weeks, delivery in 6 weeks.", scope),
	}, nil
}

func estimateBudget(_ context.Context, params map[string]string, _ *engine.Context) (*models.HandlerOutput, error) {
	teamSize := 3
	if raw := params["team_size"]; raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return nil, engine.Permanent(fmt.Sprintf("team_size must be a positive integer, got %q", raw), err)
		}
		teamSize = n
	}
	weeks := 6
	if raw := params["weeks"]; raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			weeks = n
		}
	}

	total := teamSize * weeks * 4000
	return &models.HandlerOutput{
		Response: fmt.Sprintf("Estimated budget: $%d (%d people × %d weeks).", total, teamSize, weeks),
		Data:     map[string]string{"budget_total": strconv.Itoa(total)},
		MemoryHints: map[string]string{
			"last_budget_total": strconv.Itoa(total),
		},
	}, nil
}

func deleteProject(_ context.Context, params map[string]string, _ *engine.Context) (*models.HandlerOutput, error) {
	return &models.HandlerOutput{
		Response: fmt.Sprintf("Project %s deleted.", params["project_id"]),
		MemoryHints: map[string]string{
			"last_deleted_project": params["project_id"],
		},
	}, nil
}
