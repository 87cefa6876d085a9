package protocol

import (
	"fmt"
	"strings"

	"github.com/collabgrid/collabgrid/internal/grid"
	"github.com/collabgrid/collabgrid/internal/plan"
)

const taskRules = `Each agent owns one square and can only move artifacts sitting on the
four corners of its square. An artifact may move to another corner of
the same square, or onto the square's target of the same color, which
removes both. The puzzle is done when no artifact or target remains.
Actions look like move(artifact_red, position[1, 0]) or
move(artifact_red, target_red). A plan is a JSON object mapping agent
identifiers to one action each, for example
{"Agent[0.5, 0.5]": "move(artifact_blue, target_blue)"}.`

// coordinatorPrompt asks the coordinator oracle for a full plan.
func coordinatorPrompt(w *grid.World) string {
	var b strings.Builder
	b.WriteString("You are the central planner for a team of agents on a grid.\n")
	b.WriteString(taskRules)
	b.WriteString("\n\nCurrent state:\n")
	b.WriteString(w.StatePrompt())
	b.WriteString("\nRespond with exactly one plan JSON object. Give each agent at most one action and only actions listed as available.\n")
	return b.String()
}

// localRefinePrompt asks one agent to refine or accept the standing
// plan. Emitting the completion marker adopts the plan in the response.
func localRefinePrompt(w *grid.World, agent grid.Agent, initial plan.Plan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, one agent on a grid.\n", agent.ID())
	b.WriteString(taskRules)
	b.WriteString("\n\nCurrent state:\n")
	b.WriteString(w.StatePrompt())
	b.WriteString("\nThe proposed plan so far:\n")
	b.WriteString(formatPlan(initial))
	fmt.Fprintf(&b, "\nIf the plan is ready to run, reply with the word %s followed by the final plan JSON object. Otherwise suggest changes for your own square only.\n", plan.CompletionMarker)
	return b.String()
}

// localFeedbackPrompt asks one agent to approve or object to the
// coordinator's plan.
func localFeedbackPrompt(w *grid.World, agent grid.Agent, proposed plan.Plan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, one agent on a grid.\n", agent.ID())
	b.WriteString(taskRules)
	b.WriteString("\n\nCurrent state:\n")
	b.WriteString(w.StatePrompt())
	b.WriteString("\nThe central planner proposes:\n")
	b.WriteString(formatPlan(proposed))
	b.WriteString("\nIf the action assigned to you is valid, reply \"I Agree\". Otherwise explain what is wrong with it.\n")
	return b.String()
}

// dialoguePrompt asks one agent to continue the shared transcript in
// the distributed architecture.
func dialoguePrompt(w *grid.World, agent grid.Agent, transcript string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, one agent on a grid. There is no central planner; the team negotiates a joint plan in turns.\n", agent.ID())
	b.WriteString(taskRules)
	b.WriteString("\n\nCurrent state:\n")
	b.WriteString(w.StatePrompt())
	if transcript == "" {
		b.WriteString("\nThe dialogue is empty; you speak first.\n")
	} else {
		b.WriteString("\nDialogue so far:\n")
		b.WriteString(transcript)
	}
	fmt.Fprintf(&b, "\nPropose actions for this step. When the team has converged, reply with the word %s followed by the final plan JSON object.\n", plan.CompletionMarker)
	return b.String()
}

func formatPlan(p plan.Plan) string {
	if len(p) == 0 {
		return "{}"
	}
	var b strings.Builder
	b.WriteString("{\n")
	for _, k := range sortedPlanKeys(p) {
		fmt.Fprintf(&b, "  %q: %q\n", k, p[k])
	}
	b.WriteString("}")
	return b.String()
}
