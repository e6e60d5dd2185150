package consultant

import (
	"fmt"

	"github.com/silbaram/artifact-driven-agent/internal/models"
)

// Recommend applies the decision policy to s locally. Rules are checked in
// order and the first match wins.
func Recommend(s *State) models.Decision {
	if !s.HasPlan {
		return runAgent("planner", "plan.md is missing; planning comes first", "")
	}
	if s.Sprint == "" {
		return models.Decision{Action: models.ActionWait, Reason: "no active sprint; run `ada sprint create` and add tasks"}
	}

	groups := s.ByStatus()
	first := func(status models.TaskStatus) string {
		if list := groups[status]; len(list) > 0 {
			return list[0].ID
		}
		return ""
	}

	switch {
	case len(groups[models.TaskReject]) > 0:
		return runAgent("developer", fmt.Sprintf("%d rejected task(s) need fixes", len(groups[models.TaskReject])), first(models.TaskReject))
	case len(groups[models.TaskInReview]) > 0:
		return runAgent("reviewer", fmt.Sprintf("%d task(s) waiting for review", len(groups[models.TaskInReview])), first(models.TaskInReview))
	case len(groups[models.TaskInQA]) > 0:
		return runAgent("qa", fmt.Sprintf("%d task(s) waiting for QA", len(groups[models.TaskInQA])), first(models.TaskInQA))
	case len(groups[models.TaskBacklog]) > 0 && len(groups[models.TaskInDev]) == 0:
		return runAgent("developer", fmt.Sprintf("start development: %d backlog task(s)", len(groups[models.TaskBacklog])), first(models.TaskBacklog))
	case len(groups[models.TaskInDev]) > 0:
		return runAgent("developer", fmt.Sprintf("continue development: %d task(s) in progress", len(groups[models.TaskInDev])), first(models.TaskInDev))
	case len(groups[models.TaskBlocked]) > 0:
		return models.Decision{
			Action:     models.ActionAskUser,
			Reason:     fmt.Sprintf("%d blocked task(s) need a decision", len(groups[models.TaskBlocked])),
			TargetTask: first(models.TaskBlocked),
		}
	case allDoneAndReviewed(s.Tasks):
		return runAgent("documenter", "every sprint task is done and reviewed; update the documentation", "")
	}

	reason := "nothing to do right now"
	if len(s.Tasks) == 0 {
		reason = "the active sprint has no tasks; run `ada sprint add`"
	}
	return models.Decision{Action: models.ActionWait, Reason: reason}
}

func runAgent(role, reason, task string) models.Decision {
	return models.Decision{Action: models.ActionRunAgent, Role: role, Reason: reason, TargetTask: task}
}

func allDoneAndReviewed(tasks []models.TaskMetadata) bool {
	if len(tasks) == 0 {
		return false
	}
	for _, t := range tasks {
		if t.Status != models.TaskDone || !t.HasReviewReport {
			return false
		}
	}
	return true
}
