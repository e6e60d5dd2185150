package models

import (
	"testing"
)

func TestNormalizeTaskStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want TaskStatus
	}{
		{"BACKLOG", TaskBacklog},
		{"todo", TaskBacklog},
		{"IN_DEV", TaskInDev},
		{"in-dev", TaskInDev},
		{"In Progress", TaskInDev},
		{"INDEV", TaskInDev},
		{"IN_REVIEW", TaskInReview},
		{"review", TaskInReview},
		{"IN_QA", TaskInQA},
		{"QA", TaskInQA},
		{"DONE", TaskDone},
		{"completed", TaskDone},
		{"REJECT", TaskReject},
		{"REJECTED", TaskReject},
		{"BLOCKED", TaskBlocked},
		{"  **DONE**  ", TaskDone},
		{"`IN_QA`", TaskInQA},
		{"", TaskUnknown},
		{"whatever", TaskUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			if got := NormalizeTaskStatus(tt.raw); got != tt.want {
				t.Errorf("NormalizeTaskStatus(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestGroupTasksByStatus(t *testing.T) {
	tasks := []TaskMetadata{
		{ID: "task-001", Status: TaskDone},
		{ID: "task-002", Status: TaskInDev},
		{ID: "task-003", Status: TaskDone},
	}

	groups := GroupTasksByStatus(tasks)

	if len(groups[TaskDone]) != 2 {
		t.Fatalf("expected 2 DONE tasks, got %d", len(groups[TaskDone]))
	}
	if groups[TaskDone][0].ID != "task-001" || groups[TaskDone][1].ID != "task-003" {
		t.Errorf("expected input order preserved, got %+v", groups[TaskDone])
	}
	if len(groups[TaskInDev]) != 1 {
		t.Errorf("expected 1 IN_DEV task, got %d", len(groups[TaskInDev]))
	}
	if len(groups[TaskBlocked]) != 0 {
		t.Errorf("expected no BLOCKED tasks, got %d", len(groups[TaskBlocked]))
	}
}
