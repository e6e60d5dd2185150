package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silbaram/artifact-driven-agent/internal/agent"
	"github.com/silbaram/artifact-driven-agent/internal/config"
	"github.com/silbaram/artifact-driven-agent/internal/consultant"
	"github.com/silbaram/artifact-driven-agent/internal/models"
	"github.com/silbaram/artifact-driven-agent/internal/sprint"
)

// Distinct durations so recorded sleeps identify the branch taken
var testSettings = config.OrchestratorSettings{
	RepetitionLimit:  3,
	ErrorThreshold:   5,
	IterationDelay:   1 * time.Second,
	RetryDelay:       2 * time.Second,
	WaitDelay:        3 * time.Second,
	BusyDelay:        4 * time.Second,
	AskUserDelay:     5 * time.Second,
	ErrorBackoff:     6 * time.Second,
	SafeModeCooldown: 7 * time.Second,
}

type harness struct {
	loop       *Loop
	consultant *scriptedConsultant
	runner     *fakeRunner
	gate       *fakeGate
	syncer     *fakeSyncer
	status     *fakeStatus
	sleeps     []time.Duration
	events     []string
	ctx        context.Context
	cancel     context.CancelFunc
}

func newHarness(t *testing.T, settings config.OrchestratorSettings, decisions ...*models.Decision) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := &harness{ctx: ctx, cancel: cancel}
	h.consultant = &scriptedConsultant{h: h, decisions: decisions}
	h.runner = &fakeRunner{h: h}
	h.gate = &fakeGate{}
	h.syncer = &fakeSyncer{h: h, err: sprint.ErrNoActiveSprint}
	h.status = &fakeStatus{doc: &models.StatusDocument{}}

	h.loop = New(Deps{
		Consultant: h.consultant,
		Runner:     h.runner,
		Gate:       h.gate,
		Syncer:     h.syncer,
		Status:     h.status,
		Tools:      fakeTools{"developer": "claude", "reviewer": "gemini"},
	}, settings, nil, &bytes.Buffer{})
	h.loop.sleep = func(ctx context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return ctx.Err()
	}
	return h
}

func (h *harness) count(d time.Duration) int {
	n := 0
	for _, s := range h.sleeps {
		if s == d {
			n++
		}
	}
	return n
}

// scriptedConsultant returns its decisions in order, then cancels the run
type scriptedConsultant struct {
	h         *harness
	decisions []*models.Decision
	calls     int
	contexts  []consultant.Context
}

func (c *scriptedConsultant) Consult(_ context.Context, cc consultant.Context) *models.Decision {
	c.h.events = append(c.h.events, "consult")
	c.contexts = append(c.contexts, cc)
	if c.calls >= len(c.decisions) {
		c.h.cancel()
		return nil
	}
	d := c.decisions[c.calls]
	c.calls++
	return d
}

type fakeRunner struct {
	h     *harness
	roles []string
	tools []string
	err   error
	hook  func()
}

func (r *fakeRunner) ExecuteSession(_ context.Context, role, tool string, _ agent.Options) (*agent.Result, error) {
	r.h.events = append(r.h.events, "run:"+role)
	r.roles = append(r.roles, role)
	r.tools = append(r.tools, tool)
	if r.hook != nil {
		r.hook()
	}
	if r.err != nil {
		return nil, r.err
	}
	return &agent.Result{Status: models.SessionCompleted}, nil
}

type approval struct {
	choice   Choice
	modified models.Decision
}

type fakeGate struct {
	approvals []approval
	confirms  []bool
	approved  int
	asked     []string
}

func (g *fakeGate) Approve(_ context.Context, d models.Decision) (Choice, models.Decision, error) {
	if g.approved >= len(g.approvals) {
		return ChoiceApprove, d, nil
	}
	a := g.approvals[g.approved]
	g.approved++
	if a.choice == ChoiceModify {
		return a.choice, a.modified, nil
	}
	return a.choice, d, nil
}

func (g *fakeGate) Confirm(_ context.Context, question string, _ bool) (bool, error) {
	g.asked = append(g.asked, question)
	if len(g.confirms) == 0 {
		return false, nil
	}
	answer := g.confirms[0]
	g.confirms = g.confirms[1:]
	return answer, nil
}

type fakeSyncer struct {
	h     *harness
	err   error
	calls int
}

func (s *fakeSyncer) Sync(context.Context) (*sprint.SyncResult, error) {
	s.h.events = append(s.h.events, "sync")
	s.calls++
	return nil, s.err
}

type fakeStatus struct {
	doc *models.StatusDocument
}

func (s *fakeStatus) Read() *models.StatusDocument { return s.doc }

type fakeTools map[string]string

func (f fakeTools) ToolForRole(role string) string {
	if t, ok := f[role]; ok {
		return t
	}
	return "claude"
}

func run(role string) *models.Decision {
	return &models.Decision{Action: models.ActionRunAgent, Role: role, Reason: "because"}
}

func wait() *models.Decision {
	return &models.Decision{Action: models.ActionWait, Reason: "idle"}
}

func TestRun_DispatchesAndStopsOnCancel(t *testing.T) {
	h := newHarness(t, testSettings, run("developer"), run("reviewer"))

	err := h.loop.Run(h.ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"developer", "reviewer"}, h.runner.roles)
	assert.Equal(t, []string{"claude", "gemini"}, h.runner.tools)
	assert.Equal(t, []string{"sync", "consult", "run:developer", "sync", "consult", "run:reviewer", "sync", "consult"}, h.events)
	assert.Equal(t, 2, h.count(testSettings.IterationDelay))
}

// interruptedConsultant cancels the run and still hands back a decision,
// like a manager killed after printing its answer
type interruptedConsultant struct {
	h *harness
}

func (c interruptedConsultant) Consult(context.Context, consultant.Context) *models.Decision {
	c.h.events = append(c.h.events, "consult")
	c.h.cancel()
	return run("developer")
}

func TestRun_DecisionAfterInterruptIsNotDispatched(t *testing.T) {
	settings := testSettings
	settings.RequireApproval = false
	h := newHarness(t, settings)
	h.loop.deps.Consultant = interruptedConsultant{h: h}

	err := h.loop.Run(h.ctx)
	require.NoError(t, err)

	assert.Empty(t, h.runner.roles)
	assert.Equal(t, []string{"sync", "consult"}, h.events)
	assert.Empty(t, h.sleeps)
	assert.False(t, h.loop.SafeMode())
}

func TestRun_CircuitBreaker(t *testing.T) {
	tests := []struct {
		name      string
		decisions []*models.Decision
		confirms  []bool
		wantErr   error
		wantRuns  int
		wantAsked int
	}{
		{
			name:      "fourth identical decision asks and decline stops",
			decisions: []*models.Decision{run("developer"), run("developer"), run("developer"), run("developer")},
			wantErr:   ErrExitRequested,
			wantRuns:  3,
			wantAsked: 1,
		},
		{
			name:      "differing decision resets the count",
			decisions: []*models.Decision{run("developer"), run("developer"), wait(), run("developer"), run("developer"), run("developer")},
			wantRuns:  5,
			wantAsked: 0,
		},
		{
			name:      "confirming resets the count",
			decisions: []*models.Decision{run("developer"), run("developer"), run("developer"), run("developer"), run("developer"), run("developer")},
			confirms:  []bool{true},
			wantRuns:  6,
			wantAsked: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, testSettings, tt.decisions...)
			h.gate.confirms = tt.confirms

			err := h.loop.Run(h.ctx)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr))
			} else {
				assert.NoError(t, err)
			}
			assert.Len(t, h.runner.roles, tt.wantRuns)
			assert.Len(t, h.gate.asked, tt.wantAsked)
		})
	}
}

func TestRun_SafeModeAfterConsecutiveErrors(t *testing.T) {
	decisions := []*models.Decision{run("developer"), run("reviewer"), run("developer"), run("reviewer"), run("developer")}
	h := newHarness(t, testSettings, decisions...)
	h.runner.err = errors.New("tool crashed")
	h.loop.sleep = func(ctx context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		if d == testSettings.SafeModeCooldown {
			h.cancel()
		}
		return ctx.Err()
	}

	require.NoError(t, h.loop.Run(h.ctx))

	assert.True(t, h.loop.SafeMode())
	assert.Len(t, h.runner.roles, 5)
	assert.Equal(t, []time.Duration{
		testSettings.ErrorBackoff,
		testSettings.ErrorBackoff,
		testSettings.ErrorBackoff,
		testSettings.ErrorBackoff,
		testSettings.IterationDelay,
		testSettings.SafeModeCooldown,
	}, h.sleeps)
	assert.Equal(t, 0, h.loop.consecutiveErrors)
	assert.Equal(t, "", h.loop.lastKey)
	require.Len(t, h.gate.asked, 1)
	assert.Contains(t, h.gate.asked[0], "Safe mode")
	assert.Equal(t, 5, h.consultant.calls, "no consultation while safe mode is declined")
}

func TestRun_SafeModeResume(t *testing.T) {
	h := newHarness(t, testSettings, run("developer"))
	h.loop.safeMode = true
	h.gate.confirms = []bool{true}

	require.NoError(t, h.loop.Run(h.ctx))
	assert.False(t, h.loop.SafeMode())
	assert.Equal(t, []string{"developer"}, h.runner.roles)
}

func TestRun_SuccessResetsErrorCount(t *testing.T) {
	h := newHarness(t, testSettings, run("developer"), run("reviewer"), run("developer"))
	failures := 2
	h.runner.hook = func() {
		if failures > 0 {
			failures--
			h.runner.err = errors.New("flaky")
		} else {
			h.runner.err = nil
		}
	}

	require.NoError(t, h.loop.Run(h.ctx))
	assert.Equal(t, 0, h.loop.consecutiveErrors)
	assert.False(t, h.loop.SafeMode())
	assert.Equal(t, 2, h.count(testSettings.ErrorBackoff))
}

func TestRun_BusyRoleIsNotDispatched(t *testing.T) {
	h := newHarness(t, testSettings, run("developer"))
	h.status.doc = &models.StatusDocument{ActiveSessions: []models.SessionInfo{
		{SessionID: "s1", Role: "developer", Status: models.SessionActive},
	}}

	require.NoError(t, h.loop.Run(h.ctx))
	assert.Empty(t, h.runner.roles)
	assert.Equal(t, 1, h.count(testSettings.BusyDelay))
	require.Len(t, h.consultant.contexts, 2)
	assert.Len(t, h.consultant.contexts[0].ActiveSessions, 1)
}

func TestRun_ApprovalGate(t *testing.T) {
	settings := testSettings
	settings.RequireApproval = true

	t.Run("exit stops immediately", func(t *testing.T) {
		h := newHarness(t, settings, run("developer"))
		h.gate.approvals = []approval{{choice: ChoiceExit}}

		err := h.loop.Run(h.ctx)
		assert.True(t, errors.Is(err, ErrExitRequested))
		assert.Empty(t, h.runner.roles)
	})

	t.Run("skip waits without dispatch", func(t *testing.T) {
		h := newHarness(t, settings, run("developer"))
		h.gate.approvals = []approval{{choice: ChoiceSkip}}

		require.NoError(t, h.loop.Run(h.ctx))
		assert.Empty(t, h.runner.roles)
		assert.Equal(t, 1, h.count(settings.RetryDelay))
	})

	t.Run("modify replaces the decision", func(t *testing.T) {
		h := newHarness(t, settings, run("developer"))
		h.gate.approvals = []approval{{choice: ChoiceModify, modified: *run("reviewer")}}

		require.NoError(t, h.loop.Run(h.ctx))
		assert.Equal(t, []string{"reviewer"}, h.runner.roles)
	})

	t.Run("ask_user bypasses the gate", func(t *testing.T) {
		h := newHarness(t, settings, &models.Decision{Action: models.ActionAskUser, Reason: "blocked"})
		h.gate.approvals = []approval{{choice: ChoiceExit}}

		require.NoError(t, h.loop.Run(h.ctx))
		assert.Equal(t, 0, h.gate.approved)
		assert.Equal(t, 1, h.count(settings.AskUserDelay))
	})
}

func TestRun_NilDecisionRetriesWithoutCountingError(t *testing.T) {
	h := newHarness(t, testSettings, nil, nil, run("developer"))

	require.NoError(t, h.loop.Run(h.ctx))
	assert.Equal(t, 2, h.count(testSettings.RetryDelay))
	assert.Equal(t, 0, h.count(testSettings.ErrorBackoff))
	assert.Equal(t, []string{"developer"}, h.runner.roles)
}

func TestRun_WaitDecisionSleeps(t *testing.T) {
	h := newHarness(t, testSettings, wait())

	require.NoError(t, h.loop.Run(h.ctx))
	assert.Equal(t, 1, h.count(testSettings.WaitDelay))
	assert.Empty(t, h.runner.roles)
}

func TestRun_SyncFailureCountsAsError(t *testing.T) {
	h := newHarness(t, testSettings, run("developer"))
	h.syncer.err = errors.New("disk full")
	h.loop.sleep = func(ctx context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		h.cancel()
		return ctx.Err()
	}

	require.NoError(t, h.loop.Run(h.ctx))
	assert.Equal(t, 1, h.loop.consecutiveErrors)
	assert.Equal(t, 0, h.consultant.calls)
}

func TestRun_InterruptDuringAgentReturnsNil(t *testing.T) {
	h := newHarness(t, testSettings, run("developer"), run("reviewer"))
	h.runner.hook = func() { h.cancel() }
	h.runner.err = context.Canceled

	require.NoError(t, h.loop.Run(h.ctx))
	assert.Equal(t, []string{"developer"}, h.runner.roles)
	assert.Equal(t, 0, h.loop.consecutiveErrors)
}

func TestSleepContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	assert.NoError(t, sleepContext(ctx, time.Millisecond))
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
	assert.ErrorIs(t, sleepContext(ctx, 0), context.Canceled)
}
