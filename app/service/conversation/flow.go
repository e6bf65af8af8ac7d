package conversation

import (
	"carepulse/app/client/analytics"
	"carepulse/app/service/activity"
	"carepulse/app/service/retry"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/elliotchance/pie/v2"
)

// Conversation is one scripted chat flow. Stage transitions happen only
// inside HandleMessage, Stop and the lifecycle callbacks.
type Conversation struct {
	ID      string
	svc     *Service
	appType string
	tracker *activity.Tracker

	transcript *Transcript

	mu          sync.Mutex
	stage       Stage
	choice      menuOption
	coordinator *retry.Coordinator
}

func (c *Conversation) Stage() Stage {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.stage
}

func (c *Conversation) Transcript() *Transcript {
	return c.transcript
}

func (c *Conversation) Tracker() *activity.Tracker {
	return c.tracker
}

// HandleMessage advances the scripted flow by one user input. Every
// message counts as activity.
func (c *Conversation) HandleMessage(ctx context.Context, text string) {
	c.tracker.RecordActivity()

	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stage != StageEnd {
		c.transcript.Append(RoleUser, KindChat, text)
	}

	switch c.stage {
	case StageOptionSelect, StageResult:
		c.handleOptionSelect(text)

	case StageParameterEntry:
		c.handleParameterEntry(ctx, text)

	case StageInFlight:
		c.transcript.Append(RoleAssistant, KindChat, msgInProgress)

	case StageEnd:
		c.transcript.Append(RoleSystem, KindChat, msgConversationOver)
	}
}

func (c *Conversation) handleOptionSelect(text string) {
	idx := pie.FindFirstUsing(menuOptions, func(opt menuOption) bool {
		return opt.Key == text || strings.EqualFold(opt.Label, text)
	})
	if idx < 0 {
		c.transcript.Append(RoleAssistant, KindChat, msgInvalidOption)
		return
	}

	c.choice = menuOptions[idx]
	c.stage = StageParameterEntry

	c.transcript.Append(RoleAssistant, KindChat, msgDurationPrompt)
}

func (c *Conversation) handleParameterEntry(ctx context.Context, text string) {
	months, err := strconv.Atoi(text)
	if err != nil || months < 1 || months > maxDurationMonths {
		c.transcript.Append(RoleAssistant, KindChat, msgInvalidDuration)
		return
	}

	c.stage = StageInFlight
	c.transcript.Append(RoleAssistant, KindChat, msgWorking)

	c.launchRequest(ctx, months)
}

// launchRequest hands the backend call to a fresh coordinator. Bad
// response shapes are a soft failure: the user gets a "couldn't process"
// reply and the conversation keeps going, no retries.
func (c *Conversation) launchRequest(ctx context.Context, months int) {
	isNGO := c.svc.cfg.Centre.IsNGO

	req := analytics.Request{
		SessionID:       c.ID,
		CentreID:        c.svc.cfg.Centre.ID,
		CentreName:      c.svc.cfg.Centre.Name,
		DurationMonths:  months,
		Message:         c.choice.Query,
		ApplicationType: c.appType,
		IsNGO:           &isNGO,
	}

	call := func(ctx context.Context) (string, error) {
		output, err := c.svc.backend.Query(ctx, req)
		if errors.Is(err, analytics.ErrBadShape) {
			slog.Warn("Backend returned unexpected shape",
				"conversation", c.ID,
				"error", err)

			return msgCouldntProcess, nil
		}

		return output, err
	}

	c.coordinator = retry.NewCoordinator(c.svc.retryCfg, c, call, c.onRequestDone)
	c.coordinator.Start(context.WithoutCancel(ctx))
}

func (c *Conversation) onRequestDone(res retry.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stage != StageInFlight {
		return
	}

	c.coordinator = nil

	switch res.Outcome {
	case retry.OutcomeSuccess:
		c.stage = StageResult
		c.transcript.Append(RoleAssistant, KindChat, res.Output)
		c.transcript.Append(RoleAssistant, KindChat, formatMenu())

	case retry.OutcomeExhausted:
		slog.Error("Backend unavailable, giving up",
			"conversation", c.ID,
			"error", res.Err)

		c.endLocked(msgServiceDown)

	case retry.OutcomePermanent:
		slog.Warn("Backend rejected request",
			"conversation", c.ID,
			"error", res.Err)

		c.endLocked(msgAuthFailure)
	}
}

// Stop is the explicit user cancel. A pending retry timer is cleared;
// when nothing is in flight the whole conversation ends.
func (c *Conversation) Stop() {
	c.tracker.RecordActivity()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stage == StageInFlight {
		if c.coordinator != nil {
			c.coordinator.Cancel()
			c.coordinator = nil
		}

		c.stage = StageOptionSelect
		c.transcript.Append(RoleAssistant, KindChat, msgStopped)
		return
	}

	if c.stage != StageEnd {
		c.endLocked(msgConversationOver)
	}
}

func (c *Conversation) onInactivityTimeout() {
	slog.Info("Conversation timed out due to inactivity", "conversation", c.ID)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stage == StageEnd {
		return
	}

	c.endLocked(msgInactivityEnd)
}

func (c *Conversation) onConnectionChange(connected bool) {
	if connected {
		c.transcript.Append(RoleSystem, KindConnRestored, msgConnRestored)
	} else {
		c.transcript.Append(RoleSystem, KindConnError, msgConnLost)
	}
}

// endLocked closes the conversation with a single terminal notice.
// Callers hold c.mu.
func (c *Conversation) endLocked(notice string) {
	if c.coordinator != nil {
		c.coordinator.Cancel()
		c.coordinator = nil
	}

	c.stage = StageEnd
	c.transcript.Append(RoleSystem, KindTerminal, notice)

	go c.teardown()
}

func (c *Conversation) teardown() {
	c.tracker.Cleanup()
	c.svc.remove(c.ID)
}

// retry.NoticeSink implementation: retry status lines live in the
// transcript and are replaced, never stacked.

func (c *Conversation) RemoveRetryNotices() {
	c.transcript.RemoveRetryNotices()
}

func (c *Conversation) AppendRetryNotice(wait time.Duration, attempt, maxAttempts int) {
	c.transcript.Append(RoleSystem, KindRetryNotice,
		fmt.Sprintf("Connection issue, retrying in %d seconds (attempt %d of %d)...",
			int(wait.Round(time.Second).Seconds()), attempt, maxAttempts))
}
