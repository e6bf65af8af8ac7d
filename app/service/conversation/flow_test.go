package conversation

import (
	"carepulse/app/client/analytics"
	"carepulse/app/client/probe"
	"carepulse/app/config"
	"carepulse/app/service/activity"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/samber/do"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, backend http.Handler, tweak func(cfg *config.Config)) (*Service, *do.Injector) {
	t.Helper()

	backendSrv := httptest.NewServer(backend)
	t.Cleanup(backendSrv.Close)

	probeSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(probeSrv.Close)

	cfg := &config.Config{}
	cfg.ApplyDefaults()
	cfg.Backend.URL = backendSrv.URL
	cfg.Backend.ProbeURL = probeSrv.URL
	cfg.Backend.Timeout = 200 * time.Millisecond
	cfg.Backend.ProbeTimeout = 100 * time.Millisecond
	cfg.Tracker.CheckInterval = 10 * time.Millisecond
	cfg.Tracker.PollInterval = 50 * time.Millisecond
	cfg.Retry.QuickDelay = 10 * time.Millisecond
	cfg.Retry.MaxDelay = 20 * time.Millisecond
	cfg.Retry.RateLimitDelay = 20 * time.Millisecond
	cfg.Centre.ID = "centre-042"
	cfg.Centre.Name = "Riverside Community Clinic"

	if tweak != nil {
		tweak(cfg)
	}

	di := do.New()
	t.Cleanup(func() {
		_ = di.Shutdown()
	})

	do.ProvideValue(di, cfg)
	do.Provide(di, probe.NewClient)
	do.Provide(di, analytics.NewClient)
	do.Provide(di, activity.NewRegistry)
	do.Provide(di, activity.NewBroadcaster)
	do.Provide(di, New)

	return do.MustInvoke[*Service](di), di
}

func successBackend(output string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    output,
		})
	})
}

func failingBackend() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
}

func transcriptContains(conv *Conversation, text string) bool {
	for _, msg := range conv.Transcript().Messages() {
		if strings.Contains(msg.Content, text) {
			return true
		}
	}

	return false
}

func TestFlow_HappyPath(t *testing.T) {
	svc, _ := newTestService(t, successBackend("Visits last 6 months: 420"), nil)

	conv := svc.Start("analytics")
	assert.Equal(t, StageOptionSelect, conv.Stage())
	assert.True(t, transcriptContains(conv, msgWelcome))
	assert.True(t, transcriptContains(conv, "Usage summary"))

	conv.HandleMessage(context.Background(), "1")
	assert.Equal(t, StageParameterEntry, conv.Stage())
	assert.True(t, transcriptContains(conv, msgDurationPrompt))

	conv.HandleMessage(context.Background(), "6")

	require.Eventually(t, func() bool {
		return conv.Stage() == StageResult
	}, time.Second, 5*time.Millisecond)

	assert.True(t, transcriptContains(conv, "Visits last 6 months: 420"))

	// The menu is offered again; picking works without a restart.
	conv.HandleMessage(context.Background(), "2")
	assert.Equal(t, StageParameterEntry, conv.Stage())
}

func TestFlow_InvalidInputsReprompt(t *testing.T) {
	svc, _ := newTestService(t, successBackend("ok"), nil)

	conv := svc.Start("")

	conv.HandleMessage(context.Background(), "9")
	assert.Equal(t, StageOptionSelect, conv.Stage())
	assert.True(t, transcriptContains(conv, msgInvalidOption))

	conv.HandleMessage(context.Background(), "2")
	require.Equal(t, StageParameterEntry, conv.Stage())

	conv.HandleMessage(context.Background(), "99")
	assert.Equal(t, StageParameterEntry, conv.Stage())
	assert.True(t, transcriptContains(conv, msgInvalidDuration))
}

func TestFlow_RetryExhaustionEndsConversation(t *testing.T) {
	svc, di := newTestService(t, failingBackend(), nil)

	conv := svc.Start("analytics")
	conv.HandleMessage(context.Background(), "1")
	conv.HandleMessage(context.Background(), "3")

	require.Eventually(t, func() bool {
		return conv.Stage() == StageEnd
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, conv.Transcript().CountKind(KindTerminal))
	assert.True(t, transcriptContains(conv, msgServiceDown))
	assert.Equal(t, 0, conv.Transcript().CountKind(KindRetryNotice))

	// The tracker is torn down with the conversation.
	broadcaster := do.MustInvoke[*activity.Broadcaster](di)
	assert.Eventually(t, func() bool {
		return !broadcaster.Listening()
	}, time.Second, 5*time.Millisecond)

	_, err := svc.Get(conv.ID)
	assert.Error(t, err)
}

func TestFlow_AuthFailureIsTerminal(t *testing.T) {
	backend := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"error":   "request unauthorized",
		})
	})

	svc, _ := newTestService(t, backend, nil)

	conv := svc.Start("analytics")
	conv.HandleMessage(context.Background(), "1")
	conv.HandleMessage(context.Background(), "3")

	require.Eventually(t, func() bool {
		return conv.Stage() == StageEnd
	}, time.Second, 5*time.Millisecond)

	assert.True(t, transcriptContains(conv, msgAuthFailure))
	assert.Equal(t, 1, conv.Transcript().CountKind(KindTerminal))
}

func TestFlow_BadShapeIsSoftFailure(t *testing.T) {
	backend := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    []int{1, 2, 3},
		})
	})

	svc, _ := newTestService(t, backend, nil)

	conv := svc.Start("analytics")
	conv.HandleMessage(context.Background(), "1")
	conv.HandleMessage(context.Background(), "12")

	// The conversation survives: soft failure, no retries, no terminal.
	require.Eventually(t, func() bool {
		return conv.Stage() == StageResult
	}, time.Second, 5*time.Millisecond)

	assert.True(t, transcriptContains(conv, msgCouldntProcess))
	assert.Equal(t, 0, conv.Transcript().CountKind(KindTerminal))
}

func TestFlow_StopCancelsPendingRetry(t *testing.T) {
	svc, _ := newTestService(t, failingBackend(), func(cfg *config.Config) {
		cfg.Retry.QuickDelay = 500 * time.Millisecond
		cfg.Retry.MaxDelay = 500 * time.Millisecond
	})

	conv := svc.Start("analytics")
	conv.HandleMessage(context.Background(), "1")
	conv.HandleMessage(context.Background(), "3")

	require.Eventually(t, func() bool {
		return conv.Transcript().CountKind(KindRetryNotice) == 1
	}, time.Second, 5*time.Millisecond)

	conv.Stop()

	assert.Equal(t, StageOptionSelect, conv.Stage())
	assert.True(t, transcriptContains(conv, msgStopped))
	assert.Equal(t, 0, conv.Transcript().CountKind(KindRetryNotice))

	// The cancelled sequence must never resurrect.
	time.Sleep(700 * time.Millisecond)
	assert.Equal(t, StageOptionSelect, conv.Stage())
	assert.Equal(t, 0, conv.Transcript().CountKind(KindTerminal))
}

func TestFlow_MessagesAfterEndAreRefused(t *testing.T) {
	svc, _ := newTestService(t, failingBackend(), nil)

	conv := svc.Start("analytics")
	conv.HandleMessage(context.Background(), "1")
	conv.HandleMessage(context.Background(), "3")

	require.Eventually(t, func() bool {
		return conv.Stage() == StageEnd
	}, 2*time.Second, 5*time.Millisecond)

	conv.HandleMessage(context.Background(), "hello?")
	assert.Equal(t, StageEnd, conv.Stage())
	assert.True(t, transcriptContains(conv, msgConversationOver))
}
