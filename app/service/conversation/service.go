package conversation

import (
	"carepulse/app/client/analytics"
	"carepulse/app/client/probe"
	"carepulse/app/config"
	"carepulse/app/service/activity"
	"carepulse/app/service/retry"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/do"
)

var _ do.Shutdownable = (*Service)(nil)

// Service owns every active conversation: one scripted chat flow per
// mounted chat view, each with its own activity tracker. Trackers are
// independent of each other except through the shared broadcaster and
// registry the service hands them.
type Service struct {
	cfg         *config.Config
	backend     *analytics.Client
	prober      *probe.Client
	registry    *activity.Registry
	broadcaster *activity.Broadcaster
	retryCfg    retry.Config

	mu            sync.Mutex
	conversations map[string]*Conversation
}

func New(di *do.Injector) (*Service, error) {
	return &Service{
		cfg:           do.MustInvoke[*config.Config](di),
		backend:       do.MustInvoke[*analytics.Client](di),
		prober:        do.MustInvoke[*probe.Client](di),
		registry:      do.MustInvoke[*activity.Registry](di),
		broadcaster:   do.MustInvoke[*activity.Broadcaster](di),
		retryCfg:      retry.ConfigFrom(do.MustInvoke[*config.Config](di)),
		conversations: make(map[string]*Conversation),
	}, nil
}

// Start mounts a new conversation for the given chat variant and greets
// the user with the scripted menu. The per-conversation tracker starts
// its inactivity and connection loops immediately.
func (s *Service) Start(applicationType string) *Conversation {
	if applicationType == "" {
		applicationType = "analytics"
	}

	conv := &Conversation{
		ID:         uuid.NewString(),
		svc:        s,
		appType:    applicationType,
		stage:      StageOptionSelect,
		transcript: NewTranscript(),
	}

	conv.tracker = activity.NewTracker(activity.TrackerConfig{
		ServiceLabel:     applicationType,
		TimeoutThreshold: time.Duration(s.cfg.Tracker.TimeoutMinutes) * time.Minute,
		CheckInterval:    s.cfg.Tracker.CheckInterval,
		Endpoint:         s.cfg.Backend.ProbeURL,
		ProbeTimeout:     s.cfg.Backend.ProbeTimeout,
		PollInterval:     s.cfg.Tracker.PollInterval,
		PauseOnInvisible: s.cfg.Tracker.PauseOnInvisible,
	}, s.prober, s.registry, s.broadcaster, activity.TrackerCallbacks{
		OnInactivityTimeout: conv.onInactivityTimeout,
		OnConnectionChange:  conv.onConnectionChange,
	})

	conv.transcript.Append(RoleAssistant, KindChat, msgWelcome)
	conv.transcript.Append(RoleAssistant, KindChat, formatMenu())

	conv.tracker.StartInactivityTimer()
	conv.tracker.StartPeriodicConnectionChecks(0)

	s.mu.Lock()
	s.conversations[conv.ID] = conv
	s.mu.Unlock()

	slog.Info("Conversation started",
		"id", conv.ID,
		"application_type", applicationType)

	return conv
}

func (s *Service) Get(id string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, fmt.Errorf("unknown conversation %q", id)
	}

	return conv, nil
}

func (s *Service) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.conversations, id)
}

func (s *Service) Shutdown() error {
	s.mu.Lock()
	conversations := make([]*Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		conversations = append(conversations, conv)
	}
	s.conversations = make(map[string]*Conversation)
	s.mu.Unlock()

	for _, conv := range conversations {
		conv.teardown()
	}

	return nil
}

func formatMenu() string {
	menu := "What would you like to see?\n"
	for _, opt := range menuOptions {
		menu += fmt.Sprintf("%s. %s\n", opt.Key, opt.Label)
	}

	return menu
}
