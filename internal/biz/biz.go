package biz

import (
	"log/slog"
	"time"

	"github.com/channelrelay/relay/internal/biz/domain"
	"github.com/channelrelay/relay/internal/biz/repo"
	"github.com/channelrelay/relay/internal/biz/usecase"
)

// Usecases contains all usecases
type Usecases struct {
	Filter   *usecase.FilterUsecase
	Alert    *usecase.AlertUsecase
	Urgency  *usecase.UrgencyUsecase
	Router   *usecase.RouterUsecase
	Monitor  *usecase.MonitorUsecase
	Pipeline *usecase.PipelineUsecase
}

// Options carries the settings the usecases are built from
type Options struct {
	Channels        []*domain.Channel
	Regions         []domain.Region
	Alerts          []domain.AlertCategory
	SpamKeywords    []string
	Heuristic       usecase.HeuristicConfig
	ClassifyTimeout time.Duration
	Monitor         usecase.MonitorConfig
	Pipeline        usecase.PipelineConfig
	Router          usecase.RouterConfig
}

// Repos are the repositories the usecases depend on. Classifier may be nil.
type Repos struct {
	Platform     repo.PlatformRepo
	Store        repo.MessageStore
	Subscription repo.SubscriptionCache
	Classifier   repo.ClassifierRepo
	Sink         repo.OutputSink
}

// NewUsecases wires the usecase layer
func NewUsecases(repos Repos, clock usecase.Clock, opts Options, logger *slog.Logger) *Usecases {
	uc := &Usecases{
		Filter:  usecase.NewFilterUsecase(opts.SpamKeywords),
		Alert:   usecase.NewAlertUsecase(opts.Alerts),
		Urgency: usecase.NewUrgencyUsecase(repos.Classifier, opts.Heuristic, opts.ClassifyTimeout, logger),
		Router:  usecase.NewRouterUsecase(opts.Regions, opts.Channels, repos.Platform, repos.Sink, opts.Router, logger),
		Monitor: usecase.NewMonitorUsecase(repos.Platform, repos.Subscription, clock, opts.Monitor, logger),
	}
	uc.Pipeline = usecase.NewPipelineUsecase(
		uc.Filter,
		uc.Alert,
		uc.Urgency,
		uc.Router,
		repos.Store,
		clock,
		opts.Pipeline,
		logger,
	)
	return uc
}
