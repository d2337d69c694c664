package main

import (
	"governance-agent/internal/boardroom"
	"governance-agent/internal/config"
	"governance-agent/internal/crosschain"
	dbpkg "governance-agent/internal/db"
	"governance-agent/internal/digest"
	"governance-agent/internal/email"
	"governance-agent/internal/governance"
	"governance-agent/internal/intent"
	"governance-agent/internal/reconciler"
	"governance-agent/internal/replies"
	"governance-agent/internal/store"

	"go.uber.org/zap"
	"golang.org/x/xerrors"
	"gorm.io/gorm"
)

// app holds every component, constructed explicitly from config.
type app struct {
	cfg config.Config
	log *zap.SugaredLogger
	db  *gorm.DB

	users     *store.Users
	votes     *store.Votes
	proposals *store.Proposals
	transport *crosschain.Client
	executor  *governance.Executor
	tracker   *reconciler.Tracker
	digest    *digest.Job
	replies   *replies.Orchestrator
}

func openDB(cfg config.Config, log *zap.SugaredLogger) (*gorm.DB, error) {
	gormDB, err := dbpkg.Open(cfg)
	if err != nil {
		return nil, xerrors.Errorf("connect database: %w", err)
	}
	if gormDB == nil {
		return nil, xerrors.Errorf("DATABASE_URL is required")
	}
	log.Infow("DB connected", "dialect", cfg.DBDialect)
	return gormDB, nil
}

func newApp(cfg config.Config, log *zap.SugaredLogger) (*app, error) {
	gormDB, err := openDB(cfg, log)
	if err != nil {
		return nil, err
	}
	if err := dbpkg.AutoMigrate(gormDB); err != nil {
		return nil, xerrors.Errorf("run migrations: %w", err)
	}

	a := &app{cfg: cfg, log: log, db: gormDB}
	a.users = store.NewUsers(gormDB)
	a.votes = store.NewVotes(gormDB)

	// Without an LLM key replies are classified by the command grammar
	// and proposals are ranked by deadline only.
	var (
		classifier   intent.Classifier = intent.NewRules()
		summarizer   store.Summarizer
		personalizer governance.Personalizer
	)
	if cfg.LLMKey != "" {
		llm := intent.NewLLM(cfg.LLMURL, cfg.LLMKey, cfg.LLMModel, cfg.ExternalCallTimeout*2, log)
		classifier = intent.NewFallback(llm, intent.NewRules(), log)
		summarizer = llm
		personalizer = llm
	} else {
		log.Warnw("OPENAI_API_KEY not set, using rule-based reply classification")
	}

	aggregator := boardroom.NewClient(cfg.AggregatorURL, cfg.AggregatorKey, cfg.ExternalCallTimeout, log)
	a.proposals, err = store.NewProposals(gormDB, aggregator, summarizer, cfg.ProposalCacheSize, log)
	if err != nil {
		return nil, err
	}

	a.transport, err = crosschain.NewClient(cfg, log)
	if err != nil {
		return nil, err
	}

	selectors := make(map[string]uint64, len(cfg.Chains))
	for name, ch := range cfg.Chains {
		selectors[name] = ch.Selector
	}
	router := governance.NewChainRouter(cfg.Protocols, cfg.FallbackChain, log)
	a.executor = governance.NewExecutor(a.proposals, a.votes, a.transport, router, governance.ExecutorConfig{
		SourceChain: cfg.SourceChain,
		Selectors:   selectors,
		Timeout:     cfg.ExternalCallTimeout,
	}, log)

	sender := email.NewPostmark(cfg.PostmarkURL, cfg.PostmarkToken, cfg.EmailFrom, cfg.EmailReplyTo, cfg.ExternalCallTimeout, log)
	a.tracker = reconciler.NewTracker(a.votes, a.transport, a.users, sender, reconciler.Config{
		Interval: cfg.ReconcileInterval,
		Timeout:  cfg.ExternalCallTimeout,
	}, log)
	a.digest = digest.New(a.users, a.proposals, a.votes, personalizer, sender, cfg.DigestSize, log)
	a.replies = replies.NewOrchestrator(a.users, a.proposals, a.votes, a.executor, classifier, a.digest, sender, log)
	return a, nil
}

func (a *app) close() {
	if a.transport != nil {
		a.transport.Close()
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	_ = a.log.Sync()
}
