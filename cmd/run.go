package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abhisek/deeplearn/internal/assistant"
	"github.com/abhisek/deeplearn/internal/catalog"
	"github.com/abhisek/deeplearn/internal/config"
	"github.com/abhisek/deeplearn/internal/discussion"
	"github.com/abhisek/deeplearn/internal/grading"
	"github.com/abhisek/deeplearn/internal/ledger"
	"github.com/abhisek/deeplearn/internal/llm"
	"github.com/abhisek/deeplearn/internal/logging"
	"github.com/abhisek/deeplearn/internal/metrics"
	"github.com/abhisek/deeplearn/internal/quizfeedback"
	"github.com/abhisek/deeplearn/internal/recommend"
	"github.com/abhisek/deeplearn/internal/store"
	"github.com/abhisek/deeplearn/internal/submission"
)

// errNoLLM is returned by commands that need a provider when none is set up.
var errNoLLM = errors.New("LLM provider not configured: set GEMINI_API_KEY, OPENAI_API_KEY, ANTHROPIC_API_KEY or OPENROUTER_API_KEY")

// app holds the wired services shared by every command.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	store    *store.Store
	catalog  *catalog.Catalog
	provider llm.Provider
	metrics  *metrics.Metrics

	ledger      *ledger.Ledger
	submissions *submission.Service
	quizzes     *quizfeedback.Service
	assistant   *assistant.Service
	discussions *discussion.Service
}

// newApp opens the store, builds dependencies and returns them with a
// cleanup function. m may be nil.
func newApp(cmd *cobra.Command, m *metrics.Metrics) (*app, func(), error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}

	cat, err := loadCatalog(cfg)
	if err != nil {
		return nil, nil, err
	}

	st, err := openStore(cfg, m)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		st.Close()
		_ = log.Sync()
	}

	a := &app{cfg: cfg, log: log, store: st, catalog: cat, metrics: m}

	if err := cfg.LLM.Validate(); err != nil {
		log.Warn("AI features will be unavailable", zap.Error(err))
	} else {
		a.provider, err = llm.NewProvider(ctx, cfg.LLM, llm.FactoryOptions{
			Events:  st.EventRepo(),
			Logger:  log,
			Observe: m.BreakerStateChanged,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("LLM provider: %w", err)
		}
	}

	var rec recommend.Requester
	if a.provider != nil {
		rec = recommend.NewLLMRequester(a.provider, recommend.DefaultConfig())
	}
	a.ledger = ledger.New(st, rec, cat, ledger.Options{
		Logger:         log,
		Metrics:        m,
		RefreshTimeout: cfg.Ledger.RefreshTimeout,
	})

	var oracle grading.Oracle = grading.OracleFunc(func(context.Context, grading.Submission) (*grading.Verdict, error) {
		return nil, errNoLLM
	})
	if a.provider != nil {
		oracle = grading.NewLLMOracle(a.provider, grading.DefaultConfig())
	}
	a.submissions = submission.NewService(cat, oracle, a.ledger, log, m)
	a.quizzes = quizfeedback.NewService(cat, a.provider, quizfeedback.DefaultConfig(), log)
	a.assistant = assistant.NewService(a.provider, cat.LearningMaterial(), assistant.DefaultConfig())
	a.discussions = discussion.NewService(st)

	return a, cleanup, nil
}

func (a *app) requireLLM() error {
	if a.provider == nil {
		return errNoLLM
	}
	return nil
}

func loadCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	if cfg.CatalogPath != "" {
		return catalog.LoadFile(cfg.CatalogPath)
	}
	return catalog.Load()
}

func openStore(cfg *config.Config, m *metrics.Metrics) (*store.Store, error) {
	opts := store.Options{
		MaxAttempts: cfg.Store.MaxAttempts,
		OnConflict:  func(int) { m.TxConflict() },
	}
	if cfg.Store.Driver == "memory" {
		return store.NewMemory(opts), nil
	}

	path := cfg.Store.Path
	var err error
	if path == "" {
		path, err = store.DefaultDBPath()
	} else {
		err = store.EnsureDir(path)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve database path: %w", err)
	}
	s, err := store.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return s, nil
}
