package cmd

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/DevSymphony/fillin/internal/config"
	"github.com/DevSymphony/fillin/internal/llm"
	"github.com/DevSymphony/fillin/internal/sandbox"
	"github.com/DevSymphony/fillin/internal/storage"
	"github.com/DevSymphony/fillin/internal/synth"
	"github.com/DevSymphony/fillin/internal/util/env"
)

// app bundles the components every command works against.
type app struct {
	cfg     *config.ProjectConfig
	repo    storage.Repository
	sandbox *sandbox.Sandbox
	synth   synth.Synthesizer

	// provider is empty when no LLM provider could be created.
	provider      string
	keyConfigured bool
}

// openApp loads the project configuration and opens the repository.
func openApp() (*app, error) {
	cfg, err := config.LoadProjectConfig()
	if err != nil {
		return nil, err
	}

	repo, err := storage.Open(cfg.Storage.Driver, cfg.Storage.DataDir)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:  cfg,
		repo: repo,
		sandbox: sandbox.New(sandbox.Options{
			Timeout:         cfg.Sandbox.Timeout(),
			Packages:        cfg.Sandbox.Packages,
			FetchAllowHosts: cfg.Sandbox.FetchAllowHosts,
			MaxFetchBytes:   cfg.Sandbox.MaxFetchBytes,
			Resources:       cfg.Sandbox.Resources,
		}),
	}
	a.synth = a.newSynthesizer()
	return a, nil
}

func (a *app) newSynthesizer() synth.Synthesizer {
	if a.cfg.LLM.Provider == "" {
		return synth.Unavailable{}
	}
	if envVar := llm.GetAPIKeyEnvVar(a.cfg.LLM.Provider); envVar != "" {
		a.keyConfigured = env.GetAPIKey(envVar) != ""
	}

	provider, err := llm.New(llm.ConfigFrom(a.cfg.LLM, verbose))
	if err != nil {
		logger.Warn("llm provider unavailable", zap.String("provider", a.cfg.LLM.Provider), zap.Error(err))
		return synth.Unavailable{Reason: err}
	}
	a.provider = provider.Name()

	return synth.New(provider, synth.Options{
		Timeout:      a.cfg.Synthesis.Timeout(),
		ExampleLimit: a.cfg.Synthesis.ExampleLimit,
		MaxTokens:    a.cfg.Synthesis.MaxTokens,
		Packages:     a.sandbox.AllowedPackages(),
	}, logger)
}

func (a *app) Close() {
	if err := a.repo.Close(); err != nil {
		logger.Warn("failed to close repository", zap.Error(err))
	}
}

// withApp runs fn against a freshly opened app and closes it afterwards.
func withApp(fn func(a *app) error) error {
	a, err := openApp()
	if err != nil {
		return fmt.Errorf("failed to open project: %w", err)
	}
	defer a.Close()
	return fn(a)
}
