package main

import (
	"context"
	"net/http"
	"os"
	"path/filepath"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/m4xw311/dialagent/agent"
	"github.com/m4xw311/dialagent/config"
	"github.com/m4xw311/dialagent/errors"
	"github.com/m4xw311/dialagent/llm"
	"github.com/m4xw311/dialagent/tools"
	"github.com/m4xw311/dialagent/tools/mcp"
	"github.com/m4xw311/dialagent/tools/users"
	"github.com/m4xw311/dialagent/tools/websearch"
	"github.com/m4xw311/dialagent/userdir"
	"go.uber.org/zap"
)

// runtime holds everything a chat or ACP session needs, plus the resources
// to release afterwards.
type runtime struct {
	agent   *agent.Agent
	closers []func() error
}

func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

type sessionFlags struct {
	mode          string
	toolset       string
	toolVerbosity string
	delivery      string
}

func buildRuntime(ctx context.Context, cfg *config.Config, flags sessionFlags, logger *zap.Logger) (*runtime, error) {
	mode, err := agent.ParseMode(flags.mode)
	if err != nil {
		return nil, err
	}
	verbosity, err := agent.ParseToolVerbosity(flags.toolVerbosity)
	if err != nil {
		return nil, err
	}
	delivery, err := agent.ParseDelivery(flags.delivery)
	if err != nil {
		return nil, err
	}
	toolset, err := cfg.GetToolset(flags.toolset)
	if err != nil {
		return nil, err
	}

	rt := &runtime{}
	transport, err := newTransport(ctx, cfg, cfg.Model, logger)
	if err != nil {
		return nil, err
	}
	registry, err := buildRegistry(ctx, cfg, rt, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}
	selected, err := registry.Select(toolset.Tools)
	if err != nil {
		rt.Close()
		return nil, errors.Wrapf(err, "toolset %q", toolset.Name)
	}
	logger.Info("tools selected", zap.String("toolset", toolset.Name), zap.Strings("tools", selected.Names()))

	engine := agent.NewEngine(transport, selected,
		agent.WithMaxIterations(cfg.MaxIterations),
		agent.WithLogger(logger))
	prompt := cfg.SystemPrompt
	if prompt == "" {
		prompt = agent.DefaultSystemPrompt
	}
	rt.agent = agent.New(engine, prompt,
		agent.WithMode(mode),
		agent.WithToolVerbosity(verbosity),
		agent.WithDelivery(delivery))
	return rt, nil
}

// buildRegistry registers every available tool; the toolset narrows it down
// afterwards.
func buildRegistry(ctx context.Context, cfg *config.Config, rt *runtime, logger *zap.Logger) (*tools.Registry, error) {
	dir, err := openDirectory(cfg, rt)
	if err != nil {
		return nil, err
	}
	registry := tools.NewRegistry(users.All(dir)...)

	if cfg.WebSearch.Enabled {
		model := cfg.WebSearch.Model
		if model == "" {
			model = cfg.Model
		}
		searchTransport, err := newTransport(ctx, cfg, model, logger)
		if err != nil {
			return nil, errors.Wrapf(err, "web search transport")
		}
		registry.Register(websearch.New(searchTransport))
	}

	for _, srv := range cfg.AdditionalMCPServers {
		client, err := mcp.Connect(ctx, srv.Name, srv.Command, srv.Args, logger)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, client.Close)
		for _, t := range client.Tools() {
			registry.Register(t)
		}
	}
	return registry, nil
}

// openDirectory returns the remote user service when configured, otherwise
// the local database.
func openDirectory(cfg *config.Config, rt *runtime) (userdir.Directory, error) {
	if cfg.UserService.URL != "" {
		return userdir.NewClient(cfg.UserService.URL), nil
	}
	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, store.Close)
	return store, nil
}

func openStore(cfg *config.Config) (*userdir.BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.UserService.DBPath), 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating data directory")
	}
	return userdir.NewBoltStore(cfg.UserService.DBPath)
}

// newTransport builds the model transport for the configured backend. Each
// transport owns one HTTP client for its lifetime.
func newTransport(ctx context.Context, cfg *config.Config, model string, logger *zap.Logger) (llm.Transport, error) {
	var credential azcore.TokenCredential
	if cfg.Auth == "entra" {
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create Azure credential")
		}
		credential = cred
	}
	httpClient := &http.Client{Timeout: cfg.RequestTimeout}

	switch cfg.LLMClient {
	case "dial":
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = config.DefaultDialEndpoint
		}
		return llm.NewDialTransport(llm.DialConfig{
			Endpoint:   endpoint,
			Deployment: model,
			APIKey:     cfg.APIKey(),
			Credential: credential,
			HTTPClient: httpClient,
			Logger:     logger,
		})
	case "openai", "azure":
		oc := llm.OpenAIConfig{
			Model:      model,
			APIKey:     cfg.APIKey(),
			Credential: credential,
			HTTPClient: httpClient,
		}
		if cfg.LLMClient == "azure" {
			oc.AzureEndpoint = cfg.Endpoint
		} else {
			oc.BaseURL = cfg.Endpoint
		}
		return llm.NewOpenAITransport(oc)
	case "anthropic":
		return llm.NewAnthropicTransport(model, cfg.APIKey(), httpClient)
	case "bedrock":
		return llm.NewBedrockTransport(ctx, model, cfg.Region)
	case "mock":
		return llm.NewMock(), nil
	}
	return nil, errors.New("unknown llm %q", cfg.LLMClient)
}
