// Package cli implements the chronicle command line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chroniclekeeper/chronicle/memory"
	"github.com/chroniclekeeper/chronicle/provider"
	"github.com/chroniclekeeper/chronicle/provider/claude"
	"github.com/chroniclekeeper/chronicle/provider/ollama"
	"github.com/chroniclekeeper/chronicle/settings"
	sqlitesettings "github.com/chroniclekeeper/chronicle/settings/sqlite"
)

// embedCacheBytes caps the in-process embedding cache.
const embedCacheBytes = 64 << 20

type options struct {
	dbPath       string
	providerName string
	baseURL      string
	model        string
	embedModel   string
}

// app holds the wired dependencies for one command invocation.
type app struct {
	store   settings.Store
	manager *memory.Manager
	cache   *provider.CachedProvider
}

func (a *app) close() {
	if a.cache != nil {
		a.cache.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
}

func (o *options) buildProvider() (provider.Provider, error) {
	switch o.providerName {
	case "ollama":
		cfg := *ollama.DefaultConfig
		if o.baseURL != "" {
			cfg.BaseURL = o.baseURL
		}
		cfg.APIKey = os.Getenv("OLLAMA_API_KEY")
		return ollama.New(&cfg), nil
	case "claude":
		return claude.New(&claude.Config{APIKey: os.Getenv("ANTHROPIC_API_KEY")}), nil
	}
	return nil, fmt.Errorf("unknown provider %q (want ollama or claude)", o.providerName)
}

func (o *options) build(cmd *cobra.Command) (*app, error) {
	base, err := o.buildProvider()
	if err != nil {
		return nil, err
	}
	cached, err := provider.NewCachedProvider(base, embedCacheBytes)
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}

	store, err := sqlitesettings.New(o.dbPath)
	if err != nil {
		cached.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}

	cfg := memory.DefaultConfig
	if o.model != "" {
		cfg.Model = o.model
	}
	if o.embedModel != "" {
		cfg.EmbedModel = o.embedModel
	}

	mgr, err := memory.NewManager(store, cached, cfg)
	if err != nil {
		cached.Close()
		store.Close()
		return nil, err
	}
	if err := mgr.Initialize(cmd.Context()); err != nil {
		cached.Close()
		store.Close()
		return nil, err
	}

	return &app{store: store, manager: mgr, cache: cached}, nil
}

// NewRootCommand builds the chronicle command tree.
func NewRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "chronicle",
		Short: "Campaign memory for an AI game master",
		Long: `Chronicle keeps persistent memory for tabletop RPG campaigns:
recent conversation, durable story events, NPCs, locations, items, and
factions, with semantic search over all of it.`,
		SilenceUsage: true,
	}

	defaultDB := os.Getenv("CHRONICLE_DB")
	if defaultDB == "" {
		defaultDB = "chronicle.db"
	}
	root.PersistentFlags().StringVar(&opts.dbPath, "db", defaultDB, "path to the campaign database")
	root.PersistentFlags().StringVar(&opts.providerName, "provider", "ollama", "language model provider (ollama or claude)")
	root.PersistentFlags().StringVar(&opts.baseURL, "base-url", "", "provider base URL (ollama only)")
	root.PersistentFlags().StringVar(&opts.model, "model", "", "chat model name")
	root.PersistentFlags().StringVar(&opts.embedModel, "embed-model", "", "embedding model name")

	root.AddCommand(
		newStatsCommand(opts),
		newSearchCommand(opts),
		newRememberCommand(opts),
		newContextCommand(opts),
		newAskCommand(opts),
		newExportCommand(opts),
		newImportCommand(opts),
		newClearCommand(opts),
	)
	return root
}

// Execute runs the CLI.
func Execute() error {
	return NewRootCommand().Execute()
}
