// Command execution for CLI commands.
//
// Information Hiding:
// - Component wiring (transport, dispatcher, resolver, stores) hidden
// - Output formatting hidden

package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/richinex/tabula/agent"
	"github.com/richinex/tabula/budget"
	"github.com/richinex/tabula/config"
	"github.com/richinex/tabula/dispatch"
	"github.com/richinex/tabula/embed"
	"github.com/richinex/tabula/intent"
	"github.com/richinex/tabula/llm"
	"github.com/richinex/tabula/mcp"
	"github.com/richinex/tabula/refstore"
	"github.com/richinex/tabula/session"
	"github.com/richinex/tabula/synth"
)

// Options holds CLI execution options.
type Options struct {
	// MCPServer is the server command, e.g. "npx -y airtable-mcp-server".
	MCPServer string
	// MCPConfig is a path to an mcpServers config file.
	MCPConfig string
	// MCPServerName selects a server from the config file.
	MCPServerName string
	// Provider names an optional chat LLM for classification fallback and
	// answer narration.
	Provider string
	// Corpus is a path to reference documentation to ground queries with.
	Corpus string
	Verbose bool
}

// defaultCachePath is the embedding cache location.
const defaultCachePath = ".tabula/embeddings.db"

// runtime holds the wired pipeline for one CLI invocation.
type runtime struct {
	agent    *agent.Agent
	client   *mcp.Client
	sessions session.Store
	cleanup  []func()
}

func (r *runtime) close() {
	if r.client != nil {
		_ = r.client.Close() // Intentionally ignore - cleanup
	}
	for _, fn := range r.cleanup {
		fn()
	}
}

// build wires settings, transport, and pipeline components.
func build(ctx context.Context, opts Options) (*runtime, error) {
	settings, err := config.New()
	if err != nil {
		return nil, err
	}

	client, err := connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	rt := &runtime{client: client}

	dispatcher := dispatch.New(mcp.NewTransport(client), dispatch.Options{
		MaxConcurrency: settings.Remote.MaxConcurrency,
		MaxAttempts:    settings.Remote.MaxAttempts,
		BatchCeiling:   settings.Remote.BatchCeiling,
		RatePerSecond:  settings.Remote.RatePerSecond,
		RateBurst:      settings.Remote.RateBurst,
		CacheTTL:       settings.Remote.CacheTTL,
	})

	resolver := intent.NewResolver(intent.DefaultOptions())
	synthesizer := synth.New()
	narrate := false
	if opts.Provider != "" {
		assist, err := llm.FromEnv(opts.Provider, "")
		if err != nil {
			rt.close()
			return nil, err
		}
		assistClient := llm.NewClient(assist)
		resolver = resolver.WithAssist(assistClient)
		synthesizer = synthesizer.WithAssist(assistClient)
		narrate = true
	}

	rt.sessions = session.NewMemoryStore()
	if settings.Session.SqlitePath != "" {
		store, err := session.OpenSqlite(settings.Session.SqlitePath)
		if err != nil {
			rt.close()
			return nil, fmt.Errorf("failed to open session store: %w", err)
		}
		rt.cleanup = append(rt.cleanup, func() { _ = store.Close() })
		rt.sessions = store
	}

	rt.agent = agent.New(resolver, dispatcher, synthesizer, rt.sessions).WithNarration(narrate)

	if opts.Corpus != "" {
		selector, cleanup, err := buildSelector(ctx, opts.Corpus, settings, opts.Verbose)
		if err != nil {
			rt.close()
			return nil, err
		}
		rt.cleanup = append(rt.cleanup, cleanup)
		rt.agent = rt.agent.WithSelector(selector)
	}

	return rt, nil
}

// connect starts the MCP server from the flag or config file.
func connect(ctx context.Context, opts Options) (*mcp.Client, error) {
	command := opts.MCPServer
	var env map[string]string

	if command == "" && opts.MCPConfig != "" {
		cfg, err := mcp.LoadConfig(opts.MCPConfig)
		if err != nil {
			return nil, err
		}
		server, err := cfg.Server(opts.MCPServerName)
		if err != nil {
			return nil, err
		}
		command = strings.Join(append([]string{server.Command}, server.Args...), " ")
		env = server.Env
	}
	if command == "" {
		return nil, fmt.Errorf("--mcp or --mcp-config is required")
	}

	for key, value := range env {
		os.Setenv(key, value)
	}

	parts := strings.Fields(command)
	client, err := mcp.NewClient(ctx, parts[0], parts[1:]...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MCP server: %w", err)
	}
	return client, nil
}

// buildSelector indexes the corpus and returns a grounding selector.
func buildSelector(ctx context.Context, corpusPath string, settings config.Settings, verbose bool) (*budget.Selector, func(), error) {
	embedder, err := embed.FromEnv(settings.Embed.Provider, settings.Embed.Model)
	if err != nil {
		return nil, nil, err
	}

	cache, err := refstore.OpenSqliteCache(defaultCachePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open embedding cache: %w", err)
	}
	cleanup := func() { _ = cache.Close() }

	store := refstore.NewStore()
	content, err := os.ReadFile(corpusPath)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to read corpus: %w", err)
	}
	if err := store.IndexMarkdown(ctx, string(content), corpusName(corpusPath), embedder, cache); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to index corpus: %w", err)
	}
	if verbose {
		fmt.Printf("Indexed %d chunks from %s\n", store.Len(), corpusPath)
	}

	selector := budget.NewSelector(store, embedder, budget.Options{
		RelevanceThreshold: settings.Budget.RelevanceThreshold,
	})
	return selector, cleanup, nil
}

// corpusName derives a chunk source tag from the corpus path.
func corpusName(path string) string {
	base := path
	if idx := strings.LastIndexByte(base, '/'); idx >= 0 {
		base = base[idx+1:]
	}
	return strings.TrimSuffix(base, ".md")
}

// RunQuery executes a single query and prints the answer.
func RunQuery(ctx context.Context, query, sessionID string, opts Options) error {
	rt, err := build(ctx, opts)
	if err != nil {
		return err
	}
	defer rt.close()

	resp, err := rt.agent.Query(ctx, agent.Request{Query: query, SessionID: sessionID})
	if err != nil {
		return err
	}
	printResponse(resp, opts.Verbose)
	if !resp.Success {
		return fmt.Errorf("query did not complete successfully")
	}
	return nil
}

// Chat starts an interactive session against one persistent session ID.
func Chat(ctx context.Context, sessionID string, opts Options) error {
	rt, err := build(ctx, opts)
	if err != nil {
		return err
	}
	defer rt.close()

	if sessionID == "" {
		sessionID = "default"
	}
	fmt.Printf("Chat session '%s'. Type 'exit' to quit.\n\n", sessionID)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}

		resp, err := rt.agent.Query(ctx, agent.Request{Query: input, SessionID: sessionID})
		if err != nil {
			fmt.Fprintf(os.Stderr, "\nError: %v\n\n", err)
			continue
		}
		fmt.Println()
		printResponse(resp, opts.Verbose)
		fmt.Println()
	}

	return scanner.Err()
}

// Index embeds a corpus into the cache so later runs skip recomputation.
func Index(ctx context.Context, corpusPath string, opts Options) error {
	settings, err := config.New()
	if err != nil {
		return err
	}

	embedder, err := embed.FromEnv(settings.Embed.Provider, settings.Embed.Model)
	if err != nil {
		return err
	}

	cache, err := refstore.OpenSqliteCache(defaultCachePath)
	if err != nil {
		return fmt.Errorf("failed to open embedding cache: %w", err)
	}
	defer cache.Close()

	content, err := os.ReadFile(corpusPath)
	if err != nil {
		return fmt.Errorf("failed to read corpus: %w", err)
	}

	store := refstore.NewStore()
	if err := store.IndexMarkdown(ctx, string(content), corpusName(corpusPath), embedder, cache); err != nil {
		return fmt.Errorf("failed to index corpus: %w", err)
	}

	fmt.Printf("Indexed %d chunks from %s (cache: %s)\n", store.Len(), corpusPath, defaultCachePath)
	return nil
}

// ListTools connects to the MCP server and prints its tool surface.
func ListTools(ctx context.Context, opts Options) error {
	client, err := connect(ctx, opts)
	if err != nil {
		return err
	}
	defer client.Close()

	tools, err := client.ListTools(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Available tools (%d):\n\n", len(tools))
	for _, tool := range tools {
		fmt.Printf("  %s\n", tool.Name)
		if opts.Verbose && tool.Description != nil {
			fmt.Printf("    %s\n", *tool.Description)
		}
	}
	return nil
}

// printResponse renders a query response.
func printResponse(resp agent.Response, verbose bool) {
	fmt.Println(resp.Answer)

	if verbose {
		fmt.Println("\n--- Operations ---")
		for _, op := range resp.Operations {
			status := op.Status
			if op.CacheHit {
				status += " (cached)"
			}
			fmt.Printf("[%s] %s\n", status, op.Summary)
		}
		meta := resp.Metadata
		fmt.Printf("\nRemote calls: %d, cache hits: %d, retries: %d, grounding: %d chunks (%d tokens), elapsed: %dms\n",
			meta.RemoteCalls, meta.CacheHits, meta.Retries,
			meta.GroundingChunks, meta.GroundingTokens, meta.ElapsedMs)
	}

	for _, errText := range resp.Errors {
		fmt.Fprintf(os.Stderr, "Error: %s\n", errText)
	}
}
