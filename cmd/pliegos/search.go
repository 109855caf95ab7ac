// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/pdiddy/pliegos/internal/bus"
	"github.com/pdiddy/pliegos/internal/sink"
	"github.com/pdiddy/pliegos/internal/sources"
	"github.com/pdiddy/pliegos/pkg/types"
)

const defaultSources = "bne,cordel,mapping,aracne"

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the catalogs and scrape every result page",
	Long: `Search builds the result-page URLs of each selected catalog, opens
one tab per page, and scrapes each page once it has settled. The run
finishes when every tab has reported or timed out; the aggregate is
stored as the last result.

With --open-only the tabs are opened without scraping. With --remote the
request goes over NATS to a "pliegos serve" process and the command polls
the shared store for the finished result.`,
	RunE: runSearch,
}

func init() {
	addSearchFlags(searchCmd.Flags())
	rootCmd.AddCommand(searchCmd)
}

func addSearchFlags(fs *pflag.FlagSet) {
	fs.String("query", "", "search terms (default: last query)")
	fs.String("sources", defaultSources, "comma-separated catalogs: "+catalogIDs()+" (default: last search)")
	fs.Int("pages", 0, "result pages per catalog (default: last search, then config)")
	fs.Bool("new-window", false, "open the tabs in a new browser window")
	fs.String("engine", "", "tab engine: chrome, container or http")
	fs.Bool("open-only", false, "open the tabs without scraping")
	fs.String("nats", "", "NATS server URL for the message bus")
	fs.Bool("remote", false, "send the search to a pliegos serve process over NATS")
}

func catalogIDs() string {
	ids := make([]string, len(types.AllSources))
	for i, id := range types.AllSources {
		ids[i] = string(id)
	}
	return strings.Join(ids, ",")
}

// searchInput is a search request after flags, arguments and the
// remembered search form have been merged.
type searchInput struct {
	query     string
	ids       []types.SourceID
	pages     int
	newWindow bool
	openOnly  bool
}

// state is the search form to remember for the next search.
func (in searchInput) state() sink.SearchState {
	mode := sink.OpenInTabs
	if in.newWindow {
		mode = sink.OpenInWindow
	}
	return sink.SearchState{
		Sources:        in.ids,
		OpenMode:       mode,
		Pagination:     in.pages > 1,
		PagesPerSource: in.pages,
		Scraping:       !in.openOnly,
	}
}

// resolveSearch merges the command line with the remembered form. Flags
// set on the command line win; unset flags fall back to the saved state,
// then to the configured defaults. With no query given, the last query
// is searched again.
func resolveSearch(flags *pflag.FlagSet, args []string, saved sink.SearchState, hasSaved bool, lastQuery string, defaultPages int) (searchInput, error) {
	var in searchInput

	in.query, _ = flags.GetString("query")
	if in.query == "" {
		in.query = strings.Join(args, " ")
	}
	in.query = strings.TrimSpace(in.query)
	if in.query == "" {
		in.query = strings.TrimSpace(lastQuery)
	}
	if in.query == "" {
		return searchInput{}, fmt.Errorf("provide search terms with --query or as arguments")
	}

	list, _ := flags.GetString("sources")
	switch {
	case flags.Changed("sources"):
		ids, err := sources.ParseIDs(list)
		if err != nil {
			return searchInput{}, err
		}
		in.ids = ids
	case hasSaved && knownSources(saved.Sources):
		in.ids = saved.Sources
	default:
		ids, err := sources.ParseIDs(defaultSources)
		if err != nil {
			return searchInput{}, err
		}
		in.ids = ids
	}

	in.pages = defaultPages
	if pages, _ := flags.GetInt("pages"); flags.Changed("pages") && pages > 0 {
		in.pages = pages
	} else if hasSaved {
		in.pages = 1
		if saved.Pagination && saved.PagesPerSource > 0 {
			in.pages = saved.PagesPerSource
		}
	}
	if in.pages < 1 {
		in.pages = 1
	}

	in.newWindow, _ = flags.GetBool("new-window")
	if !flags.Changed("new-window") && hasSaved {
		in.newWindow = saved.OpenMode == sink.OpenInWindow
	}

	in.openOnly, _ = flags.GetBool("open-only")
	if !flags.Changed("open-only") && hasSaved {
		in.openOnly = !saved.Scraping
	}
	return in, nil
}

// knownSources reports whether ids is a non-empty list of catalogs.
func knownSources(ids []types.SourceID) bool {
	for _, id := range ids {
		if !id.Known() {
			return false
		}
	}
	return len(ids) > 0
}

// loadSearchForm reads the remembered search form and query.
func loadSearchForm(ctx context.Context, store *sink.Store) (sink.SearchState, bool, string) {
	saved, ok, err := store.SearchState(ctx)
	if err != nil {
		logger.Warn("could not read saved search state", "err", err)
		ok = false
	}
	lastQuery, err := store.LastQuery(ctx)
	if err != nil {
		logger.Warn("could not read last query", "err", err)
	}
	return saved, ok, lastQuery
}

// rememberSearch stores the form and query of a search about to start.
func rememberSearch(ctx context.Context, store *sink.Store, in searchInput) {
	if err := store.SaveLastQuery(ctx, in.query); err != nil {
		logger.Warn("could not save query", "err", err)
	}
	if err := store.SaveSearchState(ctx, in.state()); err != nil {
		logger.Warn("could not save search state", "err", err)
	}
}

// countSearch adds a started search to the usage counters.
func countSearch(ctx context.Context, store *sink.Store, tabs int) {
	if _, err := store.RecordSearch(ctx, tabs); err != nil {
		logger.Warn("could not record search", "err", err)
	}
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg := pipelineConfig(cmd)
	if engine, _ := cmd.Flags().GetString("engine"); engine != "" {
		cfg.Browser.Engine = types.BrowserEngine(engine)
	}
	if natsURL, _ := cmd.Flags().GetString("nats"); natsURL != "" {
		cfg.Bus.NATSURL = natsURL
	}
	remote, _ := cmd.Flags().GetBool("remote")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	store, err := sink.Open(cfg.Sink)
	if err != nil {
		return err
	}
	defer store.Close()

	saved, hasSaved, lastQuery := loadSearchForm(ctx, store)
	in, err := resolveSearch(cmd.Flags(), args, saved, hasSaved, lastQuery, cfg.Scrape.PagesPerSource)
	if err != nil {
		return err
	}
	cfg.Scrape.PagesPerSource = in.pages
	rememberSearch(ctx, store, in)

	targets := sources.BuildURLs(in.ids, in.query, in.pages)
	msg := bus.Message{
		Action:    bus.ActionSearch,
		URLs:      sources.URLs(targets),
		NewWindow: in.newWindow,
		Query:     in.query,
		Sources:   sourceInfos(targets),
	}
	if in.openOnly {
		msg.Action = bus.ActionOpenTabs
	}

	if remote {
		return searchRemote(ctx, cfg, store, msg)
	}

	p, err := newPipeline(ctx, cfg, store, os.Stdout)
	if err != nil {
		return err
	}
	defer p.Close()

	resp, err := send(ctx, p.bus, msg, cfg.Scrape.JobTimeout)
	if err != nil {
		return err
	}
	countSearch(ctx, store, resp.TabsOpened)

	if in.openOnly {
		fmt.Fprintf(os.Stdout, "Opened %d tabs\n", resp.TabsOpened)
		if cfg.Browser.Engine == types.EngineChrome && !cfg.Browser.Headless {
			fmt.Fprintln(os.Stdout, "Press Ctrl-C to close the browser.")
			<-ctx.Done()
		}
		return nil
	}

	fmt.Fprintf(os.Stdout, "Scraping %d pages for %q (run %s)\n", resp.TabsOpened, in.query, resp.RunID)
	result, err := p.orch.Wait(ctx)
	if err != nil {
		return err
	}
	printSummary(os.Stdout, result)
	return nil
}

// searchRemote hands the search to a serving process and waits for the
// stored result to change, the way the popup learned a run was done.
func searchRemote(ctx context.Context, cfg types.PipelineConfig, store *sink.Store, msg bus.Message) error {
	if cfg.Bus.NATSURL == "" {
		return fmt.Errorf("--remote requires a NATS server (--nats or bus.nats_url)")
	}

	b, closeBus, err := openBus(cfg.Bus)
	if err != nil {
		return err
	}
	defer closeBus()

	poller := sink.NewPoller(store, cfg.Sink, nil)
	since, err := poller.Baseline(ctx)
	if err != nil {
		return err
	}

	resp, err := send(ctx, b, msg, cfg.Scrape.JobTimeout)
	if err != nil {
		return err
	}
	countSearch(ctx, store, resp.TabsOpened)
	if msg.Action == bus.ActionOpenTabs {
		fmt.Fprintf(os.Stdout, "Opened %d tabs\n", resp.TabsOpened)
		return nil
	}
	fmt.Fprintf(os.Stdout, "%s: %d pages (run %s)\n", resp.Message, resp.TabsOpened, resp.RunID)

	result, err := poller.WaitNewer(ctx, since)
	if errors.Is(err, sink.ErrPollExhausted) {
		return fmt.Errorf("no result yet; check later with \"pliegos last\": %w", err)
	}
	if err != nil {
		return err
	}
	printSummary(os.Stdout, result)
	return nil
}

// send delivers msg and treats an unsuccessful response as an error.
// Opening many tabs can take a while, so the request gets timeout.
func send(ctx context.Context, b bus.Bus, msg bus.Message, timeout time.Duration) (bus.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := b.Send(ctx, msg)
	if err != nil {
		return resp, fmt.Errorf("sending %s: %w", msg.Action, err)
	}
	if !resp.Success {
		return resp, fmt.Errorf("%s failed: %s", msg.Action, resp.Error)
	}
	return resp, nil
}
