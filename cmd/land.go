package cmd

import (
	"bufio"
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mywebintelligence/mwi/internal/dynmedia"
	"github.com/mywebintelligence/mwi/internal/media"
	"github.com/mywebintelligence/mwi/internal/pipeline"
	"github.com/mywebintelligence/mwi/internal/readable"
	"github.com/mywebintelligence/mwi/internal/relevance"
	"github.com/mywebintelligence/mwi/internal/store"
	"github.com/mywebintelligence/mwi/internal/worker"
)

func newLandCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "land",
		Short: "Create, inspect and process research lands",
	}
	cmd.AddCommand(
		newLandCreateCmd(),
		newLandListCmd(),
		newLandAddTermCmd(),
		newLandAddURLCmd(),
		newLandCrawlCmd(),
		newLandReadableCmd(),
		newLandConsolidateCmd(),
		newLandDeleteCmd(),
		newLandMedianalyseCmd(),
	)
	return cmd
}

func newLandCreateCmd() *cobra.Command {
	var name, desc, lang string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new land",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close(cmd.Context())

			land, err := rt.store.CreateLand(cmd.Context(), name, desc, lang)
			if err != nil {
				return fmt.Errorf("create land: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Land %q created (id %d, lang %s)\n", land.Name, land.ID, land.Lang)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "land name (required)")
	cmd.Flags().StringVar(&desc, "desc", "", "land description")
	cmd.Flags().StringVar(&lang, "lang", "fr", "land language code")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newLandListCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List lands with their dictionary and crawl counters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close(cmd.Context())

			lands, err := rt.store.ListLands(cmd.Context(), name)
			if err != nil {
				return fmt.Errorf("list lands: %w", err)
			}
			out := cmd.OutOrStdout()
			if len(lands) == 0 {
				fmt.Fprintln(out, "No land found")
				return nil
			}
			for _, l := range lands {
				fmt.Fprintf(out, "%s (%s)\n", l.Name, l.Lang)
				if l.Description != "" {
					fmt.Fprintf(out, "  %s\n", l.Description)
				}
				if len(l.Terms) > 0 {
					fmt.Fprintf(out, "  terms: %s\n", strings.Join(l.Terms, ", "))
				}
				fmt.Fprintf(out, "  expressions: %d (%d remaining to crawl)\n",
					l.ExpressionCount, l.RemainingToCrawl)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "restrict to one land")
	return cmd
}

func newLandAddTermCmd() *cobra.Command {
	var landName, terms string
	cmd := &cobra.Command{
		Use:   "addterm",
		Short: "Add dictionary terms to a land and re-score its pages",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close(cmd.Context())
			ctx := cmd.Context()

			land, err := rt.store.GetLand(ctx, landName)
			if err != nil {
				return fmt.Errorf("land %q: %w", landName, err)
			}
			stem := relevance.NewScorer(nil, land.Lang)
			added := 0
			for _, term := range splitList(terms) {
				word, err := rt.store.AddWordIfAbsent(ctx, term, stem.StemTerm(term))
				if err != nil {
					return fmt.Errorf("add term %q: %w", term, err)
				}
				if err := rt.store.LinkLandWord(ctx, land.ID, word.ID); err != nil {
					return fmt.Errorf("link term %q: %w", term, err)
				}
				added++
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d term(s) added to land %q\n", added, land.Name)

			// The dictionary changed, so stored pages get fresh scores.
			crawler := pipeline.NewCrawler(rt.store, rt.newFetcher(), nil, nil,
				pipeline.Config{MaxLinkDepth: rt.cfg.Crawl.MaxLinkDepth}, rt.log)
			stats, err := crawler.Rescore(ctx, land.Name)
			if err != nil {
				return fmt.Errorf("rescore: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d expression(s) re-scored, %d error(s)\n",
				stats.Processed, stats.Errors)
			return nil
		},
	}
	cmd.Flags().StringVar(&landName, "land", "", "land name (required)")
	cmd.Flags().StringVar(&terms, "terms", "", "comma-separated terms (required)")
	_ = cmd.MarkFlagRequired("land")
	_ = cmd.MarkFlagRequired("terms")
	return cmd
}

func newLandAddURLCmd() *cobra.Command {
	var landName, urls, path string
	cmd := &cobra.Command{
		Use:   "addurl",
		Short: "Add seed URLs to a land, from a comma list or a file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if urls == "" && path == "" {
				return fmt.Errorf("one of --urls or --path is required")
			}
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close(cmd.Context())
			ctx := cmd.Context()

			land, err := rt.store.GetLand(ctx, landName)
			if err != nil {
				return fmt.Errorf("land %q: %w", landName, err)
			}
			candidates := splitList(urls)
			if path != "" {
				fromFile, err := readURLFile(path)
				if err != nil {
					return err
				}
				candidates = append(candidates, fromFile...)
			}
			added, err := addSeedURLs(ctx, rt.store, land, candidates)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d URL(s) added to land %q\n", added, land.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&landName, "land", "", "land name (required)")
	cmd.Flags().StringVar(&urls, "urls", "", "comma-separated URLs")
	cmd.Flags().StringVar(&path, "path", "", "file with one URL per line")
	_ = cmd.MarkFlagRequired("land")
	return cmd
}

func newLandCrawlCmd() *cobra.Command {
	var name, httpFilter string
	var limit, depth int
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Fetch, score and expand the land's pending pages",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close(cmd.Context())
			ctx := cmd.Context()

			arch, err := rt.newArchive(ctx)
			if err != nil {
				return err
			}
			crawler := pipeline.NewCrawler(rt.store, rt.newFetcher(), rt.newGate(), arch,
				pipeline.Config{
					Parallel:     rt.cfg.Crawl.ParallelConnections,
					MaxLinkDepth: rt.cfg.Crawl.MaxLinkDepth,
				}, rt.log)
			opts := pipeline.Options{LandName: name, Limit: limit, HTTPFilter: httpFilter}
			if cmd.Flags().Changed("depth") {
				opts.Depth = &depth
			}

			processed, errCount, err := rt.trackRun(ctx, "crawl", name,
				func(ctx context.Context, runID [16]byte) (int, int, error) {
					crawler.Notify = func(e store.Expression, dur time.Duration) {
						rt.notifyPage(ctx, runID, name, e, dur)
					}
					stats, err := crawler.Crawl(ctx, opts)
					return stats.Processed, stats.Errors, err
				})
			if err != nil {
				return err
			}
			if rt.cfg.Crawl.DynamicMedia {
				if err := harvestDynamicMedia(ctx, rt, name); err != nil {
					rt.log.Warn("dynamic media harvest failed", zap.Error(err))
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d processed, %d errors\n", processed, errCount)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "land name (required)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum expressions to process")
	cmd.Flags().StringVar(&httpFilter, "http", "", "re-crawl only rows with this HTTP status")
	cmd.Flags().IntVar(&depth, "depth", 0, "restrict to expressions at or above this depth")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newLandReadableCmd() *cobra.Command {
	var name, merge string
	var limit, depth int
	cmd := &cobra.Command{
		Use:   "readable",
		Short: "Refine fetched pages into readable text and merge metadata",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close(cmd.Context())
			ctx := cmd.Context()

			var extractor readable.Extractor
			if rt.cfg.Readable.MercuryPath != "" {
				extractor = readable.NewMercury(rt.cfg.Readable.MercuryPath)
			} else {
				extractor = readable.NewBuiltin(time.Duration(rt.cfg.Readable.TimeoutSeconds) * time.Second)
			}
			refiner := readable.NewRefiner(rt.store, extractor, rt.newGate(), readable.Config{
				BatchSize:      rt.cfg.Readable.BatchSize,
				Retries:        rt.cfg.Readable.MaxRetries,
				AttemptTimeout: time.Duration(rt.cfg.Readable.TimeoutSeconds) * time.Second,
				MaxLinkDepth:   rt.cfg.Crawl.MaxLinkDepth,
			}, rt.log)

			strategy := merge
			if strategy == "" {
				strategy = rt.cfg.Readable.MergeStrategy
			}
			opts := readable.Options{LandName: name, Limit: limit, Strategy: readable.Strategy(strategy)}
			if cmd.Flags().Changed("depth") {
				opts.Depth = &depth
			}

			processed, errCount, err := rt.trackRun(ctx, "readable", name,
				func(ctx context.Context, _ [16]byte) (int, int, error) {
					stats, err := refiner.Refine(ctx, opts)
					return stats.Processed, stats.Errors, err
				})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d processed, %d errors\n", processed, errCount)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "land name (required)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum expressions to process")
	cmd.Flags().IntVar(&depth, "depth", 0, "restrict to expressions at or above this depth")
	cmd.Flags().StringVar(&merge, "merge", "", "merge strategy: smart_merge, mercury_priority or preserve_existing")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newLandConsolidateCmd() *cobra.Command {
	var name string
	var limit, depth int
	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: "Rebuild metadata, scores, links and media from archived HTML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close(cmd.Context())
			ctx := cmd.Context()

			arch, err := rt.newArchive(ctx)
			if err != nil {
				return err
			}
			crawler := pipeline.NewCrawler(rt.store, rt.newFetcher(), rt.newGate(), arch,
				pipeline.Config{
					Parallel:     rt.cfg.Crawl.ParallelConnections,
					MaxLinkDepth: rt.cfg.Crawl.MaxLinkDepth,
				}, rt.log)
			opts := pipeline.Options{LandName: name, Limit: limit}
			if cmd.Flags().Changed("depth") {
				opts.Depth = &depth
			}

			processed, errCount, err := rt.trackRun(ctx, "consolidate", name,
				func(ctx context.Context, _ [16]byte) (int, int, error) {
					stats, err := crawler.Consolidate(ctx, opts)
					return stats.Processed, stats.Errors, err
				})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d processed, %d errors\n", processed, errCount)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "land name (required)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum expressions to process")
	cmd.Flags().IntVar(&depth, "depth", 0, "restrict to expressions at or above this depth")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newLandDeleteCmd() *cobra.Command {
	var name string
	var maxrel float64
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a land, or only its expressions below a relevance bound",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pruneOnly := cmd.Flags().Changed("maxrel")
			prompt := fmt.Sprintf("Delete land %q and all its data?", name)
			if pruneOnly {
				prompt = fmt.Sprintf("Delete expressions of %q with relevance below %g?", name, maxrel)
			}
			if !yes && !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), prompt) {
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
				return nil
			}

			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close(cmd.Context())
			ctx := cmd.Context()

			if pruneOnly {
				land, err := rt.store.GetLand(ctx, name)
				if err != nil {
					return fmt.Errorf("land %q: %w", name, err)
				}
				deleted, err := rt.store.DeleteExpressionsBelowRelevance(ctx, land.ID, maxrel)
				if err != nil {
					return fmt.Errorf("delete expressions: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d expression(s) deleted\n", deleted)
				return nil
			}
			if err := rt.store.DeleteLand(ctx, name); err != nil {
				return fmt.Errorf("delete land: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Land %q deleted\n", name)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "land name (required)")
	cmd.Flags().Float64Var(&maxrel, "maxrel", 0, "delete only expressions with relevance below this bound")
	cmd.Flags().BoolVar(&yes, "yes", false, "skip the confirmation prompt")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newLandMedianalyseCmd() *cobra.Command {
	var name string
	var depth, minrel, limit int
	var reanalyze bool
	cmd := &cobra.Command{
		Use:   "medianalyse",
		Short: "Download and measure the land's image media",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close(cmd.Context())
			ctx := cmd.Context()

			mc := rt.cfg.Media
			analyzer, err := media.NewAnalyzer(rt.store, media.Config{
				Parallel:      rt.cfg.Crawl.ParallelConnections,
				MinWidth:      mc.MinWidth,
				MinHeight:     mc.MinHeight,
				MaxFileSize:   mc.MaxFileSize,
				Retries:       mc.MaxRetries,
				Timeout:       time.Duration(mc.DownloadTimeout) * time.Second,
				DenyPatterns:  mc.DenyPatterns,
				Colors:        mc.DominantColors,
				ExtractEXIF:   mc.ExtractEXIF,
				ExtractColors: mc.ExtractColors,
				TagContent:    mc.AnalyzeContent,
			}, rt.log)
			if err != nil {
				return err
			}

			processed, errCount, err := rt.trackRun(ctx, "medianalyse", name,
				func(ctx context.Context, _ [16]byte) (int, int, error) {
					stats, err := analyzer.Analyze(ctx, media.Options{
						LandName:     name,
						MaxDepth:     depth,
						MinRelevance: minrel,
						Reanalyze:    reanalyze,
						Limit:        limit,
					})
					return stats.Processed, stats.Errors, err
				})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d processed, %d errors\n", processed, errCount)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "land name (required)")
	cmd.Flags().IntVar(&depth, "depth", 0, "only media of expressions at or above this depth")
	cmd.Flags().IntVar(&minrel, "minrel", 0, "only media of expressions at or above this relevance")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum media rows to process")
	cmd.Flags().BoolVar(&reanalyze, "reanalyze", false, "include media that was already analyzed")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

// seedStore is the store surface needed to register seed URLs.
type seedStore interface {
	GetOrCreateDomain(ctx context.Context, host string) (store.Domain, error)
	UpsertExpression(ctx context.Context, landID, domainID int64, url string, depth int) (store.Expression, bool, error)
}

// addSeedURLs normalizes and records depth-0 expressions.
func addSeedURLs(ctx context.Context, st seedStore, land store.Land, rawURLs []string) (int, error) {
	added := 0
	for _, raw := range rawURLs {
		normalized, ok := pipeline.NormalizeURL(nil, raw)
		if !ok {
			continue
		}
		u, err := url.Parse(normalized)
		if err != nil {
			continue
		}
		domain, err := st.GetOrCreateDomain(ctx, u.Hostname())
		if err != nil {
			return added, fmt.Errorf("domain for %q: %w", raw, err)
		}
		if _, created, err := st.UpsertExpression(ctx, land.ID, domain.ID, normalized, 0); err != nil {
			return added, fmt.Errorf("add url %q: %w", raw, err)
		} else if created {
			added++
		}
	}
	return added, nil
}

func readURLFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open url file: %w", err)
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			out = append(out, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read url file: %w", err)
	}
	return out, nil
}

// harvestDynamicMedia renders the land's relevant fetched pages in
// headless Chrome and records media injected by JavaScript.
func harvestDynamicMedia(ctx context.Context, rt *runtime, landName string) error {
	land, err := rt.store.GetLand(ctx, landName)
	if err != nil {
		return err
	}
	items, err := rt.store.ListExpressionsForConsolidation(ctx, store.ExpressionQuery{LandID: land.ID})
	if err != nil {
		return err
	}
	relevant := items[:0]
	for _, e := range items {
		if e.Relevance > 0 {
			relevant = append(relevant, e)
		}
	}
	if len(relevant) == 0 {
		return nil
	}

	extractor, err := dynmedia.New(dynmedia.Config{
		MaxParallel:       rt.cfg.Crawl.DynamicMaxParallel,
		UserAgent:         rt.cfg.UserAgent,
		NavigationTimeout: time.Duration(rt.cfg.Crawl.DynamicNavTimeout) * time.Second,
	}, rt.log)
	if err != nil {
		return err
	}
	defer extractor.Close()

	parallel := rt.cfg.Crawl.DynamicMaxParallel
	if parallel <= 0 {
		parallel = 1
	}
	errCount, err := worker.Windows(ctx, parallel, relevant,
		func(ctx context.Context, e store.Expression) error {
			_, err := extractor.Augment(ctx, rt.store, e)
			return err
		},
		func(done, total int) {
			rt.log.Info("dynamic media progress", zap.Int("done", done), zap.Int("total", total))
		})
	if errCount > 0 {
		rt.log.Warn("dynamic media errors", zap.Int("errors", errCount))
	}
	return err
}
