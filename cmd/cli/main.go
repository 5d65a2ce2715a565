package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chatter-agent/internal/ai"
	"github.com/chatter-agent/internal/bootstrap"
	"github.com/chatter-agent/internal/service"
	"github.com/chatter-agent/internal/storage"
	"github.com/chatter-agent/pkg/ratelimit"
)

var (
	cfgFile    string
	ticker     string
	days       int
	sourceName string
	limit      int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "chatter",
		Short: "Market chatter ingestion CLI",
		Long:  `One-shot commands for ingesting, inspecting and digesting market chatter.`,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")

	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest chatter for a ticker",
		RunE:  runIngest,
	}
	ingestCmd.Flags().StringVar(&ticker, "ticker", "", "ticker symbol (required)")
	ingestCmd.Flags().IntVar(&days, "days", 0, "lookback window in days (default from config)")
	ingestCmd.Flags().StringVar(&sourceName, "source", "", "restrict to one source")
	ingestCmd.MarkFlagRequired("ticker")

	tickersCmd := &cobra.Command{
		Use:   "tickers",
		Short: "Show the active ticker working set",
		RunE:  runTickers,
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show scheduler status",
		RunE:  runStatus,
	}

	chatterCmd := &cobra.Command{
		Use:   "chatter",
		Short: "Show stored chatter for a ticker",
		RunE:  runChatter,
	}
	chatterCmd.Flags().StringVar(&ticker, "ticker", "", "ticker symbol (required)")
	chatterCmd.Flags().IntVar(&days, "days", 7, "lookback window in days")
	chatterCmd.Flags().StringVar(&sourceName, "source", "", "filter by source")
	chatterCmd.Flags().IntVar(&limit, "limit", 50, "maximum records")
	chatterCmd.MarkFlagRequired("ticker")

	summaryCmd := &cobra.Command{
		Use:   "summary",
		Short: "Show aggregate chatter statistics for a ticker",
		RunE:  runSummary,
	}
	summaryCmd.Flags().StringVar(&ticker, "ticker", "", "ticker symbol (required)")
	summaryCmd.Flags().IntVar(&days, "days", 7, "lookback window in days")
	summaryCmd.MarkFlagRequired("ticker")

	digestCmd := &cobra.Command{
		Use:   "digest",
		Short: "Generate an AI digest of recent chatter for a ticker",
		RunE:  runDigest,
	}
	digestCmd.Flags().StringVar(&ticker, "ticker", "", "ticker symbol (required)")
	digestCmd.Flags().IntVar(&days, "days", 7, "lookback window in days")
	digestCmd.MarkFlagRequired("ticker")

	rootCmd.AddCommand(ingestCmd, tickersCmd, statusCmd, chatterCmd, summaryCmd, digestCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup bootstraps the application without the background scheduler
func setup(ctx context.Context) (*bootstrap.Result, *service.Service, error) {
	app, err := bootstrap.Bootstrap(ctx, bootstrap.Options{ConfigPath: cfgFile})
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap failed: %w", err)
	}
	svc := service.New(app.Orchestrator, app.Scheduler, app.Repo, app.Log)
	return app, svc, nil
}

// printResponse renders the envelope and fails the command on error
// status so exit codes stay useful in scripts
func printResponse(resp service.Response) error {
	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	if resp.Status == service.StatusError {
		return fmt.Errorf("%s", resp.Message)
	}
	return nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	app, svc, err := setup(ctx)
	if err != nil {
		return err
	}
	defer app.Repo.Close()

	if sourceName != "" {
		return printResponse(svc.IngestTickerSource(ctx, ticker, sourceName, days))
	}
	return printResponse(svc.IngestTicker(ctx, ticker, days))
}

func runTickers(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	app, svc, err := setup(ctx)
	if err != nil {
		return err
	}
	defer app.Repo.Close()

	return printResponse(svc.ActiveTickers(ctx))
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	app, svc, err := setup(ctx)
	if err != nil {
		return err
	}
	defer app.Repo.Close()

	return printResponse(svc.SchedulerStatus(ctx))
}

func runChatter(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	app, svc, err := setup(ctx)
	if err != nil {
		return err
	}
	defer app.Repo.Close()

	return printResponse(svc.RecentChatter(ctx, storage.ChatterFilter{
		Ticker: ticker,
		Source: sourceName,
		Days:   days,
		Limit:  limit,
	}))
}

func runSummary(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	app, svc, err := setup(ctx)
	if err != nil {
		return err
	}
	defer app.Repo.Close()

	return printResponse(svc.ChatterSummary(ctx, ticker, days))
}

func runDigest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	app, _, err := setup(ctx)
	if err != nil {
		return err
	}
	defer app.Repo.Close()

	if !app.Config.Anthropic.Available() {
		return fmt.Errorf("digest requires CHATTER_ANTHROPIC_API_KEY")
	}

	records, err := app.Repo.RecentChatter(ctx, storage.ChatterFilter{
		Ticker: ticker,
		Days:   days,
		Limit:  100,
	})
	if err != nil {
		return fmt.Errorf("failed to load chatter: %w", err)
	}
	if len(records) == 0 {
		fmt.Printf("No chatter stored for %s in the last %d days\n", ticker, days)
		return nil
	}

	client := ai.NewClient(app.Config.Anthropic, ratelimit.NewDefaultLimiter(), app.Log)
	summarizer := ai.NewDigestSummarizer(client)

	digest, err := summarizer.Summarize(ctx, ticker, records)
	if err != nil {
		return fmt.Errorf("digest generation failed: %w", err)
	}

	fmt.Println(digest)
	return nil
}
