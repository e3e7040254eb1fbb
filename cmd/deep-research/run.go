package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mikeboe/deep-research/pkg/clients"
	"github.com/mikeboe/deep-research/pkg/config"
	"github.com/mikeboe/deep-research/pkg/research"
)

type runFlags struct {
	topic       string
	breadth     int
	depth       int
	strategy    string
	output      string
	noQuestions bool
}

func newRunCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Research a topic and write a report",
		Long: `Research a topic and write a Markdown report.

Without --topic the topic is read from stdin. Unless --no-questions is set, a few
clarifying questions are asked first; an empty answer accepts the suggested one.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResearch(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), f)
		},
	}
	cmd.Flags().StringVarP(&f.topic, "topic", "t", "", "The research topic")
	cmd.Flags().IntVarP(&f.breadth, "breadth", "b", research.DefaultBreadth, "Queries per research stage (3-10)")
	cmd.Flags().IntVarP(&f.depth, "depth", "d", research.DefaultDepth, "Follow-up rounds (1-5)")
	cmd.Flags().StringVarP(&f.strategy, "strategy", "s", "", "Research strategy: plan or frontier (default from STRATEGY)")
	cmd.Flags().StringVarP(&f.output, "output", "o", "report.md", "Where to write the report")
	cmd.Flags().BoolVar(&f.noQuestions, "no-questions", false, "Skip the clarifying questions")
	return cmd
}

func newPlanCmd() *cobra.Command {
	var topic string
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print a research plan for a topic as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(topic) == "" {
				return errors.New("--topic is required")
			}
			cfg := config.Load()
			engine, err := newEngine(cmd.Context(), cfg, newLogger(cfg))
			if err != nil {
				return err
			}
			plan := engine.GeneratePlan(cmd.Context(), topic, nil)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(plan)
		},
	}
	cmd.Flags().StringVarP(&topic, "topic", "t", "", "The research topic")
	return cmd
}

func runResearch(ctx context.Context, stdin io.Reader, out io.Writer, f runFlags) error {
	cfg := config.Load()
	logger := newLogger(cfg)
	in := bufio.NewReader(stdin)

	topic := strings.TrimSpace(f.topic)
	if topic == "" {
		fmt.Fprint(out, "What would you like to research? ")
		line, err := readLine(in)
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		topic = line
	}
	if topic == "" {
		return errors.New("topic cannot be empty")
	}

	strategy := f.strategy
	if strategy == "" {
		strategy = cfg.Strategy
	}
	req := research.Request{Topic: topic, Breadth: f.breadth, Depth: f.depth, Strategy: strategy}
	if err := req.Validate(); err != nil {
		return err
	}

	engine, err := newEngine(ctx, cfg, logger)
	if err != nil {
		return err
	}

	if !f.noQuestions {
		questions, err := engine.GenerateQuestions(ctx, topic, f.breadth, f.depth)
		if err != nil {
			logger.Warn("Skipping clarifying questions", "error", err)
		} else {
			req.Answers = askQuestions(in, out, questions)
		}
	}

	if strings.EqualFold(strategy, research.StrategyPlan) {
		plan := engine.GeneratePlan(ctx, topic, req.Answers)
		printPlan(out, plan)
		req.Plan = &plan
	}

	obs := research.ObserverFunc(func(p research.Progress) {
		fmt.Fprintf(out, "[%3d%%] %d/%d %s\n", p.Percent, p.Completed, p.Total, p.Label)
	})
	res, runErr := engine.Run(ctx, req, obs)
	if runErr != nil {
		if len(res.Learnings) == 0 {
			return runErr
		}
		if errors.Is(runErr, research.ErrRateLimited) {
			fmt.Fprintln(out, "The search provider is rate limiting requests; writing a report from what was gathered so far. Try again later for a complete run.")
		} else if ctx.Err() != nil {
			return writePartial(out, f.output, res, runErr)
		} else {
			return runErr
		}
	}

	fmt.Fprintln(out, "Writing final report...")
	report, err := engine.WriteReport(ctx, research.ReportPrompt(topic, req.Answers), res.Learnings, res.VisitedURLs)
	if err != nil {
		return writePartial(out, f.output, res, err)
	}
	if err := os.WriteFile(f.output, []byte(report), 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	fmt.Fprintf(out, "Report written to %s (%d learnings, %d sources)\n", f.output, len(res.Learnings), len(res.VisitedURLs))
	return runErr
}

// writePartial saves the learnings of an interrupted run next to the report.
func writePartial(out io.Writer, output string, res research.Result, cause error) error {
	path := output + ".partial.md"
	var b strings.Builder
	b.WriteString("# Partial research learnings\n\n")
	for _, l := range res.Learnings {
		b.WriteString("- ")
		b.WriteString(l)
		b.WriteString("\n")
	}
	b.WriteString(research.SourcesSection(res.VisitedURLs))
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return errors.Join(cause, fmt.Errorf("failed to write partial learnings: %w", err))
	}
	fmt.Fprintf(out, "Saved %d learnings to %s\n", len(res.Learnings), path)
	return cause
}

func newEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*research.Engine, error) {
	gen, err := clients.Generator(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	provider, err := clients.SearchProvider(cfg)
	if err != nil {
		return nil, err
	}
	return research.NewEngine(gen, provider, cfg.ResearchOptions(), research.WithLogger(logger)), nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	return logger
}

func printPlan(out io.Writer, plan research.Plan) {
	fmt.Fprintf(out, "\n%s\n", plan.Title)
	for i, s := range plan.Sections {
		fmt.Fprintf(out, "  %d. %s (%d queries)\n", i+1, s.Heading, len(s.Queries))
	}
	fmt.Fprintln(out)
}
