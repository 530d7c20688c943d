package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"paretodesk/internal/config"
	"paretodesk/internal/logging"
	"paretodesk/internal/material"
	"paretodesk/internal/optimizer"
	"paretodesk/internal/server"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "paretodesk",
		Short:         "Explore optimizer Pareto fronts and pick materials",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newAdviseCmd(), newMaterialsCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides PARETODESK_ADDR)")
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	logger, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	if !strings.EqualFold(cfg.LogLevel, "debug") {
		gin.SetMode(gin.ReleaseMode)
	}

	client := optimizer.New(cfg.OptimizerURL, cfg.OptimizerTimeout)
	srv := server.NewServer(cfg, client, logger)
	defer srv.Close()

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       0,
		WriteTimeout:      0,
		IdleTimeout:       120 * time.Second,
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr, "optimizer", cfg.OptimizerURL)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func newAdviseCmd() *cobra.Command {
	var (
		q      material.Query
		env    string
		budget string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "advise",
		Short: "Recommend a material for a load, environment and budget",
		RunE: func(cmd *cobra.Command, args []string) error {
			q.Environment = material.Environment(env)
			q.Budget = material.Budget(budget)
			advice, err := material.NewAdvisor(nil).Advise(q)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), advice)
			}
			printAdvice(cmd.OutOrStdout(), advice)
			return nil
		},
	}
	cmd.Flags().Float64Var(&q.Load, "load", 0, "applied load in newtons")
	cmd.Flags().StringVar(&env, "environment", string(material.General), "general, medical, industrial or outdoor")
	cmd.Flags().StringVar(&budget, "budget", string(material.Medium), "low, medium or high")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the advice as JSON")
	_ = cmd.MarkFlagRequired("load")
	return cmd
}

func printAdvice(w io.Writer, a material.Advice) {
	r := a.Recommendation
	fmt.Fprintf(w, "Recommended: %s (%s)\n", r.Profile.DisplayName, r.Material)
	section := func(title string, lines []string) {
		if len(lines) == 0 {
			return
		}
		fmt.Fprintf(w, "\n%s:\n", title)
		for _, l := range lines {
			fmt.Fprintf(w, "  - %s\n", l)
		}
	}
	section("Why", r.Rationale)
	section("Design tips", r.DesignTips)
	section("Warnings", r.Warnings)
	if len(r.Alternatives) > 0 {
		fmt.Fprintln(w, "\nAlternatives:")
		for _, alt := range r.Alternatives {
			fmt.Fprintf(w, "  - %s: %s\n", alt.Material, alt.Reason)
		}
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MATERIAL\tSAFETY FACTOR\tCOST/KG\tCO2/KG\tSUITABILITY")
	for _, row := range a.Comparison {
		fmt.Fprintf(tw, "%s\t%.2f\t%.0f\t%.1f\t%s\n", row.DisplayName, row.SafetyFactor, row.CostPerKg, row.CO2PerKg, row.Suitability)
	}
	_ = tw.Flush()
}

func newMaterialsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "materials",
		Short: "List the material catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			all := material.Default().All()
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), all)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tNAME\tYIELD MPa\tDENSITY g/cm3\tCOST/KG\tMETHOD")
			for _, m := range all {
				fmt.Fprintf(tw, "%s\t%s\t%.0f\t%.2f\t%.0f\t%s\n", m.Key, m.DisplayName, m.YieldStrength, m.Density, m.CostPerKg, m.ManufacturingMethod)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the catalog as JSON")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
