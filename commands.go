package main

import (
	"commitment-wall/database"
	"commitment-wall/export"
	"commitment-wall/handlers"
	"commitment-wall/repository"
	"commitment-wall/views"
	"commitment-wall/wall"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the wall and its JSON API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	repo, err := openRepository(cmd)
	if err != nil {
		return err
	}
	defer database.Close(database.DB)

	a := newAnnotator()
	loop := wall.NewLoop(repo, a, cfg.SubmitDelay, logger.Named("wall"))

	app := fiber.New(fiber.Config{
		Views:     views.New(),
		BodyLimit: int(cfg.MaxVideoBytes) + 1024*1024,
		// Form values outlive the request once stored.
		Immutable: true,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New()) // Add basic request logging

	h := handlers.New(repo, loop, a, handlers.Options{
		MaxVideoBytes: cfg.MaxVideoBytes,
		ExportPrefix:  cfg.ExportPrefix,
	}, logger.Named("http"))
	h.SetupRoutes(app)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return loop.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("Starting server", zap.String("addr", cfg.Addr))
		return app.Listen(cfg.Addr)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		return app.ShutdownWithTimeout(10 * time.Second)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write every pledge to a CSV file",
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openRepository(cmd)
		if err != nil {
			return err
		}
		defer database.Close(database.DB)

		pledges, err := repo.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(pledges) == 0 {
			return export.ErrNoPledges
		}

		out := exportOut
		if out == "" {
			out = export.FileName(cfg.ExportPrefix, time.Now())
		}
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("failed to create '%s': %w", out, err)
		}
		if err := export.WriteCSV(f, pledges); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		logger.Info("Exported pledges", zap.String("file", out), zap.Int("count", len(pledges)))
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the wall, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := openRepository(cmd)
		if err != nil {
			return err
		}
		defer database.Close(database.DB)

		pledges, err := repo.List(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tCOMPANY\tCATEGORY\tIMPACT\tDATE")
		for _, p := range pledges {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Company, p.Category, p.AIImpactScore, p.Date)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		stats := repository.Summarize(pledges)
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d pledges, %d total impact\n", stats.Count, stats.TotalImpact)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output file (default: <prefix>_<date>.csv)")
}
