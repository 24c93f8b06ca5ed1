package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/AshAI-Sys/Ash-AI-sub011/internal/config"
	internal_events "github.com/AshAI-Sys/Ash-AI-sub011/internal/events"
	internal_http "github.com/AshAI-Sys/Ash-AI-sub011/internal/http"
	"github.com/AshAI-Sys/Ash-AI-sub011/internal/log"
	internal_storage "github.com/AshAI-Sys/Ash-AI-sub011/internal/storage"
	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/events"
	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/models"
	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/service"
	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/storage"
	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/templates"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func SetupCLI(rootCmd *cobra.Command) {
	rootCmd.PersistentFlags().String("templates", "", "CSV file with additional or replacement routings (default $TEMPLATES_CSV)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the routing API and the periodic production monitor",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
	serveCmd.Flags().String("port", "", "HTTP port (default $HTTP_PORT or 8080)")
	serveCmd.Flags().String("db", "", "Database connection string; in-memory stores are used when empty (default $DATABASE_URL)")

	planCmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the routing steps and backward schedule for an order",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			method, _ := cmd.Flags().GetString("method")
			quantity, _ := cmd.Flags().GetInt("quantity")
			target, _ := cmd.Flags().GetString("target")
			targetDate, err := parseTarget(target, time.Now())
			if err != nil {
				return err
			}
			reg, err := loadRegistry(cfg.TemplatesCSV)
			if err != nil {
				return err
			}
			return printPlan(cmd.OutOrStdout(), reg, models.ProductionMethod(strings.ToUpper(method)), quantity, targetDate)
		},
	}
	planCmd.Flags().String("method", "", "Production method, e.g. SILKSCREEN")
	planCmd.Flags().Int("quantity", 1, "Pieces ordered")
	planCmd.Flags().String("target", "168h", "Target date (RFC3339) or duration from now")
	_ = planCmd.MarkFlagRequired("method")

	templatesCmd := &cobra.Command{
		Use:   "templates",
		Short: "List the production methods and their routing steps",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			reg, err := loadRegistry(cfg.TemplatesCSV)
			if err != nil {
				return err
			}
			return printTemplates(cmd.OutOrStdout(), reg)
		},
	}

	rootCmd.AddCommand(serveCmd, planCmd, templatesCmd)
}

// loadConfig reads the environment and applies flag overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if v, _ := cmd.Flags().GetString("templates"); v != "" {
		cfg.TemplatesCSV = v
	}
	if f := cmd.Flags().Lookup("port"); f != nil && f.Value.String() != "" {
		cfg.HTTPPort = f.Value.String()
	}
	if f := cmd.Flags().Lookup("db"); f != nil && f.Value.String() != "" {
		cfg.DatabaseURL = f.Value.String()
	}
	log.Configure(cfg.LogLevel, cfg.LogFormat)
	return cfg, nil
}

// loadRegistry returns the built-in catalog, overlaid with the CSV routings when a file is given.
func loadRegistry(csvPath string) (*templates.Registry, error) {
	if csvPath == "" {
		return templates.Default(), nil
	}
	overlay, err := templates.LoadCSV(csvPath)
	if err != nil {
		return nil, err
	}
	reg, err := templates.NewRegistry(templates.Merge(templates.DefaultCatalog(), overlay))
	if err != nil {
		return nil, errors.WithMessagef(err, "invalid routings in %s", csvPath)
	}
	log.GetLogger().Infof("Loaded %d routings from %s", len(overlay), csvPath)
	return reg, nil
}

func parseTarget(s string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return time.Time{}, errors.Errorf("target %q is neither RFC3339 nor a duration", s)
	}
	return now.Add(d), nil
}

func openStores(ctx context.Context, dbURL string) (storage.Store, storage.SampleStore, func(), error) {
	if dbURL == "" {
		log.GetLogger().Warnf("No database configured, using in-memory stores")
		return storage.NewMemoryStore(), storage.NewMemorySampleStore(), func() {}, nil
	}
	store, samples, err := internal_storage.InitStores(ctx, dbURL)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "failed to initialize store")
	}
	return store, samples, func() {
		samples.Close()
		if err := store.Close(); err != nil {
			log.GetLogger().Errorf("Failed to close store: %v", err)
		}
	}, nil
}

func serve(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger := log.GetLogger()

	reg, err := loadRegistry(cfg.TemplatesCSV)
	if err != nil {
		return err
	}
	store, samples, closeStores, err := openStores(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer closeStores()

	bus := events.NewBus()
	defer bus.Close()
	if err := bus.SubscribeAll(func(_ context.Context, ev events.Event) error {
		logger.Debugf("Event %s order=%s steps=%v unit=%s", ev.Key, ev.OrderID, ev.StepIDs, ev.ScanCode)
		return nil
	}); err != nil {
		return err
	}
	if cfg.AMQPURL != "" {
		conn, err := internal_events.Dial(cfg.AMQPURL)
		if err != nil {
			return errors.Wrap(err, "failed to connect to AMQP broker")
		}
		defer conn.Close()
		if err := internal_events.NewAMQPForwarder(conn.Channel(), logger).Attach(bus); err != nil {
			return err
		}
		logger.Infof("Forwarding events to exchange %s", internal_events.Exchange)
	}

	engine := service.NewEngine(store, samples, reg, logger,
		service.WithPublisher(bus),
		service.WithAlertTTL(cfg.AlertTTL),
		service.WithTotalMachines(cfg.TotalMachines),
		service.WithWorkspaceLogger(func(ws string) service.Logger { return log.WithWorkspace(ws) }),
	)
	runner := service.NewMonitorRunner(ctx, engine, cfg.MonitorWorkspaces, cfg.MonitorInterval, nil, logger)
	runner.Start(cfg.MonitorWorkers)
	defer runner.Stop()

	return internal_http.StartServer(ctx, cfg.HTTPPort, engine)
}

func printPlan(out io.Writer, reg *templates.Registry, method models.ProductionMethod, quantity int, target time.Time) error {
	engine := service.NewEngine(storage.NewMemoryStore(), storage.NewMemorySampleStore(), reg, log.GetLogger())
	plan, err := engine.CreateOrder(context.Background(), service.OrderRequest{
		Reference:  "plan",
		Method:     method,
		Quantity:   quantity,
		TargetDate: target,
		Actor:      "cli",
	})
	if err != nil {
		return err
	}

	names := make(map[string]string, len(plan.Steps))
	for _, s := range plan.Steps {
		names[s.ID] = s.Name
	}
	fmt.Fprintf(out, "%s order, %d pcs, target %s\n", method, quantity, target.Format(time.RFC3339))
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tSTEP\tWORKCENTER\tDURATION\tLATEST START\tDUE BY\tAFTER\tSTATUS")
	for _, s := range plan.Steps {
		after := make([]string, len(s.Predecessors))
		for i, id := range s.Predecessors {
			after[i] = names[id]
		}
		deps := strings.Join(after, " + ")
		if len(after) > 1 && s.Join == models.JoinAny {
			deps = strings.Join(after, " | ")
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n", s.Sequence, s.Name, s.Workcenter, s.Duration,
			s.LatestStart().Format(time.RFC3339), s.DueBy.Format(time.RFC3339), deps, s.Status)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if plan.Order.ScheduleAtRisk {
		fmt.Fprintf(out, "Schedule at risk: %d steps should already have started\n", len(plan.Warnings))
		for _, warn := range plan.Warnings {
			fmt.Fprintf(out, "- %s\n", warn.Message)
		}
	}
	return nil
}

func printTemplates(out io.Writer, reg *templates.Registry) error {
	for _, method := range reg.Methods() {
		steps, err := reg.Get(method)
		if err != nil {
			return err
		}
		var total time.Duration
		for _, s := range steps {
			total += s.StandardDuration()
		}
		fmt.Fprintf(out, "%s (%d steps, %s standard):\n", method, len(steps), total)
		for i, s := range steps {
			line := fmt.Sprintf("  %d. %s [%s] %sh", i+1, s.Name, s.Workcenter, s.StandardHours.String())
			if len(s.Predecessors) > 0 {
				line += fmt.Sprintf(" after %s (%s)", strings.Join(s.Predecessors, ", "), s.Join)
			}
			if s.Outsourceable {
				line += " outsourceable"
			}
			fmt.Fprintln(out, line)
		}
	}
	return nil
}
