package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"pg_entity_sync/internal/catalog"
	"pg_entity_sync/internal/config"
	"pg_entity_sync/internal/db"
	"pg_entity_sync/internal/executor"
	httpserver "pg_entity_sync/internal/http"
	"pg_entity_sync/internal/logging"
	"pg_entity_sync/internal/planner"
	"pg_entity_sync/internal/storage"
	"pg_entity_sync/plan"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "entitysync",
	Short: "Sync declared PostgreSQL entities with a live database",
	Long: "entitysync compares functions, views, materialized views, triggers,\n" +
		"policies, extensions and table grants declared in SQL files (or mirrored\n" +
		"from another database) against a target database and applies the\n" +
		"reconciling DDL with a stored rollback path.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "entitysync.yaml", "path to config file (empty for env-only)")

	rootCmd.AddCommand(initConfigCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(scriptsCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(serveCmd)

	planCmd.Flags().StringVar(&planSave, "save", "", "store the plan under this name")
	planCmd.Flags().StringVar(&planDesc, "description", "", "description stored with --save")

	diffCmd.Flags().BoolVar(&diffExitCode, "exit-code", false, "exit 1 when differences exist")

	applyCmd.Flags().StringVar(&applyName, "name", "", "execute this stored script instead of a fresh plan")
	applyCmd.Flags().StringVar(&applySave, "save", "", "store the fresh plan under this name before applying")
	applyCmd.Flags().StringVar(&applyDesc, "description", "", "description stored with --save")
	applyCmd.Flags().StringVar(&applyTxMode, "tx-mode", "", "transaction or no_transaction (default from config)")
	applyCmd.Flags().BoolVar(&applyForce, "force", false, "re-run a stored script the ledger marks executed")
	applyCmd.Flags().BoolVar(&applyYes, "yes", false, "skip the approval prompt")

	rollbackCmd.Flags().StringVar(&rollbackName, "name", "", "stored script whose rollback to execute")
	rollbackCmd.Flags().BoolVar(&rollbackForce, "force", false, "re-run a rollback the ledger marks executed")
	rollbackCmd.Flags().BoolVar(&rollbackYes, "yes", false, "skip the approval prompt")

	statusCmd.Flags().IntVar(&statusLimit, "limit", 10, "number of runs to show")

	initConfigCmd.Flags().StringVar(&initConfigPath, "path", "entitysync.yaml", "where to write the sample config")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// runtime bundles the collaborators the database-facing commands share.
type runtime struct {
	cfg     config.Config
	logger  *slog.Logger
	pool    *pgxpool.Pool
	srcPool *pgxpool.Pool
	planner *planner.Planner
	exec    *executor.Executor
}

func connect(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)

	pool, err := db.Connect(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg, logger: logger, pool: pool}

	var sourceReader plan.CatalogReader
	if cfg.Entities.SourceDSN != "" {
		srcPool, err := db.Connect(ctx, cfg.Entities.SourceDSN)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("source database: %w", err)
		}
		rt.srcPool = srcPool
		sourceReader = catalog.NewReader(srcPool)
	}
	source, err := planner.SourceFromConfig(cfg, sourceReader)
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.planner = planner.New(cfg, source, catalog.NewReader(pool))
	rt.exec = executor.New(pool, logger)
	return rt, nil
}

func (rt *runtime) close() {
	if rt.srcPool != nil {
		rt.srcPool.Close()
	}
	rt.pool.Close()
}

var initConfigPath string

var initConfigCmd = &cobra.Command{
	Use:   "init-config",
	Short: "Write a starter entitysync.yaml",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.WriteTemplate(initConfigPath); err != nil {
			return err
		}
		fmt.Println("sample config written to", initConfigPath)
		return nil
	},
}

var (
	planSave string
	planDesc string
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Compute the reconciliation plan and print its SQL",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		rt, err := connect(ctx)
		if err != nil {
			return err
		}
		defer rt.close()

		pl, err := rt.planner.BuildPlan(ctx)
		if err != nil {
			return err
		}
		if !pl.HasChanges() {
			fmt.Println("database matches the declared entities; nothing to do")
			return nil
		}

		printSummary(pl)
		fmt.Println()
		for _, stmt := range pl.RenderUp() {
			fmt.Printf("%s;\n\n", stmt)
		}

		if planSave != "" {
			if err := storage.EnsureBase(rt.cfg.Storage.Path); err != nil {
				return err
			}
			rec, err := storage.StorePlan(rt.cfg.Storage.Path, planSave, pl, planDesc)
			if err != nil {
				return err
			}
			fmt.Println("plan stored as", rec.Name)
		}
		return nil
	},
}

var diffExitCode bool

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Show how the live database differs from the declared entities",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		rt, err := connect(ctx)
		if err != nil {
			return err
		}
		defer rt.close()

		pl, err := rt.planner.BuildPlan(ctx)
		if err != nil {
			return err
		}
		if !pl.HasChanges() {
			fmt.Println("no differences")
			return nil
		}
		for _, rec := range pl.Records {
			if rec.Status == plan.StatusUnchanged {
				continue
			}
			fmt.Printf("%-9s %s\n", rec.Status, rec.Identity)
		}
		if diffExitCode {
			rt.close()
			os.Exit(1)
		}
		return nil
	},
}

var (
	applyName   string
	applySave   string
	applyDesc   string
	applyTxMode string
	applyForce  bool
	applyYes    bool
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Execute the plan (or a stored script) against the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		defer cancel()

		rt, err := connect(ctx)
		if err != nil {
			return err
		}
		defer rt.close()

		opts := executor.Options{TransactionMode: rt.cfg.Apply.TransactionMode, Force: applyForce}
		if applyTxMode != "" {
			opts.TransactionMode = applyTxMode
		}

		if applyName != "" {
			record, forward, _, err := storage.LoadScript(rt.cfg.Storage.Path, applyName)
			if err != nil {
				return err
			}
			fmt.Printf("About to execute stored script %s (%d operations)\n", record.Name, record.Operations)
			if err := approve(applyYes); err != nil {
				return err
			}
			run, err := rt.exec.RunScript(ctx, "apply", forward, opts)
			if err != nil {
				return err
			}
			fmt.Printf("run %s executed %d statements\n", run.ID, run.Statements)
			return nil
		}

		pl, err := rt.planner.BuildPlan(ctx)
		if err != nil {
			return err
		}
		if !pl.HasChanges() {
			fmt.Println("nothing to apply")
			return nil
		}
		printSummary(pl)

		if applySave != "" {
			if err := storage.EnsureBase(rt.cfg.Storage.Path); err != nil {
				return err
			}
			if _, err := storage.StorePlan(rt.cfg.Storage.Path, applySave, pl, applyDesc); err != nil {
				return err
			}
			fmt.Println("plan stored as", applySave)
		}

		if err := approve(applyYes); err != nil {
			return err
		}
		run, err := rt.exec.Apply(ctx, pl, opts)
		if err != nil {
			return err
		}
		fmt.Printf("run %s executed %d statements\n", run.ID, run.Statements)
		return nil
	},
}

var (
	rollbackName  string
	rollbackForce bool
	rollbackYes   bool
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Execute the stored rollback script of a saved plan",
	RunE: func(cmd *cobra.Command, args []string) error {
		if rollbackName == "" {
			return fmt.Errorf("--name is required")
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		defer cancel()

		rt, err := connect(ctx)
		if err != nil {
			return err
		}
		defer rt.close()

		record, _, rollbackSQL, err := storage.LoadScript(rt.cfg.Storage.Path, rollbackName)
		if err != nil {
			return err
		}
		fmt.Printf("About to roll back %s (%d operations)\n", record.Name, record.Operations)
		if err := approve(rollbackYes); err != nil {
			return err
		}

		opts := executor.Options{TransactionMode: rt.cfg.Apply.TransactionMode, Force: rollbackForce}
		run, err := rt.exec.RunScript(ctx, "rollback", rollbackSQL, opts)
		if err != nil {
			return err
		}
		fmt.Printf("run %s executed %d statements\n", run.ID, run.Statements)
		return nil
	},
}

var scriptsCmd = &cobra.Command{
	Use:   "scripts",
	Short: "List stored sync scripts",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		records, err := storage.ListScriptRecords(cfg.Storage.Path)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("no scripts stored")
			return nil
		}
		for _, rec := range records {
			desc := rec.Description
			if desc != "" {
				desc = " - " + desc
			}
			fmt.Printf("%s  %d ops  %s%s\n", rec.Name, rec.Operations, rec.CreatedAt.Format(time.RFC3339), desc)
		}
		return nil
	},
}

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent sync runs from the ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		rt, err := connect(ctx)
		if err != nil {
			return err
		}
		defer rt.close()

		runs, err := rt.exec.History(ctx, statusLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("no runs recorded yet")
			return nil
		}
		for _, r := range runs {
			errText := ""
			if r.Error != "" {
				errText = " err=" + r.Error
			}
			fmt.Printf("[%s] %s status=%s statements=%d checksum=%s%s\n",
				r.StartedAt.Format(time.RFC3339), r.Direction, r.Status, r.Statements, shortChecksum(r.Checksum), errText)
		}
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the JSON API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rt, err := connect(ctx)
		if err != nil {
			return err
		}
		defer rt.close()

		if err := storage.EnsureBase(rt.cfg.Storage.Path); err != nil {
			return err
		}

		srv := httpserver.New(rt.cfg, rt.logger, rt.pool,
			httpserver.NewEntityHandler(rt.planner, rt.logger),
			httpserver.NewPlanHandler(rt.planner, rt.logger),
			httpserver.NewRunHandler(rt.cfg, rt.planner, rt.exec, rt.logger),
			httpserver.NewScriptHandler(rt.cfg.Storage.Path, rt.logger),
		)
		if err := srv.Start(ctx); err != nil {
			rt.logger.Error("server stopped with error", "error", err)
			return err
		}
		return nil
	},
}

func printSummary(pl *plan.Plan) {
	counts := pl.Summary()
	fmt.Printf("%d created, %d modified, %d dropped, %d unchanged\n",
		counts[plan.StatusCreated], counts[plan.StatusModified], counts[plan.StatusDropped], counts[plan.StatusUnchanged])
	for _, op := range pl.Operations {
		fmt.Printf("  %-7s %s\n", op.Kind, op.Identity)
	}
}

func approve(skip bool) error {
	if skip {
		return nil
	}
	ok, err := promptYes("Type YES to proceed: ")
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("aborted by user")
	}
	return nil
}

func promptYes(prompt string) (bool, error) {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false, err
	}
	return strings.EqualFold(strings.TrimSpace(line), "YES"), nil
}

func shortChecksum(sum string) string {
	if len(sum) > 12 {
		return sum[:12]
	}
	return sum
}
