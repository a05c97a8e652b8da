package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	appForeclosure "github.com/turtacn/ForeclosureWatch/internal/application/foreclosure"
	"github.com/turtacn/ForeclosureWatch/internal/bootstrap"
	"github.com/turtacn/ForeclosureWatch/internal/config"
	domainForeclosure "github.com/turtacn/ForeclosureWatch/internal/domain/foreclosure"
	pgconn "github.com/turtacn/ForeclosureWatch/internal/infrastructure/database/postgres"
	"github.com/turtacn/ForeclosureWatch/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ForeclosureWatch/pkg/errors"
)

// ServiceFactory wires a case monitor service. The returned func releases
// everything the service holds.
type ServiceFactory func(cfg *config.Config, logger logging.Logger, publish bool) (appForeclosure.CaseMonitorService, func(), error)

// Migrator manages the database schema.
type Migrator interface {
	Up(dbURL string) error
	Down(dbURL string, steps int) error
	Status(dbURL string) (version uint, dirty bool, err error)
	Force(dbURL string, version int) error
}

// CommandDependencies are the collaborators of the infrastructure commands.
// Zero fields are filled with the production implementations.
type CommandDependencies struct {
	ServiceFactory ServiceFactory
	Migrator       Migrator
}

func (d CommandDependencies) withDefaults() CommandDependencies {
	if d.ServiceFactory == nil {
		d.ServiceFactory = bootstrapService
	}
	if d.Migrator == nil {
		d.Migrator = postgresMigrator{}
	}
	return d
}

func bootstrapService(cfg *config.Config, logger logging.Logger, publish bool) (appForeclosure.CaseMonitorService, func(), error) {
	infra, err := bootstrap.New(cfg, logger, bootstrap.Options{Publish: publish})
	if err != nil {
		return nil, nil, err
	}
	return infra.Service, infra.Close, nil
}

type postgresMigrator struct{}

func (postgresMigrator) Up(dbURL string) error {
	return pgconn.RunMigrations(dbURL)
}

func (postgresMigrator) Down(dbURL string, steps int) error {
	return pgconn.RollbackMigration(dbURL, steps)
}

func (postgresMigrator) Status(dbURL string) (uint, bool, error) {
	return pgconn.MigrationStatus(dbURL)
}

func (postgresMigrator) Force(dbURL string, version int) error {
	return pgconn.ForceMigrationVersion(dbURL, version)
}

// withService runs fn against a freshly wired service bounded by --timeout.
func withService(cmd *cobra.Command, deps CommandDependencies, publish bool,
	fn func(ctx context.Context, svc appForeclosure.CaseMonitorService) error) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	svc, closeFn, err := deps.ServiceFactory(cliCtx.Config, cliCtx.Logger, publish)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cliCtx.Timeout)
	defer cancel()
	return fn(ctx, svc)
}

func caseRows(c *domainForeclosure.Case) [][]string {
	if c == nil {
		return nil
	}
	return kv(
		"case", c.ID,
		"case number", c.CaseNumber,
		"county", c.County,
		"classification", c.Classification.String(),
		"reason", c.ClassificationReason,
		"current bid", fmtAmount(c.Ledger.CurrentBidAmount),
		"minimum next bid", fmtAmount(c.Ledger.MinimumNextBid),
		"deadline", fmtDate(c.Ledger.NextBidDeadline),
		"sale date", fmtDate(c.Ledger.SaleDate),
	)
}

func transitionRows(t *domainForeclosure.Transition) [][]string {
	if t == nil {
		return nil
	}
	return kv("transition", fmt.Sprintf("%s -> %s (%s)", t.From, t.To, t.Source))
}

// ─────────────────────────────────────────────────────────────────────────────
// refresh
// ─────────────────────────────────────────────────────────────────────────────

func newRefreshCmd(deps CommandDependencies) *cobra.Command {
	var noPublish bool

	cmd := &cobra.Command{
		Use:   "refresh <case-id>",
		Short: "Re-derive a case's classification and ledger from stored events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, deps, !noPublish, func(ctx context.Context, svc appForeclosure.CaseMonitorService) error {
				res, err := svc.RefreshCase(ctx, args[0])
				if err != nil {
					return err
				}
				rows := caseRows(res.Case)
				rows = append(rows, transitionRows(res.Transition)...)
				rows = append(rows, kv(
					"ledger", res.Ledger.Reason,
					"saved", strconv.FormatBool(res.Saved),
				)...)
				return PrintResult(cmd, record{data: res, rows: rows})
			})
		},
	}

	cmd.Flags().BoolVar(&noPublish, "no-publish", false, "do not publish classification and ledger events")
	return cmd
}

// ─────────────────────────────────────────────────────────────────────────────
// recommend
// ─────────────────────────────────────────────────────────────────────────────

func newRecommendCmd(deps CommandDependencies) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "recommend <case-id> <classification>",
		Short: "Submit a reviewer or model classification through the guard",
		Long: `Submit an externally produced classification for a case. The guard never
reopens closed cases, and a recommendation cannot move a case out of upcoming
or blocked; only a recompute from the docket can.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cls, err := domainForeclosure.ParseClassification(args[1])
			if err != nil {
				return err
			}
			return withService(cmd, deps, true, func(ctx context.Context, svc appForeclosure.CaseMonitorService) error {
				res, err := svc.ApplyRecommendation(ctx, args[0], cls, reason)
				if err != nil {
					return err
				}
				outcome := "unchanged"
				switch {
				case res.Decision.Rejected:
					outcome = "rejected"
				case res.Decision.Changed:
					outcome = "applied"
				}
				rows := caseRows(res.Case)
				rows = append(rows, kv("guard", fmt.Sprintf("%s (%s)", outcome, res.Decision.Rule))...)
				rows = append(rows, transitionRows(res.Transition)...)
				return PrintResult(cmd, record{data: res, rows: rows})
			})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded with the classification")
	return cmd
}

// ─────────────────────────────────────────────────────────────────────────────
// sweep
// ─────────────────────────────────────────────────────────────────────────────

func newSweepCmd(deps CommandDependencies) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Close upset_bid cases whose deadline has passed",
		RunE: func(cmd *cobra.Command, args []string) error {
			var today time.Time
			if date != "" {
				d, err := parseDateArg("date", date)
				if err != nil {
					return err
				}
				today = d
			}
			return withService(cmd, deps, true, func(ctx context.Context, svc appForeclosure.CaseMonitorService) error {
				if today.IsZero() {
					today = svc.Today()
				}
				res, err := svc.SweepStale(ctx, today)
				if res == nil {
					return err
				}
				if perr := PrintResult(cmd, record{data: res, rows: kv(
					"today", today.Format(dateLayout),
					"examined", strconv.Itoa(res.Examined),
					"closed", strconv.Itoa(res.Closed),
					"skipped", strconv.Itoa(res.Skipped),
					"failed", strconv.Itoa(res.Failed),
				)}); perr != nil {
					return perr
				}
				return err
			})
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "sweep as of this date (default: today in the sweep timezone)")
	return cmd
}

// ─────────────────────────────────────────────────────────────────────────────
// migrate
// ─────────────────────────────────────────────────────────────────────────────

// MigrationState is the output of `migrate status`.
type MigrationState struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
}

func newMigrateCmd(deps CommandDependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	dbURL := func(cmd *cobra.Command) (string, error) {
		cliCtx, err := GetCLIContext(cmd)
		if err != nil {
			return "", err
		}
		return pgconn.ConnString(cliCtx.Config.Database), nil
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := dbURL(cmd)
			if err != nil {
				return err
			}
			if err := deps.Migrator.Up(url); err != nil {
				return err
			}
			return PrintResult(cmd, record{data: map[string]string{"status": "up to date"}, rows: kv("status", "up to date")})
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps <= 0 {
				return errors.InvalidParam("steps must be positive")
			}
			url, err := dbURL(cmd)
			if err != nil {
				return err
			}
			if err := deps.Migrator.Down(url, steps); err != nil {
				return err
			}
			return PrintResult(cmd, record{data: map[string]int{"rolled_back": steps}, rows: kv("rolled back", strconv.Itoa(steps))})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := dbURL(cmd)
			if err != nil {
				return err
			}
			v, dirty, err := deps.Migrator.Status(url)
			if err != nil {
				return err
			}
			st := MigrationState{Version: v, Dirty: dirty}
			return PrintResult(cmd, record{data: st, rows: kv(
				"version", strconv.FormatUint(uint64(v), 10),
				"dirty", strconv.FormatBool(dirty),
			)})
		},
	}

	force := &cobra.Command{
		Use:   "force <version>",
		Short: "Set the schema version without running migrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil || v < 0 {
				return errors.InvalidParam(fmt.Sprintf("version must be a non-negative integer, got %q", args[0]))
			}
			url, err := dbURL(cmd)
			if err != nil {
				return err
			}
			if err := deps.Migrator.Force(url, v); err != nil {
				return err
			}
			return PrintResult(cmd, record{data: MigrationState{Version: uint(v)}, rows: kv("version", args[0])})
		},
	}

	cmd.AddCommand(up, down, status, force)
	return cmd
}

// ─────────────────────────────────────────────────────────────────────────────
// version
// ─────────────────────────────────────────────────────────────────────────────

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := BuildInfo{Version: Version, Commit: GitCommit, BuildDate: BuildDate}
			return PrintResult(cmd, record{data: info, rows: kv(
				"version", info.Version,
				"commit", info.Commit,
				"built", info.BuildDate,
			)})
		},
	}
}
