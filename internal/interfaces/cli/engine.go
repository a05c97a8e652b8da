package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	appForeclosure "github.com/turtacn/ForeclosureWatch/internal/application/foreclosure"
	"github.com/turtacn/ForeclosureWatch/internal/domain/calendar"
	domainDiscrepancy "github.com/turtacn/ForeclosureWatch/internal/domain/discrepancy"
	domainForeclosure "github.com/turtacn/ForeclosureWatch/internal/domain/foreclosure"
	"github.com/turtacn/ForeclosureWatch/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ForeclosureWatch/pkg/errors"
)

const dateLayout = "2006-01-02"

// engineFor builds the rule snapshot from the loaded configuration.
func engineFor(cmd *cobra.Command) (*appForeclosure.Engine, *CLIContext, error) {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return nil, nil, err
	}
	e, err := appForeclosure.NewEngine(cliCtx.Config.Engine)
	if err != nil {
		return nil, nil, err
	}
	return e, cliCtx, nil
}

// todayFor is the current date in the configured sweep timezone.
func todayFor(cliCtx *CLIContext) time.Time {
	loc, err := cliCtx.Config.Sweep.Location()
	if err != nil {
		loc = time.UTC
	}
	return calendar.Today(time.Now(), loc)
}

func parseDateArg(name, s string) (time.Time, error) {
	d, err := calendar.ParseDate(s)
	if err != nil {
		return time.Time{}, errors.InvalidParam(fmt.Sprintf("%s: cannot parse %q as a date", name, s))
	}
	return d, nil
}

func fmtDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(dateLayout)
}

func fmtAmount(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.StringFixed(2)
}

// ─────────────────────────────────────────────────────────────────────────────
// holidays
// ─────────────────────────────────────────────────────────────────────────────

func newHolidaysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "holidays [year]",
		Short: "List the legal holidays of a year",
		Long:  "List the legal holidays of a year with the date each one is observed on. Defaults to the current year.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, cliCtx, err := engineFor(cmd)
			if err != nil {
				return err
			}
			year := todayFor(cliCtx).Year()
			if len(args) == 1 {
				y, err := strconv.Atoi(args[0])
				if err != nil || y < 1900 || y > 2200 {
					return errors.InvalidParam(fmt.Sprintf("year must be between 1900 and 2200, got %q", args[0]))
				}
				year = y
			}

			hs := e.Calendar.Holidays(year)
			rows := make([][]string, len(hs))
			for i, h := range hs {
				observed := h.Observed.Format(dateLayout)
				if !h.Observed.Equal(h.Date) {
					observed += " (" + h.Observed.Weekday().String() + ")"
				}
				rows[i] = []string{h.Name, h.Date.Format(dateLayout), observed}
			}
			return PrintResult(cmd, listing{data: hs, headers: []string{"HOLIDAY", "DATE", "OBSERVED"}, rows: rows})
		},
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// deadline
// ─────────────────────────────────────────────────────────────────────────────

// DeadlineReport explains one upset-bid deadline computation.
type DeadlineReport struct {
	EventDate        string `json:"event_date"`
	WindowDays       int    `json:"window_days"`
	WindowEnd        string `json:"window_end"`
	RolledOverFrom   string `json:"rolled_over_from,omitempty"`
	Deadline         string `json:"deadline"`
	AsOf             string `json:"as_of"`
	BusinessDaysLeft int    `json:"business_days_left"`
	Expired          bool   `json:"expired"`
}

func newDeadlineCmd() *cobra.Command {
	var (
		window int
		asOf   string
	)

	cmd := &cobra.Command{
		Use:   "deadline <event-date>",
		Short: "Compute the upset-bid deadline for a sale or bid date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, cliCtx, err := engineFor(cmd)
			if err != nil {
				return err
			}
			eventDate, err := parseDateArg("event-date", args[0])
			if err != nil {
				return err
			}
			today := todayFor(cliCtx)
			if asOf != "" {
				if today, err = parseDateArg("as-of", asOf); err != nil {
					return err
				}
			}

			cal := e.Calendar
			if cmd.Flags().Changed("window") {
				if window <= 0 {
					return errors.InvalidParam("window must be a positive number of days")
				}
				cal = calendar.New(calendar.WithUpsetBidWindow(window))
			}

			rep := buildDeadlineReport(cal, eventDate, today)
			return PrintResult(cmd, record{data: rep, rows: kv(
				"event date", rep.EventDate,
				"window", fmt.Sprintf("%d calendar days", rep.WindowDays),
				"window end", rep.WindowEnd,
				"rolled over", rep.RolledOverFrom,
				"deadline", rep.Deadline,
				"as of", rep.AsOf,
				"business days left", strconv.Itoa(rep.BusinessDaysLeft),
				"expired", strconv.FormatBool(rep.Expired),
			)})
		},
	}

	cmd.Flags().IntVar(&window, "window", 0, "override the upset-bid window in calendar days")
	cmd.Flags().StringVar(&asOf, "as-of", "", "reference date for the remaining-days count (default: today)")
	return cmd
}

func buildDeadlineReport(cal calendar.Calendar, eventDate, today time.Time) DeadlineReport {
	windowEnd := eventDate.AddDate(0, 0, cal.UpsetBidWindowDays())
	deadline := cal.UpsetBidDeadline(eventDate)
	rep := DeadlineReport{
		EventDate:        eventDate.Format(dateLayout),
		WindowDays:       cal.UpsetBidWindowDays(),
		WindowEnd:        windowEnd.Format(dateLayout),
		Deadline:         deadline.Format(dateLayout),
		AsOf:             today.Format(dateLayout),
		BusinessDaysLeft: cal.BusinessDaysUntil(today, deadline),
		Expired:          deadline.Before(today),
	}
	if !deadline.Equal(windowEnd) {
		why := windowEnd.Weekday().String()
		if h, ok := cal.HolidayOn(windowEnd); ok {
			why = h.Name
		}
		rep.RolledOverFrom = fmt.Sprintf("%s (%s)", rep.WindowEnd, why)
	}
	return rep
}

// ─────────────────────────────────────────────────────────────────────────────
// classify
// ─────────────────────────────────────────────────────────────────────────────

// ClassifyReport is the outcome of classifying an event history.
type ClassifyReport struct {
	Verdict    domainForeclosure.Verdict    `json:"verdict"`
	Decision   *domainForeclosure.Decision  `json:"decision,omitempty"`
	Qualifying *domainForeclosure.CaseEvent `json:"qualifying_event,omitempty"`
	Deadline   *time.Time                   `json:"deadline,omitempty"`
	Skips      []domainForeclosure.Skip     `json:"skips,omitempty"`
}

func newClassifyCmd() *cobra.Command {
	var (
		file    string
		events  []string
		current string
		source  string
	)

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify a case from its event history",
		Long: `Classify a case from its complete event history.

Events come from --file (a JSON array of {"date","type","description"} objects,
"-" for stdin) and from repeated --event "DATE|TYPE" flags. With --current the
guard decision for moving from that classification is shown too.`,
		Example: `  fwatch classify --event "2024-01-05|Foreclosure Case Initiated" --event "2024-03-04|Report of Sale"
  fwatch classify --file events.json --current upcoming --source ai`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, cliCtx, err := engineFor(cmd)
			if err != nil {
				return err
			}
			raws, err := readRawEvents(cmd.InOrStdin(), file, events)
			if err != nil {
				return err
			}
			if len(raws) == 0 {
				return errors.InvalidParam("no events given; use --file or --event")
			}

			parsed, skips := domainForeclosure.ParseEvents("", raws, time.Now())
			for _, s := range skips {
				cliCtx.Logger.Debug("Event value skipped",
					logging.Int("index", s.Index),
					logging.String("field", s.Field),
					logging.String("reason", s.Reason))
			}
			rep := ClassifyReport{Verdict: e.Classifier.ClassifyEvents(parsed), Skips: skips}

			if q, ok := domainForeclosure.LatestQualifyingEvent(parsed, e.Rules); ok {
				deadline := e.Ledger.Deadline(*q.EventDate)
				rep.Qualifying = &q
				rep.Deadline = &deadline
			}

			if current != "" {
				cur, err := domainForeclosure.ParseClassification(current)
				if err != nil {
					return err
				}
				src := domainForeclosure.Source(source)
				if !src.Valid() {
					return errors.InvalidParam(fmt.Sprintf("unknown source %q (rule, ai, sweep)", source))
				}
				d, err := e.Guard.Apply(cur, rep.Verdict.Classification, src)
				if err != nil {
					return err
				}
				rep.Decision = &d
			}

			return PrintResult(cmd, record{data: rep, rows: classifyRows(rep)})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", `JSON file with the event array ("-" for stdin)`)
	cmd.Flags().StringArrayVarP(&events, "event", "e", nil, `event as "DATE|TYPE" (repeatable; DATE may be empty)`)
	cmd.Flags().StringVar(&current, "current", "", "current classification, to show the guard decision")
	cmd.Flags().StringVar(&source, "source", string(domainForeclosure.SourceRule), "source of the proposal for the guard (rule, ai)")
	return cmd
}

func classifyRows(rep ClassifyReport) [][]string {
	rows := kv(
		"classification", rep.Verdict.Classification.String(),
		"reason", rep.Verdict.Reason,
		"matched", strings.Join(rep.Verdict.Matched, "; "),
	)
	if rep.Qualifying != nil {
		rows = append(rows, kv(
			"qualifying event", fmt.Sprintf("%s %s", fmtDate(rep.Qualifying.EventDate), rep.Qualifying.EventType),
			"upset-bid deadline", fmtDate(rep.Deadline),
		)...)
	}
	if d := rep.Decision; d != nil {
		outcome := "unchanged"
		switch {
		case d.Rejected:
			outcome = "rejected"
		case d.Changed:
			outcome = "applied"
		}
		rows = append(rows, kv(
			"guard", fmt.Sprintf("%s -> %s (%s)", outcome, d.Classification, d.Rule),
		)...)
	}
	for _, s := range rep.Skips {
		rows = append(rows, []string{"skipped", fmt.Sprintf("#%d %s %q: %s", s.Index, s.Field, s.Raw, s.Reason)})
	}
	return rows
}

func readRawEvents(stdin io.Reader, file string, flags []string) ([]domainForeclosure.RawEvent, error) {
	var raws []domainForeclosure.RawEvent
	if file != "" {
		var (
			data []byte
			err  error
		)
		if file == "-" {
			data, err = io.ReadAll(stdin)
		} else {
			data, err = os.ReadFile(file)
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeBadRequest, "cannot read events")
		}
		if err := json.Unmarshal(data, &raws); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeMalformedInput, "events must be a JSON array of {date, type}")
		}
	}
	for _, f := range flags {
		date, typ := "", f
		if parts := strings.SplitN(f, "|", 2); len(parts) == 2 {
			date, typ = parts[0], parts[1]
		}
		raws = append(raws, domainForeclosure.RawEvent{Date: strings.TrimSpace(date), Type: strings.TrimSpace(typ)})
	}
	return raws, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// ledger
// ─────────────────────────────────────────────────────────────────────────────

// LedgerStep is the ledger after one simulated bid.
type LedgerStep struct {
	EventDate string                   `json:"event_date"`
	Amount    string                   `json:"amount"`
	Applied   bool                     `json:"applied"`
	Reason    string                   `json:"reason"`
	Ledger    domainForeclosure.Ledger `json:"ledger"`
}

func newLedgerCmd() *cobra.Command {
	var bids []string

	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Simulate bid ledger updates",
		Long: `Apply a sequence of bids to an empty ledger and show the current bid,
minimum next bid and deadline after each one. Bids older than the last
recorded bid are ignored.`,
		Example: `  fwatch ledger --bid 2024-03-04=105000 --bid 2024-03-12=110250`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, _, err := engineFor(cmd)
			if err != nil {
				return err
			}
			if len(bids) == 0 {
				return errors.InvalidParam("at least one --bid DATE=AMOUNT is required")
			}

			var (
				l     domainForeclosure.Ledger
				steps []LedgerStep
			)
			for _, b := range bids {
				date, amount, err := parseBidFlag(b)
				if err != nil {
					return err
				}
				u, err := e.Ledger.RecordBid(l, amount, date)
				if err != nil {
					return err
				}
				l = u.After
				steps = append(steps, LedgerStep{
					EventDate: date.Format(dateLayout),
					Amount:    amount.StringFixed(2),
					Applied:   u.Applied,
					Reason:    u.Reason,
					Ledger:    l,
				})
			}

			rows := make([][]string, len(steps))
			for i, s := range steps {
				rows[i] = []string{
					s.EventDate, s.Amount, s.Reason,
					fmtAmount(s.Ledger.CurrentBidAmount),
					fmtAmount(s.Ledger.MinimumNextBid),
					fmtDate(s.Ledger.NextBidDeadline),
				}
			}
			return PrintResult(cmd, listing{
				data:    steps,
				headers: []string{"EVENT DATE", "BID", "RESULT", "CURRENT BID", "MIN NEXT BID", "DEADLINE"},
				rows:    rows,
			})
		},
	}

	cmd.Flags().StringArrayVar(&bids, "bid", nil, "bid as DATE=AMOUNT (repeatable, applied in order)")
	return cmd
}

func parseBidFlag(s string) (time.Time, decimal.Decimal, error) {
	parts := strings.SplitN(s, "=", 2)
	if len(parts) != 2 {
		return time.Time{}, decimal.Zero, errors.InvalidParam(fmt.Sprintf("bid %q is not DATE=AMOUNT", s))
	}
	date, err := parseDateArg("bid date", parts[0])
	if err != nil {
		return time.Time{}, decimal.Zero, err
	}
	amount, err := domainDiscrepancy.ParseAmount(parts[1])
	if err != nil {
		return time.Time{}, decimal.Zero, err
	}
	if amount == nil {
		return time.Time{}, decimal.Zero, errors.InvalidParam(fmt.Sprintf("bid %q has no amount", s))
	}
	return date, *amount, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// reconcile
// ─────────────────────────────────────────────────────────────────────────────

// ReconcileReport lists the disagreements between two field maps.
type ReconcileReport struct {
	Records   []domainDiscrepancy.Record         `json:"records"`
	Malformed []domainDiscrepancy.MalformedField `json:"malformed,omitempty"`
}

func newReconcileCmd() *cobra.Command {
	var extractedFile, recordedFile string

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compare extracted document fields with recorded values",
		Long: `Compare machine-extracted fields with the recorded case values. Both files
hold {"property_address","current_bid_amount","minimum_next_bid","defendants"}.
Amounts are flagged only when the extracted value exceeds the recorded one by
more than the configured tolerance.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, _, err := engineFor(cmd)
			if err != nil {
				return err
			}
			extractedRaw, err := readFieldMap(cmd.InOrStdin(), extractedFile)
			if err != nil {
				return err
			}
			recordedRaw, err := readFieldMap(cmd.InOrStdin(), recordedFile)
			if err != nil {
				return err
			}

			extracted, malformed := extractedRaw.Parse()
			recorded, bad := recordedRaw.Parse()
			if len(bad) > 0 {
				return errors.MalformedInput(fmt.Sprintf("recorded %s %q is not an amount", bad[0].Field, bad[0].Raw))
			}

			rep := ReconcileReport{Records: e.Reconciler.Reconcile(extracted, recorded), Malformed: malformed}
			if rep.Records == nil {
				rep.Records = []domainDiscrepancy.Record{}
			}
			rows := make([][]string, 0, len(rep.Records)+len(malformed))
			for _, r := range rep.Records {
				rows = append(rows, []string{string(r.Field), r.RecordedValue, r.ExtractedValue, string(r.Status)})
			}
			for _, m := range malformed {
				rows = append(rows, []string{string(m.Field), "", m.Raw, "malformed"})
			}
			return PrintResult(cmd, listing{
				data:    rep,
				headers: []string{"FIELD", "RECORDED", "EXTRACTED", "STATUS"},
				rows:    rows,
			})
		},
	}

	cmd.Flags().StringVar(&extractedFile, "extracted", "", `JSON file with extracted fields ("-" for stdin)`)
	cmd.Flags().StringVar(&recordedFile, "recorded", "", "JSON file with recorded fields")
	_ = cmd.MarkFlagRequired("extracted")
	_ = cmd.MarkFlagRequired("recorded")
	return cmd
}

func readFieldMap(stdin io.Reader, file string) (domainDiscrepancy.RawFieldMap, error) {
	var (
		m    domainDiscrepancy.RawFieldMap
		data []byte
		err  error
	)
	if file == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return m, errors.Wrap(err, errors.ErrCodeBadRequest, "cannot read field map")
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, errors.Wrap(err, errors.ErrCodeMalformedInput, "field map is not valid JSON")
	}
	return m, nil
}
