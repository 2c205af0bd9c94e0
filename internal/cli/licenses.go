package cli

import (
	"sort"
	"strings"
	"time"

	"github.com/leozw/zoom-dashboard/internal/licenses"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newLicensesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "licenses",
		Short: "Reconcile and inspect webinar licences",
	}

	reconcile := &cobra.Command{
		Use:   "reconcile",
		Short: "Demote idle large-tier owners and expire inactive small-tier owners",
		RunE:  runReconcile,
	}
	reconcile.Flags().Bool("dry-run", false, "report changes without applying them")
	reconcile.Flags().String("lower-group", "", "group of the small tier")
	reconcile.Flags().String("upper-group", "", "group of the large tier")
	reconcile.Flags().Int("inactivity-days", 30, "days without a webinar before the small tier is removed")

	setCapacity := &cobra.Command{
		Use:   "set-capacity",
		Short: "Enable webinars at 500 or 1000 attendees; any other value disables them",
		RunE:  runSetCapacity,
	}
	setCapacity.Flags().String("account", "", "Zoom account")
	setCapacity.Flags().Int("capacity", 0, "500, 1000, or anything else to disable")
	_ = setCapacity.MarkFlagRequired("account")

	upcoming := &cobra.Command{
		Use:   "upcoming",
		Short: "Tell whether an account has an upcoming large webinar",
		RunE:  runUpcoming,
	}
	upcoming.Flags().String("account", "", "Zoom account")
	_ = upcoming.MarkFlagRequired("account")

	last := &cobra.Command{
		Use:   "last-webinar",
		Short: "Print the most recent webinar end time per host",
		RunE:  runLastWebinar,
	}
	last.Flags().Int("months", 6, "months of history to scan")
	last.Flags().String("account", "", "only print this host")

	cmd.AddCommand(reconcile, setCapacity, upcoming, last)
	return cmd
}

func licensesConfig(a *app, dryRun bool) licenses.Config {
	lc := a.cfg.Licenses
	return licenses.Config{
		LowerGroup:      lc.LowerGroup,
		UpperGroup:      lc.UpperGroup,
		LowerCapacity:   lc.LowerCapacity,
		UpperCapacity:   lc.UpperCapacity,
		InactivityDays:  lc.InactivityDays,
		Months:          lc.Months,
		AccountSuffix:   lc.AccountSuffix,
		UsePrimaryEmail: lc.UsePrimaryEmail,
		Marker:          lc.Marker,
		DryRun:          dryRun,
		Backoff:         a.cfg.Poller.Backoff,
	}
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	if err := bindFlags(cmd, map[string]string{
		"licenses.lowergroup":     "lower-group",
		"licenses.uppergroup":     "upper-group",
		"licenses.inactivitydays": "inactivity-days",
	}); err != nil {
		return err
	}
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.cfg.Licenses.Validate(); err != nil {
		return err
	}
	client, err := a.zoom()
	if err != nil {
		return err
	}

	ctx, cancel := a.signalContext()
	defer cancel()
	dir, err := a.identity(ctx)
	if err != nil {
		return err
	}
	stop := a.startMetrics(ctx)
	defer stop()

	job := licenses.NewJob(licensesConfig(a, dryRun), client, dir, a.logger, licenses.WithMetrics(a.metrics))
	report, err := job.Run(ctx)
	if report != nil {
		if perr := printJSON(cmd.OutOrStdout(), report); perr != nil {
			a.logger.Warn("Failed to print report", zap.Error(perr))
		}
	}
	return err
}

func runSetCapacity(cmd *cobra.Command, _ []string) error {
	account, _ := cmd.Flags().GetString("account")
	capacity, _ := cmd.Flags().GetInt("capacity")

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	client, err := a.zoom()
	if err != nil {
		return err
	}

	ctx, cancel := a.signalContext()
	defer cancel()

	if err := licenses.SetCapacity(ctx, client, account, capacity); err != nil {
		return err
	}
	a.logger.Info("Webinar capacity updated", zap.String("account", account), zap.Int("capacity", capacity))
	return nil
}

func runUpcoming(cmd *cobra.Command, _ []string) error {
	account, _ := cmd.Flags().GetString("account")

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	client, err := a.zoom()
	if err != nil {
		return err
	}

	ctx, cancel := a.signalContext()
	defer cancel()

	job := licenses.NewJob(licensesConfig(a, true), client, nil, a.logger, licenses.WithMetrics(a.metrics))
	upcoming, err := job.HasUpcomingLargeWebinar(ctx, account)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), map[string]any{"account": account, "upcoming": upcoming})
}

type lastWebinar struct {
	Host    string    `json:"host"`
	EndTime time.Time `json:"end_time"`
}

func runLastWebinar(cmd *cobra.Command, _ []string) error {
	months, _ := cmd.Flags().GetInt("months")
	account, _ := cmd.Flags().GetString("account")

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	client, err := a.zoom()
	if err != nil {
		return err
	}

	ctx, cancel := a.signalContext()
	defer cancel()

	job := licenses.NewJob(licensesConfig(a, true), client, nil, a.logger, licenses.WithMetrics(a.metrics))
	last, err := job.LastWebinars(ctx, months)
	if err != nil {
		return err
	}

	out := make([]lastWebinar, 0, len(last))
	for host, end := range last {
		if account != "" && host != strings.ToLower(account) {
			continue
		}
		out = append(out, lastWebinar{Host: host, EndTime: end})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndTime.After(out[j].EndTime) })
	return printJSON(cmd.OutOrStdout(), out)
}
