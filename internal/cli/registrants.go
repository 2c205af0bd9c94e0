package cli

import (
	"fmt"
	"os"

	"github.com/leozw/zoom-dashboard/internal/archive"
	"github.com/leozw/zoom-dashboard/internal/registrants"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRegistrantsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registrants",
		Short: "Register attendees to a meeting or list its registrants",
	}

	add := &cobra.Command{
		Use:   "add",
		Short: "Register every attendee of a CSV file (_,first_name,last_name,email)",
		RunE:  runRegistrantsAdd,
	}
	add.Flags().String("meeting", "", "meeting id")
	add.Flags().String("file", "", "CSV file of attendees")
	add.Flags().Bool("dry", false, "print what would be registered")
	_ = add.MarkFlagRequired("meeting")
	_ = add.MarkFlagRequired("file")

	list := &cobra.Command{
		Use:   "list",
		Short: "Archive and print the registrants of a meeting",
		RunE:  runRegistrantsList,
	}
	list.Flags().String("meeting", "", "meeting id")
	_ = list.MarkFlagRequired("meeting")

	cmd.AddCommand(add, list)
	return cmd
}

func registrantsService(a *app) (*registrants.Service, error) {
	client, err := a.zoom()
	if err != nil {
		return nil, err
	}
	a.openMirrors()
	sink, err := a.openStream(archive.MeetingsRegistrants)
	if err != nil {
		return nil, err
	}
	return registrants.NewService(client, sink, a.logger, a.metrics), nil
}

func runRegistrantsAdd(cmd *cobra.Command, _ []string) error {
	meetingID, _ := cmd.Flags().GetString("meeting")
	path, _ := cmd.Flags().GetString("file")
	dry, _ := cmd.Flags().GetBool("dry")

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open attendee file: %w", err)
	}
	defer f.Close()

	regs, err := registrants.ParseCSV(f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	svc, err := registrantsService(a)
	if err != nil {
		return err
	}

	ctx, cancel := a.signalContext()
	defer cancel()

	added, err := svc.AddAll(ctx, meetingID, regs, dry)
	a.logger.Info("Registration finished",
		zap.String("meeting_id", meetingID),
		zap.Int("requested", len(regs)),
		zap.Int("registered", len(added)),
		zap.Bool("dry", dry),
	)
	if err != nil {
		return err
	}
	if dry {
		return printJSON(cmd.OutOrStdout(), regs)
	}
	return printJSON(cmd.OutOrStdout(), added)
}

func runRegistrantsList(cmd *cobra.Command, _ []string) error {
	meetingID, _ := cmd.Flags().GetString("meeting")

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	svc, err := registrantsService(a)
	if err != nil {
		return err
	}

	ctx, cancel := a.signalContext()
	defer cancel()

	snap, err := svc.List(ctx, meetingID)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), snap)
}
