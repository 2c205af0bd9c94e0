package cli

import (
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newMembersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "members",
		Short: "Manage group membership in the authorization service",
	}

	add := &cobra.Command{
		Use:   "add",
		Short: "Add an account to a group unless it is already a member",
		RunE:  runMembersAdd,
	}
	add.Flags().String("group", "", "group name")
	add.Flags().String("account", "", "account (UPN)")
	_ = add.MarkFlagRequired("group")
	_ = add.MarkFlagRequired("account")

	cmd.AddCommand(add)
	return cmd
}

func runMembersAdd(cmd *cobra.Command, _ []string) error {
	group, _ := cmd.Flags().GetString("group")
	account, _ := cmd.Flags().GetString("account")

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := a.signalContext()
	defer cancel()

	dir, err := a.identity(ctx)
	if err != nil {
		return err
	}

	groupID, err := dir.GroupID(ctx, group)
	if err != nil {
		return err
	}
	members, err := dir.Members(ctx, groupID)
	if err != nil {
		return err
	}

	logger := a.logger.With(zap.String("group", group), zap.String("account", account))
	for _, m := range members {
		if strings.EqualFold(m.UPN, account) {
			logger.Info("Account already in group", zap.Int("members", len(members)))
			return nil
		}
	}

	identityID, err := dir.IdentityID(ctx, account)
	if err != nil {
		return err
	}
	if err := dir.AddMember(ctx, groupID, identityID); err != nil {
		return err
	}
	logger.Info("Account added to group", zap.Int("members", len(members)+1))
	return nil
}
