// Package share provides the share command.
package share

import (
	"context"

	"github.com/sharepkg/sharepkg/backend/portal"
	"github.com/sharepkg/sharepkg/cmd"
	"github.com/sharepkg/sharepkg/fs"
	"github.com/sharepkg/sharepkg/fs/config/flags"
	"github.com/sharepkg/sharepkg/fs/fserrors"
	"github.com/spf13/cobra"
)

var (
	groups   = ""
	everyone = false
	org      = false
)

func init() {
	cmd.Root.AddCommand(commandDefinition)
	cmdFlags := commandDefinition.Flags()
	flags.StringVarP(cmdFlags, &groups, "groups", "", "", "Titles of groups to share with separated by ; or ,")
	flags.BoolVarP(cmdFlags, &everyone, "everyone", "", false, "Share with everyone (implies --org)")
	flags.BoolVarP(cmdFlags, &org, "org", "", false, "Share with the organisation")
}

var commandDefinition = &cobra.Command{
	Use:   "share id [id...]",
	Short: `Share items with groups, the organisation or everyone.`,
	Long: `Share the items given by id.  At least one of --groups, --org or
--everyone is needed or nothing is done.  Sharing with everyone also
shares with the organisation.

Groups are given by title and must be groups of the signed in user.

    sharepkg share --groups "Planners;Field Crews" --org 1a2b3c
`,
	Run: func(command *cobra.Command, args []string) {
		cmd.CheckArgs(1, -1, command, args)
		cmd.Run(command, func(ctx context.Context) error {
			return share(ctx, args)
		})
	},
}

func share(ctx context.Context, items []string) error {
	p, err := cmd.NewPortal(ctx)
	if err != nil {
		return err
	}
	req := portal.ShareRequest{
		Items:    items,
		Everyone: everyone,
		Org:      org,
	}
	req.Groups, err = p.ResolveGroups(ctx, portal.SplitGroups(groups))
	if err != nil {
		return err
	}
	resp, err := p.ShareItems(ctx, req)
	if err != nil || resp == nil {
		return err
	}
	if len(resp.NotSharedWith) > 0 {
		fs.Logf(nil, "Not shared with groups %q", resp.NotSharedWith)
	}
	return resp.Err(fserrors.ShareError, "share")
}
