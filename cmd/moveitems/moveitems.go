// Package moveitems provides the moveitems command.
package moveitems

import (
	"context"

	"github.com/sharepkg/sharepkg/cmd"
	"github.com/sharepkg/sharepkg/fs/fserrors"
	"github.com/spf13/cobra"
)

func init() {
	cmd.Root.AddCommand(commandDefinition)
}

var commandDefinition = &cobra.Command{
	Use:   "moveitems folder id [id...]",
	Short: `Move items into a folder.`,
	Long: `Move the items given by id into the folder with the title given,
making the folder if needed.  Use "" for the root folder.

    sharepkg moveitems Basemaps 1a2b3c 4d5e6f
`,
	Run: func(command *cobra.Command, args []string) {
		cmd.CheckArgs(2, -1, command, args)
		cmd.Run(command, func(ctx context.Context) error {
			p, err := cmd.NewPortal(ctx)
			if err != nil {
				return err
			}
			folderID, err := p.FindOrCreateFolder(ctx, args[0])
			if err != nil {
				return err
			}
			resp, err := p.MoveItems(ctx, folderID, args[1:])
			if err != nil {
				return err
			}
			return resp.Err(fserrors.ProtocolError, "move")
		})
	},
}
