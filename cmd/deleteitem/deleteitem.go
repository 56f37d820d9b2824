// Package deleteitem provides the deleteitem command.
package deleteitem

import (
	"context"

	"github.com/sharepkg/sharepkg/backend/portal"
	"github.com/sharepkg/sharepkg/cmd"
	"github.com/sharepkg/sharepkg/fs/config/flags"
	"github.com/spf13/cobra"
)

var opt portal.DeleteOptions

func init() {
	cmd.Root.AddCommand(commandDefinition)
	cmdFlags := commandDefinition.Flags()
	flags.StringVarP(cmdFlags, &opt.FolderID, "folder-id", "", "", "Id of the folder the item is in if deleting by id")
	flags.StringVarP(cmdFlags, &opt.Title, "title", "", "", "Title of the item to delete")
	flags.StringVarP(cmdFlags, &opt.ItemType, "type", "", "", "Type of the item to delete")
	flags.IntVarP(cmdFlags, &opt.Repeat, "repeat", "", 1, "Search up to this many times for the item")
}

var commandDefinition = &cobra.Command{
	Use:   "deleteitem [id]",
	Short: `Delete an item from the portal.`,
	Long: `Delete an item given by its id, or by --title and --type.

When deleting by title and type the user's items are searched and the
first match is deleted.  It is an error if nothing matches.

    sharepkg deleteitem --title roads --type "Tile Package"
`,
	Run: func(command *cobra.Command, args []string) {
		cmd.CheckArgs(0, 1, command, args)
		if len(args) > 0 {
			opt.ID = args[0]
		}
		cmd.Run(command, func(ctx context.Context) error {
			p, err := cmd.NewPortal(ctx)
			if err != nil {
				return err
			}
			return p.Delete(ctx, opt)
		})
	},
}
