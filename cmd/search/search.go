// Package search provides the search command.
package search

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sharepkg/sharepkg/backend/portal"
	"github.com/sharepkg/sharepkg/backend/portal/api"
	"github.com/sharepkg/sharepkg/cmd"
	"github.com/sharepkg/sharepkg/fs/config/flags"
	"github.com/spf13/cobra"
)

var (
	opt     portal.SearchOptions
	idsOnly = false
)

func init() {
	cmd.Root.AddCommand(commandDefinition)
	cmdFlags := commandDefinition.Flags()
	flags.StringVarP(cmdFlags, &opt.Title, "title", "", "", "Title of the item")
	flags.StringVarP(cmdFlags, &opt.ItemType, "type", "", "", "Type of the item, e.g. \"Tile Package\"")
	flags.StringVarP(cmdFlags, &opt.Owner, "owner", "", "", "User name of the owner")
	flags.StringVarP(cmdFlags, &opt.Group, "group", "", "", "Id of a group the item is shared with")
	flags.StringVarP(cmdFlags, &opt.ID, "id", "", "", "Id of the item")
	flags.StringVarP(cmdFlags, &opt.Name, "name", "", "", "File name of the item")
	flags.IntVarP(cmdFlags, &opt.Num, "num", "", 10, "Maximum number of results")
	flags.IntVarP(cmdFlags, &opt.Repeat, "repeat", "", 1, "Search up to this many times until something is found")
	flags.BoolVarP(cmdFlags, &idsOnly, "ids", "", false, "Only print the item ids")
}

var commandDefinition = &cobra.Command{
	Use:   "search",
	Short: `Search for items on the portal.`,
	Long: `Search for items matching all the fields given.  At least one of
--title, --type, --owner, --group, --id or --name must be set or
nothing is searched for.

Each item found is printed as its id, type and title separated by tabs.

Just after an item is made the search index may not have caught up so
use --repeat to search again, a second apart, until it is found.
`,
	Run: func(command *cobra.Command, args []string) {
		cmd.CheckArgs(0, 0, command, args)
		cmd.Run(command, func(ctx context.Context) error {
			return search(ctx, os.Stdout)
		})
	},
}

// list prints items to out
func list(out io.Writer, items []api.Item) {
	for _, item := range items {
		_, _ = fmt.Fprintf(out, "%s\t%s\t%s\n", item.ID, item.Type, item.Title)
	}
}

func search(ctx context.Context, out io.Writer) error {
	p, err := cmd.NewPortal(ctx)
	if err != nil {
		return err
	}
	if idsOnly {
		ids, err := p.SearchIDs(ctx, opt)
		if err != nil {
			return err
		}
		for _, id := range ids {
			_, _ = fmt.Fprintln(out, id)
		}
		return nil
	}
	items, err := p.Search(ctx, opt)
	if err != nil {
		return err
	}
	list(out, items)
	return nil
}
