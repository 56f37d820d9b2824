// Package folders provides the folders command.
package folders

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/sharepkg/sharepkg/cmd"
	"github.com/spf13/cobra"
)

func init() {
	cmd.Root.AddCommand(commandDefinition)
}

var commandDefinition = &cobra.Command{
	Use:   "folders [title]",
	Short: `List the folders of the user or make one.`,
	Long: `With no arguments list the folders of the signed in user as id and
title separated by a tab.

Given a title print the id of the folder with that title, making it if
it doesn't exist.
`,
	Run: func(command *cobra.Command, args []string) {
		cmd.CheckArgs(0, 1, command, args)
		cmd.Run(command, func(ctx context.Context) error {
			p, err := cmd.NewPortal(ctx)
			if err != nil {
				return err
			}
			if len(args) > 0 {
				id, err := p.FindOrCreateFolder(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Println(id)
				return nil
			}
			folders, err := p.ListFolders(ctx)
			if err != nil {
				return err
			}
			list(os.Stdout, folders)
			return nil
		})
	},
}

// list prints the folders sorted by title
func list(out io.Writer, folders map[string]string) {
	titles := make([]string, 0, len(folders))
	for title := range folders {
		titles = append(titles, title)
	}
	sort.Strings(titles)
	for _, title := range titles {
		_, _ = fmt.Fprintf(out, "%s\t%s\n", folders[title], title)
	}
}
