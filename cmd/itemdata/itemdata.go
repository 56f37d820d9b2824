// Package itemdata provides the itemdata command.
package itemdata

import (
	"context"
	"fmt"
	"io"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/sharepkg/sharepkg/cmd"
	"github.com/spf13/cobra"
)

func init() {
	cmd.Root.AddCommand(commandDefinition)
}

var commandDefinition = &cobra.Command{
	Use:   "itemdata id",
	Short: `Print the data document of an item as JSON.`,
	Long: `Print the data document of the item given by id, e.g. the JSON
of a web map, indented.  Items stored as files have no document.
`,
	Run: func(command *cobra.Command, args []string) {
		cmd.CheckArgs(1, 1, command, args)
		cmd.Run(command, func(ctx context.Context) error {
			p, err := cmd.NewPortal(ctx)
			if err != nil {
				return err
			}
			data, err := p.ItemData(ctx, args[0])
			if err != nil {
				return err
			}
			return write(os.Stdout, data)
		})
	},
}

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// write prints data as indented JSON
func write(out io.Writer, data map[string]interface{}) error {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(b))
	return err
}

