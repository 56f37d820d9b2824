// Package publish provides the publish command.
package publish

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sharepkg/sharepkg/backend/portal"
	"github.com/sharepkg/sharepkg/cmd"
	"github.com/sharepkg/sharepkg/fs"
	"github.com/sharepkg/sharepkg/fs/config/flags"
	"github.com/sharepkg/sharepkg/fs/operations"
	"github.com/spf13/cobra"
)

// Options are the flags of the publish command
type Options struct {
	Folder           string
	Title            string
	ItemType         string
	Summary          string
	Description      string
	Tags             string
	Credits          string
	License          string
	Thumbnail        string
	Groups           string
	Everyone         bool
	Org              bool
	Overwrite        bool
	MaintainMetadata bool
	Service          bool
}

var opt Options

func init() {
	cmd.Root.AddCommand(commandDefinition)
	cmdFlags := commandDefinition.Flags()
	flags.StringVarP(cmdFlags, &opt.Folder, "folder", "", "", "Folder to publish into, made if needed")
	flags.StringVarP(cmdFlags, &opt.Title, "title", "", "", "Title of the item, the file name if not set")
	flags.StringVarP(cmdFlags, &opt.ItemType, "type", "", "", "Item type, worked out from the extension if not set")
	flags.StringVarP(cmdFlags, &opt.Summary, "summary", "", "", "Summary (snippet) of the item")
	flags.StringVarP(cmdFlags, &opt.Description, "description", "", "", "Description of the item")
	flags.StringVarP(cmdFlags, &opt.Tags, "tags", "", "", "Comma separated tags")
	flags.StringVarP(cmdFlags, &opt.Credits, "credits", "", "", "Credits (access information) of the item")
	flags.StringVarP(cmdFlags, &opt.License, "license", "", "", "Use limitations (license info) of the item")
	flags.StringVarP(cmdFlags, &opt.Thumbnail, "thumbnail", "", "", "Image file to use as the thumbnail")
	flags.StringVarP(cmdFlags, &opt.Groups, "groups", "", "", "Titles of groups to share with separated by ; or ,")
	flags.BoolVarP(cmdFlags, &opt.Everyone, "everyone", "", false, "Share with everyone (implies --org)")
	flags.BoolVarP(cmdFlags, &opt.Org, "org", "", false, "Share with the organisation")
	flags.BoolVarP(cmdFlags, &opt.Overwrite, "overwrite", "", false, "Replace the data of an existing item of the same title and type")
	flags.BoolVarP(cmdFlags, &opt.MaintainMetadata, "maintain-metadata", "", false, "Keep the metadata and sharing of the existing item")
	flags.BoolVarP(cmdFlags, &opt.Service, "service", "", false, "Publish a hosted service from the item when done")
}

// splitTags splits comma separated tags
func splitTags(in string) (tags []string) {
	for _, tag := range strings.Split(in, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// PublishOptions turns the flags into options for the upload of path
func (o *Options) PublishOptions(path string) operations.PublishOptions {
	return operations.PublishOptions{
		Path:     path,
		Folder:   o.Folder,
		Title:    o.Title,
		ItemType: o.ItemType,
		Metadata: portal.Metadata{
			Snippet:           o.Summary,
			Description:       o.Description,
			Tags:              splitTags(o.Tags),
			AccessInformation: o.Credits,
			LicenseInfo:       o.License,
			Thumbnail:         o.Thumbnail,
		},
		Groups:           portal.SplitGroups(o.Groups),
		Everyone:         o.Everyone,
		Org:              o.Org,
		Overwrite:        o.Overwrite,
		MaintainMetadata: o.MaintainMetadata,
	}
}

var commandDefinition = &cobra.Command{
	Use:   "publish package",
	Short: `Upload a package to the portal and share it.`,
	Long: `Upload a package file to the portal as an item then set its
metadata and sharing.

The item type is worked out from the file extension, e.g. .tpk is a
Tile Package and .mmpk a Mobile Map Package.  Use --type to override
it.

The package is sent in parts of --chunk-size and the portal is polled
every --poll-interval until it has processed it.  If processing fails
nothing else is done.

With --overwrite an existing item with the same title and type is
updated in place, and moved into --folder if it is elsewhere.  With
--maintain-metadata the summary, description, tags, credits, license
and the everyone/org sharing are copied from the existing item and
the metadata and sharing flags are ignored.

For example

    sharepkg publish --folder Basemaps --tags roads,transport --org roads.tpk

prints the id of the published item.
`,
	Run: func(command *cobra.Command, args []string) {
		cmd.CheckArgs(1, 1, command, args)
		cmd.Run(command, func(ctx context.Context) error {
			return publish(ctx, args[0])
		})
	},
}

func publish(ctx context.Context, path string) error {
	p, err := cmd.NewPortal(ctx)
	if err != nil {
		return err
	}
	publishOpt := opt.PublishOptions(path)
	progress, stop := cmd.NewProgress(ctx, filepath.Base(path))
	publishOpt.Progress = progress
	result, err := operations.Publish(ctx, p, publishOpt)
	stop()
	if err != nil {
		return err
	}
	fmt.Println(result.ItemID)
	if !opt.Service {
		return nil
	}
	itemType, err := portal.ResolveItemType(path, opt.ItemType)
	if err != nil {
		return err
	}
	services, err := p.PublishService(ctx, result.ItemID, itemType)
	if err != nil {
		return err
	}
	for _, service := range services {
		fs.Logf(nil, "Published %s %s (item %s)", service.Type, service.ServiceURL, service.ServiceItemID)
	}
	return nil
}
