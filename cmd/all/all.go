// Package all imports all the commands
package all

import (
	// Active commands
	_ "github.com/sharepkg/sharepkg/cmd"
	_ "github.com/sharepkg/sharepkg/cmd/deleteitem"
	_ "github.com/sharepkg/sharepkg/cmd/folders"
	_ "github.com/sharepkg/sharepkg/cmd/itemdata"
	_ "github.com/sharepkg/sharepkg/cmd/moveitems"
	_ "github.com/sharepkg/sharepkg/cmd/publish"
	_ "github.com/sharepkg/sharepkg/cmd/search"
	_ "github.com/sharepkg/sharepkg/cmd/share"
	_ "github.com/sharepkg/sharepkg/cmd/version"
)
