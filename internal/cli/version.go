package cli

import (
	"github.com/spf13/cobra"

	"github.com/causewaylabs/causeway/pkg/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		info := version.Get()
		cmd.Printf("causeway %s (commit %s, built %s)\n",
			info.Version, info.GitCommit, info.BuildTime)
	},
}
