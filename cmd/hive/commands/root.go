package commands

import (
	"github.com/spf13/cobra"
)

var (
	_config = NewDefaultCLIConfig()
)

//RootCmd is the root command for hive
var RootCmd = &cobra.Command{
	Use:              "hive",
	Short:            "hive leader election node",
	TraverseChildren: true,
}
