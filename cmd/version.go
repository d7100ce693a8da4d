package cmd

import (
	"fmt"
	"io"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// version is set via -ldflags at build time.
var version = ""

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version and revision",
	Run: func(cmd *cobra.Command, args []string) {
		info, _ := debug.ReadBuildInfo()
		printVersion(cmd.OutOrStdout(), version, info)
	},
}

// printVersion prefers the linker-set version, then the module version
// recorded by `go install`. The VCS revision is appended when known.
func printVersion(w io.Writer, linked string, info *debug.BuildInfo) {
	v := linked
	var rev, goVersion string
	modified := false
	if info != nil {
		if v == "" && info.Main.Version != "" {
			v = info.Main.Version
		}
		goVersion = info.GoVersion
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				rev = s.Value
			case "vcs.modified":
				modified = s.Value == "true"
			}
		}
	}
	if v == "" {
		v = "(devel)"
	}

	fmt.Fprintf(w, "deeplearn %s", v)
	if rev != "" {
		if len(rev) > 12 {
			rev = rev[:12]
		}
		if modified {
			rev += "-dirty"
		}
		fmt.Fprintf(w, " (%s)", rev)
	}
	if goVersion != "" {
		fmt.Fprintf(w, " %s", goVersion)
	}
	fmt.Fprintln(w)
}
