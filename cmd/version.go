package cmd

import (
	"fmt"

	"github.com/ohler55/ojg/oj"
	"github.com/spf13/cobra"

	"github.com/conneroisu/pagesmith/internal/version"
)

var (
	versionFormat string
	versionShort  bool
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Display the version, commit, build time, Go toolchain, platform and
template engine of this binary.

Examples:
  pagesmith version
  pagesmith version --short
  pagesmith version --format json`,
	RunE: runVersionCommand,
}

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().StringVarP(&versionFormat, "format", "f", "text", "Output format (text, json)")
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Show short version only")
}

func runVersionCommand(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	switch versionFormat {
	case "json":
		info := version.Get()
		fmt.Fprintln(out, oj.JSON(map[string]interface{}{
			"version":    info.Version,
			"git_commit": info.GitCommit,
			"build_time": info.BuildTime.Format("2006-01-02T15:04:05Z07:00"),
			"go_version": info.GoVersion,
			"platform":   info.Platform,
			"engine":     info.Engine,
			"is_release": version.IsRelease(),
			"is_dirty":   info.Dirty,
		}, &oj.Options{Indent: 2, Sort: true}))
	case "text":
		if versionShort {
			fmt.Fprintln(out, version.GetShortVersion())
			return nil
		}
		fmt.Fprintln(out, version.Get().String())
	default:
		return fmt.Errorf("unsupported format: %s (supported: text, json)", versionFormat)
	}
	return nil
}
