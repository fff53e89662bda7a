package cmd

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/pagesmith/internal/build"
	"github.com/conneroisu/pagesmith/internal/errors"
)

var buildCmd = &cobra.Command{
	Use:     "build [dir]",
	Aliases: []string{"b"},
	Short:   "Render the site into the output directory",
	Long: `Render every entry of the project into the output directory.
Pages whose name carries an inner extension, such as feed.xml.html, are
written under their real name (feed.xml).

Examples:
  pagesmith build                 # Build the working directory into dist/
  pagesmith build site -o public
  pagesmith build --workers 4 --clean=false`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().StringP("out-dir", "o", "dist", "Output directory, relative to the project")
	buildCmd.Flags().IntP("workers", "w", 0, "Number of render workers (0 uses every CPU)")
	buildCmd.Flags().Bool("clean", true, "Remove the output directory before building")

	_ = viper.BindPFlag("build.out_dir", buildCmd.Flags().Lookup("out-dir"))
	_ = viper.BindPFlag("build.workers", buildCmd.Flags().Lookup("workers"))
	_ = viper.BindPFlag("build.clean", buildCmd.Flags().Lookup("clean"))
}

func runBuild(cmd *cobra.Command, args []string) error {
	p, logger, err := loadPipeline(projectDir(args))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	builder := build.NewBuilder(afero.NewOsFs(), p, build.OptionsFromConfig(p.Config()), logger)
	result, err := builder.Build(ctx)
	if result != nil {
		printBuildSummary(cmd.OutOrStdout(), cmd.ErrOrStderr(), result)
	}
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}
	return nil
}

// printBuildSummary writes the build counters to out and the failing
// entries to errOut. Render errors were already printed by the pipeline's
// console channel, so only their keys are listed.
func printBuildSummary(out, errOut io.Writer, result *build.Result) {
	m := &result.Metrics
	fmt.Fprintf(out, "Built %d entries in %s\n", result.Entries, result.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "  rendered: %d\n", m.RenderedFiles)
	fmt.Fprintf(out, "  copied:   %d\n", m.CopiedFiles)
	fmt.Fprintf(out, "  failed:   %d\n", m.FailedFiles)
	fmt.Fprintf(out, "  written:  %d bytes\n", m.BytesWritten)

	for _, r := range result.Files {
		if r.Outcome != build.OutcomeFailed {
			continue
		}
		if errors.IsRenderError(r.Error) {
			fmt.Fprintf(errOut, "  failed: %s\n", r.Key)
			continue
		}
		fmt.Fprintf(errOut, "  failed: %s: %v\n", r.Key, r.Error)
	}
}
