package cmd

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/conneroisu/pagesmith/internal/scaffolding"
)

var (
	initTemplate string
	initName     string
	initForce    bool
	initList     bool
)

var initCmd = &cobra.Command{
	Use:     "init [dir]",
	Aliases: []string{"i"},
	Short:   "Create a starter project",
	Long: `Create a starter project with a configuration file, data files and
pages.

Examples:
  pagesmith init                       # Minimal project in the working directory
  pagesmith init site --template blog --name "Field Notes"
  pagesmith init --list                # List starter projects`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().StringVarP(&initTemplate, "template", "t", "minimal", "Starter project to use")
	initCmd.Flags().StringVar(&initName, "name", "My Site", "Site name written to the globals")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing files")
	initCmd.Flags().BoolVar(&initList, "list", false, "List starter projects and exit")
}

func runInit(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	g := scaffolding.NewGenerator(afero.NewOsFs())

	if initList {
		for _, info := range g.ListTemplates() {
			fmt.Fprintf(out, "%-10s %s (%d files)\n", info.Name, info.Description, info.Files)
		}
		return nil
	}

	dir := projectDir(args)
	written, err := g.Generate(dir, scaffolding.Options{
		Template: initTemplate,
		SiteName: initName,
		Force:    initForce,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Created %s project in %s\n", initTemplate, dir)
	for _, name := range written {
		fmt.Fprintf(out, "  %s\n", name)
	}
	return nil
}
