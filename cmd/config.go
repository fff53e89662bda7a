package cmd

import (
	"fmt"

	"github.com/ohler55/ojg/oj"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/pagesmith/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect pagesmith configuration",
	Long: `Inspect the configuration pagesmith runs with.

Examples:
  pagesmith config show                # Show the effective configuration
  pagesmith config show --format json
  pagesmith config validate            # Validate .pagesmith.yml`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Display the configuration after loading the configuration file,
applying environment variable overrides and command-line flags, and filling in
defaults.`,
	RunE: runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	RunE:  runConfigValidate,
}

var configFormat string

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)

	configShowCmd.Flags().StringVar(&configFormat, "format", "yaml", "Output format (yaml, json)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	out, err := renderConfig(cfg, configFormat)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}

func renderConfig(cfg *config.Config, format string) (string, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to encode configuration: %w", err)
	}

	switch format {
	case "yaml", "yml":
		return string(data), nil
	case "json":
		var doc map[string]interface{}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return "", fmt.Errorf("failed to encode configuration: %w", err)
		}
		return oj.JSON(doc, &oj.Options{Indent: 2, Sort: true}) + "\n", nil
	default:
		return "", fmt.Errorf("unsupported format: %s (supported: yaml, json)", format)
	}
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Decode()
	if err != nil {
		return err
	}
	if file := viper.ConfigFileUsed(); file != "" {
		fmt.Fprintln(cmd.OutOrStdout(), "Validating", file)
	}

	result := config.ValidateConfigWithDetails(cfg)
	if report := result.String(); report != "" {
		fmt.Fprint(cmd.ErrOrStderr(), report)
	}
	if result.HasErrors() {
		return fmt.Errorf("configuration is invalid")
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid")
	return nil
}
