package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/melih/lighthouse-preview/internal/config"
	"github.com/melih/lighthouse-preview/internal/core/domain"
	"github.com/melih/lighthouse-preview/internal/ui"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a sample preview.yml",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultFileName
		if len(args) == 1 {
			path = args[0]
		}
		if err := config.WriteSample(path, initForce); err != nil {
			return err
		}
		ui.Success(fmt.Sprintf("Wrote %s", path))
		fmt.Println(ui.Hint("Edit the image section for your site, then run 'lighthouse-preview up'."))
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate your preview.yml configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(viper.GetViper())
		if err != nil {
			return err
		}
		fmt.Println(ui.Bold("Validating configuration..."))

		_, envErr := cfg.Environment()
		checks := []struct {
			field string
			err   error
			ok    string
		}{
			{"image", cfg.ImageSpec().Validate(), cfg.Image.BaseRuntime},
			{"image.tag", domain.ValidateTag(cfg.Image.Tag), cfg.Image.Tag},
			{"project", cfg.ProjectMount().Validate(), cfg.Project.HostPath + " -> " + cfg.Project.ContainerPath},
			{"server", cfg.Binding().Validate(), cfg.Binding().Address()},
			{"env", envErr, fmt.Sprintf("%d variables", len(cfg.Env))},
		}

		failed := 0
		for _, c := range checks {
			if c.err != nil {
				ui.ValidationErr(c.field, c.err.Error(), "")
				failed++
				continue
			}
			ui.ValidationOK(c.field, c.ok)
		}

		fmt.Println()
		if failed > 0 {
			return fmt.Errorf("%d validation errors", failed)
		}
		ui.Success(fmt.Sprintf("%d checks passed, 0 errors", len(checks)))
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite an existing file")
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(validateCmd)
}
