package cmd

import (
	"fmt"
	"os"
	"strings"

	db "github.com/cozy-creator/image-ingest/cmd/ingest/db"
	run "github.com/cozy-creator/image-ingest/cmd/ingest/run"
	"github.com/cozy-creator/image-ingest/internal/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const cozyPrefix = "COZY"

var Cmd = &cobra.Command{
	Use:   "cozy-ingest",
	Short: "Cozy image ingestion server",
	Long:  "Accepts product and site image uploads, derives resized variants, deduplicates them by content and keeps one primary image per product",

	// Runs before this command and any subcommands
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		viper.SetEnvPrefix(cozyPrefix)
		viper.SetEnvKeyReplacer(strings.NewReplacer(
			`-`, `_`,
			`.`, `_`,
		))
		viper.AutomaticEnv()

		if err := viper.BindPFlags(cmd.PersistentFlags()); err != nil {
			return err
		}

		return config.LoadEnvAndConfigFiles()
	},
}

func Execute() {
	if err := Cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pflags := Cmd.PersistentFlags()

	pflags.String("home", "", "Path to the home directory holding config.yaml, .env and local assets")
	pflags.String("config-file", "", "Path to the config file")
	pflags.String("env-file", "", "Path to the env file")

	viper.BindPFlag("home_dir", pflags.Lookup("home"))
	viper.BindPFlag("config_file", pflags.Lookup("config-file"))
	viper.BindPFlag("env_file", pflags.Lookup("env-file"))

	Cmd.AddCommand(run.Cmd, db.Cmd)
	Cmd.CompletionOptions.HiddenDefaultCmd = true
}
