package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func rootCommand() *cobra.Command {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:          "nois",
		Short:        "Background noise generator",
		SilenceUsage: true,
	}
	setupFlags(rootCmd.PersistentFlags())

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := bindViper(v, cmd.Flags()); err != nil {
			return err
		}
		return readConfig(v)
	}

	rootCmd.AddCommand(playCommand(v), renderCommand(v))
	return rootCmd
}
