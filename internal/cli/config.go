package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mgpai22/vidgen/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect vidgen configuration",
}

var configSampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Print the default configuration as TOML",
	Long: `Print the default configuration. Redirect it to the config path to
start from the defaults:

  vidgen config sample > ~/.config/vidgen/config.toml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := config.Sample()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file that would be loaded",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if configPath != "" {
			fmt.Println(configPath)
			return nil
		}
		path, err := config.DefaultConfigPath()
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configSampleCmd, configPathCmd)
}
