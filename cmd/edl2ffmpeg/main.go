package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/blackbird-aslough/edl2ffmpeg/internal/config"
	"github.com/blackbird-aslough/edl2ffmpeg/internal/logging"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "edl2ffmpeg",
	Short: "edl2ffmpeg - renders a JSON EDL timeline to an encoded video file",
	Long:  "A non-linear EDL renderer: parses a JSON edit-decision list, synthesizes a per-frame composition instruction stream, and drives decode/composite/encode through the codec library.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Init(verbose)
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cmd.SetContext(config.WithConfig(cmd.Context(), cfg))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./edl2ffmpeg.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.AddCommand(renderCmd)
}
