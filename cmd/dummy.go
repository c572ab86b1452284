package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"loadsurge/internal/dummy"
	"loadsurge/internal/logging"
)

var dummyCmd = &cobra.Command{
	Use:   "dummy",
	Short: "Run the built-in target server",
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")
		scale, _ := cmd.Flags().GetFloat64("scale")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return dummy.Start(ctx, dummy.ServerConfig{Port: port, Scale: scale}, logging.Named("dummy"))
	},
}

func init() {
	dummyCmd.Flags().IntP("port", "p", 8080, "port to listen on")
	dummyCmd.Flags().Float64("scale", 1, "multiplier for every simulated delay")
}
