package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"loadsurge/internal/cli"
	"loadsurge/internal/storage"
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List recorded runs, or show one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := storage.NewStore(viper.GetString("history-dir"))
		if err != nil {
			return err
		}
		if len(args) == 0 {
			cli.PrintHistory(cmd.OutOrStdout(), store.List())
			return nil
		}

		item, ok := store.Get(args[0])
		if !ok {
			return fmt.Errorf("no run with id %q in %s", args[0], store.Path())
		}
		data, err := json.MarshalIndent(item, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}
