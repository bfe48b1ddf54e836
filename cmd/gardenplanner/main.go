package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	configPath string
	userFlag   string
)

var rootCmd = &cobra.Command{
	Use:   "gardenplanner",
	Short: "Garden care planner: plants, recurring care tasks and a Telegram bot",
	Long: `gardenplanner keeps a list of plants, schedules recurring care tasks for
them and reminds about due tasks through a Telegram bot.

Data lives in a remote store (SQLite file, Postgres or MongoDB, picked by
DATABASE_URL). Reads fall back to a local cache when the store is unreachable.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a config file (yaml, toml or json)")
	rootCmd.PersistentFlags().StringVar(&userFlag, "user", "", "planner user id the command acts as (overrides GARDEN_USER)")

	rootCmd.AddCommand(botCmd)
	rootCmd.AddCommand(todayCmd, tasksCmd, doneCmd, snoozeCmd, skipCmd, generateCmd, logsCmd)
	rootCmd.AddCommand(plantsCmd, journalCmd)
	rootCmd.AddCommand(exportCmd, importCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
