package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"garden-planner/internal/bot"
	"garden-planner/internal/service"
)

const jobTimeout = 2 * time.Minute

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run the Telegram bot with scheduled generation and reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.cfg.RequireTelegram(); err != nil {
			return err
		}

		telegramBot, err := bot.New(a.cfg.TelegramToken, bot.Services{
			Users:     a.store.Users(),
			Tasks:     a.tasks,
			Plants:    a.plants,
			Journal:   a.journal,
			Reminders: a.reminders,
			Backups:   a.backups,
			Photos:    a.library,
		}, a.logger)
		if err != nil {
			return err
		}

		scheduler := service.NewSchedulerService(a.cfg.Location, a.logger)
		if err := scheduleJobs(scheduler, a, telegramBot); err != nil {
			return err
		}
		scheduler.Start()
		defer scheduler.Stop()

		a.logger.Println("[info] garden planner bot started")
		if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("bot stopped: %w", err)
		}
		a.logger.Println("[info] shutdown complete")
		return nil
	},
}

func scheduleJobs(scheduler *service.SchedulerService, a *app, telegramBot *bot.Bot) error {
	if a.cfg.NetworkCheckInterval > 0 {
		if _, err := scheduler.ScheduleInterval(a.cfg.NetworkCheckInterval, "network check", a.cfg.RemoteTimeout, func(ctx context.Context) error {
			a.monitor.Check(ctx)
			return nil
		}); err != nil {
			return err
		}
	}
	if a.cfg.GenerateSchedule != "" {
		if _, err := scheduler.ScheduleSpec(a.cfg.GenerateSchedule, "generate tasks", jobTimeout, func(ctx context.Context) error {
			_, err := a.tasks.GenerateForAllUsers(ctx, a.plants)
			return err
		}); err != nil {
			return err
		}
	}
	if a.cfg.ReportInterval > 0 {
		if _, err := scheduler.ScheduleInterval(a.cfg.ReportInterval, "daily report", jobTimeout, telegramBot.SendDailyReports); err != nil {
			return err
		}
	}
	return nil
}
