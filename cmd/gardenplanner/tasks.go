package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"garden-planner/internal/model"
	"garden-planner/internal/service"
)

var todayCmd = &cobra.Command{
	Use:     "today",
	Aliases: []string{"report"},
	Short:   "Show care tasks due today, overdue ones included",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withUser(ctx, func(a *app, user *model.User) error {
			due, err := a.tasks.GetTodayTasks(ctx, user)
			if err != nil {
				return err
			}
			plants, err := a.plants.List(ctx, user)
			if err != nil {
				return err
			}
			renderTemplates(cmd.OutOrStdout(), "Due today", due, plantNames(plants), time.Now(), a.cfg.Location)
			return nil
		})
	},
}

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List and edit care tasks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withUser(ctx, func(a *app, user *model.User) error {
			list, err := a.tasks.GetTaskTemplates(ctx, user)
			if err != nil {
				return err
			}
			plants, err := a.plants.List(ctx, user)
			if err != nil {
				return err
			}
			renderTemplates(cmd.OutOrStdout(), "Tasks", list, plantNames(plants), time.Now(), a.cfg.Location)
			return nil
		})
	},
}

var (
	taskPlant     string
	taskEvery     int
	taskDue       string
	taskTime      string
	taskDisabled  bool
	doneNotes     string
	doneProduct   string
	snoozeDays    int
	taskEnable    bool
	taskDisable   bool
	taskDetach    bool
	taskEditEvery int
)

var taskAddCmd = &cobra.Command{
	Use:   "add <kind>",
	Short: "Create a care task (water, fertilise, prune, repot, spray, mulch)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := model.ParseTaskKind(strings.ToLower(args[0]))
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		return withUser(ctx, func(a *app, user *model.User) error {
			input := service.TaskInput{
				Kind:          kind,
				FrequencyDays: taskEvery,
				NextDueAt:     taskDue,
				Disabled:      taskDisabled,
				PreferredTime: model.TimeOfDay(taskTime),
			}
			if taskPlant != "" {
				plant, err := a.plants.Find(ctx, user, taskPlant)
				if err != nil {
					return fmt.Errorf("plant %q: %w", taskPlant, err)
				}
				input.PlantID = plant.ID
			}
			tmpl, err := a.tasks.CreateTaskTemplate(ctx, user, input)
			if err != nil {
				return err
			}
			renderPanel(cmd.OutOrStdout(), okStyle.Render("task created"), idStyle.Render(tmpl.ID))
			return nil
		})
	},
}

var taskEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Change the schedule of a care task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withUser(ctx, func(a *app, user *model.User) error {
			tmpl, err := a.tasks.FindTaskTemplate(ctx, user, args[0])
			if err != nil {
				return err
			}
			var update service.TaskUpdate
			flags := cmd.Flags()
			if flags.Changed("every") {
				update.FrequencyDays = &taskEditEvery
			}
			if flags.Changed("due") {
				update.NextDueAt = &taskDue
			}
			if flags.Changed("time") {
				tod := model.TimeOfDay(taskTime)
				update.PreferredTime = &tod
			}
			if taskEnable || taskDisable {
				enabled := taskEnable
				update.Enabled = &enabled
			}
			if taskDetach {
				empty := ""
				update.PlantID = &empty
			} else if flags.Changed("plant") {
				plant, err := a.plants.Find(ctx, user, taskPlant)
				if err != nil {
					return fmt.Errorf("plant %q: %w", taskPlant, err)
				}
				update.PlantID = &plant.ID
			}
			updated, err := a.tasks.UpdateTaskTemplate(ctx, user, tmpl.ID, update)
			if err != nil {
				return err
			}
			plants, _ := a.plants.List(ctx, user)
			today := model.StartOfDay(time.Now(), a.cfg.Location)
			renderPanel(cmd.OutOrStdout(), okStyle.Render("task updated"), renderTemplate(*updated, plantNames(plants), today, a.cfg.Location))
			return nil
		})
	},
}

var taskDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a care task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withUser(ctx, func(a *app, user *model.User) error {
			tmpl, err := a.tasks.FindTaskTemplate(ctx, user, args[0])
			if err != nil {
				return err
			}
			if err := a.tasks.DeleteTask(ctx, user, tmpl.ID); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("deleted ")+idStyle.Render(shortID(tmpl.ID)))
			return nil
		})
	},
}

var doneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Mark a care task done and schedule its next occurrence",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withUser(ctx, func(a *app, user *model.User) error {
			tmpl, err := a.tasks.FindTaskTemplate(ctx, user, args[0])
			if err != nil {
				return err
			}
			counted, err := a.tasks.MarkTaskDone(ctx, user, tmpl, service.DoneInput{Notes: doneNotes, ProductUsed: doneProduct})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !counted {
				fmt.Fprintln(out, mutedStyle.Render("already done today, nothing recorded"))
				return nil
			}
			fmt.Fprintln(out, okStyle.Render("done: ")+service.KindLabel(tmpl.Kind))
			return nil
		})
	},
}

var snoozeCmd = &cobra.Command{
	Use:   "snooze <id>",
	Short: "Postpone a care task without recording a completion",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withUser(ctx, func(a *app, user *model.User) error {
			tmpl, err := a.tasks.FindTaskTemplate(ctx, user, args[0])
			if err != nil {
				return err
			}
			updated, err := a.tasks.SnoozeTask(ctx, user, tmpl.ID, snoozeDays)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s until %s\n", okStyle.Render("snoozed"), updated.NextDueAt.In(a.cfg.Location).Format("2006-01-02"))
			return nil
		})
	},
}

var skipCmd = &cobra.Command{
	Use:   "skip <id>",
	Short: "Skip the current occurrence of a recurring care task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withUser(ctx, func(a *app, user *model.User) error {
			tmpl, err := a.tasks.FindTaskTemplate(ctx, user, args[0])
			if err != nil {
				return err
			}
			updated, err := a.tasks.SkipTask(ctx, user, tmpl.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s next on %s\n", okStyle.Render("skipped,"), updated.NextDueAt.In(a.cfg.Location).Format("2006-01-02"))
			return nil
		})
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Create missing recurring tasks from plant care schedules",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withUser(ctx, func(a *app, user *model.User) error {
			plants, err := a.plants.List(ctx, user)
			if err != nil {
				return err
			}
			created, err := a.tasks.GenerateRecurringTasksFromPlants(ctx, user, plants)
			if err != nil {
				return err
			}
			if len(created) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("all care tasks already exist"))
				return nil
			}
			renderTemplates(cmd.OutOrStdout(), "Generated", created, plantNames(plants), time.Now(), a.cfg.Location)
			return nil
		})
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show the completion history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withUser(ctx, func(a *app, user *model.User) error {
			logs, err := a.tasks.GetTaskLogs(ctx, user)
			if err != nil {
				return err
			}
			plants, err := a.plants.List(ctx, user)
			if err != nil {
				return err
			}
			renderLogs(cmd.OutOrStdout(), logs, plantNames(plants), a.cfg.Location)
			return nil
		})
	},
}

func init() {
	taskAddCmd.Flags().StringVar(&taskPlant, "plant", "", "plant id or id prefix; empty means a general task")
	taskAddCmd.Flags().IntVar(&taskEvery, "every", 0, "repeat every N days; 0 means one-time")
	taskAddCmd.Flags().StringVar(&taskDue, "due", "", "first due date (YYYY-MM-DD or RFC 3339); default now")
	taskAddCmd.Flags().StringVar(&taskTime, "time", "", "preferred time of day: morning, afternoon or evening")
	taskAddCmd.Flags().BoolVar(&taskDisabled, "disabled", false, "create the task disabled")

	taskEditCmd.Flags().StringVar(&taskPlant, "plant", "", "attach to a plant by id or id prefix")
	taskEditCmd.Flags().BoolVar(&taskDetach, "general", false, "detach the task from its plant")
	taskEditCmd.Flags().IntVar(&taskEditEvery, "every", 0, "repeat every N days; 0 means one-time")
	taskEditCmd.Flags().StringVar(&taskDue, "due", "", "next due date (YYYY-MM-DD or RFC 3339)")
	taskEditCmd.Flags().StringVar(&taskTime, "time", "", "preferred time of day")
	taskEditCmd.Flags().BoolVar(&taskEnable, "enable", false, "enable the task")
	taskEditCmd.Flags().BoolVar(&taskDisable, "disable", false, "disable the task")
	taskEditCmd.MarkFlagsMutuallyExclusive("enable", "disable")
	taskEditCmd.MarkFlagsMutuallyExclusive("plant", "general")

	doneCmd.Flags().StringVar(&doneNotes, "notes", "", "completion notes")
	doneCmd.Flags().StringVar(&doneProduct, "product", "", "product used, e.g. fertiliser brand")
	snoozeCmd.Flags().IntVar(&snoozeDays, "days", 1, "days to postpone")

	tasksCmd.AddCommand(taskAddCmd, taskEditCmd, taskDeleteCmd)
}
