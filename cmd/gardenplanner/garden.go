package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"garden-planner/internal/model"
	"garden-planner/internal/service"
)

var (
	plantSpecies  string
	plantLocation string
	plantNotes    string
	plantPhoto    string
	plantWater    int
	plantFeed     int
	plantPrune    int
	plantAuto     bool

	noteBody   string
	notePlant  string
	noteDate   string
	notePhotos []string
)

var plantsCmd = &cobra.Command{
	Use:   "plants",
	Short: "List and manage plants",
	Args:  cobra.NoArgs,
	RunE:  listPlants,
}

var plantListCmd = &cobra.Command{
	Use:   "list",
	Short: "List plants with their care schedules",
	Args:  cobra.NoArgs,
	RunE:  listPlants,
}

func listPlants(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withUser(ctx, func(a *app, user *model.User) error {
		list, err := a.plants.List(ctx, user)
		if err != nil {
			return err
		}
		renderPlants(cmd.OutOrStdout(), list)
		return nil
	})
}

var plantAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a plant, optionally with a care schedule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withUser(ctx, func(a *app, user *model.User) error {
			input := service.PlantInput{
				Name:     args[0],
				Species:  plantSpecies,
				Location: plantLocation,
				Notes:    plantNotes,
				Care: model.CareSchedule{
					AutoGenerate:       plantAuto,
					WaterEveryDays:     plantWater,
					FertiliseEveryDays: plantFeed,
					PruneEveryDays:     plantPrune,
				},
			}
			if plantPhoto != "" {
				name, err := importPhoto(a, plantPhoto)
				if err != nil {
					return err
				}
				input.PhotoURI = name
			}
			plant, err := a.plants.Create(ctx, user, input)
			if err != nil {
				return err
			}
			lines := []string{okStyle.Render("plant added: ") + plant.Name, idStyle.Render(plant.ID)}
			if plant.Care.AutoGenerate {
				created, err := a.tasks.GenerateRecurringTasksFromPlants(ctx, user, []model.Plant{*plant})
				if err != nil {
					a.logger.Printf("[warn] generate tasks for plant %s: %v", plant.ID, err)
				}
				lines = append(lines, fmt.Sprintf("%d care tasks scheduled", len(created)))
			}
			renderPanel(cmd.OutOrStdout(), lines...)
			return nil
		})
	},
}

var plantDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a plant with its care tasks and photo",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withUser(ctx, func(a *app, user *model.User) error {
			plant, err := a.plants.Find(ctx, user, args[0])
			if err != nil {
				return err
			}
			if err := a.plants.Delete(ctx, user, plant.ID); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("deleted ")+plant.Name)
			return nil
		})
	},
}

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Show and write garden journal entries",
	Args:  cobra.NoArgs,
	RunE:  listJournal,
}

var journalListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show journal entries, newest first",
	Args:  cobra.NoArgs,
	RunE:  listJournal,
}

func listJournal(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withUser(ctx, func(a *app, user *model.User) error {
		entries, err := a.journal.List(ctx, user)
		if err != nil {
			return err
		}
		plants, err := a.plants.List(ctx, user)
		if err != nil {
			return err
		}
		renderJournal(cmd.OutOrStdout(), entries, plantNames(plants), a.cfg.Location)
		return nil
	})
}

var journalAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Write a journal entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withUser(ctx, func(a *app, user *model.User) error {
			input := service.JournalInput{Title: args[0], Body: noteBody, EntryDate: noteDate}
			if notePlant != "" {
				plant, err := a.plants.Find(ctx, user, notePlant)
				if err != nil {
					return fmt.Errorf("plant %q: %w", notePlant, err)
				}
				input.PlantID = plant.ID
			}
			for _, path := range notePhotos {
				name, err := importPhoto(a, path)
				if err != nil {
					return err
				}
				input.Photos = append(input.Photos, name)
			}
			entry, err := a.journal.Create(ctx, user, input)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("entry saved ")+idStyle.Render(shortID(entry.ID)))
			return nil
		})
	},
}

var journalDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a journal entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withUser(ctx, func(a *app, user *model.User) error {
			entry, err := a.journal.Find(ctx, user, args[0])
			if err != nil {
				return err
			}
			if err := a.journal.Delete(ctx, user, entry.ID); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render("deleted ")+entry.Title)
			return nil
		})
	},
}

// importPhoto copies a local picture into the photo library and returns the
// name it is stored under.
func importPhoto(a *app, path string) (string, error) {
	f, err := afero.NewOsFs().Open(path)
	if err != nil {
		return "", fmt.Errorf("open photo: %w", err)
	}
	defer f.Close()
	return a.library.Save(filepath.Base(path), f)
}

func init() {
	plantAddCmd.Flags().StringVar(&plantSpecies, "species", "", "species or variety")
	plantAddCmd.Flags().StringVar(&plantLocation, "location", "", "where the plant grows")
	plantAddCmd.Flags().StringVar(&plantNotes, "notes", "", "free-form notes")
	plantAddCmd.Flags().StringVar(&plantPhoto, "photo", "", "picture file to attach")
	plantAddCmd.Flags().IntVar(&plantWater, "water", 0, "water every N days")
	plantAddCmd.Flags().IntVar(&plantFeed, "fertilise", 0, "fertilise every N days")
	plantAddCmd.Flags().IntVar(&plantPrune, "prune", 0, "prune every N days")
	plantAddCmd.Flags().BoolVar(&plantAuto, "auto", true, "generate recurring care tasks from the schedule")
	plantsCmd.AddCommand(plantListCmd, plantAddCmd, plantDeleteCmd)

	journalAddCmd.Flags().StringVar(&noteBody, "body", "", "entry text")
	journalAddCmd.Flags().StringVar(&notePlant, "plant", "", "plant id or id prefix")
	journalAddCmd.Flags().StringVar(&noteDate, "date", "", "entry date (YYYY-MM-DD); default now")
	journalAddCmd.Flags().StringSliceVar(&notePhotos, "photo", nil, "picture files to attach")
	journalCmd.AddCommand(journalListCmd, journalAddCmd, journalDeleteCmd)
}
