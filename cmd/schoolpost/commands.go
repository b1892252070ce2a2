package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/schoolpost/internal/app"
	"github.com/dharsanguruparan/schoolpost/internal/database"
	"github.com/dharsanguruparan/schoolpost/internal/model"
	"github.com/dharsanguruparan/schoolpost/internal/queue"
	"github.com/dharsanguruparan/schoolpost/internal/schedule"
)

func newScrapeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scrape",
		Short: "Run one portal acquisition now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				result, err := a.Pipeline.RunScrape(ctx)
				if err != nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), result); err != nil {
					return err
				}
				if !result.Success {
					return errors.New(result.Error)
				}
				return nil
			})
		},
	}
}

func newGenerateCmd() *cobra.Command {
	var (
		groupID string
		week    string
		all     bool
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate reminders and the overview for a class group",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if groupID == "" && !all {
				return errors.New("--group or --all is required")
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				weekStart, err := parseWeek(a.Calendar, week)
				if err != nil {
					return err
				}
				if all {
					out, err := a.Pipeline.GenerateAll(ctx, weekStart)
					if perr := printJSON(cmd.OutOrStdout(), out); perr != nil {
						return perr
					}
					return err
				}
				res, err := a.Pipeline.GenerateForGroup(ctx, groupID, weekStart)
				if err != nil {
					return err
				}
				res.Artifact = nil
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().StringVar(&groupID, "group", "", "Class group ID")
	cmd.Flags().StringVar(&week, "week", "", "Week start date (YYYY-MM-DD); defaults to the current week")
	cmd.Flags().BoolVar(&all, "all", false, "Generate for every class group")
	return cmd
}

func newScheduleCmd() *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Show the week start and display date for a moment",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := load()
			if err != nil {
				return err
			}
			cal, err := app.Calendar(cfg)
			if err != nil {
				return err
			}
			now := time.Now()
			if at != "" {
				if now, err = time.Parse(time.RFC3339, at); err != nil {
					return fmt.Errorf("parse --at: %w", err)
				}
			}
			return printJSON(cmd.OutOrStdout(), map[string]string{
				"now":           now.In(cal.Location).Format(time.RFC3339),
				"weekStartDate": schedule.FormatDate(cal.WeekStart(now)),
				"displayDate":   schedule.FormatDate(cal.DisplayDate(now)),
			})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "Moment to evaluate (RFC 3339); defaults to now")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return errors.New("SCHOOLPOST_DATABASE_URL is not set")
			}
			pool, err := database.Connect(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := database.EnsureSchema(cmd.Context(), pool); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

func newRunsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent scrape runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				runs, err := a.Pipeline.Runs(ctx, limit)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), runs)
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "Number of runs to show")
	return cmd
}

func newGroupsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "groups",
		Short: "Manage class groups",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List class groups in display order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				groups, err := a.Store.ListClassGroups(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), groups)
			})
		},
	})

	var (
		name  string
		order int
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a class group",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if name == "" {
				return errors.New("--name is required")
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				group := &model.ClassGroup{Name: name, DisplayOrder: order}
				if err := a.Store.SaveClassGroup(ctx, group); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), group)
			})
		},
	}
	add.Flags().StringVar(&name, "name", "", "Group name")
	add.Flags().IntVar(&order, "order", 0, "Display order")
	cmd.AddCommand(add)
	return cmd
}

func newDocumentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "documents",
		Short: "Manage stored documents",
	}
	var (
		docType       string
		groupID       string
		week          string
		file          string
		timetableFile string
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Store a knowledge sheet or mailing, superseding the previous version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read --file: %w", err)
			}
			doc := &model.Document{
				Type:     model.DocumentType(docType),
				Filename: filepath.Base(file),
				Content:  data,
			}
			if groupID != "" {
				doc.ClassGroupID = &groupID
			}
			if timetableFile != "" {
				raw, err := os.ReadFile(timetableFile)
				if err != nil {
					return fmt.Errorf("read --timetable: %w", err)
				}
				doc.Timetable = string(raw)
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if doc.Type == model.DocumentWeeklyMailing {
					weekStart, err := parseWeek(a.Calendar, week)
					if err != nil {
						return err
					}
					if weekStart == nil {
						w := a.Calendar.WeekStart(time.Now())
						weekStart = &w
					}
					doc.WeekStart = weekStart
				}
				if err := a.Recorder.PersistDocument(ctx, doc); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), doc)
			})
		},
	}
	add.Flags().StringVar(&docType, "type", string(model.DocumentKnowledgeSheet), "weekly_mailing or knowledge_sheet")
	add.Flags().StringVar(&groupID, "group", "", "Class group ID")
	add.Flags().StringVar(&week, "week", "", "Week start date for mailings (YYYY-MM-DD)")
	add.Flags().StringVar(&file, "file", "", "Path to the PDF")
	add.Flags().StringVar(&timetableFile, "timetable", "", "Path to a timetable JSON file")
	_ = add.MarkFlagRequired("file")
	cmd.AddCommand(add)
	return cmd
}

func newEnqueueCmd() *cobra.Command {
	var (
		groupID string
		week    string
	)
	cmd := &cobra.Command{
		Use:       "enqueue scrape|generate|generate-all",
		Short:     "Queue a task for the worker",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"scrape", "generate", "generate-all"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := load()
			if err != nil {
				return err
			}
			if cfg.RedisAddr == "" {
				return errors.New("SCHOOLPOST_REDIS_ADDR is not set")
			}
			client := asynq.NewClient(app.RedisOpt(cfg))
			defer client.Close()

			var id string
			switch args[0] {
			case "scrape":
				id, err = queue.EnqueueScrape(cmd.Context(), client)
			case "generate":
				if groupID == "" {
					return errors.New("--group is required")
				}
				id, err = queue.EnqueueGenerate(cmd.Context(), client, queue.GeneratePayload{ClassGroupID: groupID, WeekStart: week})
			case "generate-all":
				id, err = queue.EnqueueGenerateAll(cmd.Context(), client, week)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued %s as %s\n", args[0], id)
			return nil
		},
	}
	cmd.Flags().StringVar(&groupID, "group", "", "Class group ID (generate)")
	cmd.Flags().StringVar(&week, "week", "", "Week start date (YYYY-MM-DD)")
	return cmd
}

func parseWeek(cal *schedule.Calculator, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	w, err := cal.ParseDate(raw)
	if err != nil {
		return nil, err
	}
	return &w, nil
}
