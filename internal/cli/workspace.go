package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/GolferGeek/sync-focus/internal/docstore"
	"github.com/GolferGeek/sync-focus/internal/model"
	"github.com/GolferGeek/sync-focus/internal/session"
)

const activeWindow = 5 * time.Minute

// workspace is one snapshot of the shared collections, read once.
type workspace struct {
	Users    []model.User
	Projects []model.Project
	Tasks    []model.Task
}

func loadWorkspace(ctx context.Context, store docstore.Store) (workspace, error) {
	var ws workspace

	docs, err := store.List(ctx, model.UsersCollection, docstore.Query{OrderBy: "lastActive", Descending: true})
	if err != nil {
		return ws, err
	}
	for _, doc := range docs {
		var u model.User
		if doc.Decode(&u) == nil {
			ws.Users = append(ws.Users, u)
		}
	}

	docs, err = store.List(ctx, model.ProjectsCollection, docstore.Query{OrderBy: "createdAt"})
	if err != nil {
		return ws, err
	}
	for _, doc := range docs {
		var p model.Project
		if doc.Decode(&p) == nil {
			p.ID = doc.ID
			ws.Projects = append(ws.Projects, p)
		}
	}

	docs, err = store.List(ctx, model.TasksCollection, docstore.Query{OrderBy: "createdAt", Descending: true})
	if err != nil {
		return ws, err
	}
	for _, doc := range docs {
		var t model.Task
		if doc.Decode(&t) == nil {
			t.ID = doc.ID
			ws.Tasks = append(ws.Tasks, t)
		}
	}
	return ws, nil
}

func (ws workspace) projectName(id *string) string {
	for _, p := range ws.Projects {
		if p.ID == model.Deref(id) {
			return p.Name
		}
	}
	return "Inbox"
}

func (ws workspace) userName(id *string) string {
	if id == nil {
		return "-"
	}
	for _, u := range ws.Users {
		if u.UserID == *id {
			return u.DisplayName
		}
	}
	return *id
}

func (ws workspace) pending() []model.Task {
	var out []model.Task
	for _, t := range ws.Tasks {
		if !t.Completed {
			out = append(out, t)
		}
	}
	return out
}

type sessionFunc func(ctx context.Context, sess *session.Session, me *model.Identity) error

func (a *App) inSession(cmd *cobra.Command, fn sessionFunc) error {
	sess, me, err := a.connect(cmd.Context())
	if err != nil {
		return err
	}
	defer sess.Close()
	return fn(cmd.Context(), sess, me)
}

func (a *App) withSession(fn sessionFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		return a.inSession(cmd, fn)
	}
}

func (a *App) taskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage shared tasks",
	}

	add := &cobra.Command{
		Use:   "add [title]",
		Short: "Add a task",
		Args:  cobra.MinimumNArgs(1),
	}
	add.Flags().String("project", "", "Project id")
	add.Flags().String("assignee", "", "User id of the assignee, \"me\" for yourself")
	add.RunE = func(cmd *cobra.Command, args []string) error {
		project, _ := cmd.Flags().GetString("project")
		assignee, _ := cmd.Flags().GetString("assignee")
		return a.inSession(cmd, func(ctx context.Context, sess *session.Session, me *model.Identity) error {
			if assignee == "me" {
				assignee = me.UserID
			}
			task, err := sess.AddTask(ctx, strings.Join(args, " "), project, assignee)
			if err != nil {
				return err
			}
			a.printf("Added task %s\n", task.ID)
			return nil
		})
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List tasks, newest first",
		Args:  cobra.NoArgs,
	}
	list.Flags().String("project", "", "Only tasks of this project id")
	list.Flags().Bool("all", false, "Include completed tasks")
	list.RunE = func(cmd *cobra.Command, args []string) error {
		project, _ := cmd.Flags().GetString("project")
		all, _ := cmd.Flags().GetBool("all")
		return a.inSession(cmd, func(ctx context.Context, sess *session.Session, _ *model.Identity) error {
			ws, err := loadWorkspace(ctx, sess.Store())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tDONE\tTITLE\tPROJECT\tASSIGNEE")
			for _, t := range ws.Tasks {
				if project != "" && model.Deref(t.ProjectID) != project {
					continue
				}
				if t.Completed && !all {
					continue
				}
				done := " "
				if t.Completed {
					done = "x"
				}
				fmt.Fprintf(w, "%s\t[%s]\t%s\t%s\t%s\n", t.ID, done, t.Title, ws.projectName(t.ProjectID), ws.userName(t.AssigneeID))
			}
			return w.Flush()
		})
	}

	done := &cobra.Command{
		Use:   "done [task-id]",
		Short: "Toggle a task's completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.inSession(cmd, func(ctx context.Context, sess *session.Session, _ *model.Identity) error {
				completed, err := sess.ToggleTask(ctx, args[0])
				if err != nil {
					return err
				}
				if completed {
					a.printf("Completed %s\n", args[0])
				} else {
					a.printf("Reopened %s\n", args[0])
				}
				return nil
			})
		},
	}

	assign := &cobra.Command{
		Use:   "assign [task-id] [user-id|me|none]",
		Short: "Assign a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.inSession(cmd, func(ctx context.Context, sess *session.Session, me *model.Identity) error {
				user := args[1]
				switch user {
				case "me":
					user = me.UserID
				case "none":
					user = ""
				}
				return sess.AssignTask(ctx, args[0], user)
			})
		},
	}

	rm := &cobra.Command{
		Use:   "rm [task-id]",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.inSession(cmd, func(ctx context.Context, sess *session.Session, _ *model.Identity) error {
				return sess.DeleteTask(ctx, args[0])
			})
		},
	}

	focus := &cobra.Command{
		Use:   "focus [task-id]",
		Short: "Tell the team what you are working on; no id clears it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID := ""
			if len(args) == 1 {
				taskID = args[0]
			}
			return a.inSession(cmd, func(ctx context.Context, sess *session.Session, _ *model.Identity) error {
				return sess.SetActiveTask(ctx, taskID)
			})
		},
	}

	breakdown := &cobra.Command{
		Use:   "breakdown [task-id]",
		Short: "Split a task into sub-tasks with AI",
		Args:  cobra.ExactArgs(1),
	}
	breakdown.Flags().Bool("add", false, "Add the sub-tasks to the task's project")
	breakdown.RunE = func(cmd *cobra.Command, args []string) error {
		addThem, _ := cmd.Flags().GetBool("add")
		return a.inSession(cmd, func(ctx context.Context, sess *session.Session, _ *model.Identity) error {
			doc, err := sess.Store().Get(ctx, model.TasksCollection, args[0])
			if err != nil {
				return fmt.Errorf("look up task: %w", err)
			}
			var parent model.Task
			if err := doc.Decode(&parent); err != nil {
				return err
			}

			subtasks := a.assistant().BreakDownTask(ctx, parent.Title)
			if len(subtasks) == 0 {
				a.printf("No suggestions.\n")
				return nil
			}
			for _, title := range subtasks {
				if !addThem {
					a.printf("- %s\n", title)
					continue
				}
				task, err := sess.AddTask(ctx, title, model.Deref(parent.ProjectID), "")
				if err != nil {
					return err
				}
				a.printf("+ %s (%s)\n", title, task.ID)
			}
			return nil
		})
	}

	suggest := &cobra.Command{
		Use:   "suggest",
		Short: "Ask AI which pending task to do next",
		Args:  cobra.NoArgs,
		RunE: a.withSession(func(ctx context.Context, sess *session.Session, _ *model.Identity) error {
			ws, err := loadWorkspace(ctx, sess.Store())
			if err != nil {
				return err
			}
			pending := ws.pending()
			id := a.assistant().SuggestNextTask(ctx, pending, ws.Projects)
			for _, t := range pending {
				if t.ID == id {
					a.printf("Next up: %s (%s)\n", t.Title, t.ID)
					return nil
				}
			}
			a.printf("No suggestion.\n")
			return nil
		}),
	}

	cmd.AddCommand(add, list, done, assign, rm, focus, breakdown, suggest)
	return cmd
}

func (a *App) projectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects",
	}

	add := &cobra.Command{
		Use:   "add [name]",
		Short: "Create a project",
		Args:  cobra.MinimumNArgs(1),
	}
	add.Flags().String("color", model.ProjectColors[0], "Hex color")
	add.RunE = func(cmd *cobra.Command, args []string) error {
		color, _ := cmd.Flags().GetString("color")
		return a.inSession(cmd, func(ctx context.Context, sess *session.Session, _ *model.Identity) error {
			p, err := sess.AddProject(ctx, strings.Join(args, " "), color)
			if err != nil {
				return err
			}
			a.printf("Added project %s\n", p.ID)
			return nil
		})
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		Args:  cobra.NoArgs,
		RunE: a.withSession(func(ctx context.Context, sess *session.Session, _ *model.Identity) error {
			ws, err := loadWorkspace(ctx, sess.Store())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tCOLOR\tOPEN TASKS")
			for _, p := range ws.Projects {
				open := 0
				for _, t := range ws.pending() {
					if model.Deref(t.ProjectID) == p.ID {
						open++
					}
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", p.ID, p.Name, p.Color, open)
			}
			return w.Flush()
		}),
	}

	rm := &cobra.Command{
		Use:   "rm [project-id]",
		Short: "Delete a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.inSession(cmd, func(ctx context.Context, sess *session.Session, _ *model.Identity) error {
				return sess.DeleteProject(ctx, args[0])
			})
		},
	}

	cmd.AddCommand(add, list, rm)
	return cmd
}

func (a *App) teamCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "team",
		Short: "Show who is around and what they are working on",
		Args:  cobra.NoArgs,
		RunE: a.withSession(func(ctx context.Context, sess *session.Session, me *model.Identity) error {
			ws, err := loadWorkspace(ctx, sess.Store())
			if err != nil {
				return err
			}
			if len(ws.Users) == 0 {
				a.printf("Nobody here yet.\n")
				return nil
			}

			now := a.Clock.Now()
			w := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSTATUS\tWORKING ON")
			for _, u := range ws.Users {
				name := u.DisplayName
				if u.UserID == me.UserID {
					name += " (you)"
				}
				status := "away"
				if now.Sub(model.FromMillis(u.LastActive)) < activeWindow {
					status = "active"
				}
				current := model.Deref(u.CurrentTaskTitle)
				if current == "" {
					current = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", name, status, current)
			}
			return w.Flush()
		}),
	}
}
