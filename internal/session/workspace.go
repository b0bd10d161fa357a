package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/GolferGeek/sync-focus/internal/docstore"
	"github.com/GolferGeek/sync-focus/internal/model"
)

const maxToggleAttempts = 3

func (s *Session) AddProject(ctx context.Context, name, color string) (model.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Project{}, ErrEmptyName
	}
	if color == "" {
		color = model.ProjectColors[0]
	}

	project := model.Project{Name: name, Color: color, CreatedAt: model.Millis(s.clock.Now())}
	doc, err := s.store.Add(ctx, model.ProjectsCollection, project)
	if err != nil {
		return model.Project{}, fmt.Errorf("add project: %w", err)
	}
	project.ID = doc.ID
	return project, nil
}

// DeleteProject removes the project only. Its tasks keep pointing at it and
// show up as belonging to no known project.
func (s *Session) DeleteProject(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, model.ProjectsCollection, id); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return nil
}

// AddTask creates a task. Empty projectID or assigneeID are stored as null.
func (s *Session) AddTask(ctx context.Context, title, projectID, assigneeID string) (model.Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return model.Task{}, ErrEmptyTitle
	}

	task := model.Task{
		Title:      title,
		ProjectID:  model.StringPtr(projectID),
		AssigneeID: model.StringPtr(assigneeID),
		CreatedAt:  model.Millis(s.clock.Now()),
	}
	doc, err := s.store.Add(ctx, model.TasksCollection, task)
	if err != nil {
		return model.Task{}, fmt.Errorf("add task: %w", err)
	}
	task.ID = doc.ID

	s.touch(ctx)
	return task, nil
}

// ToggleTask flips the completion flag of the stored task and returns the
// new value.
func (s *Session) ToggleTask(ctx context.Context, id string) (bool, error) {
	for attempt := 1; ; attempt++ {
		doc, err := s.store.Get(ctx, model.TasksCollection, id)
		if err != nil {
			return false, fmt.Errorf("toggle task: %w", err)
		}
		var task model.Task
		if err := doc.Decode(&task); err != nil {
			return false, err
		}

		completed := !task.Completed
		_, err = s.store.Update(ctx, model.TasksCollection, id,
			map[string]any{"completed": completed}, docstore.IfRevision(doc.Revision))
		if errors.Is(err, docstore.ErrConflict) && attempt < maxToggleAttempts {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("toggle task: %w", err)
		}

		s.touch(ctx)
		return completed, nil
	}
}

// AssignTask sets the assignee. An empty userID unassigns the task.
func (s *Session) AssignTask(ctx context.Context, id, userID string) error {
	_, err := s.store.Update(ctx, model.TasksCollection, id, map[string]any{"assigneeId": model.StringPtr(userID)})
	if err != nil {
		return fmt.Errorf("assign task: %w", err)
	}
	return nil
}

// DeleteTask removes the task and clears it as the active task of every user
// who had it selected.
func (s *Session) DeleteTask(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, model.TasksCollection, id); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}

	users, err := s.store.List(ctx, model.UsersCollection, docstore.Query{})
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	for _, doc := range users {
		var u model.User
		if err := doc.Decode(&u); err != nil || model.Deref(u.CurrentTaskID) != id {
			continue
		}
		_, err := s.store.Update(ctx, model.UsersCollection, doc.ID, map[string]any{
			"currentTaskId":    nil,
			"currentTaskTitle": nil,
		})
		if err != nil && !errors.Is(err, docstore.ErrNotFound) {
			return fmt.Errorf("clear active task of %s: %w", doc.ID, err)
		}
		s.logger.Debug().Str("user_id", doc.ID).Str("task_id", id).Msg("cleared deleted active task")
	}
	return nil
}

// SetActiveTask records what the signed-in user is working on. An empty
// taskID clears it.
func (s *Session) SetActiveTask(ctx context.Context, taskID string) error {
	uid, err := s.userID()
	if err != nil {
		return err
	}

	var title *string
	if taskID != "" {
		doc, err := s.store.Get(ctx, model.TasksCollection, taskID)
		if err != nil {
			return fmt.Errorf("look up task: %w", err)
		}
		var task model.Task
		if err := doc.Decode(&task); err != nil {
			return err
		}
		title = &task.Title
	}

	_, err = s.store.Update(ctx, model.UsersCollection, uid, map[string]any{
		"currentTaskId":    model.StringPtr(taskID),
		"currentTaskTitle": title,
		"lastActive":       model.Millis(s.clock.Now()),
	})
	if err != nil {
		return fmt.Errorf("set active task: %w", err)
	}
	return nil
}

func (s *Session) UpdateActivity(ctx context.Context) error {
	uid, err := s.userID()
	if err != nil {
		return err
	}
	_, err = s.store.Update(ctx, model.UsersCollection, uid, map[string]any{"lastActive": model.Millis(s.clock.Now())})
	if err != nil {
		return fmt.Errorf("update activity: %w", err)
	}
	return nil
}

// touch bumps the signed-in user's activity. Failures are only logged.
func (s *Session) touch(ctx context.Context) {
	if err := s.UpdateActivity(ctx); err != nil && !errors.Is(err, ErrNotSignedIn) {
		s.logger.Warn().Err(err).Msg("failed to update activity")
	}
}
