package session

import (
	"context"
	"net/url"
	"strings"

	"github.com/GolferGeek/sync-focus/internal/docstore"
	"github.com/GolferGeek/sync-focus/internal/model"
	"github.com/GolferGeek/sync-focus/internal/timer"
)

func (s *Session) startWatches() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopWatches != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.stopWatches = cancel

	s.run(ctx, "timer", func(ctx context.Context) (*docstore.Subscription, error) {
		return s.store.WatchDocument(ctx, model.ConfigCollection, model.TimerDocID)
	}, s.applyTimer)
	s.run(ctx, "users", func(ctx context.Context) (*docstore.Subscription, error) {
		return s.store.WatchCollection(ctx, model.UsersCollection, docstore.Query{OrderBy: "lastActive", Descending: true})
	}, s.applyUsers)
	s.run(ctx, "projects", func(ctx context.Context) (*docstore.Subscription, error) {
		return s.store.WatchCollection(ctx, model.ProjectsCollection, docstore.Query{OrderBy: "createdAt"})
	}, s.applyProjects)
	s.run(ctx, "tasks", func(ctx context.Context) (*docstore.Subscription, error) {
		return s.store.WatchCollection(ctx, model.TasksCollection, docstore.Query{OrderBy: "createdAt", Descending: true})
	}, s.applyTasks)
}

// run keeps one watch alive until ctx ends, opening a new subscription after
// the previous one drops.
func (s *Session) run(
	ctx context.Context,
	name string,
	open func(context.Context) (*docstore.Subscription, error),
	apply func(context.Context, docstore.Snapshot),
) {
	s.watchers.Add(1)
	go func() {
		defer s.watchers.Done()
		for {
			sub, err := open(ctx)
			if err != nil {
				s.logger.Warn().Err(err).Str("watch", name).Msg("failed to open watch")
			} else {
				for snap := range sub.C() {
					apply(ctx, snap)
				}
			}

			if ctx.Err() != nil {
				return
			}
			s.logger.Warn().Str("watch", name).Dur("retry_in", s.resubscribeDelay).Msg("watch ended, resubscribing")
			select {
			case <-ctx.Done():
				return
			case <-s.clock.After(s.resubscribeDelay):
			}
		}
	}()
}

func (s *Session) applyTimer(ctx context.Context, snap docstore.Snapshot) {
	t, err := timer.FromSnapshot(snap, s.machine)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to decode timer document")
		return
	}
	if !snap.Exists {
		if _, err := s.controller.Ensure(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error().Err(err).Msg("failed to create timer document")
		}
	}

	s.mu.Lock()
	s.state.Timer = t
	s.mu.Unlock()
	s.notify()
}

func (s *Session) applyUsers(_ context.Context, snap docstore.Snapshot) {
	users := make(map[string]model.User, len(snap.Documents))
	for _, doc := range snap.Documents {
		var u model.User
		if err := doc.Decode(&u); err != nil {
			s.logger.Warn().Err(err).Str("id", doc.ID).Msg("skipping unreadable user")
			continue
		}
		users[doc.ID] = u
	}

	s.mu.Lock()
	s.state.Users = users
	s.mu.Unlock()
	s.notify()
}

func (s *Session) applyProjects(_ context.Context, snap docstore.Snapshot) {
	projects := make([]model.Project, 0, len(snap.Documents))
	for _, doc := range snap.Documents {
		var p model.Project
		if err := doc.Decode(&p); err != nil {
			s.logger.Warn().Err(err).Str("id", doc.ID).Msg("skipping unreadable project")
			continue
		}
		p.ID = doc.ID
		projects = append(projects, p)
	}

	s.mu.Lock()
	s.state.Projects = projects
	s.mu.Unlock()
	s.notify()
}

func (s *Session) applyTasks(_ context.Context, snap docstore.Snapshot) {
	tasks := make([]model.Task, 0, len(snap.Documents))
	for _, doc := range snap.Documents {
		var t model.Task
		if err := doc.Decode(&t); err != nil {
			s.logger.Warn().Err(err).Str("id", doc.ID).Msg("skipping unreadable task")
			continue
		}
		t.ID = doc.ID
		tasks = append(tasks, t)
	}

	s.mu.Lock()
	s.state.Tasks = tasks
	s.mu.Unlock()
	s.notify()
}

func avatarURL(id model.Identity) string {
	if id.AvatarURL != "" {
		return id.AvatarURL
	}
	name := id.DisplayName
	if name == "" {
		name = "User"
	}
	return "https://ui-avatars.com/api/?name=" + url.QueryEscape(name) + "&background=random"
}

func cutEmail(email string) (local, domain string, ok bool) {
	local, domain, ok = strings.Cut(email, "@")
	return local, domain, ok && local != ""
}
