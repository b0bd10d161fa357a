package model

const (
	TasksCollection    = "tasks"
	ProjectsCollection = "projects"
)

// Task is a shared task. ID is the document id and is not stored in the
// document body.
type Task struct {
	ID         string  `json:"-"`
	Title      string  `json:"title"`
	ProjectID  *string `json:"projectId"`
	AssigneeID *string `json:"assigneeId"`
	Completed  bool    `json:"completed"`
	CreatedAt  int64   `json:"createdAt"`
}

// ProjectColors is the palette offered for new projects.
var ProjectColors = []string{"#6366f1", "#ec4899", "#10b981", "#f59e0b", "#3b82f6", "#8b5cf6"}

type Project struct {
	ID        string `json:"-"`
	Name      string `json:"name"`
	Color     string `json:"color"`
	CreatedAt int64  `json:"createdAt"`
}

// StringPtr returns nil for the empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
