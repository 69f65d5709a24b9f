package store

import "slices"

// Table names.
const (
	Users         = "users"
	Clubs         = "clubs"
	Attendance    = "attendance"
	Posts         = "posts"
	Comments      = "comments"
	ChatLogs      = "chat_logs"
	Assignments   = "assignments"
	Submissions   = "submissions"
	Schedule      = "schedule"
	Votes         = "votes"
	VoteBallots   = "vote_ballots"
	Quizzes       = "quizzes"
	QuizResponses = "quiz_responses"
	Badges        = "badges"
	Notifications = "notifications"
)

// Schema describes the columns of a table and which column identifies a row.
type Schema struct {
	Columns []string
	Key     string
	// IntKey tables get id = max(id)+1 assigned on Add.
	IntKey bool
}

var schemas = map[string]Schema{
	Users: {
		Columns: []string{"username", "name", "role", "club_name", "club_role", "email", "password_hash", "created_date"},
		Key:     "username",
	},
	Clubs: {
		Columns: []string{"name", "icon", "description", "president", "max_members", "created_date", "meet_link"},
		Key:     "name",
	},
	Attendance: {
		Columns: []string{"id", "username", "club", "date", "status", "note", "recorded_by", "timestamp", "created_date"},
		Key:     "id", IntKey: true,
	},
	Posts: {
		Columns: []string{"id", "title", "content", "author", "club", "created_date", "likes", "comments", "image_path", "tags", "post_type"},
		Key:     "id", IntKey: true,
	},
	Comments: {
		Columns: []string{"id", "post_id", "author", "content", "created_date"},
		Key:     "id", IntKey: true,
	},
	ChatLogs: {
		Columns: []string{"id", "username", "club", "message", "timestamp", "deleted", "created_date"},
		Key:     "id", IntKey: true,
	},
	Assignments: {
		Columns: []string{"id", "title", "description", "club", "creator", "due_date", "status", "created_date"},
		Key:     "id", IntKey: true,
	},
	Submissions: {
		Columns: []string{"id", "assignment_id", "username", "content", "file_path", "submitted_date", "grade", "feedback", "created_date"},
		Key:     "id", IntKey: true,
	},
	Schedule: {
		Columns: []string{"id", "title", "description", "club", "date", "time", "location", "creator", "created_date"},
		Key:     "id", IntKey: true,
	},
	Votes: {
		Columns: []string{"id", "title", "description", "options", "club", "creator", "end_date", "created_date"},
		Key:     "id", IntKey: true,
	},
	VoteBallots: {
		Columns: []string{"id", "vote_id", "username", "option", "created_date"},
		Key:     "id", IntKey: true,
	},
	Quizzes: {
		Columns: []string{"id", "title", "description", "club", "creator", "questions", "time_limit", "attempts_allowed", "status", "created_date"},
		Key:     "id", IntKey: true,
	},
	QuizResponses: {
		Columns: []string{"id", "quiz_id", "username", "answers", "score", "total_questions", "completed_date", "time_taken", "created_date"},
		Key:     "id", IntKey: true,
	},
	Badges: {
		Columns: []string{"id", "username", "badge_name", "badge_icon", "description", "awarded_date", "awarded_by", "created_date"},
		Key:     "id", IntKey: true,
	},
	Notifications: {
		Columns: []string{"id", "username", "title", "message", "type", "read", "created_date"},
		Key:     "id", IntKey: true,
	},
}

// SchemaFor returns the schema of a known table.
func SchemaFor(table string) (Schema, bool) {
	s, ok := schemas[table]
	return s, ok
}

// Tables returns the names of all known tables in a stable order.
func (s *Store) Tables() []string {
	names := make([]string, 0, len(schemas))
	for name := range schemas {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
