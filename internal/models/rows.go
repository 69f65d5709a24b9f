package models

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/go-viper/mapstructure/v2"
	"github.com/polaris-class/clubhouse/internal/store"
)

// User is one row of users.csv. A user has one row per club membership.
type User struct {
	Username     string `csv:"username" json:"username"`
	Name         string `csv:"name" json:"name"`
	Role         Role   `csv:"role" json:"role"`
	ClubName     string `csv:"club_name" json:"clubName"`
	ClubRole     Role   `csv:"club_role" json:"clubRole"`
	Email        string `csv:"email" json:"email,omitempty"`
	PasswordHash string `csv:"password_hash" json:"-"`
	CreatedDate  string `csv:"created_date,omitempty" json:"createdDate"`
}

type Club struct {
	Name        string `csv:"name" json:"name"`
	Icon        string `csv:"icon" json:"icon"`
	Description string `csv:"description" json:"description"`
	President   string `csv:"president" json:"president"`
	MaxMembers  int    `csv:"max_members" json:"maxMembers"`
	CreatedDate string `csv:"created_date,omitempty" json:"createdDate"`
	MeetLink    string `csv:"meet_link" json:"meetLink,omitempty"`
}

type AttendanceRecord struct {
	ID          int    `csv:"id,omitempty" json:"id"`
	Username    string `csv:"username" json:"username"`
	Club        string `csv:"club" json:"club"`
	Date        string `csv:"date" json:"date"`
	Status      Status `csv:"status" json:"status"`
	Note        string `csv:"note" json:"note"`
	RecordedBy  string `csv:"recorded_by" json:"recordedBy"`
	Timestamp   string `csv:"timestamp" json:"timestamp"`
	CreatedDate string `csv:"created_date,omitempty" json:"createdDate"`
}

type Post struct {
	ID          int      `csv:"id,omitempty" json:"id"`
	Title       string   `csv:"title" json:"title"`
	Content     string   `csv:"content" json:"content"`
	Author      string   `csv:"author" json:"author"`
	Club        string   `csv:"club" json:"club"`
	CreatedDate string   `csv:"created_date,omitempty" json:"createdDate"`
	Likes       int      `csv:"likes" json:"likes"`
	Comments    int      `csv:"comments" json:"comments"`
	ImagePath   string   `csv:"image_path" json:"imagePath,omitempty"`
	Tags        string   `csv:"tags" json:"tags"`
	PostType    PostType `csv:"post_type" json:"postType"`
}

// PostType categorises board posts.
type PostType string

const (
	PostGeneral  PostType = "general"
	PostNotice   PostType = "notice"
	PostGallery  PostType = "gallery"
	PostQuestion PostType = "question"
	PostResource PostType = "resource"
)

// Valid reports whether t is a known post type.
func (t PostType) Valid() bool {
	switch t {
	case PostGeneral, PostNotice, PostGallery, PostQuestion, PostResource:
		return true
	}
	return false
}

type Comment struct {
	ID          int    `csv:"id,omitempty" json:"id"`
	PostID      int    `csv:"post_id" json:"postId"`
	Author      string `csv:"author" json:"author"`
	Content     string `csv:"content" json:"content"`
	CreatedDate string `csv:"created_date,omitempty" json:"createdDate"`
}

type ChatMessage struct {
	ID          int    `csv:"id,omitempty" json:"id"`
	Username    string `csv:"username" json:"username"`
	Club        string `csv:"club" json:"club"`
	Message     string `csv:"message" json:"message"`
	Timestamp   string `csv:"timestamp" json:"timestamp"`
	Deleted     bool   `csv:"deleted" json:"deleted"`
	CreatedDate string `csv:"created_date,omitempty" json:"createdDate"`
}

type Assignment struct {
	ID          int    `csv:"id,omitempty" json:"id"`
	Title       string `csv:"title" json:"title"`
	Description string `csv:"description" json:"description"`
	Club        string `csv:"club" json:"club"`
	Creator     string `csv:"creator" json:"creator"`
	DueDate     string `csv:"due_date" json:"dueDate"`
	Status      string `csv:"status" json:"status"`
	CreatedDate string `csv:"created_date,omitempty" json:"createdDate"`
}

// Assignment states.
const (
	AssignmentOpen   = "open"
	AssignmentClosed = "closed"
)

type Submission struct {
	ID            int    `csv:"id,omitempty" json:"id"`
	AssignmentID  int    `csv:"assignment_id" json:"assignmentId"`
	Username      string `csv:"username" json:"username"`
	Content       string `csv:"content" json:"content"`
	FilePath      string `csv:"file_path" json:"filePath,omitempty"`
	SubmittedDate string `csv:"submitted_date" json:"submittedDate"`
	Grade         string `csv:"grade" json:"grade"`
	Feedback      string `csv:"feedback" json:"feedback"`
	CreatedDate   string `csv:"created_date,omitempty" json:"createdDate"`
}

type ScheduleItem struct {
	ID          int    `csv:"id,omitempty" json:"id"`
	Title       string `csv:"title" json:"title"`
	Description string `csv:"description" json:"description"`
	Club        string `csv:"club" json:"club"`
	Date        string `csv:"date" json:"date"`
	Time        string `csv:"time" json:"time"`
	Location    string `csv:"location" json:"location"`
	Creator     string `csv:"creator" json:"creator"`
	CreatedDate string `csv:"created_date,omitempty" json:"createdDate"`
}

// OptionSeparator joins vote options in the options column.
const OptionSeparator = "|"

type Vote struct {
	ID          int    `csv:"id,omitempty" json:"id"`
	Title       string `csv:"title" json:"title"`
	Description string `csv:"description" json:"description"`
	Options     string `csv:"options" json:"-"`
	Club        string `csv:"club" json:"club"`
	Creator     string `csv:"creator" json:"creator"`
	EndDate     string `csv:"end_date" json:"endDate"`
	CreatedDate string `csv:"created_date,omitempty" json:"createdDate"`
}

// OptionList splits the stored options.
func (v Vote) OptionList() []string {
	var out []string
	for _, o := range strings.Split(v.Options, OptionSeparator) {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

type Ballot struct {
	ID          int    `csv:"id,omitempty" json:"id"`
	VoteID      int    `csv:"vote_id" json:"voteId"`
	Username    string `csv:"username" json:"username"`
	Option      string `csv:"option" json:"option"`
	CreatedDate string `csv:"created_date,omitempty" json:"createdDate"`
}

type Quiz struct {
	ID              int    `csv:"id,omitempty" json:"id"`
	Title           string `csv:"title" json:"title"`
	Description     string `csv:"description" json:"description"`
	Club            string `csv:"club" json:"club"`
	Creator         string `csv:"creator" json:"creator"`
	Questions       string `csv:"questions" json:"-"`
	TimeLimit       int    `csv:"time_limit" json:"timeLimit"`
	AttemptsAllowed int    `csv:"attempts_allowed" json:"attemptsAllowed"`
	Status          string `csv:"status" json:"status"`
	CreatedDate     string `csv:"created_date,omitempty" json:"createdDate"`
}

type QuizResponse struct {
	ID             int     `csv:"id,omitempty" json:"id"`
	QuizID         int     `csv:"quiz_id" json:"quizId"`
	Username       string  `csv:"username" json:"username"`
	Answers        string  `csv:"answers" json:"-"`
	Score          int     `csv:"score" json:"score"`
	TotalQuestions int     `csv:"total_questions" json:"totalQuestions"`
	CompletedDate  string  `csv:"completed_date" json:"completedDate"`
	TimeTaken      float64 `csv:"time_taken" json:"timeTaken"`
	CreatedDate    string  `csv:"created_date,omitempty" json:"createdDate"`
}

type Badge struct {
	ID          int    `csv:"id,omitempty" json:"id"`
	Username    string `csv:"username" json:"username"`
	BadgeName   string `csv:"badge_name" json:"badgeName"`
	BadgeIcon   string `csv:"badge_icon" json:"badgeIcon"`
	Description string `csv:"description" json:"description"`
	AwardedDate string `csv:"awarded_date" json:"awardedDate"`
	AwardedBy   string `csv:"awarded_by" json:"awardedBy"`
	CreatedDate string `csv:"created_date,omitempty" json:"createdDate"`
}

type Notification struct {
	ID          int    `csv:"id,omitempty" json:"id"`
	Username    string `csv:"username" json:"username"`
	Title       string `csv:"title" json:"title"`
	Message     string `csv:"message" json:"message"`
	Type        string `csv:"type" json:"type"`
	Read        bool   `csv:"read" json:"read"`
	CreatedDate string `csv:"created_date,omitempty" json:"createdDate"`
}

// Decode converts a CSV record into a typed row. Numeric and boolean columns are
// parsed leniently; empty cells become zero values.
func Decode[T any](rec store.Record) (T, error) {
	var out T
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "csv",
		WeaklyTypedInput: true,
		Result:           &out,
		DecodeHook:       floatTextToInt,
	})
	if err != nil {
		return out, err
	}
	if err := dec.Decode(map[string]string(rec)); err != nil {
		return out, fmt.Errorf("failed to decode row: %w", err)
	}
	return out, nil
}

// floatTextToInt lets "3.0" (as written by spreadsheet tools) decode into int fields.
func floatTextToInt(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to.Kind() != reflect.Int {
		return data, nil
	}
	s := strings.TrimSpace(data.(string))
	if !strings.Contains(s, ".") {
		return s, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return data, nil
	}
	return int(f), nil
}

// DecodeAll converts rows, skipping (and logging) rows that cannot be decoded.
func DecodeAll[T any](rows []store.Record) []T {
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		v, err := Decode[T](r)
		if err != nil {
			log.Warn("skipping undecodable row", "error", err)
			continue
		}
		out = append(out, v)
	}
	return out
}

// Encode converts a typed row into a CSV record. Zero ids and empty
// created_date are left out so the store assigns them.
func Encode(v any) (store.Record, error) {
	m := map[string]any{}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "csv",
		Result:  &m,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(v); err != nil {
		return nil, fmt.Errorf("failed to encode row: %w", err)
	}
	rec := make(store.Record, len(m))
	for k, val := range m {
		rec[k] = fmt.Sprint(val)
	}
	return rec, nil
}

// MustEncode is Encode for the row types in this package, which always encode.
func MustEncode(v any) store.Record {
	rec, err := Encode(v)
	if err != nil {
		panic(err)
	}
	return rec
}
