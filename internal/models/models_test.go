package models

import (
	"testing"
	"time"

	"github.com/polaris-class/clubhouse/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	rec := store.Record{
		"id":              "4",
		"quiz_id":         "2.0",
		"username":        "kim",
		"score":           "",
		"total_questions": "5",
		"time_taken":      "1.75",
		"unknown":         "ignored",
	}
	resp, err := Decode[QuizResponse](rec)
	require.NoError(t, err)
	assert.Equal(t, 4, resp.ID)
	assert.Equal(t, 2, resp.QuizID)
	assert.Equal(t, 0, resp.Score)
	assert.Equal(t, 5, resp.TotalQuestions)
	assert.InDelta(t, 1.75, resp.TimeTaken, 0.001)

	n, err := Decode[Notification](store.Record{"id": "1", "read": "True"})
	require.NoError(t, err)
	assert.True(t, n.Read)

	n, err = Decode[Notification](store.Record{"id": "1", "read": ""})
	require.NoError(t, err)
	assert.False(t, n.Read)
}

func TestEncode(t *testing.T) {
	rec, err := Encode(AttendanceRecord{
		Username: "kim",
		Club:     "코딩",
		Date:     "2025-03-10",
		Status:   StatusLate,
	})
	require.NoError(t, err)

	_, hasID := rec["id"]
	assert.False(t, hasID, "zero id must be left for the store")
	_, hasCreated := rec["created_date"]
	assert.False(t, hasCreated)
	assert.Equal(t, "late", rec["status"])
	assert.Equal(t, "", rec["note"])

	rec = MustEncode(Post{ID: 3, Likes: 2, PostType: PostNotice})
	assert.Equal(t, "3", rec["id"])
	assert.Equal(t, "2", rec["likes"])
	assert.Equal(t, "notice", rec["post_type"])
}

func TestVoteOptionList(t *testing.T) {
	v := Vote{Options: "pizza| chicken ||burger"}
	assert.Equal(t, []string{"pizza", "chicken", "burger"}, v.OptionList())
}

func TestActorAccess(t *testing.T) {
	teacher := &Actor{Username: "t", Role: RoleTeacher}
	president := &Actor{Username: "p", Role: RoleMember, Clubs: []store.Membership{{Club: "코딩", Role: "president"}, {Club: "댄스", Role: "member"}}}
	member := &Actor{Username: "m", Role: RoleMember, Clubs: []store.Membership{{Club: "댄스", Role: "member"}}}

	assert.True(t, teacher.Leads("anything"))
	assert.True(t, teacher.CanSee("코딩"))

	assert.True(t, president.Leads("코딩"))
	assert.False(t, president.Leads("댄스"))
	assert.True(t, president.IsLeader())

	assert.False(t, member.Leads("댄스"))
	assert.False(t, member.IsLeader())
	assert.True(t, member.CanSee("댄스"))
	assert.True(t, member.CanSee(AllClubs))
	assert.False(t, member.CanSee("코딩"))

	var nobody *Actor
	assert.False(t, nobody.CanSee("코딩"))
	assert.False(t, nobody.Leads("코딩"))
}

func TestParseDate(t *testing.T) {
	d, ok := ParseDate("2025-03-10 14:00:00", time.UTC)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), d)

	_, ok = ParseDate("soon", time.UTC)
	assert.False(t, ok)

	dt, ok := ParseDateTime("2025-03-10 14:05:06", time.UTC)
	require.True(t, ok)
	assert.Equal(t, 14, dt.Hour())
}
