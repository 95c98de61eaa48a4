package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/happycat/internal/handlers/testutil"
	"github.com/charlesng35/happycat/internal/models"
)

func TestGroupHandler_MembershipAndMessages(t *testing.T) {
	env := testutil.NewEnv(t)
	teacher := env.CreateUser(models.RoleTeacher)
	member := env.CreateUser(models.RoleStudent)
	outsider := env.CreateUser(models.RoleStudent)
	admin := env.CreateUser(models.RoleAdmin)

	teacherToken := env.Token(teacher)
	memberToken := env.Token(member)
	outsiderToken := env.Token(outsider)

	created := env.Request(http.MethodPost, "/api/groups", map[string]any{
		"name":       "Class 5A",
		"member_ids": []string{member.ID},
	}, teacherToken)
	require.Equal(t, http.StatusCreated, created.Code, created.Body.String())
	var group models.Group
	testutil.DecodeInto(t, testutil.DecodeResponse(t, created).Data, &group)

	require.Equal(t, http.StatusOK, env.Request(http.MethodGet, "/api/groups/"+group.ID, nil, memberToken).Code)
	require.Equal(t, http.StatusForbidden, env.Request(http.MethodGet, "/api/groups/"+group.ID, nil, outsiderToken).Code)
	require.Equal(t, http.StatusOK, env.Request(http.MethodGet, "/api/groups/"+group.ID, nil, env.Token(admin)).Code)

	sent := env.Request(http.MethodPost, "/api/groups/"+group.ID+"/messages", map[string]string{"content": "Hello class"}, teacherToken)
	require.Equal(t, http.StatusCreated, sent.Code, sent.Body.String())

	denied := env.Request(http.MethodPost, "/api/groups/"+group.ID+"/messages", map[string]string{"content": "Let me in"}, outsiderToken)
	require.Equal(t, http.StatusForbidden, denied.Code, denied.Body.String())

	unread := env.Request(http.MethodGet, "/api/groups/"+group.ID+"/unread", nil, memberToken)
	require.Equal(t, http.StatusOK, unread.Code, unread.Body.String())
	var count map[string]int64
	testutil.DecodeInto(t, testutil.DecodeResponse(t, unread).Data, &count)
	require.EqualValues(t, 1, count["unread"])

	read := env.Request(http.MethodPost, "/api/groups/"+group.ID+"/read", nil, memberToken)
	require.Equal(t, http.StatusOK, read.Code, read.Body.String())

	unread = env.Request(http.MethodGet, "/api/groups/"+group.ID+"/unread", nil, memberToken)
	testutil.DecodeInto(t, testutil.DecodeResponse(t, unread).Data, &count)
	require.EqualValues(t, 0, count["unread"])

	messages := env.Request(http.MethodGet, "/api/groups/"+group.ID+"/messages", nil, memberToken)
	require.Equal(t, http.StatusOK, messages.Code)
	require.EqualValues(t, 1, testutil.DecodeResponse(t, messages).Meta.Total)
}

func TestGroupHandler_UnknownGroupForAdmin(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := env.Token(env.CreateUser(models.RoleAdmin))

	resp := env.Request(http.MethodGet, "/api/groups/00000000-0000-0000-0000-000000000000", nil, admin)
	require.Equal(t, http.StatusNotFound, resp.Code)
}
