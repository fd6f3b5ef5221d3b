package discourse

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_GetUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("Api-Key"))
		assert.Equal(t, "system", r.Header.Get("Api-Username"))
		assert.Equal(t, "/u/bob.json", r.URL.Path)
		w.Write([]byte(`{
			"user": {
				"id": 7,
				"username": "bob",
				"avatar_template": "/user_avatar/forum/bob/{size}/1.png",
				"groups": [{"id": 3}, {"id": 107}]
			}
		}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret", "system")
	user, err := client.GetUser(context.Background(), "bob")

	require.NoError(t, err)
	assert.Equal(t, "bob", user.Username)
	assert.Equal(t, []int{3, 107}, user.GroupIDs)
	assert.True(t, user.InGroup(107))
	assert.False(t, user.InGroup(42))
}

func TestClient_GetUser_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret", "system")
	_, err := client.GetUser(context.Background(), "ghost")

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_GetUser_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret", "system")
	_, err := client.GetUser(context.Background(), "bob")

	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestClient_AvatarURL(t *testing.T) {
	client := NewClient("https://forum.test/", "secret", "system")
	got := client.AvatarURL("/user_avatar/forum/bob/{size}/1.png", 100)
	assert.Equal(t, "https://forum.test/user_avatar/forum/bob/100/1.png", got)
}

func TestClient_AddGroupMember(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		wantErr error
	}{
		{name: "added", status: http.StatusOK, wantErr: nil},
		{name: "unknown user", status: http.StatusNotFound, wantErr: ErrNotFound},
		{name: "already a member", status: http.StatusUnprocessableEntity, wantErr: ErrAlreadyMember},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPut, r.Method)
				assert.Equal(t, "/groups/107/members.json", r.URL.Path)
				require.NoError(t, r.ParseForm())
				assert.Equal(t, "bob", r.PostForm.Get("usernames"))
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			client := NewClient(srv.URL, "secret", "system")
			err := client.AddGroupMember(context.Background(), 107, "bob")

			if tc.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tc.wantErr)
			}
		})
	}
}

func TestClient_DeleteGroupMembers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/groups/107/members.json", r.URL.Path)
		// ParseForm не читает тело DELETE-запроса, разбираем вручную.
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		form, err := url.ParseQuery(string(body))
		require.NoError(t, err)
		assert.Equal(t, "alice,bob", form.Get("usernames"))
		w.Write([]byte(`{"success": "OK"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "secret", "system")
	err := client.DeleteGroupMembers(context.Background(), 107, []string{"alice", "bob"})

	assert.NoError(t, err)
}
