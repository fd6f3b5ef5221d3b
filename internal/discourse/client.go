// Package discourse реализует клиент API форума Discourse в объёме,
// необходимом боту: данные пользователя и членство в закрытой группе.
package discourse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNotFound возвращается, когда форум не знает такого пользователя.
var ErrNotFound = errors.New("discourse: not found")

// ErrAlreadyMember возвращается при попытке добавить в группу пользователя,
// который уже в ней состоит. Для бота это не сбой: доступ уже выдан.
var ErrAlreadyMember = errors.New("discourse: already a member")

// Client клиент API форума.
type Client struct {
	baseURL     string
	apiKey      string
	apiUsername string
	httpClient  *http.Client
}

// User данные пользователя форума.
type User struct {
	ID             int    `json:"id"`
	Username       string `json:"username"`
	AvatarTemplate string `json:"avatar_template"`
	GroupIDs       []int  `json:"-"`
}

// NewClient создаёт новый клиент Discourse.
func NewClient(baseURL, apiKey, apiUsername string) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		apiUsername: apiUsername,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, form url.Values) (*http.Request, error) {
	var body io.Reader
	if form != nil {
		body = bytes.NewBufferString(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Api-Key", c.apiKey)
	req.Header.Set("Api-Username", c.apiUsername)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	return req, nil
}

// GetUser возвращает данные пользователя форума вместе со списком его групп.
// Для неизвестного имени возвращается ErrNotFound.
func (c *Client) GetUser(ctx context.Context, username string) (*User, error) {
	const op = "discourse.GetUser"

	req, err := c.newRequest(ctx, http.MethodGet, "/u/"+url.PathEscape(username)+".json", nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected status %s", op, resp.Status)
	}

	var payload struct {
		User struct {
			ID             int    `json:"id"`
			Username       string `json:"username"`
			AvatarTemplate string `json:"avatar_template"`
			Groups         []struct {
				ID int `json:"id"`
			} `json:"groups"`
		} `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user := &User{
		ID:             payload.User.ID,
		Username:       payload.User.Username,
		AvatarTemplate: payload.User.AvatarTemplate,
	}
	for _, g := range payload.User.Groups {
		user.GroupIDs = append(user.GroupIDs, g.ID)
	}
	return user, nil
}

// InGroup сообщает, состоит ли пользователь в группе groupID.
func (u *User) InGroup(groupID int) bool {
	for _, id := range u.GroupIDs {
		if id == groupID {
			return true
		}
	}
	return false
}

// AvatarURL возвращает абсолютный адрес аватара указанного размера.
func (c *Client) AvatarURL(avatarTemplate string, size int) string {
	return c.baseURL + strings.ReplaceAll(avatarTemplate, "{size}", fmt.Sprintf("%d", size))
}

// AddGroupMember добавляет пользователя в группу groupID.
// Повторное добавление уже состоящего в группе пользователя
// возвращает ErrAlreadyMember.
func (c *Client) AddGroupMember(ctx context.Context, groupID int, username string) error {
	const op = "discourse.AddGroupMember"

	form := url.Values{"usernames": {username}}
	req, err := c.newRequest(ctx, http.MethodPut, fmt.Sprintf("/groups/%d/members.json", groupID), form)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case http.StatusUnprocessableEntity:
		// Discourse отвечает 422, когда пользователь уже в группе.
		return fmt.Errorf("%s: %w", op, ErrAlreadyMember)
	default:
		return fmt.Errorf("%s: unexpected status %s", op, resp.Status)
	}
}

// DeleteGroupMembers удаляет перечисленных пользователей из группы groupID
// одним запросом. API принимает имена списком через запятую. Удаление уже
// отсутствующего в группе пользователя форум считает допустимым.
func (c *Client) DeleteGroupMembers(ctx context.Context, groupID int, usernames []string) error {
	const op = "discourse.DeleteGroupMembers"

	form := url.Values{"usernames": {strings.Join(usernames, ",")}}
	req, err := c.newRequest(ctx, http.MethodDelete, fmt.Sprintf("/groups/%d/members.json", groupID), form)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %s", op, resp.Status)
	}
	return nil
}
