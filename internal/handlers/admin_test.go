package handlers

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"madajagad/internal/services"
	"madajagad/internal/storage"
)

func TestAdminRequiresAdminRole(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(http.MethodGet, "/api/admin/services", nil, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	e.createUser("editor@example.com", storage.RoleEditor)
	editor := e.login("editor@example.com")
	w = e.do(http.MethodGet, "/api/admin/services", nil, editor)
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, "forbidden", decode[map[string]string](t, w)["error"])

	w = e.do(http.MethodGet, "/api/admin/services", nil, "not-a-token")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminRoleRevocationIsImmediate(t *testing.T) {
	e := newTestEnv(t)
	u := e.createUser("boss@example.com", storage.RoleAdmin)
	tok := e.login("boss@example.com")
	require.Equal(t, http.StatusOK, e.do(http.MethodGet, "/api/admin/settings", nil, tok).Code)

	require.NoError(t, e.deps.Roles.Revoke(context.Background(), u.ID, storage.RoleAdmin))
	require.Equal(t, http.StatusForbidden, e.do(http.MethodGet, "/api/admin/settings", nil, tok).Code)
}

func TestAdminContentCRUD(t *testing.T) {
	e := newTestEnv(t)
	tok := e.adminToken()

	w := e.do(http.MethodPost, "/api/admin/projects", map[string]any{"title": "Bridge"}, tok)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "validation_failed", decode[map[string]any](t, w)["error"])

	w = e.do(http.MethodPost, "/api/admin/projects", map[string]any{
		"title": "Bridge", "description": "Steel bridge", "year": "2024", "location": "Tuban", "tags": []string{"Civil", "Civil"},
	}, tok)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[storage.Project](t, w)
	require.NotEmpty(t, created.ID)
	require.True(t, created.IsPublished)
	require.Equal(t, []string{"Civil"}, created.Tags)

	w = e.do(http.MethodGet, "/api/admin/projects/"+created.ID, nil, tok)
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(http.MethodPut, "/api/admin/projects/"+created.ID, map[string]any{"title": "Bridge II", "year": "2025"}, tok)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[storage.Project](t, w)
	require.Equal(t, "Bridge II", updated.Title)
	require.Equal(t, "Steel bridge", updated.Description)
	require.True(t, updated.IsPublished)
	require.Equal(t, created.SortOrder, updated.SortOrder)
	require.Equal(t, []string{"Civil"}, updated.Tags)

	w = e.do(http.MethodPut, "/api/admin/projects/missing", map[string]any{"title": "x"}, tok)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(http.MethodPost, "/api/admin/projects", map[string]any{
		"title": "Draft Dam", "description": "d", "year": "2026", "location": "Lamongan", "is_published": false,
	}, tok)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.False(t, decode[storage.Project](t, w).IsPublished)

	w = e.do(http.MethodGet, "/api/public/projects", nil, "")
	require.Len(t, decode[[]storage.Project](t, w), 1)

	w = e.do(http.MethodDelete, "/api/admin/projects/"+created.ID, nil, tok)
	require.Equal(t, http.StatusNoContent, w.Code)
	w = e.do(http.MethodDelete, "/api/admin/projects/"+created.ID, nil, tok)
	require.Equal(t, http.StatusNotFound, w.Code)

	logs, err := e.deps.Logs.Query(context.Background(), services.LogQuery{Event: "CONTENT_DELETED"})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, "projects/"+created.ID, logs[0].Target)
}

func TestAdminBatchAndReorder(t *testing.T) {
	e := newTestEnv(t)
	tok := e.adminToken()
	ctx := context.Background()

	var ids []string
	for _, name := range []string{"Ana", "Budi", "Citra"} {
		m := &storage.TeamMember{Name: name, Position: "Engineer"}
		require.NoError(t, e.deps.Catalog.Team.Create(ctx, m))
		ids = append(ids, m.ID)
	}

	w := e.do(http.MethodPost, "/api/admin/team/batch", map[string]any{"action": "publish", "ids": ids[:2]}, tok)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.EqualValues(t, 2, decode[map[string]any](t, w)["affected"])

	w = e.do(http.MethodPost, "/api/admin/team/batch", map[string]any{"action": "archive", "ids": ids}, tok)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "invalid_action", decode[map[string]string](t, w)["error"])
	w = e.do(http.MethodPost, "/api/admin/team/batch", map[string]any{"action": "publish", "ids": []string{}}, tok)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(http.MethodPost, "/api/admin/team/reorder", map[string]any{"ids": []string{ids[2], ids[1], ids[0]}}, tok)
	require.Equal(t, http.StatusNoContent, w.Code)
	w = e.do(http.MethodGet, "/api/admin/team", nil, tok)
	rows := decode[[]storage.TeamMember](t, w)
	require.Equal(t, "Citra", rows[0].Name)
	require.Equal(t, "Ana", rows[2].Name)

	w = e.do(http.MethodPost, "/api/admin/team/reorder", map[string]any{"ids": []string{"missing"}}, tok)
	require.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(http.MethodPost, "/api/admin/team/batch", map[string]any{"action": "delete", "ids": ids}, tok)
	require.Equal(t, http.StatusOK, w.Code)
	require.EqualValues(t, 3, decode[map[string]any](t, w)["affected"])
}

func TestAdminSettings(t *testing.T) {
	e := newTestEnv(t)
	tok := e.adminToken()

	w := e.do(http.MethodPut, "/api/admin/settings", map[string]string{"whatsapp_number": "+62 811 000"}, tok)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	out := decode[map[string]any](t, w)
	require.Contains(t, out["whatsapp_url"], "https://wa.me/62811000?text=")

	w = e.do(http.MethodPut, "/api/admin/settings", map[string]string{"logo": "x"}, tok)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "unknown_setting", decode[map[string]string](t, w)["error"])

	w = e.do(http.MethodGet, "/api/admin/settings", nil, tok)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[struct {
		Keys     []string          `json:"keys"`
		Settings map[string]string `json:"settings"`
		Defaults map[string]string `json:"defaults"`
	}](t, w)
	require.Len(t, got.Keys, len(got.Defaults))
	require.Contains(t, got.Keys, "hero_title")
	require.Equal(t, "+62 811 000", got.Settings["whatsapp_number"])
	require.Equal(t, "6281234567890", got.Defaults["whatsapp_number"])
}

func TestAdminAboutAndAnalytics(t *testing.T) {
	e := newTestEnv(t)
	tok := e.adminToken()

	w := e.do(http.MethodPut, "/api/admin/about", map[string]any{"title": "About", "description": "We build"}, tok)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, 2, decode[storage.AboutContent](t, w).Version)

	w = e.do(http.MethodPost, "/api/admin/about/publish", nil, tok)
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, decode[storage.AboutContent](t, w).IsPublished)

	w = e.do(http.MethodGet, "/api/admin/about/history", nil, tok)
	require.Len(t, decode[[]storage.AboutHistory](t, w), 1)

	e.do(http.MethodPost, "/api/visits", map[string]string{"visitor_id": "v", "path": "/"}, "")
	w = e.do(http.MethodGet, "/api/admin/analytics?period=7d", nil, tok)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	stats := decode[struct {
		Visitors struct {
			WindowDays  int `json:"window_days"`
			TotalVisits int `json:"total_visits"`
		} `json:"visitors"`
		Content struct {
			About struct {
				Published int `json:"published"`
			} `json:"about"`
		} `json:"content"`
	}](t, w)
	require.Equal(t, 7, stats.Visitors.WindowDays)
	require.Equal(t, 1, stats.Visitors.TotalVisits)
	require.Equal(t, 1, stats.Content.About.Published)

	w = e.do(http.MethodGet, "/api/admin/analytics?period=1y", nil, tok)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminUploads(t *testing.T) {
	e := newTestEnv(t)
	tok := e.adminToken()

	upload := func(content []byte) *httptest.ResponseRecorder {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		require.NoError(t, mw.WriteField("folder", "team"))
		fw, err := mw.CreateFormFile("file", "avatar.png")
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
		require.NoError(t, mw.Close())
		req := httptest.NewRequest(http.MethodPost, "/api/admin/uploads", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+tok)
		w := httptest.NewRecorder()
		e.router.ServeHTTP(w, req)
		return w
	}

	png := append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 32)...)
	w := upload(png)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	up := decode[map[string]any](t, w)
	require.Equal(t, "image/png", up["mime"])

	// 上传后可通过公开路径访问
	w = e.do(http.MethodGet, up["url"].(string), nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = upload([]byte("plain text is not an image"))
	require.Equal(t, http.StatusUnsupportedMediaType, w.Code)

	w = e.do(http.MethodDelete, "/api/admin/uploads?path="+up["path"].(string), nil, tok)
	require.Equal(t, http.StatusNoContent, w.Code)
	w = e.do(http.MethodDelete, "/api/admin/uploads?path=images/team/../../x.png", nil, tok)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminMessagesUsersAndLogs(t *testing.T) {
	e := newTestEnv(t)
	tok := e.adminToken()
	ctx := context.Background()

	e.do(http.MethodPost, "/api/contact", map[string]string{"name": "N", "email": "n@example.com", "message": "hello"}, "")
	w := e.do(http.MethodGet, "/api/admin/messages?unread=true", nil, tok)
	msgs := decode[[]storage.ContactMessage](t, w)
	require.Len(t, msgs, 1)
	require.Equal(t, http.StatusNoContent, e.do(http.MethodPost, "/api/admin/messages/"+msgs[0].ID+"/read", nil, tok).Code)
	w = e.do(http.MethodGet, "/api/admin/messages?unread=true", nil, tok)
	require.Empty(t, decode[[]storage.ContactMessage](t, w))
	require.Equal(t, http.StatusNoContent, e.do(http.MethodDelete, "/api/admin/messages/"+msgs[0].ID, nil, tok).Code)

	admin, err := e.deps.Users.FindByEmail(ctx, "admin@example.com")
	require.NoError(t, err)
	w = e.do(http.MethodPut, "/api/admin/users/"+admin.ID+"/roles", map[string]any{"roles": []string{"editor"}}, tok)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "cannot_demote_self", decode[map[string]string](t, w)["error"])

	other := e.createUser("writer@example.com")
	w = e.do(http.MethodPut, "/api/admin/users/"+other.ID+"/roles", map[string]any{"roles": []string{"editor", "viewer"}}, tok)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, []any{"editor", "viewer"}, decode[map[string]any](t, w)["roles"])
	w = e.do(http.MethodPut, "/api/admin/users/"+other.ID+"/roles", map[string]any{"roles": []string{"owner"}}, tok)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(http.MethodGet, "/api/admin/users", nil, tok)
	require.Len(t, decode[[]map[string]any](t, w), 2)

	w = e.do(http.MethodGet, "/api/admin/logs?event=USER_ROLES_UPDATED", nil, tok)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, decode[[]storage.LogRecord](t, w), 1)
	w = e.do(http.MethodGet, "/api/admin/logs?since=yesterday", nil, tok)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
