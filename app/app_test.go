package app_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Gin_postgres_redis_library/app"
	"Gin_postgres_redis_library/models"
	"Gin_postgres_redis_library/session"
)

func init() { gin.SetMode(gin.TestMode) }

func Test_LoadConfig_Defaults(t *testing.T) {
	for _, k := range []string{"DATABASE_URL", "BORROW_LIMIT", "RP_ORIGINS", "WEB_ORIGIN", "ADMIN_EMAILS", "SESSION_TTL_SECONDS"} {
		t.Setenv(k, "")
	}

	cfg := app.LoadConfig()

	assert.Equal(t, 5, cfg.BorrowLimit)
	assert.Equal(t, 10*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 24*time.Hour, cfg.AppSessionTTL)
	assert.Equal(t, []string{cfg.WebOrigin}, cfg.RPOrigins)
	assert.Contains(t, cfg.DatabaseURL, "dbname=library")
	assert.Empty(t, cfg.AdminEmails)
}

func Test_LoadConfig_FromEnv(t *testing.T) {
	t.Setenv("BORROW_LIMIT", "3")
	t.Setenv("ADMIN_EMAILS", " Boss@Library.test , ops@library.test,")
	t.Setenv("RP_ORIGINS", "https://a.test, https://b.test")
	t.Setenv("WEB_ORIGIN", "https://a.test")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/lib")

	cfg := app.LoadConfig()

	assert.Equal(t, 3, cfg.BorrowLimit)
	assert.Equal(t, []string{"boss@library.test", "ops@library.test"}, cfg.AdminEmails)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.RPOrigins)
	assert.Equal(t, "postgres://u:p@db:5432/lib", cfg.DatabaseURL)
	assert.True(t, cfg.SecureCookies())
	assert.True(t, cfg.IsAdminEmail("BOSS@library.test"))
	assert.False(t, cfg.IsAdminEmail("clerk@library.test"))
}

type employeeMap map[string]*models.Employee

func (m employeeMap) FindEmployeeByID(_ context.Context, id string) (*models.Employee, error) {
	if e, ok := m[id]; ok {
		return e, nil
	}
	return nil, errors.New("record not found")
}

func newSessions(t *testing.T) *session.AppSessionStore {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return session.NewAppSessionStore(rdb, time.Hour)
}

func authRouter(sessions *session.AppSessionStore, employees employeeMap, cfg app.Config) *gin.Engine {
	r := gin.New()
	r.GET("/me", app.AuthRequired(sessions, employees, cfg), func(c *gin.Context) {
		id, _ := app.EmployeeID(c)
		c.JSON(http.StatusOK, gin.H{"id": id, "admin": c.GetBool(app.CtxIsAdmin)})
	})
	r.GET("/admin", app.AuthRequired(sessions, employees, cfg), app.AdminOnly(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func get(r http.Handler, path, sid string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if sid != "" {
		req.AddCookie(&http.Cookie{Name: app.AppSessionCookie, Value: sid})
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func Test_AuthRequired(t *testing.T) {
	// setup
	sessions := newSessions(t)
	employees := employeeMap{
		"NV001": {ID: "NV001", Email: "clerk@library.test", FullName: "Clerk"},
		"NV002": {ID: "NV002", Email: "boss@library.test", FullName: "Boss"},
	}
	cfg := app.Config{AdminEmails: []string{"boss@library.test"}}
	ctx := context.Background()
	require.NoError(t, sessions.Create(ctx, "clerk", "NV001", "password"))
	require.NoError(t, sessions.Create(ctx, "boss", "NV002", "password"))
	require.NoError(t, sessions.Create(ctx, "ghost", "NV404", "password"))
	r := authRouter(sessions, employees, cfg)

	// act + assert
	w := get(r, "/me", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"UNAUTHORIZED","message":"login required"}`, w.Body.String())
	assert.Equal(t, http.StatusUnauthorized, get(r, "/me", "unknown").Code)

	w = get(r, "/me", "clerk")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"NV001","admin":false}`, w.Body.String())

	w = get(r, "/admin", "clerk")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"error":"FORBIDDEN","message":"admin only"}`, w.Body.String())
	assert.Equal(t, http.StatusNoContent, get(r, "/admin", "boss").Code)

	// 员工已被删除：会话同时作废
	assert.Equal(t, http.StatusUnauthorized, get(r, "/me", "ghost").Code)
	_, err := sessions.Get(ctx, "ghost")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func Test_TouchLastSeen_Throttles(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	toucher := &countingToucher{}

	r := gin.New()
	r.GET("/ping",
		func(c *gin.Context) { c.Set(app.CtxEmployeeID, "NV001"); c.Next() },
		app.TouchLastSeen(toucher, rdb, time.Minute),
		func(c *gin.Context) { c.Status(http.StatusOK) },
	)

	for i := 0; i < 3; i++ {
		get(r, "/ping", "")
	}
	assert.Equal(t, 1, toucher.n)

	mr.FastForward(2 * time.Minute)
	get(r, "/ping", "")
	assert.Equal(t, 2, toucher.n)
}

type countingToucher struct{ n int }

func (c *countingToucher) TouchEmployeeSeen(context.Context, string) error { c.n++; return nil }

type fakeIssuer struct {
	admins  int64
	invites []models.Invite
}

func (f *fakeIssuer) CountAdmins(context.Context) (int64, error) { return f.admins, nil }
func (f *fakeIssuer) CreateInvite(_ context.Context, inv *models.Invite) error {
	f.invites = append(f.invites, *inv)
	return nil
}

func Test_BootstrapFirstAdmin(t *testing.T) {
	cfg := app.Config{BootstrapEmail: "first@library.test", WebOrigin: "https://lib.test/"}

	issuer := &fakeIssuer{}
	link, err := app.BootstrapFirstAdmin(context.Background(), cfg, issuer)
	require.NoError(t, err)
	require.Len(t, issuer.invites, 1)
	inv := issuer.invites[0]
	assert.True(t, inv.IsAdmin)
	assert.Equal(t, "first@library.test", inv.Email)
	assert.Len(t, inv.Token, 32)
	assert.True(t, strings.HasPrefix(link, "https://lib.test/login?inviteToken="+inv.Token))

	existing := &fakeIssuer{admins: 1}
	link, err = app.BootstrapFirstAdmin(context.Background(), cfg, existing)
	require.NoError(t, err)
	assert.Empty(t, link)
	assert.Empty(t, existing.invites)

	none := &fakeIssuer{}
	_, err = app.BootstrapFirstAdmin(context.Background(), app.Config{}, none)
	require.NoError(t, err)
	assert.Empty(t, none.invites)
}
