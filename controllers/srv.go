// controllers/srv.go
package controllers

import (
	"context"
	"net/http"
	"time"

	"Gin_postgres_redis_library/app"
	"Gin_postgres_redis_library/db"
	"Gin_postgres_redis_library/models"
	"Gin_postgres_redis_library/session"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
)

type Srv struct {
	WA      *webauthn.WebAuthn
	Repo    *db.Repo
	Sess    *session.Store
	AppSess *session.AppSessionStore
	Cfg     app.Config
}

func GetSrv(a *app.App) *Srv {
	return &Srv{
		WA:      a.WA,
		Repo:    a.Repo,
		Sess:    a.Ceremonies(),
		AppSess: a.AppSessions(),
		Cfg:     a.Config,
	}
}

// --- helpers ---

// 统一设置业务会话 Cookie；maxAge < 0 表示删除
func (s *Srv) setAppCookie(w http.ResponseWriter, sessionID string, maxAge time.Duration) {
	ck := &http.Cookie{
		Name:     app.AppSessionCookie,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.Cfg.SecureCookies(),
		MaxAge:   int(maxAge / time.Second),
	}
	if maxAge < 0 {
		ck.MaxAge = -1
	}
	http.SetCookie(w, ck)
}

// 登录成功：创建会话 + 触发登录快照
func (s *Srv) issueSession(ctx context.Context, w http.ResponseWriter, employeeID, method, ip, ua string) error {
	_ = s.Repo.TouchEmployeeLogin(ctx, employeeID, ip, ua) // 不阻塞
	id := uuid.NewString()
	if err := s.AppSess.Create(ctx, id, employeeID, method); err != nil {
		return err
	}
	s.setAppCookie(w, id, s.AppSess.TTL())
	return nil
}

// WebAuthn: DB employee -> waUser
type waUser struct {
	employee models.Employee
	creds    []webauthn.Credential
}

func (u *waUser) WebAuthnID() []byte                         { return app.HandleBytes(u.employee.Handle) }
func (u *waUser) WebAuthnName() string                       { return u.employee.Email }
func (u *waUser) WebAuthnDisplayName() string                { return u.employee.FullName }
func (u *waUser) WebAuthnCredentials() []webauthn.Credential { return u.creds }

func toWaCred(c models.Credential) webauthn.Credential {
	return webauthn.Credential{
		ID:              c.CredentialID,
		PublicKey:       c.PublicKey,
		AttestationType: c.AttestationType,
		Authenticator: webauthn.Authenticator{
			AAGUID:       c.AAGUID,
			SignCount:    c.SignCount,
			CloneWarning: c.CloneWarning,
		},
		Flags: webauthn.CredentialFlags{
			BackupEligible: c.BackupEligible,
			BackupState:    c.BackupState,
		},
	}
}

func fromWaCred(employeeID string, cred *webauthn.Credential) *models.Credential {
	return &models.Credential{
		EmployeeID:      employeeID,
		CredentialID:    cred.ID,
		PublicKey:       cred.PublicKey,
		AttestationType: cred.AttestationType,
		AAGUID:          cred.Authenticator.AAGUID,
		SignCount:       cred.Authenticator.SignCount,
		CloneWarning:    cred.Authenticator.CloneWarning,
		BackupEligible:  cred.Flags.BackupEligible,
		BackupState:     cred.Flags.BackupState,
	}
}

func (s *Srv) toWAUser(ctx context.Context, e *models.Employee) *waUser {
	cs, _ := s.Repo.LoadEmployeeCredentials(ctx, e.ID)
	ws := make([]webauthn.Credential, 0, len(cs))
	for _, c := range cs {
		ws = append(ws, toWaCred(c))
	}
	return &waUser{employee: *e, creds: ws}
}

func (s *Srv) loadWAUserByID(ctx context.Context, id string) (*waUser, error) {
	e, err := s.Repo.FindEmployeeByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.toWAUser(ctx, e), nil
}

func (s *Srv) loadWAUserByEmail(ctx context.Context, email string) (*waUser, error) {
	e, err := s.Repo.FindEmployeeByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return s.toWAUser(ctx, e), nil
}
