// controllers/webauthn_controller.go
package controllers

import (
	"context"
	"net/http"
	"time"

	"Gin_postgres_redis_library/app"
	"Gin_postgres_redis_library/db"
	"Gin_postgres_redis_library/models"

	"github.com/gin-gonic/gin"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
)

func registrationOptions() []webauthn.RegistrationOption {
	return []webauthn.RegistrationOption{
		webauthn.WithResidentKeyRequirement(protocol.ResidentKeyRequirementRequired),
		webauthn.WithAuthenticatorSelection(protocol.AuthenticatorSelection{
			UserVerification: protocol.VerificationRequired,
		}),
	}
}

// ===== 注册（邀请制） =====

func (s *Srv) BeginRegistration(c *gin.Context) {
	var in struct {
		InviteToken string `json:"inviteToken" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	inv, err := s.Repo.GetInviteByToken(ctx, in.InviteToken)
	if err != nil || !inv.Usable(time.Now()) {
		inviteInvalid(c)
		return
	}

	// 员工邮箱强制 = 邀请邮箱
	e, err := s.Repo.FindOrCreateEmployee(ctx, inv)
	if err != nil {
		writeError(c, err)
		return
	}

	opts, sd, err := s.WA.BeginRegistration(s.toWAUser(ctx, e), registrationOptions()...)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := s.Sess.SaveRegByToken(ctx, in.InviteToken, sd); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"opts": opts})
}

func (s *Srv) FinishRegistration(c *gin.Context) {
	token := c.Query("inviteToken")
	if token == "" {
		badRequest(c, "missing inviteToken")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	inv, err := s.Repo.GetInviteByToken(ctx, token)
	if err != nil || !inv.Usable(time.Now()) {
		inviteInvalid(c)
		return
	}
	wUser, err := s.loadWAUserByEmail(ctx, inv.Email)
	if err != nil {
		employeeNotFound(c)
		return
	}

	sd, err := s.Sess.LoadRegByToken(ctx, token)
	if err != nil {
		badRequest(c, "session expired or invalid")
		return
	}

	cred, err := s.WA.FinishRegistration(wUser, *sd, c.Request)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	// 凭证写入和邀请核销同一事务，邀请只能用一次
	if _, err := s.Repo.AcceptInvite(ctx, token, time.Now(), func(tx *db.Repo, e *models.Employee) error {
		return tx.AddCredential(ctx, fromWaCred(e.ID, cred))
	}); err != nil {
		writeError(c, err)
		return
	}
	s.Sess.DelRegByToken(ctx, token)

	// 注册即登录
	if err := s.issueSession(ctx, c.Writer, wUser.employee.ID, "passkey", c.ClientIP(), c.Request.UserAgent()); err != nil {
		sessionFailed(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true, "employee": wUser.employee})
}

// ===== 添加新凭据（已登录） =====

func (s *Srv) BeginAddCredential(c *gin.Context) {
	eid, ok := app.EmployeeID(c)
	if !ok {
		unauthorized(c)
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	wUser, err := s.loadWAUserByID(ctx, eid)
	if err != nil {
		unauthorized(c)
		return
	}

	opts, sd, err := s.WA.BeginRegistration(wUser, registrationOptions()...)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := s.Sess.SaveAdd(ctx, eid, sd); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"opts": opts})
}

func (s *Srv) FinishAddCredential(c *gin.Context) {
	eid, ok := app.EmployeeID(c)
	if !ok {
		unauthorized(c)
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	wUser, err := s.loadWAUserByID(ctx, eid)
	if err != nil {
		unauthorized(c)
		return
	}
	sd, err := s.Sess.LoadAdd(ctx, eid)
	if err != nil {
		badRequest(c, "session expired or invalid")
		return
	}

	cred, err := s.WA.FinishRegistration(wUser, *sd, c.Request)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := s.Repo.AddCredential(ctx, fromWaCred(eid, cred)); err != nil {
		writeError(c, err)
		return
	}
	s.Sess.DelAdd(ctx, eid)
	c.JSON(http.StatusOK, app.H{"ok": true})
}

// ===== 登录 =====

type loginBeginReq struct {
	Email        string `json:"email"`
	Discoverable bool   `json:"discoverable"`
}
type loginBeginResp struct {
	Options   *protocol.CredentialAssertion `json:"options"`
	SessionID string                        `json:"sessionId"`
}

func (s *Srv) BeginLogin(c *gin.Context) {
	var req loginBeginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "bad request")
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	var (
		opts *protocol.CredentialAssertion
		sd   *webauthn.SessionData
		err  error
	)
	if req.Discoverable || req.Email == "" {
		opts, sd, err = s.WA.BeginDiscoverableLogin(webauthn.WithUserVerification(protocol.VerificationRequired))
	} else {
		wUser, err2 := s.loadWAUserByEmail(ctx, req.Email)
		if err2 != nil {
			employeeNotFound(c)
			return
		}
		opts, sd, err = s.WA.BeginLogin(wUser, webauthn.WithUserVerification(protocol.VerificationRequired))
	}
	if err != nil {
		writeError(c, err)
		return
	}

	sid := uuid.NewString()
	if err := s.Sess.SaveAuth(ctx, sid, sd); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, loginBeginResp{Options: opts, SessionID: sid})
}

func (s *Srv) FinishLogin(c *gin.Context) {
	sid := c.Query("sessionId")
	if sid == "" {
		badRequest(c, "missing sessionId")
		return
	}
	ip, ua := c.ClientIP(), c.Request.UserAgent()

	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	sd, err := s.Sess.LoadAuth(ctx, sid)
	if err != nil {
		badRequest(c, "session expired or invalid")
		return
	}

	var (
		employeeID string
		cred       *webauthn.Credential
	)
	if email := c.Query("email"); email != "" {
		wUser, err := s.loadWAUserByEmail(ctx, email)
		if err != nil {
			employeeNotFound(c)
			return
		}
		cred, err = s.WA.FinishLogin(wUser, *sd, c.Request)
		if err != nil {
			app.AbortError(c, http.StatusUnauthorized, "PASSKEY_REJECTED", err.Error())
			return
		}
		employeeID = wUser.employee.ID
	} else {
		handler := func(rawID, userHandle []byte) (webauthn.User, error) {
			e, err := s.Repo.FindEmployeeByCredentialID(ctx, rawID)
			if err != nil {
				return nil, protocol.ErrBadRequest.WithDetails("credential not found")
			}
			return s.toWAUser(ctx, e), nil
		}
		var user webauthn.User
		user, cred, err = s.WA.FinishPasskeyLogin(handler, *sd, c.Request)
		if err != nil {
			app.AbortError(c, http.StatusUnauthorized, "PASSKEY_REJECTED", err.Error())
			return
		}
		employeeID = user.(*waUser).employee.ID
	}
	_ = s.Repo.UpdateCredentialCounter(ctx, cred.ID, cred.Authenticator.SignCount, cred.Authenticator.CloneWarning)
	s.Sess.DelAuth(ctx, sid)

	if err := s.issueSession(ctx, c.Writer, employeeID, "passkey", ip, ua); err != nil {
		sessionFailed(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true, "redirect": "/dashboard"})
}
