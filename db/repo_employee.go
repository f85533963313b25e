package db

import (
	"Gin_postgres_redis_library/models"
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Employees

func (r *Repo) TouchEmployeeLogin(ctx context.Context, employeeID, ip, ua string) error {
	// 用数据库时间更准，且避免并发覆盖：NOW() + 计数自增
	return r.DB.WithContext(ctx).Model(&models.Employee{}).
		Where("id = ?", employeeID).
		Updates(map[string]interface{}{
			"last_login_at": gorm.Expr("NOW()"),
			"last_seen_at":  gorm.Expr("NOW()"),
			"login_count":   gorm.Expr("COALESCE(login_count, 0) + 1"),
			"last_login_ip": ip,
			"last_login_ua": ua,
		}).Error
}

func (r *Repo) TouchEmployeeSeen(ctx context.Context, employeeID string) error {
	return r.DB.WithContext(ctx).Model(&models.Employee{}).
		Where("id = ?", employeeID).
		Update("last_seen_at", gorm.Expr("NOW()")).Error
}

func (r *Repo) FindEmployeeByID(ctx context.Context, id string) (*models.Employee, error) {
	var e models.Employee
	if err := r.DB.WithContext(ctx).First(&e, "id = ?", id).Error; err != nil {
		return nil, translate(err, ErrNotFound)
	}
	return &e, nil
}

func (r *Repo) FindEmployeeByEmail(ctx context.Context, email string) (*models.Employee, error) {
	var e models.Employee
	if err := r.DB.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&e).Error; err != nil {
		return nil, translate(err, ErrNotFound)
	}
	return &e, nil
}

func (r *Repo) FindEmployeeByHandle(ctx context.Context, handle string) (*models.Employee, error) {
	var e models.Employee
	if err := r.DB.WithContext(ctx).Where("handle = ?", handle).First(&e).Error; err != nil {
		return nil, translate(err, ErrNotFound)
	}
	return &e, nil
}

// CreateEmployee 未指定 ID 时按 NV 序列生成
func (r *Repo) CreateEmployee(ctx context.Context, e *models.Employee) error {
	return r.Transaction(ctx, func(tx *Repo) error {
		if e.ID == "" {
			id, err := tx.nextCode(ctx, "NV")
			if err != nil {
				return err
			}
			e.ID = id
		}
		if e.Handle == "" {
			e.Handle = uuid.NewString()
		}
		e.Email = strings.ToLower(strings.TrimSpace(e.Email))
		return translateWrite(tx.DB.WithContext(ctx).Omit(clause.Associations).Create(e).Error)
	})
}

// FindOrCreateEmployee 邀请注册：同邮箱已存在则直接返回
func (r *Repo) FindOrCreateEmployee(ctx context.Context, inv *models.Invite) (*models.Employee, error) {
	e, err := r.FindEmployeeByEmail(ctx, inv.Email)
	if errors.Is(err, ErrNotFound) {
		e = &models.Employee{
			Email:    inv.Email,
			FullName: inv.FullName,
			Position: inv.Position,
			IsAdmin:  inv.IsAdmin,
		}
		if e.FullName == "" {
			e.FullName = inv.Email
		}
		if err := r.CreateEmployee(ctx, e); err != nil {
			return nil, err
		}
		return e, nil
	}
	return e, err
}

func (r *Repo) UpdateEmployee(ctx context.Context, id string, fields map[string]any) (*models.Employee, error) {
	res := r.DB.WithContext(ctx).Model(&models.Employee{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return nil, translate(res.Error, ErrNotFound)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return r.FindEmployeeByID(ctx, id)
}

func (r *Repo) SetEmployeePassword(ctx context.Context, id, hash string) error {
	res := r.DB.WithContext(ctx).Model(&models.Employee{}).Where("id = ?", id).Update("password_hash", hash)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) SetEmployeeAdmin(ctx context.Context, id string, isAdmin bool) error {
	return r.DB.WithContext(ctx).
		Model(&models.Employee{}).
		Where("id = ?", id).
		Update("is_admin", isAdmin).Error
}

func (r *Repo) CountAdmins(ctx context.Context) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).
		Model(&models.Employee{}).
		Where("is_admin = TRUE").
		Count(&n).Error
	return n, err
}

// 列表（分页 + 关键词，匹配邮箱/姓名/职位）
func (r *Repo) ListEmployees(ctx context.Context, q string, p Page) (Paged[models.Employee], error) {
	offset, limit := p.bounds(100)

	tx := r.DB.WithContext(ctx).Model(&models.Employee{})
	if strings.TrimSpace(q) != "" {
		like := likePattern(q)
		tx = tx.Where("LOWER(email) LIKE ? OR LOWER(full_name) LIKE ? OR LOWER(position) LIKE ? OR LOWER(id) LIKE ?", like, like, like, like)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return Paged[models.Employee]{}, err
	}
	var es []models.Employee
	if err := tx.Order("id ASC").Offset(offset).Limit(limit).Find(&es).Error; err != nil {
		return Paged[models.Employee]{}, err
	}
	return Paged[models.Employee]{Items: es, Total: total}, nil
}

// 删除员工：凭据一并删除；经手过的借阅记录保留员工编号
func (r *Repo) DeleteEmployeeByID(ctx context.Context, id string) error {
	return r.Transaction(ctx, func(tx *Repo) error {
		if err := tx.DB.WithContext(ctx).Where("employee_id = ?", id).Delete(&models.Credential{}).Error; err != nil {
			return err
		}
		res := tx.DB.WithContext(ctx).Delete(&models.Employee{ID: id})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// Credentials

func (r *Repo) AddCredential(ctx context.Context, c *models.Credential) error {
	return r.DB.WithContext(ctx).Create(c).Error
}

func (r *Repo) LoadEmployeeCredentials(ctx context.Context, employeeID string) ([]models.Credential, error) {
	var cs []models.Credential
	if err := r.DB.WithContext(ctx).Where("employee_id = ?", employeeID).Find(&cs).Error; err != nil {
		return nil, err
	}
	return cs, nil
}

func (r *Repo) CountCredentials(ctx context.Context, employeeID string) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&models.Credential{}).
		Where("employee_id = ?", employeeID).
		Count(&n).Error
	return n, err
}

func (r *Repo) UpdateCredentialCounter(ctx context.Context, credID []byte, newCount uint32, cloneWarn bool) error {
	return r.DB.WithContext(ctx).Model(&models.Credential{}).
		Where("credential_id = ?", credID).
		Updates(map[string]any{
			"sign_count":    newCount,
			"clone_warning": cloneWarn,
			"last_used_at":  gorm.Expr("NOW()"),
		}).Error
}

func (r *Repo) FindEmployeeByCredentialID(ctx context.Context, credID []byte) (*models.Employee, error) {
	var c models.Credential
	if err := r.DB.WithContext(ctx).Where("credential_id = ?", credID).First(&c).Error; err != nil {
		return nil, translate(err, ErrNotFound)
	}
	return r.FindEmployeeByID(ctx, c.EmployeeID)
}

// Invites

func (r *Repo) CreateInvite(ctx context.Context, inv *models.Invite) error {
	inv.Email = strings.ToLower(strings.TrimSpace(inv.Email))
	return r.DB.WithContext(ctx).Create(inv).Error
}

func (r *Repo) GetInviteByToken(ctx context.Context, token string) (*models.Invite, error) {
	var inv models.Invite
	if err := r.DB.WithContext(ctx).Where("token = ?", token).First(&inv).Error; err != nil {
		return nil, translate(err, ErrNotFound)
	}
	return &inv, nil
}

func (r *Repo) MarkInviteUsed(ctx context.Context, token string) error {
	res := r.DB.WithContext(ctx).Model(&models.Invite{}).
		Where("token = ? AND used_at IS NULL", token).
		Update("used_at", gorm.Expr("NOW()"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInviteUnusable
	}
	return nil
}

// AcceptInvite 在一个事务里完成邀请注册：锁住邀请、建员工、apply（设密码或加凭证）、标记已用。
// 同一个邀请并发提交时只有一个成功，其余返回 ErrInviteUnusable
func (r *Repo) AcceptInvite(ctx context.Context, token string, now time.Time, apply func(tx *Repo, e *models.Employee) error) (*models.Employee, error) {
	var e *models.Employee
	err := r.Transaction(ctx, func(tx *Repo) error {
		var inv models.Invite
		err := tx.DB.WithContext(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("token = ?", token).
			First(&inv).Error
		if err != nil {
			return translate(err, ErrInviteUnusable)
		}
		if !inv.Usable(now) {
			return ErrInviteUnusable
		}
		e, err = tx.FindOrCreateEmployee(ctx, &inv)
		if err != nil {
			return err
		}
		if apply != nil {
			if err := apply(tx, e); err != nil {
				return err
			}
		}
		return tx.MarkInviteUsed(ctx, token)
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}
