package models

import "time"

const EmployeeTable = "lib_employees"

// Employee 即后台操作员；WebAuthn userHandle 使用 Handle（UUID）
type Employee struct {
	ID           string `gorm:"primaryKey;size:20" json:"id"` // NV001
	Handle       string `gorm:"type:uuid;uniqueIndex;not null" json:"-"`
	Email        string `gorm:"uniqueIndex;size:255;not null" json:"email"`
	FullName     string `gorm:"size:255;not null" json:"fullName"`
	Position     string `gorm:"size:100" json:"position"`
	Address      string `gorm:"size:255" json:"address"`
	Phone        string `gorm:"size:20" json:"phone"`
	PasswordHash string `gorm:"size:100" json:"-"`
	IsAdmin      bool   `gorm:"not null;default:false" json:"isAdmin"`

	LastLoginAt *time.Time `gorm:"index" json:"lastLoginAt,omitempty"`
	LastSeenAt  *time.Time `gorm:"index" json:"lastSeenAt,omitempty"`
	LoginCount  int64      `gorm:"not null;default:0" json:"loginCount"`
	LastLoginIP string     `gorm:"size:45" json:"-"`
	LastLoginUA string     `gorm:"size:255" json:"-"`

	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
	Credentials []Credential `gorm:"foreignKey:EmployeeID" json:"-"`
}

func (Employee) TableName() string { return EmployeeTable }

// Credential 每个注册的 Passkey 一条；CredentialID / PublicKey 在 Postgres 下为 bytea
type Credential struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	EmployeeID      string    `gorm:"size:20;index" json:"employeeId"`
	CredentialID    []byte    `gorm:"uniqueIndex" json:"credentialId"`
	PublicKey       []byte    `json:"-"`
	AttestationType string    `gorm:"size:64" json:"attestationType"`
	AAGUID          []byte    `gorm:"type:bytea" json:"aaguid"`
	SignCount       uint32    `json:"signCount"`
	CloneWarning    bool      `json:"cloneWarning"`
	BackupEligible  bool      `json:"backupEligible"`
	BackupState     bool      `json:"backupState"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`

	LastUsedAt *time.Time `gorm:"index" json:"lastUsedAt,omitempty"`
}

func (Credential) TableName() string { return "lib_credentials" }

// Invite 员工邀请，注册完成后写入 UsedAt
type Invite struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	Email     string     `gorm:"index;size:255;not null" json:"email"`
	FullName  string     `gorm:"size:255" json:"fullName"`
	Position  string     `gorm:"size:100" json:"position"`
	IsAdmin   bool       `gorm:"not null;default:false" json:"isAdmin"`
	Token     string     `gorm:"uniqueIndex;size:64;not null" json:"-"`
	ExpiresAt time.Time  `gorm:"index;not null" json:"expiresAt"`
	UsedAt    *time.Time `json:"usedAt,omitempty"`
	CreatedBy string     `gorm:"size:20" json:"createdBy"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

func (Invite) TableName() string { return "lib_invites" }

func (inv *Invite) Usable(now time.Time) bool {
	return inv.UsedAt == nil && now.Before(inv.ExpiresAt)
}
