package entity

import (
	"time"

	"staffhub/internal/utils"

	"gorm.io/gorm"
)

// 审计动作
const (
	AuditLoginSuccess    = "LOGIN_SUCCESS"
	AuditLoginFailed     = "LOGIN_FAILED"
	AuditLogout          = "LOGOUT"
	AuditLogoutAll       = "LOGOUT_ALL"
	AuditPasswordChange  = "PASSWORD_CHANGE"
	AuditPasswordReset   = "PASSWORD_RESET"
	AuditRegisterSuccess = "REGISTER_SUCCESS"
	AuditUserActivated   = "USER_ACTIVATED"
	AuditUserDeactivated = "USER_DEACTIVATED"
)

// SessionAuditActions are the actions returned by the login log query when no filter is given.
var SessionAuditActions = []string{AuditLoginSuccess, AuditLoginFailed, AuditLogout, AuditLogoutAll}

const (
	ActorUser      = "user"
	ActorAdmin     = "admin"
	ActorAnonymous = "anonymous"
)

// DbAuditLog is an append-only security event. Rows are never updated or deleted.
type DbAuditLog struct {
	ID          string    `gorm:"primaryKey;type:varchar(26)" json:"id"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
	UserID      *string   `gorm:"column:user_id;type:varchar(36);index" json:"user_id"`
	Action      string    `gorm:"column:action;type:varchar(50);index;not null" json:"action"`
	TargetTable *string   `gorm:"column:table_name;type:varchar(64)" json:"table_name"`
	RecordID    *string   `gorm:"column:record_id;type:varchar(36)" json:"record_id"`
	OldValues   JSONMap   `gorm:"column:old_values;type:text" json:"old_values,omitempty"`
	NewValues   JSONMap   `gorm:"column:new_values;type:text" json:"new_values,omitempty"`
	IPAddress   string    `gorm:"column:ip_address;type:varchar(64)" json:"ip_address"`
	UserAgent   string    `gorm:"column:user_agent;type:varchar(512)" json:"user_agent"`
	ActorType   string    `gorm:"column:actor_type;type:varchar(20)" json:"actor_type"`
}

// TableName overrides default singular name.
func (DbAuditLog) TableName() string {
	return "audit_logs"
}

// BeforeCreate assigns a time-sortable id.
func (l *DbAuditLog) BeforeCreate(*gorm.DB) error {
	if l.ID == "" {
		l.ID = utils.NewSortableID()
	}
	return nil
}

// AuditLogQuery filters the login log listing.
type AuditLogQuery struct {
	BaseParams
	UserID    string     `json:"userId" form:"userId"`
	StartDate *time.Time `json:"startDate" form:"-"`
	EndDate   *time.Time `json:"endDate" form:"-"`
	Action    string     `json:"action" form:"action"`
	// Actions is used when Action is empty.
	Actions []string `json:"-" form:"-"`
	// EndDateIsDay marks EndDate as a calendar day whose entries are all included.
	EndDateIsDay bool `json:"-" form:"-"`
}

type AuditLogListResponse struct {
	Total int64        `json:"total"`
	Page  int64        `json:"page"`
	Limit int64        `json:"limit"`
	Data  []DbAuditLog `json:"data"`
}
