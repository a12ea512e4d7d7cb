package models

import "time"

// Audit actions recorded by the portal.
const (
	AuditActionLogin          = "LOGIN"
	AuditActionLogout         = "LOGOUT"
	AuditActionRegister       = "USER_REGISTER"
	AuditActionUserCreate     = "USER_CREATE"
	AuditActionUserApprove    = "USER_APPROVE"
	AuditActionUserReject     = "USER_REJECT"
	AuditActionUserUpdate     = "USER_UPDATE"
	AuditActionConfigUpdate   = "CONFIG_UPDATE"
	AuditActionIncidentCreate = "INCIDENT_CREATE"
	AuditActionIncidentStatus = "INCIDENT_STATUS"
	AuditActionIncidentNote   = "INCIDENT_NOTE"
	AuditActionIncidentDelete = "INCIDENT_DELETE"
	AuditActionIncidentImport = "INCIDENT_IMPORT"
	AuditActionIncidentNotify = "INCIDENT_NOTIFY"
	AuditActionIncidentExport = "INCIDENT_EXPORT"
)

// Audit resources.
const (
	AuditResourceUser     = "user"
	AuditResourceConfig   = "config"
	AuditResourceIncident = "incident"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
