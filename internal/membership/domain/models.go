package domain

import "time"

const (
	RoleEmployee = "employee"
	RoleManager  = "manager"
	RoleAdmin    = "admin"
)

type Team struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	OrgID     string    `gorm:"size:64;not null;index" json:"org_id"`
	Name      string    `gorm:"not null" json:"name"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

// Employee belongs to at most one team. TeamID is empty when unassigned.
type Employee struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	TeamID    *string   `gorm:"size:64;index" json:"team_id,omitempty"`
	Name      string    `gorm:"not null" json:"name"`
	Email     string    `json:"email,omitempty"`
	Role      string    `gorm:"size:32;not null;default:'employee'" json:"role"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (e Employee) Team() string {
	if e.TeamID == nil {
		return ""
	}
	return *e.TeamID
}
