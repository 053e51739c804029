package seed

import (
	"context"
	"errors"
	"strings"
	"time"

	membershipdomain "github.com/smallbiznis/learnboard/internal/membership/domain"
	"github.com/smallbiznis/learnboard/pkg/db"
	"gorm.io/gorm"
)

const defaultAdminName = "Administrator"

// EnsureAdmin makes sure employeeID exists with the admin role. An existing
// employee is promoted; its name and team are left untouched.
func EnsureAdmin(ctx context.Context, conn *gorm.DB, employeeID, name string) error {
	if conn == nil {
		return errors.New("seed database handle is required")
	}
	employeeID = strings.TrimSpace(employeeID)
	if employeeID == "" {
		return errors.New("seed admin employee id is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultAdminName
	}

	tx := conn.WithContext(ctx)
	var employee membershipdomain.Employee
	err := tx.Where("id = ?", employeeID).First(&employee).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		employee = membershipdomain.Employee{
			ID:        employeeID,
			Name:      name,
			Role:      membershipdomain.RoleAdmin,
			CreatedAt: time.Now().UTC(),
		}
		// Another instance may have created it concurrently.
		if err := tx.Create(&employee).Error; err != nil && !db.IsDuplicateKeyErr(err) {
			return err
		}
		return nil
	}

	if employee.Role == membershipdomain.RoleAdmin {
		return nil
	}
	return tx.Model(&membershipdomain.Employee{}).
		Where("id = ?", employeeID).
		Update("role", membershipdomain.RoleAdmin).Error
}
