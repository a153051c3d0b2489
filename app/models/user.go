package models

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	ROLE_USER  = "USER"
	ROLE_ADMIN = "ADMIN"
)

// User is an account. Email is the reconciliation key for webhook-provisioned
// accounts and is compared case-sensitively (binary collation).
type User struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	Email            string    `gorm:"uniqueIndex:ux_users_email;type:varchar(200) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin;not null" json:"email" validate:"required,email,max=200"`
	Name             string    `gorm:"type:varchar(150)" json:"name" validate:"max=150"`
	Phone            string    `gorm:"type:varchar(40);default:''" json:"phone" validate:"max=40"`
	Password         *string   `gorm:"type:text;default:null" json:"-"`
	NeedsPasswordSet bool      `gorm:"default:false" json:"needs_password_set"`
	IsActive         bool      `gorm:"default:true" json:"is_active"`
	Role             string    `gorm:"type:varchar(20);default:'USER'" json:"role" validate:"oneof=USER ADMIN"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (u *User) Validate() error {
	v := validator.New()

	return v.Struct(u)
}

// HasPassword reports whether a (possibly temporary) password hash is stored.
func (u *User) HasPassword() bool {
	return u.Password != nil && *u.Password != ""
}

// EmailLocalPart returns the part of an email address before the "@".
func EmailLocalPart(email string) string {
	email = strings.TrimSpace(email)
	if i := strings.Index(email, "@"); i > 0 {
		return email[:i]
	}
	return email
}

// GenerateTemporaryPassword returns a random plaintext password. Callers hash it
// before storing; the user is forced to set a real one on first login.
func GenerateTemporaryPassword() (string, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
