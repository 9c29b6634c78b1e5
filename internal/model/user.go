package model

import (
	"time"
)

type UserRole string

const (
	Student UserRole = "student"
	Teacher UserRole = "teacher"
	Admin   UserRole = "admin"
)

// TestLevel PAES 数学考试级别
type TestLevel string

const (
	LevelM1 TestLevel = "M1"
	LevelM2 TestLevel = "M2"
)

func (l TestLevel) Valid() bool {
	return l == LevelM1 || l == LevelM2
}

// swagger:model User
type User struct {
	BaseModel
	Name          string     `gorm:"size:100;not null" json:"name"`
	Email         string     `gorm:"size:150;uniqueIndex;not null" json:"email"`
	Password      string     `gorm:"size:100;not null" json:"-"`
	Role          UserRole   `gorm:"size:20;not null;default:'student';check:role IN ('student','teacher','admin')" json:"role"`
	Level         TestLevel  `gorm:"size:4;not null;default:'M1'" json:"level"`
	IsDemo        bool       `gorm:"default:false;index" json:"isDemo"`
	DemoExpiresAt *time.Time `json:"demoExpiresAt,omitempty"`
	Disabled      bool       `gorm:"default:false" json:"disabled"`
	LastLogin     *time.Time `json:"lastLogin,omitempty"`
	LastSeen      *time.Time `json:"lastSeen,omitempty"`
}

func (User) TableName() string {
	return "users"
}
