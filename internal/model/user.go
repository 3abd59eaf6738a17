package model

import (
	"golang.org/x/crypto/bcrypt"
)

// User 员工账户模型
// 每个账户至多持有一个角色，权限引擎只消费 role_key
type User struct {
	BaseModel
	Username     string `gorm:"type:varchar(100);uniqueIndex" json:"username"`
	Email        string `gorm:"type:varchar(255);uniqueIndex" json:"email"`
	PasswordHash string `gorm:"type:varchar(255)" json:"-"`
	DisplayName  string `gorm:"type:varchar(100)" json:"display_name"`
	RoleKey      string `gorm:"type:varchar(50);index" json:"role_key"`
	Status       string `gorm:"type:varchar(20);default:active" json:"status"`
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}

// SetPassword 设置密码（哈希存储）
func (u *User) SetPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return nil
}

// VerifyPassword 验证密码
func (u *User) VerifyPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
	return err == nil
}

// IsActive 检查账户是否启用
func (u *User) IsActive() bool {
	return u.Status == StatusActive
}

// Principal 构建权限引擎使用的主体
func (u *User) Principal() *Principal {
	return &Principal{ID: u.ID, RoleKey: u.RoleKey}
}
