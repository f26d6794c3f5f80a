package models

// User 认证用户，令牌中的 id 指向该表
type User struct {
	ID       int64  `gorm:"primary_key;autoIncrement" json:"id"`
	Username string `gorm:"type:varchar(255);uniqueIndex" json:"username"`
}

func (User) TableName() string {
	return "users"
}
