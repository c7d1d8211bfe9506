package model

import "time"

// 配送先住所
type Address struct {
	ID     int64 `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID int64 `gorm:"not null;index" json:"user_id"`

	Street       string `gorm:"type:varchar(255);not null" json:"street"`
	Number       string `gorm:"type:varchar(20);not null" json:"number"`
	Complement   string `gorm:"type:varchar(255)" json:"complement"`
	Neighborhood string `gorm:"type:varchar(255);not null" json:"neighborhood"`
	City         string `gorm:"type:varchar(255);not null" json:"city"`
	State        string `gorm:"type:varchar(50);not null" json:"state"`
	ZipCode      string `gorm:"type:varchar(20);not null" json:"zip_code"`
	Phone        string `gorm:"type:varchar(30)" json:"phone"`

	//このユーザーのデフォルト住所か
	IsDefault bool `gorm:"not null;default:false" json:"is_default"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
