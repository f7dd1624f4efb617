package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultImageURL は画像未指定・許可外の画像が指定された場合に使用するプレースホルダー。
const DefaultImageURL = "default_image.png"

// Course はユーザーが出品する講座を表す。
// 所有者（UserID）は作成時に確定し、以後変更されない。
type Course struct {
	ID           int64
	UserID       int64
	Title        string
	Description  string
	PricePerHour decimal.Decimal
	ImageURL     string
	CategoryTags string
	Rating       *float64
	CreatedAt    time.Time
}

// IsOwnedBy は指定ユーザーが講座の所有者かどうかを判定する。
func (c *Course) IsOwnedBy(userID int64) bool {
	return c != nil && userID != 0 && c.UserID == userID
}
