// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザー（講座の出品者・受講者の双方）を表す。
// 登録後は変更・削除されない。
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
}
