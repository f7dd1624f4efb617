package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// maxPasswordBytes はbcryptが扱える入力長の上限。
const maxPasswordBytes = 72

// HashPassword はパスワードをbcryptでハッシュ化する。
// costが0以下の場合はbcrypt.DefaultCostを使う。
func HashPassword(password string, cost int) (string, error) {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword はパスワードがハッシュと一致するかを定数時間で検証する。
func VerifyPassword(hash, password string) bool {
	ok, _ := comparePassword(hash, password)
	return ok
}

// comparePassword は一致判定に加え、ハッシュ自体が壊れている場合にエラーを返す。
// 不一致はエラーとして扱わない。
func comparePassword(hash, password string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, err
}
