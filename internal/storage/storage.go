// Package storage は講座画像の保存先を抽象化する。
// ローカルディスクとMinIO（S3互換）の2つの実装を持つ。
package storage

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound は指定キーの画像が存在しないことを表す。
var ErrNotFound = errors.New("storage: object not found")

// allowedExtensions は受け付ける画像拡張子とContent-Typeの対応。
var allowedExtensions = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
}

// Upload はフォームから受け取った画像ファイルを表す。
type Upload struct {
	Filename string
	Size     int64
	Body     io.Reader
}

// ImageStore は画像の保存・取得・削除を行う。
type ImageStore interface {
	// Save はbodyをkeyで保存する。
	Save(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	// Open はkeyの画像を開く。存在しない場合はErrNotFoundを返す。
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete はkeyの画像を削除する。存在しない場合もエラーにしない。
	Delete(ctx context.Context, key string) error
}

// NewImageKey はファイル名の拡張子が許可リストにある場合に、
// 保存用のキー（uuid + 小文字の拡張子）を生成する。
// 元のファイル名はキーに含めない。
func NewImageKey(filename string) (string, bool) {
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := allowedExtensions[ext]; !ok {
		return "", false
	}
	return uuid.NewString() + ext, true
}

// ContentTypeFor はキーの拡張子からContent-Typeを返す。
func ContentTypeFor(key string) string {
	if ct, ok := allowedExtensions[strings.ToLower(filepath.Ext(key))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// ValidKey はkeyがNewImageKeyの形式かどうかを判定する。
// 配信時のパストラバーサル防止に使う。
func ValidKey(key string) bool {
	ext := strings.ToLower(filepath.Ext(key))
	if _, ok := allowedExtensions[ext]; !ok {
		return false
	}
	_, err := uuid.Parse(strings.TrimSuffix(key, filepath.Ext(key)))
	return err == nil
}
