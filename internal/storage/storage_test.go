package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewImageKey_AllowList(t *testing.T) {
	tests := []struct {
		filename string
		wantOK   bool
		wantExt  string
	}{
		{"guitar.png", true, ".png"},
		{"photo.JPG", true, ".jpg"},
		{"photo.jpeg", true, ".jpeg"},
		{"anim.gif", true, ".gif"},
		{"script.svg", false, ""},
		{"archive.png.exe", false, ""},
		{"noext", false, ""},
		{"", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			key, ok := NewImageKey(tt.filename)
			if ok != tt.wantOK {
				t.Fatalf("NewImageKey(%q) ok = %v, want %v", tt.filename, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if !strings.HasSuffix(key, tt.wantExt) {
				t.Errorf("key %q should end with %q", key, tt.wantExt)
			}
			base := strings.TrimSuffix(strings.ToLower(tt.filename), tt.wantExt)
			if strings.Contains(key, base) {
				t.Errorf("key %q should not contain original filename %q", key, base)
			}
			if !ValidKey(key) {
				t.Errorf("ValidKey(%q) = false, want true", key)
			}
		})
	}
}

func TestNewImageKey_Unique(t *testing.T) {
	a, _ := NewImageKey("a.png")
	b, _ := NewImageKey("a.png")
	if a == b {
		t.Errorf("同じファイル名から同じキーが生成されました: %q", a)
	}
}

func TestValidKey_RejectsTraversal(t *testing.T) {
	for _, key := range []string{"../etc/passwd", "../../x.png", "default_image.png", "abc.png", ""} {
		if ValidKey(key) {
			t.Errorf("ValidKey(%q) = true, want false", key)
		}
	}
}

func TestContentTypeFor(t *testing.T) {
	tests := map[string]string{
		"a.png":  "image/png",
		"a.JPG":  "image/jpeg",
		"a.gif":  "image/gif",
		"a.webp": "application/octet-stream",
	}
	for key, want := range tests {
		if got := ContentTypeFor(key); got != want {
			t.Errorf("ContentTypeFor(%q) = %q, want %q", key, got, want)
		}
	}
}

func TestLocalStore_SaveOpenDelete(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "images")
	store, err := NewLocalStore(dir)
	if err != nil {
		t.Fatalf("NewLocalStore returned error: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("保存先ディレクトリが作成されていません: %v", err)
	}

	ctx := context.Background()
	key, _ := NewImageKey("g.png")
	if err := store.Save(ctx, key, strings.NewReader("PNGDATA"), 7, "image/png"); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	rc, err := store.Open(ctx, key)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "PNGDATA" {
		t.Errorf("data = %q, want %q", data, "PNGDATA")
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, err := store.Open(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Errorf("削除後のOpen err = %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Errorf("存在しないキーのDeleteでエラー: %v", err)
	}
}

func TestLocalStore_SaveFailureLeavesNoFile(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore returned error: %v", err)
	}

	key, _ := NewImageKey("g.png")
	err = store.Save(context.Background(), key, failingReader{}, -1, "image/png")
	if err == nil {
		t.Fatal("読み込み失敗時にエラーが返されませんでした")
	}

	entries, _ := os.ReadDir(store.Dir())
	if len(entries) != 0 {
		t.Errorf("失敗後にファイルが残っています: %v", entries)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("read error")
}

func TestMinIOStore_ImplementsInterface(t *testing.T) {
	var _ ImageStore = (*MinIOStore)(nil)
}
