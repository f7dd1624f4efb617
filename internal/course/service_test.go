package course

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/coursebook/internal/model"
	"github.com/hitoshi/coursebook/internal/repository"
	"github.com/hitoshi/coursebook/internal/security"
	"github.com/hitoshi/coursebook/internal/storage"
)

// --- インメモリ実装 ---

type memCourseRepo struct {
	mu       sync.Mutex
	courses  map[int64]*model.Course
	bookings map[int64]int // course_id -> 予約件数
	nextID   int64
	createFn func(c *model.Course) error
}

func newMemCourseRepo() *memCourseRepo {
	return &memCourseRepo{courses: map[int64]*model.Course{}, bookings: map[int64]int{}}
}

func (m *memCourseRepo) ListAll(_ context.Context) ([]*model.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Course, 0, len(m.courses))
	for id := int64(1); id <= m.nextID; id++ {
		if c, ok := m.courses[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memCourseRepo) FindByID(_ context.Context, id int64) (*model.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.courses[id], nil
}

func (m *memCourseRepo) Create(_ context.Context, c *model.Course) error {
	if m.createFn != nil {
		if err := m.createFn(c); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	c.ID = m.nextID
	c.CreatedAt = time.Now()
	m.courses[c.ID] = c
	return nil
}

func (m *memCourseRepo) ListByUserID(ctx context.Context, userID int64) ([]*model.Course, error) {
	all, _ := m.ListAll(ctx)
	out := make([]*model.Course, 0)
	for _, c := range all {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memCourseRepo) Delete(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.courses[id]; !ok {
		return false, nil
	}
	delete(m.courses, id)
	delete(m.bookings, id)
	return true, nil
}

func (m *memCourseRepo) DeleteIfUnbooked(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.courses[id]; !ok || m.bookings[id] > 0 {
		return false, nil
	}
	delete(m.courses, id)
	return true, nil
}

var _ repository.CourseRepository = (*memCourseRepo)(nil)

type memImageStore struct {
	objects map[string]string
	saveErr error
}

func newMemImageStore() *memImageStore {
	return &memImageStore{objects: map[string]string{}}
}

func (m *memImageStore) Save(_ context.Context, key string, body io.Reader, _ int64, _ string) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.objects[key] = string(b)
	return nil
}

func (m *memImageStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	v, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(v)), nil
}

func (m *memImageStore) Delete(_ context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

var _ storage.ImageStore = (*memImageStore)(nil)

func newTestService(repo *memCourseRepo, images *memImageStore, cfg Config) *Service {
	return NewService(repo, images, security.NewTextSanitizer(), nil, cfg)
}

func validInput() CreateInput {
	return CreateInput{
		Title:        "Guitar",
		Description:  "初心者向けギター講座",
		PricePerHour: "3000",
		CategoryTags: "music,guitar",
	}
}

// --- テスト ---

func TestCreate_PersistsCourseWithDefaultImage(t *testing.T) {
	repo := newMemCourseRepo()
	svc := newTestService(repo, newMemImageStore(), Config{})

	c, err := svc.Create(context.Background(), 1, validInput(), nil)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if c.ID != 1 || c.UserID != 1 {
		t.Errorf("course = %+v, want ID=1 UserID=1", c)
	}
	if c.ImageURL != model.DefaultImageURL {
		t.Errorf("ImageURL = %q, want %q", c.ImageURL, model.DefaultImageURL)
	}
	if !c.PricePerHour.Equal(decimal.NewFromInt(3000)) {
		t.Errorf("PricePerHour = %s, want 3000", c.PricePerHour)
	}
	if c.Rating != nil {
		t.Errorf("Rating = %v, want nil", *c.Rating)
	}
}

func TestCreate_RequiresOwner(t *testing.T) {
	svc := newTestService(newMemCourseRepo(), newMemImageStore(), Config{})

	_, err := svc.Create(context.Background(), 0, validInput(), nil)
	if !model.IsCode(err, model.ErrCodeUnauthenticated) {
		t.Errorf("err = %v, want UNAUTHENTICATED", err)
	}
}

func TestCreate_InvalidInput(t *testing.T) {
	svc := newTestService(newMemCourseRepo(), newMemImageStore(), Config{})

	tests := []struct {
		name   string
		modify func(in *CreateInput)
	}{
		{"タイトルが空", func(in *CreateInput) { in.Title = "" }},
		{"タイトルがタグのみ", func(in *CreateInput) { in.Title = "<b></b>" }},
		{"タイトルが長すぎる", func(in *CreateInput) { in.Title = strings.Repeat("a", 101) }},
		{"説明が空", func(in *CreateInput) { in.Description = "" }},
		{"価格が空", func(in *CreateInput) { in.PricePerHour = "" }},
		{"価格が数値でない", func(in *CreateInput) { in.PricePerHour = "abc" }},
		{"価格が負数", func(in *CreateInput) { in.PricePerHour = "-1" }},
		{"価格が上限超過", func(in *CreateInput) { in.PricePerHour = "100000000" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.modify(&in)
			_, err := svc.Create(context.Background(), 1, in, nil)
			if !model.IsCode(err, model.ErrCodeInvalidInput) {
				t.Errorf("err = %v, want INVALID_INPUT", err)
			}
		})
	}
}

func TestCreate_PriceIsRoundedToCents(t *testing.T) {
	svc := newTestService(newMemCourseRepo(), newMemImageStore(), Config{})

	in := validInput()
	in.PricePerHour = "12.345"
	c, err := svc.Create(context.Background(), 1, in, nil)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if c.PricePerHour.String() != "12.35" {
		t.Errorf("PricePerHour = %s, want 12.35", c.PricePerHour)
	}
}

func TestCreate_StripsHTML(t *testing.T) {
	svc := newTestService(newMemCourseRepo(), newMemImageStore(), Config{})

	in := validInput()
	in.Title = "<script>alert(1)</script>Guitar"
	in.Description = "<p>楽しい</p>"
	in.CategoryTags = "<i>music</i>"
	c, err := svc.Create(context.Background(), 1, in, nil)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if c.Title != "Guitar" || c.Description != "楽しい" || c.CategoryTags != "music" {
		t.Errorf("course = %+v", c)
	}
}

func TestCreate_KeepsSymbolsInText(t *testing.T) {
	repo := newMemCourseRepo()
	svc := newTestService(repo, newMemImageStore(), Config{})

	in := validInput()
	in.Title = "C++ & Go"
	in.Description = `Tom's "intro" <3`
	in.CategoryTags = "c++,r&d"
	c, err := svc.Create(context.Background(), 1, in, nil)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if c.Title != in.Title || c.Description != in.Description || c.CategoryTags != in.CategoryTags {
		t.Errorf("course = %+v, want text unchanged", c)
	}
	stored, _ := repo.FindByID(context.Background(), c.ID)
	if stored == nil || stored.Title != "C++ & Go" {
		t.Errorf("stored course = %+v, want title %q", stored, "C++ & Go")
	}
}

func TestCreate_TitleLengthCountsPlainText(t *testing.T) {
	svc := newTestService(newMemCourseRepo(), newMemImageStore(), Config{})

	in := validInput()
	in.Title = strings.Repeat("&", 100)
	c, err := svc.Create(context.Background(), 1, in, nil)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if c.Title != in.Title {
		t.Errorf("Title = %q, want %q", c.Title, in.Title)
	}
}

func TestCreate_Image(t *testing.T) {
	tests := []struct {
		name        string
		upload      *storage.Upload
		maxSize     int64
		saveErr     error
		wantDefault bool
	}{
		{"許可された拡張子は保存される", &storage.Upload{Filename: "g.PNG", Size: 3, Body: strings.NewReader("png")}, 0, nil, false},
		{"許可されない拡張子は既定画像", &storage.Upload{Filename: "g.svg", Size: 3, Body: strings.NewReader("svg")}, 0, nil, true},
		{"ファイル名が空なら既定画像", &storage.Upload{Filename: "", Size: 0, Body: strings.NewReader("")}, 0, nil, true},
		{"サイズ超過は既定画像", &storage.Upload{Filename: "g.jpg", Size: 11, Body: strings.NewReader("01234567890")}, 10, nil, true},
		{"保存失敗は既定画像", &storage.Upload{Filename: "g.gif", Size: 3, Body: strings.NewReader("gif")}, 0, errors.New("disk full"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			images := newMemImageStore()
			images.saveErr = tt.saveErr
			svc := newTestService(newMemCourseRepo(), images, Config{MaxImageSize: tt.maxSize})

			c, err := svc.Create(context.Background(), 1, validInput(), tt.upload)
			if err != nil {
				t.Fatalf("Create returned error: %v", err)
			}
			if tt.wantDefault {
				if c.ImageURL != model.DefaultImageURL {
					t.Errorf("ImageURL = %q, want default", c.ImageURL)
				}
				if len(images.objects) != 0 {
					t.Errorf("画像が保存されています: %v", images.objects)
				}
				return
			}
			if c.ImageURL == model.DefaultImageURL || strings.Contains(c.ImageURL, "g.") {
				t.Errorf("ImageURL = %q, want generated key", c.ImageURL)
			}
			if _, ok := images.objects[c.ImageURL]; !ok {
				t.Errorf("キー %q で画像が保存されていません", c.ImageURL)
			}
		})
	}
}

func TestCreate_RepositoryErrorRemovesImage(t *testing.T) {
	repo := newMemCourseRepo()
	repo.createFn = func(*model.Course) error { return errors.New("insert failed") }
	images := newMemImageStore()
	svc := newTestService(repo, images, Config{})

	upload := &storage.Upload{Filename: "g.png", Size: 3, Body: strings.NewReader("png")}
	if _, err := svc.Create(context.Background(), 1, validInput(), upload); err == nil {
		t.Fatal("リポジトリエラー時にエラーが返されませんでした")
	}
	if len(images.objects) != 0 {
		t.Errorf("作成失敗後に画像が残っています: %v", images.objects)
	}
}

func TestGet_NotFound(t *testing.T) {
	svc := newTestService(newMemCourseRepo(), newMemImageStore(), Config{})

	_, err := svc.Get(context.Background(), 42)
	if !model.IsCode(err, model.ErrCodeCourseNotFound) {
		t.Errorf("err = %v, want COURSE_NOT_FOUND", err)
	}
}

func TestListAll_InsertionOrder(t *testing.T) {
	svc := newTestService(newMemCourseRepo(), newMemImageStore(), Config{})
	ctx := context.Background()

	for _, title := range []string{"A", "B", "C"} {
		in := validInput()
		in.Title = title
		if _, err := svc.Create(ctx, 1, in, nil); err != nil {
			t.Fatalf("Create returned error: %v", err)
		}
	}

	all, err := svc.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll returned error: %v", err)
	}
	var titles []string
	for _, c := range all {
		titles = append(titles, c.Title)
	}
	if strings.Join(titles, ",") != "A,B,C" {
		t.Errorf("titles = %v, want [A B C]", titles)
	}
}

func TestListOwned(t *testing.T) {
	svc := newTestService(newMemCourseRepo(), newMemImageStore(), Config{})
	ctx := context.Background()

	for _, owner := range []int64{1, 2, 1} {
		if _, err := svc.Create(ctx, owner, validInput(), nil); err != nil {
			t.Fatalf("Create returned error: %v", err)
		}
	}

	owned, err := svc.ListOwned(ctx, 1)
	if err != nil {
		t.Fatalf("ListOwned returned error: %v", err)
	}
	if len(owned) != 2 {
		t.Errorf("len = %d, want 2", len(owned))
	}
	for _, c := range owned {
		if c.UserID != 1 {
			t.Errorf("他ユーザーの講座が含まれています: %+v", c)
		}
	}
}

func TestDelete_ByNonOwnerIsForbidden(t *testing.T) {
	svc := newTestService(newMemCourseRepo(), newMemImageStore(), Config{})
	ctx := context.Background()

	c, _ := svc.Create(ctx, 1, validInput(), nil)

	err := svc.Delete(ctx, c.ID, 2)
	if !model.IsCode(err, model.ErrCodeForbidden) {
		t.Fatalf("err = %v, want FORBIDDEN", err)
	}
	if _, err := svc.Get(ctx, c.ID); err != nil {
		t.Errorf("所有者以外の削除試行後に講座が取得できません: %v", err)
	}
}

func TestDelete_ByOwner(t *testing.T) {
	images := newMemImageStore()
	svc := newTestService(newMemCourseRepo(), images, Config{})
	ctx := context.Background()

	upload := &storage.Upload{Filename: "g.png", Size: 3, Body: strings.NewReader("png")}
	c, _ := svc.Create(ctx, 1, validInput(), upload)

	if err := svc.Delete(ctx, c.ID, 1); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, err := svc.Get(ctx, c.ID); !model.IsCode(err, model.ErrCodeCourseNotFound) {
		t.Errorf("削除後のGet err = %v, want COURSE_NOT_FOUND", err)
	}
	if len(images.objects) != 0 {
		t.Errorf("削除後に画像が残っています: %v", images.objects)
	}
}

func TestDelete_Errors(t *testing.T) {
	svc := newTestService(newMemCourseRepo(), newMemImageStore(), Config{})
	ctx := context.Background()

	if err := svc.Delete(ctx, 1, 0); !model.IsCode(err, model.ErrCodeUnauthenticated) {
		t.Errorf("未認証 err = %v, want UNAUTHENTICATED", err)
	}
	if err := svc.Delete(ctx, 99, 1); !model.IsCode(err, model.ErrCodeCourseNotFound) {
		t.Errorf("存在しない講座 err = %v, want COURSE_NOT_FOUND", err)
	}
}

func TestDelete_Policies(t *testing.T) {
	tests := []struct {
		name     string
		policy   DeletePolicy
		wantCode string
	}{
		{"cascadeでは予約ごと削除", DeleteCascade, ""},
		{"restrictでは予約があると拒否", DeleteRestrict, model.ErrCodeCourseHasBookings},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemCourseRepo()
			svc := newTestService(repo, newMemImageStore(), Config{DeletePolicy: tt.policy})
			ctx := context.Background()

			c, _ := svc.Create(ctx, 1, validInput(), nil)
			repo.bookings[c.ID] = 2

			err := svc.Delete(ctx, c.ID, 1)
			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("Delete returned error: %v", err)
				}
				if repo.bookings[c.ID] != 0 {
					t.Errorf("予約が残っています: %d", repo.bookings[c.ID])
				}
				return
			}
			if !model.IsCode(err, tt.wantCode) {
				t.Fatalf("err = %v, want %s", err, tt.wantCode)
			}
			if _, err := svc.Get(ctx, c.ID); err != nil {
				t.Errorf("拒否後に講座が取得できません: %v", err)
			}
		})
	}
}

func TestDelete_RestrictWithoutBookings(t *testing.T) {
	svc := newTestService(newMemCourseRepo(), newMemImageStore(), Config{DeletePolicy: DeleteRestrict})
	ctx := context.Background()

	c, _ := svc.Create(ctx, 1, validInput(), nil)
	if err := svc.Delete(ctx, c.ID, 1); err != nil {
		t.Errorf("予約の無い講座の削除でエラー: %v", err)
	}
}

func TestParseDeletePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    DeletePolicy
		wantErr bool
	}{
		{"", DeleteCascade, false},
		{"cascade", DeleteCascade, false},
		{"restrict", DeleteRestrict, false},
		{"nullify", "", true},
	}
	for _, tt := range tests {
		got, err := ParseDeletePolicy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDeletePolicy(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseDeletePolicy(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
