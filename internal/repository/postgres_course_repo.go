package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/coursebook/internal/model"
)

// PostgresCourseRepo はPostgreSQLを使用した講座リポジトリ。
type PostgresCourseRepo struct {
	db *sql.DB
}

// NewPostgresCourseRepo はPostgresCourseRepoを生成する。
func NewPostgresCourseRepo(db *sql.DB) *PostgresCourseRepo {
	return &PostgresCourseRepo{db: db}
}

const courseColumns = `id, user_id, title, description, price_per_hour, image_url, category_tags, rating, created_at`

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCourse(s rowScanner) (*model.Course, error) {
	c := &model.Course{}
	var rating sql.NullFloat64
	if err := s.Scan(
		&c.ID, &c.UserID, &c.Title, &c.Description, &c.PricePerHour,
		&c.ImageURL, &c.CategoryTags, &rating, &c.CreatedAt,
	); err != nil {
		return nil, err
	}
	if rating.Valid {
		v := rating.Float64
		c.Rating = &v
	}
	return c, nil
}

// ListAll は全講座をID昇順で返す。
func (r *PostgresCourseRepo) ListAll(ctx context.Context) ([]*model.Course, error) {
	return r.list(ctx, `SELECT `+courseColumns+` FROM courses ORDER BY id`)
}

// ListByUserID は指定ユーザーが出品した講座をID昇順で返す。
func (r *PostgresCourseRepo) ListByUserID(ctx context.Context, userID int64) ([]*model.Course, error) {
	return r.list(ctx, `SELECT `+courseColumns+` FROM courses WHERE user_id = $1 ORDER BY id`, userID)
}

func (r *PostgresCourseRepo) list(ctx context.Context, query string, args ...any) ([]*model.Course, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list courses: %w", err)
	}
	defer rows.Close()

	courses := make([]*model.Course, 0)
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan course: %w", err)
		}
		courses = append(courses, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate courses: %w", err)
	}
	return courses, nil
}

// FindByID は指定IDの講座を取得する。見つからない場合はnilを返す。
func (r *PostgresCourseRepo) FindByID(ctx context.Context, id int64) (*model.Course, error) {
	c, err := scanCourse(r.db.QueryRowContext(ctx,
		`SELECT `+courseColumns+` FROM courses WHERE id = $1`,
		id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find course: %w", err)
	}
	return c, nil
}

// Create は講座を作成する。created_atはサーバー側で行ごとに採番される。
func (r *PostgresCourseRepo) Create(ctx context.Context, course *model.Course) error {
	var rating sql.NullFloat64
	if course.Rating != nil {
		rating = sql.NullFloat64{Float64: *course.Rating, Valid: true}
	}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO courses (user_id, title, description, price_per_hour, image_url, category_tags, rating)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		course.UserID, course.Title, course.Description, course.PricePerHour,
		course.ImageURL, course.CategoryTags, rating,
	).Scan(&course.ID, &course.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert course: %w", err)
	}
	return nil
}

// Delete は講座を削除する。予約はON DELETE CASCADEで削除される。
func (r *PostgresCourseRepo) Delete(ctx context.Context, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM courses WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete course: %w", err)
	}
	return affectedOne(result)
}

// DeleteIfUnbooked は予約がない場合に限り講座を削除する。
// 判定と削除を1文で行うため、並行する予約作成と競合しない。
func (r *PostgresCourseRepo) DeleteIfUnbooked(ctx context.Context, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM courses
		 WHERE id = $1
		   AND NOT EXISTS (SELECT 1 FROM bookings WHERE course_id = $1)`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete unbooked course: %w", err)
	}
	return affectedOne(result)
}

func affectedOne(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// compile-time interface check
var _ CourseRepository = (*PostgresCourseRepo)(nil)
