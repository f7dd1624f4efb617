package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/coursebook/internal/database"
	"github.com/hitoshi/coursebook/internal/model"
)

// PostgresBookingRepo はPostgreSQLを使用した予約リポジトリ。
type PostgresBookingRepo struct {
	db *sql.DB
}

// NewPostgresBookingRepo はPostgresBookingRepoを生成する。
func NewPostgresBookingRepo(db *sql.DB) *PostgresBookingRepo {
	return &PostgresBookingRepo{db: db}
}

// FindByID は指定IDの予約を取得する。見つからない場合はnilを返す。
func (r *PostgresBookingRepo) FindByID(ctx context.Context, id int64) (*model.Booking, error) {
	b := &model.Booking{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, course_id, created_at FROM bookings WHERE id = $1`,
		id,
	).Scan(&b.ID, &b.UserID, &b.CourseID, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}
	return b, nil
}

// Create は予約を作成する。
// 講座行をロックしてから挿入するため、並行する講座削除と交差しない。
// RejectDuplicateの場合は行を排他ロックし、同一ユーザーの予約有無を同じトランザクションで確認する。
func (r *PostgresBookingRepo) Create(ctx context.Context, booking *model.Booking, opts CreateBookingOptions) error {
	lockQuery := `SELECT id FROM courses WHERE id = $1 FOR SHARE`
	if opts.RejectDuplicate {
		lockQuery = `SELECT id FROM courses WHERE id = $1 FOR UPDATE`
	}

	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var courseID int64
		err := tx.QueryRowContext(ctx, lockQuery, booking.CourseID).Scan(&courseID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock course: %w", err)
		}

		if opts.RejectDuplicate {
			var exists bool
			err := tx.QueryRowContext(ctx,
				`SELECT EXISTS (SELECT 1 FROM bookings WHERE user_id = $1 AND course_id = $2)`,
				booking.UserID, booking.CourseID,
			).Scan(&exists)
			if err != nil {
				return fmt.Errorf("failed to check duplicate booking: %w", err)
			}
			if exists {
				return ErrDuplicate
			}
		}

		err = tx.QueryRowContext(ctx,
			`INSERT INTO bookings (user_id, course_id, created_at)
			 VALUES ($1, $2, $3)
			 RETURNING id`,
			booking.UserID, booking.CourseID, booking.CreatedAt,
		).Scan(&booking.ID)
		if err != nil {
			return fmt.Errorf("failed to insert booking: %w", err)
		}
		return nil
	})
}

// Delete は指定IDの予約を削除する。
func (r *PostgresBookingRepo) Delete(ctx context.Context, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM bookings WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete booking: %w", err)
	}
	return affectedOne(result)
}

// ListByUserIDWithCourse は指定ユーザーの予約を講座情報とINNER JOINして返す。
func (r *PostgresBookingRepo) ListByUserIDWithCourse(ctx context.Context, userID int64) ([]model.BookingWithCourse, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT b.id, b.user_id, b.course_id, b.created_at,
		        c.id, c.user_id, c.title, c.description, c.price_per_hour,
		        c.image_url, c.category_tags, c.rating, c.created_at
		 FROM bookings b
		 INNER JOIN courses c ON c.id = b.course_id
		 WHERE b.user_id = $1
		 ORDER BY b.id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	results := make([]model.BookingWithCourse, 0)
	for rows.Next() {
		var bc model.BookingWithCourse
		var rating sql.NullFloat64
		if err := rows.Scan(
			&bc.ID, &bc.UserID, &bc.CourseID, &bc.Booking.CreatedAt,
			&bc.Course.ID, &bc.Course.UserID, &bc.Course.Title, &bc.Course.Description,
			&bc.Course.PricePerHour, &bc.Course.ImageURL, &bc.Course.CategoryTags,
			&rating, &bc.Course.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		if rating.Valid {
			v := rating.Float64
			bc.Course.Rating = &v
		}
		results = append(results, bc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bookings: %w", err)
	}
	return results, nil
}

// compile-time interface check
var _ BookingRepository = (*PostgresBookingRepo)(nil)
