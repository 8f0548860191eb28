package islands

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/tendant/island-photos/internal/islands/migrations"
	"github.com/tendant/island-photos/internal/storage"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// OpenPostgres opens a pgx backed *sql.DB and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations applies the embedded schema migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

type PostgresRepository struct {
	db DBTX
}

func NewPostgresRepository(db DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectColumns = `id, name, short_description, description, sort_order, site,
	photo, photo_thumb, latitude, longitude, created_at, updated_at`

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (*Island, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM islands WHERE id = $1`, id)
	it, err := scanIsland(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select island: %w", err)
	}
	return it, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]*Island, error) {
	return r.query(ctx, `SELECT `+selectColumns+` FROM islands ORDER BY sort_order ASC, name ASC`)
}

func (r *PostgresRepository) Search(ctx context.Context, q string) ([]*Island, error) {
	pattern := "%" + escapeLike(q) + "%"
	return r.query(ctx, `SELECT `+selectColumns+` FROM islands
		WHERE name ILIKE $1 ESCAPE '\' OR short_description ILIKE $1 ESCAPE '\' OR description ILIKE $1 ESCAPE '\'
		ORDER BY sort_order ASC, name ASC`, pattern)
}

func (r *PostgresRepository) ListMissingThumbnails(ctx context.Context, limit int) ([]*Island, error) {
	if limit <= 0 {
		return r.query(ctx, `SELECT `+selectColumns+` FROM islands
			WHERE photo IS NOT NULL AND photo_thumb IS NULL
			ORDER BY sort_order ASC, name ASC`)
	}
	return r.query(ctx, `SELECT `+selectColumns+` FROM islands
		WHERE photo IS NOT NULL AND photo_thumb IS NULL
		ORDER BY sort_order ASC, name ASC LIMIT $1`, limit)
}

func (r *PostgresRepository) Create(ctx context.Context, it *Island) error {
	photo, thumb, lat, lng, err := encodeColumns(it)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO islands (id, name, short_description, description, sort_order, site,
			photo, photo_thumb, latitude, longitude, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		it.ID, it.Name, it.ShortDescription, it.Description, it.Order, it.Site,
		photo, thumb, lat, lng, it.CreatedAt, it.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert island: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Update(ctx context.Context, it *Island, prevUpdatedAt time.Time) error {
	photo, thumb, lat, lng, err := encodeColumns(it)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE islands SET name = $2, short_description = $3, description = $4, sort_order = $5,
			site = $6, photo = $7, photo_thumb = $8, latitude = $9, longitude = $10, updated_at = $11
		WHERE id = $1 AND updated_at = $12`,
		it.ID, it.Name, it.ShortDescription, it.Description, it.Order, it.Site,
		photo, thumb, lat, lng, it.UpdatedAt, prevUpdatedAt)
	if err != nil {
		return fmt.Errorf("update island: %w", err)
	}
	return r.checkAffected(ctx, res, it.ID, ErrConflict)
}

func (r *PostgresRepository) AttachThumbnail(ctx context.Context, id uuid.UUID, photoURL string, thumb *storage.AssetRef, updatedAt time.Time) error {
	enc, err := encodeAsset(thumb)
	if err != nil {
		return fmt.Errorf("encode photo_thumb: %w", err)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE islands SET photo_thumb = $3, updated_at = $4 WHERE id = $1 AND photo->>'url' = $2`,
		id, photoURL, enc, updatedAt)
	if err != nil {
		return fmt.Errorf("attach thumbnail: %w", err)
	}
	return r.checkAffected(ctx, res, id, ErrPhotoChanged)
}

// checkAffected maps a guarded update that touched no rows to ErrNotFound
// when the row is gone and to guardErr when the guard did not match.
func (r *PostgresRepository) checkAffected(ctx context.Context, res sql.Result, id uuid.UUID, guardErr error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n > 0 {
		return nil
	}
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM islands WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check island: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return guardErr
}

func (r *PostgresRepository) query(ctx context.Context, q string, args ...any) ([]*Island, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select islands: %w", err)
	}
	defer rows.Close()

	var result []*Island
	for rows.Next() {
		it, err := scanIsland(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanIsland(s scanner) (*Island, error) {
	var (
		it       Island
		photo    []byte
		thumb    []byte
		lat, lng sql.NullFloat64
	)
	if err := s.Scan(&it.ID, &it.Name, &it.ShortDescription, &it.Description, &it.Order, &it.Site,
		&photo, &thumb, &lat, &lng, &it.CreatedAt, &it.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if it.Photo, err = decodeAsset(photo); err != nil {
		return nil, fmt.Errorf("decode photo: %w", err)
	}
	if it.PhotoThumb, err = decodeAsset(thumb); err != nil {
		return nil, fmt.Errorf("decode photo_thumb: %w", err)
	}
	if lat.Valid && lng.Valid {
		it.Location = &GeoPoint{Latitude: lat.Float64, Longitude: lng.Float64}
	}
	return &it, nil
}

func encodeColumns(it *Island) (photo, thumb any, lat, lng sql.NullFloat64, err error) {
	if photo, err = encodeAsset(it.Photo); err != nil {
		return nil, nil, lat, lng, fmt.Errorf("encode photo: %w", err)
	}
	if thumb, err = encodeAsset(it.PhotoThumb); err != nil {
		return nil, nil, lat, lng, fmt.Errorf("encode photo_thumb: %w", err)
	}
	if it.Location != nil {
		lat = sql.NullFloat64{Float64: it.Location.Latitude, Valid: true}
		lng = sql.NullFloat64{Float64: it.Location.Longitude, Valid: true}
	}
	return photo, thumb, lat, lng, nil
}

// encodeAsset returns the JSONB parameter for ref, nil for SQL NULL.
func encodeAsset(ref *storage.AssetRef) (any, error) {
	if ref == nil {
		return nil, nil
	}
	b, err := json.Marshal(ref)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func decodeAsset(b []byte) (*storage.AssetRef, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var ref storage.AssetRef
	if err := json.Unmarshal(b, &ref); err != nil {
		return nil, err
	}
	return &ref, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
