package app

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

var ErrItemNotFound = errors.New("app: item not found")

type Item struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// NewItem is the body of POST /items.
type NewItem struct {
	Name        string `json:"name" validate:"required,max=255"`
	Description string `json:"description"`
}

type ItemStore struct {
	db *sqlx.DB
}

func NewItemStore(db *sqlx.DB) *ItemStore {
	return &ItemStore{db: db}
}

func (s *ItemStore) List(ctx context.Context, limit int) ([]Item, error) {
	items := make([]Item, 0, limit)
	err := s.db.SelectContext(ctx, &items,
		`SELECT id, name, description, created_at FROM items ORDER BY id LIMIT $1`, limit)
	return items, err
}

func (s *ItemStore) Get(ctx context.Context, id int64) (Item, error) {
	var item Item
	err := s.db.GetContext(ctx, &item,
		`SELECT id, name, description, created_at FROM items WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return item, ErrItemNotFound
	}
	return item, err
}

func (s *ItemStore) Create(ctx context.Context, in NewItem) (Item, error) {
	var item Item
	err := s.db.GetContext(ctx, &item,
		`INSERT INTO items (name, description, created_at) VALUES ($1, $2, $3)
		RETURNING id, name, description, created_at`,
		in.Name, in.Description, time.Now().UTC())
	return item, err
}

func (s *ItemStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrItemNotFound
	}
	return nil
}
