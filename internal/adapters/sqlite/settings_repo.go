package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Guilhem-Bonnet/subseek/internal/domain"
)

// Une seule ligne: subseek n'a qu'un jeu de réglages.
const settingsKey = "default"

// SettingsRepository implémente ports.SettingsRepository sur la table settings.
// La valeur est un document JSON appliqué par-dessus domain.DefaultSettings():
// un champ absent (ajouté depuis) garde sa valeur par défaut, un document
// illisible est ignoré.
type SettingsRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSettingsRepository(db *sql.DB) *SettingsRepository {
	return &SettingsRepository{db: db, now: time.Now}
}

func (r *SettingsRepository) Get(ctx context.Context) (domain.Settings, error) {
	raw, _, err := r.load(ctx)
	if err != nil {
		return domain.Settings{}, err
	}
	s := domain.DefaultSettings()
	if raw == nil {
		return s, nil
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return domain.DefaultSettings(), nil
	}
	return s, nil
}

// UpdatedAt renvoie la date de dernière écriture (zéro si jamais écrit).
func (r *SettingsRepository) UpdatedAt(ctx context.Context) (time.Time, error) {
	_, at, err := r.load(ctx)
	return at, err
}

func (r *SettingsRepository) Put(ctx context.Context, settings domain.Settings) (domain.Settings, error) {
	b, err := json.Marshal(settings)
	if err != nil {
		return domain.Settings{}, fmt.Errorf("sqlite: settings: %w", err)
	}
	const upsert = `
		INSERT INTO settings(key, value_json, updated_at)
		VALUES(?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value_json = excluded.value_json, updated_at = excluded.updated_at`
	if _, err := r.db.ExecContext(ctx, upsert, settingsKey, b, r.now().UTC().Format(time.RFC3339)); err != nil {
		return domain.Settings{}, fmt.Errorf("sqlite: settings: %w", err)
	}
	return r.Get(ctx)
}

func (r *SettingsRepository) load(ctx context.Context) ([]byte, time.Time, error) {
	var (
		raw []byte
		at  string
	)
	err := r.db.QueryRowContext(ctx, `SELECT value_json, updated_at FROM settings WHERE key = ?`, settingsKey).Scan(&raw, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, nil
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("sqlite: settings: %w", err)
	}
	updated, _ := time.Parse(time.RFC3339, at)
	return raw, updated, nil
}
