package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/wricardo/memory-match-game/game/engine"
	"github.com/wricardo/memory-match-game/game/service"
)

var _ service.SessionStore = (*GormStore)(nil)

type sessionRow struct {
	ID              string  `gorm:"primaryKey;size:64"`
	PlayerID        string  `gorm:"index;size:320;not null"`
	LevelID         string  `gorm:"index;size:128"`
	Status          string  `gorm:"index;size:16;not null"`
	Score           int     `gorm:"not null;default:0"`
	Moves           int     `gorm:"not null;default:0"`
	ConsecutiveWins int     `gorm:"not null;default:0"`
	FlipDuration    float64 `gorm:"not null;default:0.6"`
	PointsChange    *int
	EndReason       string          `gorm:"size:32"`
	Level           engine.Level    `gorm:"serializer:json;type:text"`
	Rules           engine.Rules    `gorm:"serializer:json;type:text"`
	Messages        engine.Messages `gorm:"serializer:json;type:text"`
	Cards           []engine.Card   `gorm:"serializer:json;type:text"`
	FlippedIndices  []int           `gorm:"serializer:json;type:text"`
	CreatedAt       time.Time       `gorm:"autoCreateTime:false"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime:false"`
	CompletedAt     *time.Time
	Version         int64 `gorm:"not null"`
}

func (sessionRow) TableName() string { return "game_sessions" }

type playerRow struct {
	PlayerID        string    `gorm:"primaryKey;size:320"`
	ConsecutiveWins int       `gorm:"not null;default:0"`
	Wins            int       `gorm:"not null;default:0"`
	Losses          int       `gorm:"not null;default:0"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime:false"`
}

func (playerRow) TableName() string { return "players" }

// GormStore is a SQL session store. Optimistic versioning is enforced by a
// conditional UPDATE inside a transaction that also owns the player row.
type GormStore struct {
	db *gorm.DB
}

// OpenDatabase opens PostgreSQL for postgres:// DSNs and SQLite otherwise
func OpenDatabase(dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	}

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		db, err := gorm.Open(postgres.Open(dsn), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		return db, nil
	}

	db, err := gorm.Open(sqlite.Open(strings.TrimPrefix(dsn, "sqlite://")), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// NewGormStore migrates the schema and returns the store
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&sessionRow{}, &playerRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate session schema: %w", err)
	}
	return &GormStore{db: db}, nil
}

// Create inserts the session and reads the player's streak under a row lock
func (g *GormStore) Create(ctx context.Context, sess *engine.Session) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := lockPlayer(tx, sess.PlayerID, sess.CreatedAt)
		if err != nil {
			return err
		}

		sess.SetStreak(p.ConsecutiveWins)
		sess.Version = 1
		row := toRow(sess)
		if err := tx.Create(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrSessionAlreadyExists
			}
			return fmt.Errorf("failed to insert session: %w", err)
		}
		return nil
	})
}

func (g *GormStore) Get(ctx context.Context, id string) (*engine.Session, error) {
	var row sessionRow
	err := g.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, engine.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return row.session(), nil
}

// Update writes sess when the stored version still equals sess.Version
func (g *GormStore) Update(ctx context.Context, sess *engine.Session) error {
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur sessionRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&cur, "id = ?", sess.ID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return engine.ErrSessionNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock session: %w", err)
		}
		if cur.Version != sess.Version {
			return fmt.Errorf("%w: session %s is at version %d, write based on %d",
				engine.ErrSessionConflict, sess.ID, cur.Version, sess.Version)
		}

		row := toRow(sess)
		row.Version = sess.Version + 1
		res := tx.Model(&row).Where("version = ?", sess.Version).Select("*").Updates(&row)
		if res.Error != nil {
			return fmt.Errorf("failed to update session: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: session %s changed during update", engine.ErrSessionConflict, sess.ID)
		}

		if cur.Status == string(engine.StatusPlaying) && sess.Status.Terminal() {
			p, err := lockPlayer(tx, sess.PlayerID, sess.UpdatedAt)
			if err != nil {
				return err
			}
			rec := p.record()
			rec.Apply(sess.Status, sess.UpdatedAt)
			if err := tx.Save(playerFromRecord(rec)).Error; err != nil {
				return fmt.Errorf("failed to update player streak: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	sess.Version++
	return nil
}

func (g *GormStore) ListPlaying(ctx context.Context) ([]*engine.Session, error) {
	var rows []sessionRow
	if err := g.db.WithContext(ctx).Where("status = ?", string(engine.StatusPlaying)).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list playing sessions: %w", err)
	}
	out := make([]*engine.Session, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].session())
	}
	return out, nil
}

func (g *GormStore) Player(ctx context.Context, playerID string) (*engine.PlayerRecord, error) {
	var p playerRow
	err := g.db.WithContext(ctx).First(&p, "player_id = ?", playerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &engine.PlayerRecord{PlayerID: playerID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load player: %w", err)
	}
	return p.record(), nil
}

func (g *GormStore) Stats(ctx context.Context) (*service.Stats, error) {
	db := g.db.WithContext(ctx)

	type statusCount struct {
		Status string
		N      int
	}
	var counts []statusCount
	if err := db.Model(&sessionRow{}).Select("status, count(*) as n").Group("status").Scan(&counts).Error; err != nil {
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}
	var players int64
	if err := db.Model(&playerRow{}).Count(&players).Error; err != nil {
		return nil, fmt.Errorf("failed to count players: %w", err)
	}

	st := &service.Stats{Players: int(players)}
	for _, c := range counts {
		st.TotalSessions += c.N
		switch engine.Status(c.Status) {
		case engine.StatusPlaying:
			st.PlayingSessions = c.N
		case engine.StatusWin:
			st.Wins = c.N
		case engine.StatusLose:
			st.Losses = c.N
		}
	}
	return st, nil
}

// Close releases the database connection pool
func (g *GormStore) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// lockPlayer ensures the player row exists and locks it for the transaction
func lockPlayer(tx *gorm.DB, playerID string, at time.Time) (*playerRow, error) {
	seed := playerRow{PlayerID: playerID, UpdatedAt: at}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return nil, fmt.Errorf("failed to upsert player: %w", err)
	}
	var p playerRow
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&p, "player_id = ?", playerID).Error; err != nil {
		return nil, fmt.Errorf("failed to lock player: %w", err)
	}
	return &p, nil
}

func toRow(s *engine.Session) sessionRow {
	return sessionRow{
		ID:              s.ID,
		PlayerID:        s.PlayerID,
		LevelID:         s.Level.ID,
		Status:          string(s.Status),
		Score:           s.Score,
		Moves:           s.Moves,
		ConsecutiveWins: s.ConsecutiveWins,
		FlipDuration:    s.FlipDuration,
		PointsChange:    s.PointsChange,
		EndReason:       string(s.EndReason),
		Level:           s.Level,
		Rules:           s.Rules,
		Messages:        s.Messages,
		Cards:           s.Cards,
		FlippedIndices:  s.FlippedIndices,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
		CompletedAt:     s.CompletedAt,
		Version:         s.Version,
	}
}

func (r *sessionRow) session() *engine.Session {
	s := &engine.Session{
		ID:              r.ID,
		PlayerID:        r.PlayerID,
		Level:           r.Level,
		Rules:           r.Rules,
		Messages:        r.Messages,
		Cards:           r.Cards,
		Status:          engine.Status(r.Status),
		Score:           r.Score,
		Moves:           r.Moves,
		FlippedIndices:  r.FlippedIndices,
		ConsecutiveWins: r.ConsecutiveWins,
		FlipDuration:    r.FlipDuration,
		PointsChange:    r.PointsChange,
		EndReason:       engine.EndReason(r.EndReason),
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
		Version:         r.Version,
	}
	if s.FlippedIndices == nil {
		s.FlippedIndices = []int{}
	}
	if r.CompletedAt != nil {
		t := r.CompletedAt.UTC()
		s.CompletedAt = &t
	}
	return s
}

func (p *playerRow) record() *engine.PlayerRecord {
	return &engine.PlayerRecord{
		PlayerID:        p.PlayerID,
		ConsecutiveWins: p.ConsecutiveWins,
		Wins:            p.Wins,
		Losses:          p.Losses,
		UpdatedAt:       p.UpdatedAt,
	}
}

func playerFromRecord(r *engine.PlayerRecord) *playerRow {
	return &playerRow{
		PlayerID:        r.PlayerID,
		ConsecutiveWins: r.ConsecutiveWins,
		Wins:            r.Wins,
		Losses:          r.Losses,
		UpdatedAt:       r.UpdatedAt,
	}
}
