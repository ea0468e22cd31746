package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"data-bounty-system/models"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// GormStore implements Gateway on top of gorm. The same code serves the
// Postgres-backed networked store and the SQLite local fallback.
type GormStore struct {
	DB  *gorm.DB
	log *zap.Logger
}

// NewGormStore wraps an open connection and migrates the schema.
func NewGormStore(db *gorm.DB, log *zap.Logger) (*GormStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := db.AutoMigrate(
		&models.Bounty{},
		&models.Submission{},
		&models.Vote{},
		&models.DailyStats{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &GormStore{DB: db, log: log}, nil
}

// NewPostgresStore opens the networked store database.
func NewPostgresStore(dsn string, log *zap.Logger) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return NewGormStore(db, log)
}

// NewSQLiteStore opens the local fallback database. SQLite allows a single
// writer, so the pool is pinned to one connection and transactions queue
// behind each other instead of failing with "database is locked".
func NewSQLiteStore(dsn string, log *zap.Logger) (*GormStore, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return NewGormStore(db, log)
}

func (s *GormStore) withTx(tx *gorm.DB) *GormStore {
	return &GormStore{DB: tx, log: s.log}
}

func (s *GormStore) Atomically(ctx context.Context, fn func(tx Gateway) error) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(s.withTx(tx))
	})
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// --- Bounties ---

func (s *GormStore) ListBounties(ctx context.Context) ([]models.Bounty, error) {
	var bounties []models.Bounty
	if err := s.DB.WithContext(ctx).Order("created_at DESC").Find(&bounties).Error; err != nil {
		return nil, err
	}
	return bounties, nil
}

func (s *GormStore) GetBounty(ctx context.Context, id string) (*models.Bounty, error) {
	var bounty models.Bounty
	if err := s.DB.WithContext(ctx).First(&bounty, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &bounty, nil
}

func (s *GormStore) CreateBounty(ctx context.Context, bounty *models.Bounty) error {
	return s.DB.WithContext(ctx).Create(bounty).Error
}

func (s *GormStore) IncrementBountyCount(ctx context.Context, id string) error {
	res := s.DB.WithContext(ctx).
		Model(&models.Bounty{}).
		Where("id = ?", id).
		UpdateColumn("current_count", gorm.Expr("current_count + ?", 1))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Submissions ---

func orderedVotes(db *gorm.DB) *gorm.DB {
	return db.Order("id ASC")
}

func (s *GormStore) ListSubmissions(ctx context.Context) ([]models.Submission, error) {
	var subs []models.Submission
	err := s.DB.WithContext(ctx).
		Preload("CommunityVotes", orderedVotes).
		Order("submitted_at DESC").
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	for i := range subs {
		if subs[i].CommunityVotes == nil {
			subs[i].CommunityVotes = []models.Vote{}
		}
	}
	return subs, nil
}

func (s *GormStore) GetSubmission(ctx context.Context, id string) (*models.Submission, error) {
	var sub models.Submission
	err := s.DB.WithContext(ctx).
		Preload("CommunityVotes", orderedVotes).
		First(&sub, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if sub.CommunityVotes == nil {
		sub.CommunityVotes = []models.Vote{}
	}
	return &sub, nil
}

func (s *GormStore) CreateSubmission(ctx context.Context, submission *models.Submission) error {
	return s.DB.WithContext(ctx).Omit(clause.Associations).Create(submission).Error
}

// SetSubmissionStatus moves a pending submission to status. The WHERE guard
// makes the transition single-shot even across processes.
func (s *GormStore) SetSubmissionStatus(ctx context.Context, id string, status models.SubmissionStatus) error {
	res := s.DB.WithContext(ctx).
		Model(&models.Submission{}).
		Where("id = ? AND status = ?", id, models.SubmissionStatusPending).
		UpdateColumn("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}
	return s.missingOrNotPending(ctx, id)
}

func (s *GormStore) missingOrNotPending(ctx context.Context, id string) error {
	var count int64
	if err := s.DB.WithContext(ctx).Model(&models.Submission{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrNotPending
}

func (s *GormStore) AppendVote(ctx context.Context, id string, vote models.Vote) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sub models.Submission
		if err := tx.Select("id", "status").First(&sub, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if sub.Status != models.SubmissionStatusPending {
			return ErrNotPending
		}

		var existing int64
		if err := tx.Model(&models.Vote{}).
			Where("submission_id = ? AND validator = ?", id, vote.Validator).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrDuplicateVote
		}

		vote.ID = 0
		vote.SubmissionID = id
		if err := tx.Create(&vote).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateVote
			}
			return err
		}
		return nil
	})
}

// --- Daily stats ---

func (s *GormStore) GetDailyStats(ctx context.Context, identity string) (*models.DailyStats, error) {
	var stats models.DailyStats
	if err := s.DB.WithContext(ctx).First(&stats, "identity = ?", identity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &stats, nil
}

func (s *GormStore) AddDailyValidations(ctx context.Context, identity, day string, delta int64) (*models.DailyStats, error) {
	var stats models.DailyStats
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		row := models.DailyStats{Identity: identity, DailyValidationCount: delta, LastLoginDate: day, UpdatedAt: now}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "identity"}},
			DoUpdates: clause.Assignments(map[string]any{
				"daily_validation_count": gorm.Expr(
					"CASE WHEN daily_stats.last_login_date = ? THEN daily_stats.daily_validation_count + ? ELSE ? END",
					day, delta, delta,
				),
				"last_login_date": day,
				"updated_at":      now,
			}),
		}).Create(&row).Error; err != nil {
			return err
		}
		return tx.First(&stats, "identity = ?", identity).Error
	})
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (s *GormStore) PruneDailyStats(ctx context.Context, idleSince time.Time) (int64, error) {
	res := s.DB.WithContext(ctx).Where("updated_at < ?", idleSince).Delete(&models.DailyStats{})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		s.log.Info("pruned idle daily stats", zap.Int64("rows", res.RowsAffected), zap.Time("idle_since", idleSince))
	}
	return res.RowsAffected, nil
}
