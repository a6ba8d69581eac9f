package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver (pgx)
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"sudtfaucet/backend/internal/domain"
	"sudtfaucet/backend/internal/storage"
)

// 插入批次大小，与邮件派发批次保持一致
const insertBatchSize = 500

// Store SQL 数据库存储实现（支持 MySQL 5.7+ 和 PostgreSQL）
type Store struct {
	db         *sql.DB
	gormDB     *gorm.DB
	driverName string // "mysql" or "postgres"
}

var _ storage.Store = (*Store)(nil)

// Options 连接池参数
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

// NewStore 创建SQL数据库存储
func NewStore(driverName, dsn string, opts Options) (*Store, error) {
	sqlDriver, err := sqlDriverName(driverName)
	if err != nil {
		return nil, err
	}

	// 打开数据库连接
	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 设置连接池参数
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	// 测试连接
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store, err := newStoreWithDB(driverName, db)
	if err != nil {
		db.Close()
		return nil, err
	}

	if opts.AutoMigrate {
		if err := store.migrate(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	return store, nil
}

// newStoreWithDB 在已有连接上初始化GORM
func newStoreWithDB(driverName string, db *sql.DB) (*Store, error) {
	gormConfig := &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		TranslateError:         true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	var dialector gorm.Dialector
	switch driverName {
	case "mysql":
		dialector = mysql.New(mysql.Config{Conn: db, SkipInitializeWithVersion: true})
	case "postgres":
		dialector = postgres.New(postgres.Config{Conn: db})
	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: mysql, postgres)", driverName)
	}

	gormDB, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GORM: %w", err)
	}

	return &Store{
		db:         db,
		gormDB:     gormDB,
		driverName: driverName,
	}, nil
}

func sqlDriverName(driverName string) (string, error) {
	switch driverName {
	case "mysql":
		return "mysql", nil
	case "postgres":
		return "pgx", nil
	default:
		return "", fmt.Errorf("unsupported database driver: %s (supported: mysql, postgres)", driverName)
	}
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Health 检查数据库健康状态
func (s *Store) Health() error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	return s.db.Ping()
}

// migrate 执行数据库迁移（使用GORM AutoMigrate）
func (s *Store) migrate() error {
	return s.gormDB.AutoMigrate(&domain.ClaimRecord{})
}

// InsertClaimRecords 在一个事务内批量写入
func (s *Store) InsertClaimRecords(ctx context.Context, records []*domain.ClaimRecord) error {
	if len(records) == 0 {
		return nil
	}
	err := s.gormDB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(records, insertBatchSize).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", domain.ErrDuplicateSecret, err)
	}
	if err != nil {
		return fmt.Errorf("failed to insert claim records: %w", err)
	}
	return nil
}

// GetClaimRecordBySecret 按密钥查询
func (s *Store) GetClaimRecordBySecret(ctx context.Context, secret string) (*domain.ClaimRecord, error) {
	var record domain.ClaimRecord
	err := s.gormDB.WithContext(ctx).Where("secret = ?", secret).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, err
	}
	return &record, nil
}

// ListClaimRecordsBySudtID 返回指定代币的全部记录，新记录在前
func (s *Store) ListClaimRecordsBySudtID(ctx context.Context, sudtID string) ([]domain.ClaimRecord, error) {
	records := make([]domain.ClaimRecord, 0)
	err := s.gormDB.WithContext(ctx).
		Where("sudt_id = ?", sudtID).
		Order("created_at DESC").Order("id DESC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ListClaimRecordsByStatus 返回指定状态的最早 limit 条记录
func (s *Store) ListClaimRecordsByStatus(ctx context.Context, status domain.ClaimStatus, limit int) ([]domain.ClaimRecord, error) {
	records := make([]domain.ClaimRecord, 0)
	query := s.gormDB.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC").Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// TransitionStatus 单条条件更新：UPDATE ... WHERE secret = ? AND status IN (from)
func (s *Store) TransitionStatus(ctx context.Context, secret string, from []domain.ClaimStatus, to domain.ClaimStatus) (bool, error) {
	if err := storage.CheckTransitions(from, to); err != nil {
		return false, err
	}

	result := s.gormDB.WithContext(ctx).
		Model(&domain.ClaimRecord{}).
		Where("secret = ? AND status IN ?", secret, from).
		Update("status", to)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ClaimBySecret 领取：WaitForClaim -> WaitForTransfer，并写入领取地址
func (s *Store) ClaimBySecret(ctx context.Context, secret, address string) (bool, error) {
	result := s.gormDB.WithContext(ctx).
		Model(&domain.ClaimRecord{}).
		Where("secret = ? AND status = ?", secret, domain.StatusWaitForClaim).
		Updates(map[string]interface{}{
			"status":        domain.StatusWaitForTransfer,
			"claim_address": address,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// TransitionStatusBySecrets 批量迁移，只有当前状态为 from 的记录会被更新
func (s *Store) TransitionStatusBySecrets(ctx context.Context, secrets []string, from, to domain.ClaimStatus) (int64, error) {
	if err := domain.ValidateTransition(from, to); err != nil {
		return 0, err
	}
	if len(secrets) == 0 {
		return 0, nil
	}

	result := s.gormDB.WithContext(ctx).
		Model(&domain.ClaimRecord{}).
		Where("secret IN ? AND status = ?", secrets, from).
		Update("status", to)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
