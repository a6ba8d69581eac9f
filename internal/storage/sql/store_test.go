package sql

import (
	"context"
	"regexp"
	"testing"
	"time"

	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sqlmock "gopkg.in/DATA-DOG/go-sqlmock.v1"

	"sudtfaucet/backend/internal/domain"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := newStoreWithDB("mysql", db)
	require.NoError(t, err)
	return store, mock
}

func testRecord(secret string) *domain.ClaimRecord {
	return domain.NewClaimRecord(
		domain.RCIdentity{PubkeyHash: "0xissuer"},
		domain.Recipient{Mail: "alice@example.com", SudtID: "sudt-a", Amount: "1", ExpiredAt: 1700000000000},
		secret,
	)
}

func TestStore_InsertClaimRecords(t *testing.T) {
	ctx := context.Background()

	t.Run("事务内批量插入", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `claim_records`")).
			WillReturnResult(sqlmock.NewResult(1, 2))
		mock.ExpectCommit()

		err := store.InsertClaimRecords(ctx, []*domain.ClaimRecord{testRecord("s1"), testRecord("s2")})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("密钥冲突整批回滚", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `claim_records`")).
			WillReturnError(&mysqldrv.MySQLError{Number: 1062, Message: "Duplicate entry"})
		mock.ExpectRollback()

		err := store.InsertClaimRecords(ctx, []*domain.ClaimRecord{testRecord("s1")})
		assert.ErrorIs(t, err, domain.ErrDuplicateSecret)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("空批次不访问数据库", func(t *testing.T) {
		store, mock := newMockStore(t)
		require.NoError(t, store.InsertClaimRecords(ctx, nil))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_GetClaimRecordBySecret(t *testing.T) {
	ctx := context.Background()

	t.Run("找到记录", func(t *testing.T) {
		store, mock := newMockStore(t)
		created := time.Unix(1700000000, 0).UTC()
		rows := sqlmock.NewRows([]string{"id", "mail_address", "secret", "status", "amount", "created_at"}).
			AddRow(7, "alice@example.com", "s1", "WaitForClaim", "1", created)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `claim_records` WHERE secret = ?")).
			WillReturnRows(rows)

		record, err := store.GetClaimRecordBySecret(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, uint64(7), record.ID)
		assert.Equal(t, domain.StatusWaitForClaim, record.Status)
		assert.Equal(t, created, record.CreatedAt)
	})

	t.Run("记录不存在", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM `claim_records` WHERE secret = ?")).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := store.GetClaimRecordBySecret(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrRecordNotFound)
	})
}

func TestStore_TransitionStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("条件更新命中", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(regexp.QuoteMeta("UPDATE `claim_records` SET `status`=?")).
			WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := store.TransitionStatus(ctx, "s1",
			[]domain.ClaimStatus{domain.StatusWaitForSendMail, domain.StatusWaitForClaim}, domain.StatusDisabled)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("条件更新未命中", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectExec(regexp.QuoteMeta("UPDATE `claim_records` SET `status`=?")).
			WillReturnResult(sqlmock.NewResult(0, 0))

		ok, err := store.TransitionStatus(ctx, "s1", []domain.ClaimStatus{domain.StatusWaitForClaim}, domain.StatusDisabled)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("非法迁移不发送语句", func(t *testing.T) {
		store, mock := newMockStore(t)

		_, err := store.TransitionStatus(ctx, "s1", []domain.ClaimStatus{domain.StatusDone}, domain.StatusWaitForClaim)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_ClaimBySecret(t *testing.T) {
	ctx := context.Background()
	store, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE `claim_records` SET `claim_address`=?,`status`=?")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := store.ClaimBySecret(ctx, "s1", "ckt1addr")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_TransitionStatusBySecrets(t *testing.T) {
	ctx := context.Background()
	store, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE `claim_records` SET `status`=?")).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := store.TransitionStatusBySecrets(ctx, []string{"a", "b", "c"}, domain.StatusWaitForSendMail, domain.StatusWaitForClaim)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = store.TransitionStatusBySecrets(ctx, nil, domain.StatusWaitForSendMail, domain.StatusWaitForClaim)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLDriverName(t *testing.T) {
	name, err := sqlDriverName("postgres")
	require.NoError(t, err)
	assert.Equal(t, "pgx", name)

	_, err = sqlDriverName("sqlite")
	assert.Error(t, err)
}
