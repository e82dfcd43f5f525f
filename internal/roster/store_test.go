package roster

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/listkeeper/internal/domain"
)

func setupStoreTest(t *testing.T) (*Store, sqlmock.Sqlmock, func()) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create sqlmock: %v", err)
	}

	return NewStore(db), mock, func() { db.Close() }
}

func memberRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "list_id", "role", "address_id", "user_id", "moderation_action",
		"delivery_mode", "delivery_status", "preferred_language", "acknowledge_posts",
		"hide_address", "receive_own_postings", "receive_list_copy",
		"bounce_score", "last_bounce_received", "last_warning_sent", "total_warnings_sent",
		"email", "created_at", "updated_at",
	})
}

func TestCreateDefaultsAndInsert(t *testing.T) {
	store, mock, cleanup := setupStoreTest(t)
	defer cleanup()

	addrID := uuid.New()
	m := &domain.Membership{
		ListID:    "test.example.com",
		Role:      domain.RoleMember,
		AddressID: &addrID,
	}

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO memberships`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Create(context.Background(), m))
	assert.NotEqual(t, uuid.Nil, m.ID)
	assert.Empty(t, m.ModerationAction)
	assert.Equal(t, EpochMin, m.LastWarningSent)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDuplicateMapsUniqueViolation(t *testing.T) {
	store, mock, cleanup := setupStoreTest(t)
	defer cleanup()

	addrID := uuid.New()
	m := &domain.Membership{
		ListID:    "test.example.com",
		Role:      domain.RoleMember,
		AddressID: &addrID,
	}

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO memberships`)).
		WillReturnError(&pq.Error{Code: "23505"})

	err := store.Create(context.Background(), m)
	assert.ErrorIs(t, err, ErrDuplicate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMemberNotFoundReturnsNil(t *testing.T) {
	store, mock, cleanup := setupStoreTest(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT`)).
		WithArgs("test.example.com", domain.RoleMember, "gone@example.com").
		WillReturnRows(memberRows())

	m, err := store.GetMember(context.Background(), "test.example.com", "Gone@Example.com ")
	require.NoError(t, err)
	assert.Nil(t, m)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMemberScansPreferences(t *testing.T) {
	store, mock, cleanup := setupStoreTest(t)
	defer cleanup()

	id := uuid.New()
	addrID := uuid.New()
	now := time.Now().UTC()
	rows := memberRows().AddRow(
		id.String(), "test.example.com", "member", addrID.String(), nil, "defer",
		"regular", "enabled", "fr", nil,
		nil, nil, nil,
		3, now, EpochMin, 0,
		"anne@example.com", now, now)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT`)).
		WithArgs("test.example.com", domain.RoleMember, "anne@example.com").
		WillReturnRows(rows)

	m, err := store.GetMember(context.Background(), "test.example.com", "anne@example.com")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, id, m.ID)
	assert.Equal(t, "anne@example.com", m.Email)
	assert.Equal(t, 3, m.BounceScore)
	require.NotNil(t, m.Preferences.DeliveryMode)
	assert.Equal(t, domain.DeliveryRegular, *m.Preferences.DeliveryMode)
	require.NotNil(t, m.Preferences.PreferredLanguage)
	assert.Equal(t, "fr", *m.Preferences.PreferredLanguage)
	assert.Nil(t, m.Preferences.AcknowledgePosts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteMissingRow(t *testing.T) {
	store, mock, cleanup := setupStoreTest(t)
	defer cleanup()

	id := uuid.New()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM memberships WHERE id = $1`)).
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Delete(context.Background(), id)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAddressRequiresAddressSubscription(t *testing.T) {
	store, mock, cleanup := setupStoreTest(t)
	defer cleanup()

	id := uuid.New()
	newAddr := uuid.New()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE memberships SET address_id = $1`)).
		WithArgs(newAddr, id).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdateAddress(context.Background(), id, newAddr)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDisableDeliveryResetsWarningCadence(t *testing.T) {
	store, mock, cleanup := setupStoreTest(t)
	defer cleanup()

	id := uuid.New()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE memberships SET delivery_status = $1, total_warnings_sent = 0`)).
		WithArgs(domain.DeliveryByBounces, EpochMin, id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.DisableDelivery(context.Background(), id))
	require.NoError(t, mock.ExpectationsWereMet())
}
