package store

import (
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/quantumweb/plubot/internal/models"
)

func newMockStore(t *testing.T, postgres bool) (*sqlStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	s := newSQLStore(db, "MockStore", postgres)
	s.now = func() time.Time { return time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC) }
	return s, mock
}

func TestReserveMessage_RefusedWhenNoRowAffected(t *testing.T) {
	s, mock := newMockStore(t, true)
	mock.ExpectExec(`INSERT INTO message_quotas`).
		WithArgs("user-1", "2026-10", "user-1", sqlmock.AnyArg(), 100).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := s.ReserveMessage("user-1", "2026-10")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected reservation to be refused")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestReserveMessage_PropagatesDatabaseError(t *testing.T) {
	s, mock := newMockStore(t, false)
	boom := errors.New("connection reset")
	mock.ExpectExec(`INSERT INTO message_quotas`).WillReturnError(boom)

	if _, err := s.ReserveMessage("user-1", "2026-10"); !errors.Is(err, boom) {
		t.Errorf("expected wrapped driver error, got %v", err)
	}
}

func TestGetChatbotByAddress_NoRowsIsNil(t *testing.T) {
	s, mock := newMockStore(t, true)
	mock.ExpectQuery(`SELECT .* FROM chatbots WHERE channel_address = \$1`).
		WithArgs("+5491100000001").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	bot, err := s.GetChatbotByAddress("+5491100000001")
	if err != nil || bot != nil {
		t.Errorf("expected nil, nil; got %+v, %v", bot, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestReplaceFlows_RollsBackOnInsertFailure(t *testing.T) {
	s, mock := newMockStore(t, false)
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM flows`).WithArgs("bot-1").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`INSERT INTO flows`).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := s.ReplaceFlows("bot-1", []models.Flow{{ChatbotID: "bot-1", Position: 0, Trigger: "a", Response: "b"}})
	if err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestAppendTurns_CommitFailure(t *testing.T) {
	s, mock := newMockStore(t, true)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO conversations`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))

	err := s.AppendTurns(models.Turn{ChatbotID: "bot-1", SenderID: "s", Role: models.RoleUser, Message: "hola"})
	if err == nil {
		t.Fatal("expected commit error")
	}
}
