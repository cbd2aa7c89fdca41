package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/quantumweb/plubot/internal/models"
)

// sqlStore holds the queries shared by the SQLite and Postgres backends.
// Queries use ? placeholders and are rebound for Postgres.
type sqlStore struct {
	db       *sql.DB
	name     string // log prefix, e.g. "SQLiteStore"
	postgres bool
	now      func() time.Time
}

func newSQLStore(db *sql.DB, name string, postgres bool) *sqlStore {
	return &sqlStore{
		db:       db,
		name:     name,
		postgres: postgres,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *sqlStore) q(query string) string {
	if s.postgres {
		return rebindPostgres(query)
	}
	return query
}

// Ping checks that the database is reachable.
func (s *sqlStore) Ping() error {
	return s.db.Ping()
}

func (s *sqlStore) Stats() sql.DBStats {
	return s.db.Stats()
}

// Close closes the database connection.
func (s *sqlStore) Close() error {
	slog.Debug(s.name + ".Close invoked")
	if err := s.db.Close(); err != nil {
		slog.Error(s.name+".Close failed", "error", err)
		return err
	}
	return nil
}

// ---- Chatbots ----

func (s *sqlStore) SaveChatbot(bot models.Chatbot) error {
	now := s.now()
	if bot.ID == "" {
		bot.ID = uuid.NewString()
	}
	if bot.CreatedAt.IsZero() {
		bot.CreatedAt = now
	}
	bot.UpdatedAt = now
	_, err := s.db.Exec(s.q(`INSERT INTO chatbots (`+chatbotColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET owner_user_id = excluded.owner_user_id, name = excluded.name,
			tone = excluded.tone, purpose = excluded.purpose, initial_message = excluded.initial_message,
			channel_address = excluded.channel_address, pending_address = excluded.pending_address,
			business_info = excluded.business_info, document_text = excluded.document_text,
			image_url = excluded.image_url, updated_at = excluded.updated_at`),
		bot.ID, bot.OwnerUserID, bot.Name, bot.Tone, bot.Purpose, nilIfEmpty(bot.InitialMessage),
		nilIfEmpty(bot.ChannelAddress), nilIfEmpty(bot.PendingAddress), nilIfEmpty(bot.BusinessInfo),
		nilIfEmpty(bot.DocumentText), nilIfEmpty(bot.ImageURL), bot.CreatedAt, bot.UpdatedAt)
	if err != nil {
		slog.Error(s.name+" SaveChatbot failed", "error", err, "chatbotID", bot.ID)
		return fmt.Errorf("failed to save chatbot %s: %w", bot.ID, err)
	}
	slog.Debug(s.name+" SaveChatbot succeeded", "chatbotID", bot.ID)
	return nil
}

func (s *sqlStore) getChatbotWhere(column, value string) (*models.Chatbot, error) {
	row := s.db.QueryRow(s.q(`SELECT `+chatbotColumns+` FROM chatbots WHERE `+column+` = ?`), value)
	bot, err := scanChatbot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error(s.name+" chatbot lookup failed", "error", err, "column", column)
		return nil, fmt.Errorf("failed to get chatbot by %s: %w", column, err)
	}
	return bot, nil
}

// GetChatbot returns the chatbot with id, or ErrNotFound.
func (s *sqlStore) GetChatbot(id string) (*models.Chatbot, error) {
	bot, err := s.getChatbotWhere("id", id)
	if err != nil {
		return nil, err
	}
	if bot == nil {
		return nil, ErrNotFound
	}
	return bot, nil
}

func (s *sqlStore) GetChatbotByAddress(address string) (*models.Chatbot, error) {
	if address == "" {
		return nil, nil
	}
	return s.getChatbotWhere("channel_address", address)
}

func (s *sqlStore) GetChatbotByPendingAddress(address string) (*models.Chatbot, error) {
	if address == "" {
		return nil, nil
	}
	return s.getChatbotWhere("pending_address", address)
}

func (s *sqlStore) BindChannelAddress(id, address string) error {
	res, err := s.db.Exec(s.q(`UPDATE chatbots SET channel_address = ?, pending_address = NULL, updated_at = ? WHERE id = ?`),
		address, s.now(), id)
	if err != nil {
		slog.Error(s.name+" BindChannelAddress failed", "error", err, "chatbotID", id)
		return fmt.Errorf("failed to bind channel address for chatbot %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	slog.Info(s.name+" BindChannelAddress succeeded", "chatbotID", id, "address", address)
	return nil
}

func (s *sqlStore) DeleteChatbot(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM flows WHERE chatbot_id = ?`,
		`DELETE FROM conversations WHERE chatbot_id = ?`,
		`DELETE FROM chatbots WHERE id = ?`,
	} {
		if _, err := tx.Exec(s.q(stmt), id); err != nil {
			slog.Error(s.name+" DeleteChatbot failed", "error", err, "chatbotID", id)
			return fmt.Errorf("failed to delete chatbot %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chatbot delete: %w", err)
	}
	slog.Info(s.name+" DeleteChatbot succeeded", "chatbotID", id)
	return nil
}

// ---- Flows ----

func (s *sqlStore) ListFlows(chatbotID string) ([]models.Flow, error) {
	rows, err := s.db.Query(s.q(`SELECT chatbot_id, position, user_message, bot_response, intent, match_condition
		FROM flows WHERE chatbot_id = ? ORDER BY position ASC`), chatbotID)
	if err != nil {
		slog.Error(s.name+" ListFlows query failed", "error", err, "chatbotID", chatbotID)
		return nil, fmt.Errorf("failed to query flows: %w", err)
	}
	defer rows.Close()

	var flows []models.Flow
	for rows.Next() {
		var f models.Flow
		var intent, condition sql.NullString
		if err := rows.Scan(&f.ChatbotID, &f.Position, &f.Trigger, &f.Response, &intent, &condition); err != nil {
			slog.Error(s.name+" ListFlows scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan flow row: %w", err)
		}
		f.Intent = intent.String
		f.Condition = condition.String
		flows = append(flows, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate flow rows: %w", err)
	}
	slog.Debug(s.name+" ListFlows succeeded", "chatbotID", chatbotID, "count", len(flows))
	return flows, nil
}

func (s *sqlStore) ReplaceFlows(chatbotID string, flows []models.Flow) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(s.q(`DELETE FROM flows WHERE chatbot_id = ?`), chatbotID); err != nil {
		slog.Error(s.name+" ReplaceFlows delete failed", "error", err, "chatbotID", chatbotID)
		return fmt.Errorf("failed to delete flows: %w", err)
	}
	for _, f := range flows {
		_, err := tx.Exec(s.q(`INSERT INTO flows (chatbot_id, position, user_message, bot_response, intent, match_condition)
			VALUES (?, ?, ?, ?, ?, ?)`),
			chatbotID, f.Position, f.Trigger, f.Response, nilIfEmpty(f.Intent), nilIfEmpty(f.Condition))
		if err != nil {
			slog.Error(s.name+" ReplaceFlows insert failed", "error", err, "chatbotID", chatbotID, "position", f.Position)
			return fmt.Errorf("failed to insert flow at position %d: %w", f.Position, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit flows: %w", err)
	}
	slog.Info(s.name+" ReplaceFlows succeeded", "chatbotID", chatbotID, "count", len(flows))
	return nil
}

// ---- Conversations ----

func (s *sqlStore) AppendTurns(turns ...models.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, t := range turns {
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = s.now()
		}
		_, err := tx.Exec(s.q(`INSERT INTO conversations (id, chatbot_id, sender_id, role, message, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`), t.ID, t.ChatbotID, t.SenderID, string(t.Role), t.Message, t.CreatedAt)
		if err != nil {
			slog.Error(s.name+" AppendTurns failed", "error", err, "chatbotID", t.ChatbotID, "senderID", t.SenderID)
			return fmt.Errorf("failed to append turn: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit turns: %w", err)
	}
	slog.Debug(s.name+" AppendTurns succeeded", "count", len(turns))
	return nil
}

func (s *sqlStore) RecentTurns(chatbotID, senderID string, limit int) ([]models.Turn, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.Query(s.q(`SELECT id, chatbot_id, sender_id, role, message, created_at FROM conversations
		WHERE chatbot_id = ? AND sender_id = ? ORDER BY seq DESC LIMIT ?`), chatbotID, senderID, limit)
	if err != nil {
		slog.Error(s.name+" RecentTurns query failed", "error", err, "chatbotID", chatbotID)
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var turns []models.Turn
	for rows.Next() {
		var t models.Turn
		var role string
		if err := rows.Scan(&t.ID, &t.ChatbotID, &t.SenderID, &role, &t.Message, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn row: %w", err)
		}
		t.Role = models.Role(role)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate turn rows: %w", err)
	}
	// newest first from the query; callers want chronological order
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// ---- Quotas ----

func (s *sqlStore) GetQuota(userID, month string) (*models.MessageQuota, error) {
	var q models.MessageQuota
	var plan string
	err := s.db.QueryRow(s.q(`SELECT user_id, month, plan, messages_used, updated_at FROM message_quotas
		WHERE user_id = ? AND month = ?`), userID, month).Scan(&q.UserID, &q.Month, &plan, &q.MessagesUsed, &q.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error(s.name+" GetQuota failed", "error", err, "userID", userID, "month", month)
		return nil, fmt.Errorf("failed to get quota for %s: %w", userID, err)
	}
	q.Plan = models.Plan(plan)
	return &q, nil
}

// ReserveMessage is a single conditional upsert, so concurrent callers
// cannot push a free plan past its limit. A new month inherits the plan of
// the user's most recent row.
func (s *sqlStore) ReserveMessage(userID, month string) (bool, error) {
	now := s.now()
	res, err := s.db.Exec(s.q(`INSERT INTO message_quotas (user_id, month, plan, messages_used, updated_at)
		VALUES (?, ?, COALESCE((SELECT plan FROM message_quotas WHERE user_id = ? ORDER BY month DESC LIMIT 1), 'free'), 1, ?)
		ON CONFLICT (user_id, month) DO UPDATE SET messages_used = message_quotas.messages_used + 1, updated_at = excluded.updated_at
		WHERE message_quotas.plan = 'premium' OR message_quotas.messages_used < ?`),
		userID, month, userID, now, models.FreePlanMonthlyLimit)
	if err != nil {
		slog.Error(s.name+" ReserveMessage failed", "error", err, "userID", userID, "month", month)
		return false, fmt.Errorf("failed to reserve message for %s: %w", userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("quota rows affected check failed: %w", err)
	}
	slog.Debug(s.name+" ReserveMessage", "userID", userID, "month", month, "reserved", n > 0)
	return n > 0, nil
}

func (s *sqlStore) LatestPlan(userID string) (models.Plan, error) {
	var plan string
	err := s.db.QueryRow(s.q(`SELECT plan FROM message_quotas WHERE user_id = ? ORDER BY month DESC LIMIT 1`), userID).Scan(&plan)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PlanFree, nil
	}
	if err != nil {
		slog.Error(s.name+" LatestPlan failed", "error", err, "userID", userID)
		return "", fmt.Errorf("failed to get latest plan for %s: %w", userID, err)
	}
	return models.Plan(plan), nil
}

func (s *sqlStore) ReleaseMessage(userID, month string) error {
	_, err := s.db.Exec(s.q(`UPDATE message_quotas SET messages_used = messages_used - 1, updated_at = ?
		WHERE user_id = ? AND month = ? AND messages_used > 0`), s.now(), userID, month)
	if err != nil {
		slog.Error(s.name+" ReleaseMessage failed", "error", err, "userID", userID, "month", month)
		return fmt.Errorf("failed to release message for %s: %w", userID, err)
	}
	return nil
}

func (s *sqlStore) SetPlan(userID, month string, plan models.Plan) error {
	_, err := s.db.Exec(s.q(`INSERT INTO message_quotas (user_id, month, plan, messages_used, updated_at)
		VALUES (?, ?, ?, 0, ?)
		ON CONFLICT (user_id, month) DO UPDATE SET plan = excluded.plan, updated_at = excluded.updated_at`),
		userID, month, string(plan), s.now())
	if err != nil {
		slog.Error(s.name+" SetPlan failed", "error", err, "userID", userID, "plan", plan)
		return fmt.Errorf("failed to set plan for %s: %w", userID, err)
	}
	return nil
}

// ---- Intake mirror ----

func (s *sqlStore) SaveIntakeState(state models.IntakeState) error {
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = s.now()
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal intake state: %w", err)
	}
	_, err = s.db.Exec(s.q(`INSERT INTO intake_states (sender_id, step, state_json, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (sender_id) DO UPDATE SET step = excluded.step, state_json = excluded.state_json, updated_at = excluded.updated_at`),
		state.SenderID, string(state.Step), string(data), state.UpdatedAt)
	if err != nil {
		slog.Error(s.name+" SaveIntakeState failed", "error", err, "senderID", state.SenderID)
		return fmt.Errorf("failed to save intake state: %w", err)
	}
	slog.Debug(s.name+" SaveIntakeState succeeded", "senderID", state.SenderID, "step", state.Step)
	return nil
}

func (s *sqlStore) GetIntakeState(senderID string) (*models.IntakeState, error) {
	var raw string
	err := s.db.QueryRow(s.q(`SELECT state_json FROM intake_states WHERE sender_id = ?`), senderID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error(s.name+" GetIntakeState failed", "error", err, "senderID", senderID)
		return nil, fmt.Errorf("failed to get intake state: %w", err)
	}
	var st models.IntakeState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, fmt.Errorf("failed to unmarshal intake state: %w", err)
	}
	st.Normalize()
	return &st, nil
}

func (s *sqlStore) DeleteIntakeState(senderID string) error {
	if _, err := s.db.Exec(s.q(`DELETE FROM intake_states WHERE sender_id = ?`), senderID); err != nil {
		slog.Error(s.name+" DeleteIntakeState failed", "error", err, "senderID", senderID)
		return fmt.Errorf("failed to delete intake state: %w", err)
	}
	return nil
}

func (s *sqlStore) PruneIntakeStates(cutoff time.Time) (int, error) {
	res, err := s.db.Exec(s.q(`DELETE FROM intake_states WHERE updated_at < ?`), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune intake states: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// ---- Leads and contact ----

func (s *sqlStore) SaveLead(lead models.Lead) error {
	if lead.ID == "" {
		lead.ID = uuid.NewString()
	}
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = s.now()
	}
	needs, err := marshalJSONColumn(lead.Needs)
	if err != nil {
		return fmt.Errorf("failed to marshal lead needs: %w", err)
	}
	specifics, err := marshalJSONColumn(lead.Specifics)
	if err != nil {
		return fmt.Errorf("failed to marshal lead specifics: %w", err)
	}
	_, err = s.db.Exec(s.q(`INSERT INTO leads (id, sender_id, business_type, needs_json, specifics_json, contacted, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		lead.ID, lead.SenderID, lead.BusinessType, needs, specifics, lead.Contacted, lead.CreatedAt)
	if err != nil {
		slog.Error(s.name+" SaveLead failed", "error", err, "senderID", lead.SenderID)
		return fmt.Errorf("failed to save lead: %w", err)
	}
	slog.Info(s.name+" SaveLead succeeded", "leadID", lead.ID, "senderID", lead.SenderID)
	return nil
}

func (s *sqlStore) SaveContactMessage(msg models.ContactMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	_, err := s.db.Exec(s.q(`INSERT INTO contact_messages (id, name, email, message, created_at) VALUES (?, ?, ?, ?, ?)`),
		msg.ID, msg.Name, msg.Email, msg.Message, msg.CreatedAt)
	if err != nil {
		slog.Error(s.name+" SaveContactMessage failed", "error", err)
		return fmt.Errorf("failed to save contact message: %w", err)
	}
	return nil
}

// ---- Inbound dedup ----

func (s *sqlStore) IsDuplicate(messageID string) (bool, error) {
	var id string
	err := s.db.QueryRow(s.q(`SELECT message_id FROM inbound_dedup WHERE message_id = ?`), messageID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dedup check failed: %w", err)
	}
	return true, nil
}

func (s *sqlStore) RecordInbound(messageID, senderID string) (bool, error) {
	result, err := s.db.Exec(s.q(`INSERT INTO inbound_dedup (message_id, sender_id, received_at) VALUES (?, ?, ?)
		ON CONFLICT (message_id) DO NOTHING`), messageID, senderID, s.now())
	if err != nil {
		return false, fmt.Errorf("record inbound failed: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("dedup rows affected check failed: %w", err)
	}
	return n > 0, nil
}

func (s *sqlStore) MarkProcessed(messageID string) error {
	_, err := s.db.Exec(s.q(`UPDATE inbound_dedup SET processed_at = ? WHERE message_id = ?`), s.now(), messageID)
	if err != nil {
		return fmt.Errorf("mark processed failed: %w", err)
	}
	return nil
}

func (s *sqlStore) PruneInbound(cutoff time.Time) (int, error) {
	res, err := s.db.Exec(s.q(`DELETE FROM inbound_dedup WHERE received_at < ?`), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune inbound dedup failed: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
