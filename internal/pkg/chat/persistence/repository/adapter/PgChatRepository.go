package adapter

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	chat "chatgate/internal/pkg/chat/application/domain"
	repository "chatgate/internal/pkg/chat/persistence/repository/port"
)

// PgChatRepository implements the chat repository on Postgres via pgx.
//
// Monotonic watermark advances and the assigned-operator compare-and-set are
// expressed as guarded single-statement UPDATEs, so per-row serialization is
// delegated to the database and unrelated conversations never contend.
type PgChatRepository struct {
	pool *pgxpool.Pool
}

func NewPgChatRepository(pool *pgxpool.Pool) *PgChatRepository {
	return &PgChatRepository{pool: pool}
}

var _ repository.ChatRepository = (*PgChatRepository)(nil)
var _ repository.AssignmentStateStore = (*PgChatRepository)(nil)

// ===================== Conversations =====================

func (r *PgChatRepository) CreateConversation(ctx context.Context, c chat.Conversation, members []chat.Member) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	status := c.Status
	if status == "" {
		status = chat.StatusOpen
	}
	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO chat_conversation (kind, title, created_by, status, assigned_to, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING id
	`, c.Kind, c.Title, c.CreatedBy, status, c.AssignedTo).Scan(&id)
	if err != nil {
		return 0, err
	}
	for _, m := range members {
		if _, err := tx.Exec(ctx, `
			INSERT INTO chat_member (conversation_id, user_id, role, joined_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (conversation_id, user_id) DO NOTHING
		`, id, m.UserID, m.Role); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return id, nil
}

const conversationCols = `id, kind, title, created_by, status, assigned_to, created_at`

func scanConversation(row pgx.Row) (*chat.Conversation, error) {
	var c chat.Conversation
	err := row.Scan(&c.ID, &c.Kind, &c.Title, &c.CreatedBy, &c.Status, &c.AssignedTo, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *PgChatRepository) GetConversation(ctx context.Context, id int64) (*chat.Conversation, error) {
	return scanConversation(r.pool.QueryRow(ctx,
		`SELECT `+conversationCols+` FROM chat_conversation WHERE id = $1`, id))
}

func (r *PgChatRepository) FindDirectBetween(ctx context.Context, userA, userB int64) (*chat.Conversation, error) {
	return scanConversation(r.pool.QueryRow(ctx, `
		SELECT `+conversationCols+` FROM chat_conversation c
		WHERE c.kind = 'direct'
		  AND EXISTS (SELECT 1 FROM chat_member WHERE conversation_id = c.id AND user_id = $1)
		  AND EXISTS (SELECT 1 FROM chat_member WHERE conversation_id = c.id AND user_id = $2)
		  AND (SELECT count(*) FROM chat_member WHERE conversation_id = c.id) = 2
		LIMIT 1
	`, userA, userB))
}

func (r *PgChatRepository) FindSupportFor(ctx context.Context, userID int64) (*chat.Conversation, error) {
	return scanConversation(r.pool.QueryRow(ctx, `
		SELECT `+conversationCols+` FROM chat_conversation c
		WHERE c.kind = 'support'
		  AND EXISTS (SELECT 1 FROM chat_member WHERE conversation_id = c.id AND user_id = $1)
		  AND (SELECT count(*) FROM chat_member WHERE conversation_id = c.id) = 2
		LIMIT 1
	`, userID))
}

func (r *PgChatRepository) ListConversationsFor(ctx context.Context, userID int64, query string) ([]chat.ConversationSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+conversationCols+`,
		       (SELECT max(id) FROM chat_message WHERE conversation_id = c.id) AS last_id,
		       (SELECT count(*) FROM chat_message msg
		         WHERE msg.conversation_id = c.id
		           AND msg.sender_id <> $1
		           AND msg.id > COALESCE(m.last_read_message_id, 0)) AS unread
		FROM chat_conversation c
		JOIN chat_member m ON m.conversation_id = c.id AND m.user_id = $1
		WHERE ($2 = '' OR c.title ILIKE '%' || $2 || '%')
		ORDER BY GREATEST(COALESCE((SELECT max(msg.created_at) FROM chat_message msg WHERE msg.conversation_id = c.id), c.created_at), c.created_at) DESC
	`, userID, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collectSummaries(ctx, rows)
}

func (r *PgChatRepository) ListSupportQueue(ctx context.Context, f repository.SupportQueueFilter) ([]chat.ConversationSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+conversationCols+`,
		       (SELECT max(id) FROM chat_message WHERE conversation_id = c.id) AS last_id,
		       0 AS unread
		FROM chat_conversation c
		WHERE c.kind = 'support'
		  AND ($1 = '' OR c.status = $1)
		  AND ($2 <> 'me' OR c.assigned_to = $3)
		  AND ($2 <> 'unassigned' OR c.assigned_to IS NULL)
		ORDER BY c.status, c.created_at DESC
	`, string(f.Status), f.Assigned, f.ViewerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collectSummaries(ctx, rows)
}

func (r *PgChatRepository) collectSummaries(ctx context.Context, rows pgx.Rows) ([]chat.ConversationSummary, error) {
	var out []chat.ConversationSummary
	var lastIDs []int64
	for rows.Next() {
		var s chat.ConversationSummary
		var lastID *int64
		if err := rows.Scan(&s.ID, &s.Kind, &s.Title, &s.CreatedBy, &s.Status, &s.AssignedTo, &s.CreatedAt, &lastID, &s.UnreadCount); err != nil {
			return nil, err
		}
		if lastID != nil {
			lastIDs = append(lastIDs, *lastID)
			// stash the id; resolved to a full row below
			s.LastMessage = &chat.Message{ID: *lastID}
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(lastIDs) == 0 {
		return out, nil
	}
	previews, err := r.messagesByIDs(ctx, lastIDs)
	if err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].LastMessage != nil {
			if m, ok := previews[out[i].LastMessage.ID]; ok {
				mc := m
				out[i].LastMessage = &mc
			}
		}
	}
	return out, nil
}

func (r *PgChatRepository) messagesByIDs(ctx context.Context, ids []int64) (map[int64]chat.Message, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+messageCols+` FROM chat_message WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]chat.Message, len(ids))
	for rows.Next() {
		m, err := scanMessageRow(rows)
		if err != nil {
			return nil, err
		}
		out[m.ID] = m
	}
	return out, rows.Err()
}

func (r *PgChatRepository) ListOpenUnassignedSupport(ctx context.Context, limit int) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM chat_conversation
		WHERE kind = 'support' AND status = 'open' AND assigned_to IS NULL
		ORDER BY created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PgChatRepository) AssignConversation(ctx context.Context, conversationID, operatorID int64, onlyIfUnassigned bool) (bool, error) {
	ct, err := r.pool.Exec(ctx, `
		UPDATE chat_conversation
		SET assigned_to = $2
		WHERE id = $1 AND kind = 'support' AND status = 'open'
		  AND (NOT $3 OR assigned_to IS NULL)
	`, conversationID, operatorID, onlyIfUnassigned)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (r *PgChatRepository) CloseConversation(ctx context.Context, conversationID int64) error {
	ct, err := r.pool.Exec(ctx, `
		UPDATE chat_conversation SET status = 'closed'
		WHERE id = $1 AND kind = 'support'
	`, conversationID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return chat.ErrNotFound
	}
	return nil
}

// ===================== Members =====================

func (r *PgChatRepository) AddMember(ctx context.Context, m chat.Member) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO chat_member (conversation_id, user_id, role, joined_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (conversation_id, user_id) DO NOTHING
	`, m.ConversationID, m.UserID, m.Role)
	return err
}

func (r *PgChatRepository) IsMember(ctx context.Context, conversationID, userID int64) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM chat_member WHERE conversation_id = $1 AND user_id = $2)
	`, conversationID, userID).Scan(&ok)
	return ok, err
}

const memberCols = `conversation_id, user_id, role, last_read_message_id, last_delivered_message_id, is_muted, joined_at`

func (r *PgChatRepository) GetMember(ctx context.Context, conversationID, userID int64) (*chat.Member, error) {
	var m chat.Member
	err := r.pool.QueryRow(ctx,
		`SELECT `+memberCols+` FROM chat_member WHERE conversation_id = $1 AND user_id = $2`,
		conversationID, userID,
	).Scan(&m.ConversationID, &m.UserID, &m.Role, &m.LastReadMsg, &m.LastDeliveredMsg, &m.IsMuted, &m.JoinedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *PgChatRepository) ListMembers(ctx context.Context, conversationID int64) ([]chat.Member, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+memberCols+` FROM chat_member WHERE conversation_id = $1 ORDER BY user_id`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var members []chat.Member
	for rows.Next() {
		var m chat.Member
		if err := rows.Scan(&m.ConversationID, &m.UserID, &m.Role, &m.LastReadMsg, &m.LastDeliveredMsg, &m.IsMuted, &m.JoinedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r *PgChatRepository) MemberUserIDs(ctx context.Context, conversationID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id FROM chat_member WHERE conversation_id = $1 ORDER BY user_id`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ===================== Messages =====================

const messageCols = `id, conversation_id, sender_id, attachment_id, text, is_system, is_deleted, deleted_at, deleted_by, delete_reason, created_at`

func scanMessageRow(rows pgx.Rows) (chat.Message, error) {
	var m chat.Message
	err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.AttachmentID, &m.Text,
		&m.IsSystem, &m.IsDeleted, &m.DeletedAt, &m.DeletedBy, &m.DeleteReason, &m.CreatedAt)
	return m, err
}

func (r *PgChatRepository) AppendMessage(ctx context.Context, m chat.Message) (chat.Message, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return chat.Message{}, err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO chat_message (conversation_id, sender_id, attachment_id, text, is_system, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING id, created_at
	`, m.ConversationID, m.SenderID, m.AttachmentID, m.Text, m.IsSystem).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return chat.Message{}, err
	}

	// The sender is always caught up on their own message.
	_, err = tx.Exec(ctx, `
		UPDATE chat_member SET last_read_message_id = $3
		WHERE conversation_id = $1 AND user_id = $2
		  AND (last_read_message_id IS NULL OR last_read_message_id < $3)
	`, m.ConversationID, m.SenderID, m.ID)
	if err != nil {
		return chat.Message{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return chat.Message{}, err
	}
	return m, nil
}

func (r *PgChatRepository) GetMessage(ctx context.Context, id int64) (*chat.Message, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+messageCols+` FROM chat_message WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	m, err := scanMessageRow(rows)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *PgChatRepository) ListMessagesBefore(ctx context.Context, conversationID int64, beforeID *int64, limit int) ([]chat.Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+messageCols+` FROM (
			SELECT `+messageCols+` FROM chat_message
			WHERE conversation_id = $1 AND ($2::bigint IS NULL OR id < $2)
			ORDER BY id DESC
			LIMIT $3
		) page ORDER BY id
	`, conversationID, beforeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var msgs []chat.Message
	for rows.Next() {
		m, err := scanMessageRow(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (r *PgChatRepository) SearchMessages(ctx context.Context, userID int64, conversationID *int64, query string, limit int) ([]chat.Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+messageCols+` FROM chat_message m
		WHERE NOT m.is_deleted
		  AND m.text ILIKE '%' || $2 || '%'
		  AND ($3::bigint IS NULL OR m.conversation_id = $3)
		  AND EXISTS (SELECT 1 FROM chat_member cm WHERE cm.conversation_id = m.conversation_id AND cm.user_id = $1)
		ORDER BY m.id DESC
		LIMIT $4
	`, userID, query, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var msgs []chat.Message
	for rows.Next() {
		m, err := scanMessageRow(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (r *PgChatRepository) SoftDeleteMessage(ctx context.Context, messageID, actorID int64, reason string) (bool, error) {
	ct, err := r.pool.Exec(ctx, `
		UPDATE chat_message
		SET is_deleted = TRUE, deleted_at = now(), deleted_by = $2, delete_reason = $3
		WHERE id = $1 AND NOT is_deleted
	`, messageID, actorID, reason)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

// ===================== Watermarks =====================

func (r *PgChatRepository) AdvanceRead(ctx context.Context, conversationID, userID, upToID int64) (int64, error) {
	return r.advance(ctx, "last_read_message_id", conversationID, userID, upToID)
}

func (r *PgChatRepository) AdvanceDelivered(ctx context.Context, conversationID, userID, upToID int64) (int64, error) {
	return r.advance(ctx, "last_delivered_message_id", conversationID, userID, upToID)
}

// advance moves the named watermark forward, never backward, and returns the
// effective value. Stale or duplicate updates are silent no-ops.
func (r *PgChatRepository) advance(ctx context.Context, column string, conversationID, userID, upToID int64) (int64, error) {
	var effective *int64
	err := r.pool.QueryRow(ctx, `
		UPDATE chat_member SET `+column+` = GREATEST(COALESCE(`+column+`, 0), $3)
		WHERE conversation_id = $1 AND user_id = $2
		RETURNING `+column+`
	`, conversationID, userID, upToID).Scan(&effective)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, chat.ErrNotMember
	}
	if err != nil {
		return 0, err
	}
	if effective == nil {
		return 0, nil
	}
	return *effective, nil
}

func (r *PgChatRepository) HasUnread(ctx context.Context, userID int64) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM chat_message msg
			JOIN chat_member m ON m.conversation_id = msg.conversation_id AND m.user_id = $1
			WHERE msg.sender_id <> $1
			  AND msg.id > COALESCE(m.last_read_message_id, 0)
		)
	`, userID).Scan(&ok)
	return ok, err
}

// ===================== Moderation & attachments =====================

func (r *PgChatRepository) CreateReport(ctx context.Context, rep chat.Report) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO chat_message_report (reporter_id, message_id, reason, created_at)
		VALUES ($1, $2, $3, now())
		RETURNING id
	`, rep.ReporterID, rep.MessageID, rep.Reason).Scan(&id)
	return id, err
}

func (r *PgChatRepository) CreateAttachment(ctx context.Context, a chat.Attachment) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO chat_attachment (uploader_id, storage_key, original_name, mime_type, size, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING id
	`, a.UploaderID, a.StorageKey, a.OriginalName, a.MimeType, a.Size).Scan(&id)
	return id, err
}

func (r *PgChatRepository) GetAttachment(ctx context.Context, id int64) (*chat.Attachment, error) {
	var a chat.Attachment
	err := r.pool.QueryRow(ctx, `
		SELECT id, uploader_id, storage_key, thumbnail_key, original_name, mime_type, size, created_at
		FROM chat_attachment WHERE id = $1
	`, id).Scan(&a.ID, &a.UploaderID, &a.StorageKey, &a.ThumbnailKey, &a.OriginalName, &a.MimeType, &a.Size, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *PgChatRepository) SetAttachmentThumbnail(ctx context.Context, id int64, thumbnailKey string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE chat_attachment SET thumbnail_key = $2 WHERE id = $1`, id, thumbnailKey)
	return err
}

// ===================== Assignment pointer =====================

func (r *PgChatRepository) LastOperator(ctx context.Context) (*int64, error) {
	var last *int64
	err := r.pool.QueryRow(ctx,
		`SELECT last_operator_id FROM chat_assignment_state WHERE id = 1`).Scan(&last)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return last, nil
}

func (r *PgChatRepository) SetLastOperator(ctx context.Context, operatorID int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO chat_assignment_state (id, last_operator_id, updated_at)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET last_operator_id = EXCLUDED.last_operator_id, updated_at = EXCLUDED.updated_at
	`, operatorID, time.Now().UTC())
	return err
}
