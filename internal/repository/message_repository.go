package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"scope-chat/internal/domain/chat"
	scope_errors "scope-chat/pkg/errors"
)

type messageRepository struct {
	db DBTX
}

func NewMessageRepository(db DBTX) MessageRepository {
	return &messageRepository{db: db}
}

const messageColumns = `m.id, m.chat_id, m.sender_id, m.content, m.message_type, m.reply_to_id, m.task_id,
        m.metadata, m.mentions, m.read_by, m.edited_at, m.deleted_at, m.created_at, m.updated_at`

func scanMessage(row rowScanner) (chat.Message, error) {
	var (
		m         chat.Message
		replyToID sql.NullInt64
		taskID    sql.NullInt64
		metadata  sql.NullString
		editedAt  sql.NullTime
		deletedAt sql.NullTime
	)
	err := row.Scan(
		&m.ID,
		&m.ChatID,
		&m.SenderID,
		&m.Content,
		&m.MessageType,
		&replyToID,
		&taskID,
		&metadata,
		int64Array(&m.Mentions),
		int64Array(&m.ReadBy),
		&editedAt,
		&deletedAt,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return chat.Message{}, err
	}
	if replyToID.Valid {
		m.ReplyToID = &replyToID.Int64
	}
	if taskID.Valid {
		m.TaskID = &taskID.Int64
	}
	if metadata.Valid {
		m.Metadata = &metadata.String
	}
	if editedAt.Valid {
		m.EditedAt = &editedAt.Time
	}
	if deletedAt.Valid {
		m.DeletedAt = &deletedAt.Time
	}
	if m.Mentions == nil {
		m.Mentions = []int64{}
	}
	if m.ReadBy == nil {
		m.ReadBy = []int64{}
	}
	return m, nil
}

func collectMessages(rows *sql.Rows) ([]chat.Message, error) {
	defer rows.Close()
	messages := []chat.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (r *messageRepository) Create(ctx context.Context, m *chat.Message) error {
	now := time.Now().UTC()
	m.CreatedAt, m.UpdatedAt = now, now
	if m.Mentions == nil {
		m.Mentions = []int64{}
	}
	if m.ReadBy == nil {
		m.ReadBy = []int64{}
	}
	err := r.db.QueryRowContext(ctx, `
        INSERT INTO chat_messages (chat_id, sender_id, content, message_type, reply_to_id, metadata, mentions, read_by, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        RETURNING id
    `,
		m.ChatID,
		m.SenderID,
		m.Content,
		m.MessageType,
		m.ReplyToID,
		m.Metadata,
		m.Mentions,
		m.ReadBy,
		m.CreatedAt,
		m.UpdatedAt,
	).Scan(&m.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return scope_errors.ErrNotFound
		}
		return err
	}
	return nil
}

func (r *messageRepository) GetByID(ctx context.Context, id int64) (chat.Message, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM chat_messages m WHERE m.id = $1`, id)
	m, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return chat.Message{}, scope_errors.ErrNotFound
		}
		return chat.Message{}, err
	}
	return m, nil
}

func (r *messageRepository) GetChatMessages(ctx context.Context, chatID, before int64, limit int) ([]chat.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT * FROM (
            SELECT `+messageColumns+`
            FROM chat_messages m
            WHERE m.chat_id = $1 AND m.deleted_at IS NULL AND ($2::bigint = 0 OR m.id < $2::bigint)
            ORDER BY m.id DESC
            LIMIT $3
        ) page
        ORDER BY page.id ASC
    `, chatID, before, limit)
	if err != nil {
		return nil, err
	}
	return collectMessages(rows)
}

func (r *messageRepository) UpdateContent(ctx context.Context, id int64, content string, editedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
        UPDATE chat_messages SET content = $2, edited_at = $3, updated_at = $3
        WHERE id = $1 AND deleted_at IS NULL
    `, id, content, editedAt)
	if err != nil {
		return err
	}
	ok, err := affectedOne(res)
	if err != nil {
		return err
	}
	if !ok {
		return scope_errors.ErrNotFound
	}
	return nil
}

func (r *messageRepository) SoftDelete(ctx context.Context, id int64, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
        UPDATE chat_messages SET deleted_at = $2, updated_at = $2
        WHERE id = $1 AND deleted_at IS NULL
    `, id, at)
	if err != nil {
		return err
	}
	ok, err := affectedOne(res)
	if err != nil {
		return err
	}
	if !ok {
		return scope_errors.ErrNotFound
	}
	return nil
}

func (r *messageRepository) LinkTask(ctx context.Context, id, taskID int64) error {
	res, err := r.db.ExecContext(ctx, `
        UPDATE chat_messages SET task_id = $2, updated_at = NOW()
        WHERE id = $1 AND task_id IS NULL
    `, id, taskID)
	if err != nil {
		return err
	}
	ok, err := affectedOne(res)
	if err != nil {
		return err
	}
	if !ok {
		return scope_errors.ErrAlreadyLinked
	}
	return nil
}

func (r *messageRepository) AddReader(ctx context.Context, id, userID int64) error {
	_, err := r.db.ExecContext(ctx, `
        UPDATE chat_messages SET read_by = array_append(read_by, $2::bigint)
        WHERE id = $1 AND NOT ($2::bigint = ANY(read_by))
    `, id, userID)
	return err
}

func (r *messageRepository) GetUserMentions(ctx context.Context, userID int64, limit int) ([]chat.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT `+messageColumns+`
        FROM chat_messages m
        JOIN chat_members cm ON cm.chat_id = m.chat_id AND cm.user_id = $1
        WHERE $1::bigint = ANY(m.mentions) AND m.deleted_at IS NULL
        ORDER BY m.id DESC
        LIMIT $2
    `, userID, limit)
	if err != nil {
		return nil, err
	}
	return collectMessages(rows)
}

func (r *messageRepository) CountUnread(ctx context.Context, chatID, userID int64, since time.Time) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `
        SELECT COUNT(*) FROM chat_messages
        WHERE chat_id = $1 AND sender_id <> $2 AND deleted_at IS NULL AND created_at > $3
    `, chatID, userID, since).Scan(&count)
	return count, err
}

func (r *messageRepository) AddReaction(ctx context.Context, rc *chat.Reaction) (bool, error) {
	if rc.CreatedAt.IsZero() {
		rc.CreatedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, `
        INSERT INTO message_reactions (message_id, user_id, emoji, created_at)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (message_id, user_id, emoji) DO NOTHING
    `, rc.MessageID, rc.UserID, rc.Emoji, rc.CreatedAt)
	if err != nil {
		return false, err
	}
	return affectedOne(res)
}

func (r *messageRepository) RemoveReaction(ctx context.Context, messageID, userID int64, emoji string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
        DELETE FROM message_reactions WHERE message_id = $1 AND user_id = $2 AND emoji = $3
    `, messageID, userID, emoji)
	if err != nil {
		return false, err
	}
	return affectedOne(res)
}

func (r *messageRepository) GetMessageReactions(ctx context.Context, messageID int64) ([]chat.Reaction, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT message_id, user_id, emoji, created_at
        FROM message_reactions WHERE message_id = $1
        ORDER BY created_at ASC, user_id ASC
    `, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reactions := []chat.Reaction{}
	for rows.Next() {
		var rc chat.Reaction
		if err := rows.Scan(&rc.MessageID, &rc.UserID, &rc.Emoji, &rc.CreatedAt); err != nil {
			return nil, err
		}
		reactions = append(reactions, rc)
	}
	return reactions, rows.Err()
}
