package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"scope-chat/internal/domain/chat"
	scope_errors "scope-chat/pkg/errors"
)

type chatRepository struct {
	db DBTX
}

func NewChatRepository(db DBTX) ChatRepository {
	return &chatRepository{db: db}
}

const chatColumns = `c.id, c.type, c.name, c.project_id, c.team_id, c.created_by, c.created_at, c.updated_at`

func scanChat(row rowScanner) (chat.Chat, error) {
	var (
		c         chat.Chat
		name      sql.NullString
		projectID sql.NullInt64
		teamID    sql.NullInt64
	)
	if err := row.Scan(&c.ID, &c.Type, &name, &projectID, &teamID, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return chat.Chat{}, err
	}
	if name.Valid {
		c.Name = &name.String
	}
	if projectID.Valid {
		c.ProjectID = &projectID.Int64
	}
	if teamID.Valid {
		c.TeamID = &teamID.Int64
	}
	return c, nil
}

func (r *chatRepository) Create(ctx context.Context, c *chat.Chat) error {
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	err := r.db.QueryRowContext(ctx, `
        INSERT INTO chats (type, name, project_id, team_id, created_by, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id
    `, c.Type, c.Name, c.ProjectID, c.TeamID, c.CreatedBy, c.CreatedAt, c.UpdatedAt).Scan(&c.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return scope_errors.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (r *chatRepository) GetByID(ctx context.Context, id int64) (chat.Chat, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+chatColumns+` FROM chats c WHERE c.id = $1`, id)
	c, err := scanChat(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return chat.Chat{}, scope_errors.ErrNotFound
		}
		return chat.Chat{}, err
	}
	return c, nil
}

func (r *chatRepository) Update(ctx context.Context, c chat.Chat) error {
	res, err := r.db.ExecContext(ctx, `
        UPDATE chats SET name = $2, project_id = $3, team_id = $4, updated_at = $5
        WHERE id = $1
    `, c.ID, c.Name, c.ProjectID, c.TeamID, c.UpdatedAt)
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

func (r *chatRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM chats WHERE id = $1`, id)
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

func (r *chatRepository) GetUserChats(ctx context.Context, userID int64) ([]chat.Chat, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT `+chatColumns+`
        FROM chats c
        JOIN chat_members m ON m.chat_id = c.id
        WHERE m.user_id = $1
        ORDER BY c.updated_at DESC, c.id DESC
    `, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chats := []chat.Chat{}
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

func (r *chatRepository) GetProjectChats(ctx context.Context, projectID, userID int64) ([]chat.Chat, error) {
	return r.scopedChats(ctx, "project_id", projectID, userID)
}

func (r *chatRepository) GetTeamChats(ctx context.Context, teamID, userID int64) ([]chat.Chat, error) {
	return r.scopedChats(ctx, "team_id", teamID, userID)
}

// scopedChats lists the chats of one project or team that userID belongs
// to, newest first. column is never user input.
func (r *chatRepository) scopedChats(ctx context.Context, column string, scopeID, userID int64) ([]chat.Chat, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT `+chatColumns+`
        FROM chats c
        JOIN chat_members m ON m.chat_id = c.id AND m.user_id = $2
        WHERE c.`+column+` = $1
        ORDER BY c.created_at DESC, c.id DESC
    `, scopeID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chats := []chat.Chat{}
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// Touch bumps updated_at so the chat sorts first in member chat lists.
func (r *chatRepository) Touch(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE chats SET updated_at = $2 WHERE id = $1 AND updated_at < $2`, id, at)
	return err
}

func (r *chatRepository) FindDirect(ctx context.Context, userID1, userID2 int64) (chat.Chat, error) {
	row := r.db.QueryRowContext(ctx, `
        SELECT `+chatColumns+`
        FROM chats c
        JOIN chat_members a ON a.chat_id = c.id AND a.user_id = $1
        JOIN chat_members b ON b.chat_id = c.id AND b.user_id = $2
        WHERE c.type = $3
        ORDER BY c.id ASC
        LIMIT 1
    `, userID1, userID2, chat.TypeDirect)
	c, err := scanChat(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return chat.Chat{}, scope_errors.ErrNotFound
		}
		return chat.Chat{}, err
	}
	return c, nil
}

func (r *chatRepository) LockDirectPair(ctx context.Context, userID1, userID2 int64) error {
	_, err := r.db.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, pairLockKey(userID1, userID2))
	return err
}

func (r *chatRepository) AddMember(ctx context.Context, m *chat.Member) error {
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO chat_members (chat_id, user_id, role, joined_at)
        VALUES ($1,$2,$3,$4)
    `, m.ChatID, m.UserID, m.Role, m.JoinedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return scope_errors.ErrAlreadyExists
		}
		if isForeignKeyViolation(err) {
			return scope_errors.ErrNotFound
		}
		return err
	}
	return nil
}

func (r *chatRepository) RemoveMember(ctx context.Context, chatID, userID int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM chat_members WHERE chat_id = $1 AND user_id = $2`, chatID, userID)
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

func scanMember(row rowScanner) (chat.Member, error) {
	var (
		m        chat.Member
		lastRead sql.NullTime
	)
	if err := row.Scan(&m.ChatID, &m.UserID, &m.Role, &m.JoinedAt, &lastRead); err != nil {
		return chat.Member{}, err
	}
	if lastRead.Valid {
		m.LastReadAt = &lastRead.Time
	}
	return m, nil
}

func (r *chatRepository) GetMember(ctx context.Context, chatID, userID int64) (chat.Member, error) {
	row := r.db.QueryRowContext(ctx, `
        SELECT chat_id, user_id, role, joined_at, last_read_at
        FROM chat_members WHERE chat_id = $1 AND user_id = $2
    `, chatID, userID)
	m, err := scanMember(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return chat.Member{}, scope_errors.ErrNotFound
		}
		return chat.Member{}, err
	}
	return m, nil
}

func (r *chatRepository) GetMembers(ctx context.Context, chatID int64) ([]chat.Member, error) {
	rows, err := r.db.QueryContext(ctx, `
        SELECT chat_id, user_id, role, joined_at, last_read_at
        FROM chat_members WHERE chat_id = $1
        ORDER BY joined_at ASC, user_id ASC
    `, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := []chat.Member{}
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r *chatRepository) IsMember(ctx context.Context, chatID, userID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
        SELECT EXISTS(SELECT 1 FROM chat_members WHERE chat_id = $1 AND user_id = $2)
    `, chatID, userID).Scan(&exists)
	return exists, err
}

func (r *chatRepository) UpdateLastReadAt(ctx context.Context, chatID, userID int64, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
        UPDATE chat_members SET last_read_at = $3 WHERE chat_id = $1 AND user_id = $2
    `, chatID, userID, at)
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
