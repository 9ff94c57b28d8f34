package repository

import (
	"context"
)

type sqlStore struct {
	db       DBTX
	chats    ChatRepository
	messages MessageRepository
}

// NewStore returns a Postgres-backed Store over db (*sql.DB or *sql.Tx).
func NewStore(db DBTX) Store {
	return &sqlStore{
		db:       db,
		chats:    NewChatRepository(db),
		messages: NewMessageRepository(db),
	}
}

func (s *sqlStore) Chats() ChatRepository       { return s.chats }
func (s *sqlStore) Messages() MessageRepository { return s.messages }

func (s *sqlStore) WithTx(ctx context.Context, fn func(Store) error) error {
	return WithTx(ctx, s.db, func(tx DBTX) error {
		return fn(NewStore(tx))
	})
}
