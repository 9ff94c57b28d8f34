package database

import (
	"context"
	"fmt"

	"scope-chat/internal/domain/chat"
	"scope-chat/internal/repository"
)

// SeedConfig holds configuration for seeding the database
type SeedConfig struct {
	AdminUserID   int64
	MemberUserIDs []int64
	ProjectID     int64
	MessageCount  int
}

// DefaultSeedConfig returns default seed configuration
func DefaultSeedConfig() *SeedConfig {
	return &SeedConfig{
		AdminUserID:   1,
		MemberUserIDs: []int64{2, 3, 4},
		ProjectID:     1,
		MessageCount:  10,
	}
}

type SeedResult struct {
	ProjectChat chat.Chat
	DirectChats []chat.Chat
	Messages    []chat.Message
}

// SeedDevelopment creates a project chat with every configured user, one
// direct chat between the admin and each member and a short message history.
func SeedDevelopment(ctx context.Context, store repository.Store, cfg *SeedConfig) (*SeedResult, error) {
	if cfg == nil {
		cfg = DefaultSeedConfig()
	}
	result := &SeedResult{}

	err := store.WithTx(ctx, func(tx repository.Store) error {
		name := "Project chat"
		projectID := cfg.ProjectID
		project := chat.Chat{Type: chat.TypeProject, Name: &name, ProjectID: &projectID, CreatedBy: cfg.AdminUserID}
		if err := tx.Chats().Create(ctx, &project); err != nil {
			return fmt.Errorf("failed to create project chat: %w", err)
		}
		if err := tx.Chats().AddMember(ctx, &chat.Member{ChatID: project.ID, UserID: cfg.AdminUserID, Role: chat.RoleAdmin}); err != nil {
			return err
		}
		for _, uid := range cfg.MemberUserIDs {
			if err := tx.Chats().AddMember(ctx, &chat.Member{ChatID: project.ID, UserID: uid, Role: chat.RoleMember}); err != nil {
				return err
			}

			direct := chat.Chat{Type: chat.TypeDirect, CreatedBy: cfg.AdminUserID}
			if err := tx.Chats().Create(ctx, &direct); err != nil {
				return fmt.Errorf("failed to create direct chat: %w", err)
			}
			for _, member := range []int64{cfg.AdminUserID, uid} {
				if err := tx.Chats().AddMember(ctx, &chat.Member{ChatID: direct.ID, UserID: member, Role: chat.RoleMember}); err != nil {
					return err
				}
			}
			result.DirectChats = append(result.DirectChats, direct)
		}
		result.ProjectChat = project

		senders := append([]int64{cfg.AdminUserID}, cfg.MemberUserIDs...)
		for i := 0; i < cfg.MessageCount; i++ {
			sender := senders[i%len(senders)]
			target := senders[(i+1)%len(senders)]
			content := fmt.Sprintf("Status update %d for %s", i+1, chat.MentionToken(target))
			m := chat.Message{
				ChatID:      project.ID,
				SenderID:    sender,
				Content:     content,
				MessageType: chat.MessageTypeText,
				Mentions:    chat.ExtractMentions(content),
				ReadBy:      []int64{sender},
			}
			if err := tx.Messages().Create(ctx, &m); err != nil {
				return fmt.Errorf("failed to create message: %w", err)
			}
			result.Messages = append(result.Messages, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
