package database

import (
	"context"
	"testing"

	"scope-chat/internal/repository"
)

func TestSeedDevelopmentMemory(t *testing.T) {
	store := repository.NewMemoryStore()
	ctx := context.Background()

	res, err := SeedDevelopment(ctx, store, DefaultSeedConfig())
	if err != nil {
		t.Fatalf("SeedDevelopment: %v", err)
	}
	if len(res.DirectChats) != 3 {
		t.Fatalf("direct chats = %d", len(res.DirectChats))
	}
	members, err := store.Chats().GetMembers(ctx, res.ProjectChat.ID)
	if err != nil || len(members) != 4 {
		t.Fatalf("project members = %d err %v", len(members), err)
	}
	msgs, err := store.Messages().GetChatMessages(ctx, res.ProjectChat.ID, 0, 100)
	if err != nil || len(msgs) != 10 {
		t.Fatalf("messages = %d err %v", len(msgs), err)
	}
	for _, m := range msgs {
		if len(m.Mentions) != 1 {
			t.Fatalf("message %d mentions = %v", m.ID, m.Mentions)
		}
	}
	if _, err := store.Chats().FindDirect(ctx, 1, 3); err != nil {
		t.Fatalf("direct chat 1-3 missing: %v", err)
	}
}

func TestLoadMigrations(t *testing.T) {
	migrations, err := LoadMigrations("../../migrations")
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	if len(migrations) == 0 {
		t.Fatal("no migrations found")
	}
	for _, m := range migrations {
		if m.UpPath == "" || m.DownPath == "" {
			t.Fatalf("migration %s missing a direction", m.Name)
		}
	}
}
