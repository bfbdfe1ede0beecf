package runtime

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/repositories"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// fakeMembership is a fixed chat -> participants table.
type fakeMembership struct {
	chats map[domain.ChatID][]string
}

func (f *fakeMembership) Register(chatID domain.ChatID, participants []string) {
	f.chats[chatID] = participants
}

func (f *fakeMembership) ParticipantsOf(chatID domain.ChatID) ([]string, error) {
	participants, ok := f.chats[chatID]
	if !ok {
		return nil, errors.ErrChatNotFound
	}
	return participants, nil
}

func membershipOf(chatID domain.ChatID, participants ...string) *fakeMembership {
	return &fakeMembership{chats: map[domain.ChatID][]string{chatID: participants}}
}

// failingMessageRepo rejects writes until unbroken.
type failingMessageRepo struct {
	repositories.MessageRepository
	broken bool
}

func (f *failingMessageRepo) AppendMessage(message domain.Message) error {
	if f.broken {
		return fmt.Errorf("disk full")
	}
	return f.MessageRepository.AppendMessage(message)
}

func TestMessageLog_Append_Assigns_Gapless_Seqs(t *testing.T) {
	req := require.New(t)
	chatID := domain.ChatID("general")
	repo := repositories.NewMessageRepository(newTestDB(t), slog.Default())
	appended := make(chan event.DomainEvent, 16)
	log := NewMessageLog(slog.Default(), repo, membershipOf(chatID, "alice", "bob"), appended)

	for i := 1; i <= 3; i++ {
		message, err := log.Append(context.Background(), chatID, "alice", fmt.Sprintf("msg %d", i))
		req.NoError(err)
		req.Equal(int64(i), message.Seq)
		req.NotEqual("", message.ID.String())
	}

	// Durable before visible: history already serves all three
	history, err := log.History(chatID, 0, 0)
	req.NoError(err)
	req.Len(history, 3)

	// The router queue saw them in seq order
	for i := 1; i <= 3; i++ {
		evt := (<-appended).(event.MessageAppended)
		req.Equal(int64(i), evt.Message.Seq)
	}

	lastSeq, err := log.LastSeq(chatID)
	req.NoError(err)
	req.Equal(int64(3), lastSeq)
}

func TestMessageLog_Append_Unknown_Chat(t *testing.T) {
	req := require.New(t)
	repo := repositories.NewMessageRepository(newTestDB(t), slog.Default())
	log := NewMessageLog(slog.Default(), repo, membershipOf("general", "alice"), make(chan event.DomainEvent, 1))

	_, err := log.Append(context.Background(), "nope", "alice", "hello")
	req.ErrorIs(err, errors.ErrChatNotFound)
}

func TestMessageLog_Append_Rejects_Outsiders(t *testing.T) {
	req := require.New(t)
	chatID := domain.ChatID("general")
	repo := repositories.NewMessageRepository(newTestDB(t), slog.Default())
	appended := make(chan event.DomainEvent, 1)
	log := NewMessageLog(slog.Default(), repo, membershipOf(chatID, "alice", "bob"), appended)

	_, err := log.Append(context.Background(), chatID, "mallory", "hello")
	req.ErrorIs(err, errors.ErrNotParticipant)
	req.Empty(appended)

	history, err := log.History(chatID, 0, 0)
	req.NoError(err)
	req.Empty(history)
}

func TestMessageLog_Failed_Write_Consumes_No_Seq(t *testing.T) {
	req := require.New(t)
	chatID := domain.ChatID("general")
	repo := &failingMessageRepo{
		MessageRepository: repositories.NewMessageRepository(newTestDB(t), slog.Default()),
	}
	appended := make(chan event.DomainEvent, 16)
	log := NewMessageLog(slog.Default(), repo, membershipOf(chatID, "alice"), appended)

	first, err := log.Append(context.Background(), chatID, "alice", "before outage")
	req.NoError(err)
	req.Equal(int64(1), first.Seq)

	// Given the store starts failing
	repo.broken = true
	_, err = log.Append(context.Background(), chatID, "alice", "lost")
	req.ErrorIs(err, errors.ErrStorageFailure)

	// When it recovers, the next message reuses the seq the failure never consumed
	repo.broken = false
	next, err := log.Append(context.Background(), chatID, "alice", "after outage")
	req.NoError(err)
	req.Equal(int64(2), next.Seq)

	// No hole: only committed messages ever hit the queue
	req.Len(appended, 2)
}

func TestMessageLog_Concurrent_Appends_Stay_Gapless(t *testing.T) {
	req := require.New(t)
	chatID := domain.ChatID("general")
	repo := repositories.NewMessageRepository(newTestDB(t), slog.Default())
	appended := make(chan event.DomainEvent, 256)
	log := NewMessageLog(slog.Default(), repo, membershipOf(chatID, "alice"), appended)

	const senders = 50
	var wg sync.WaitGroup
	seqs := make(chan int64, senders)
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			message, err := log.Append(context.Background(), chatID, "alice", "race")
			if err == nil {
				seqs <- message.Seq
			}
		}()
	}
	wg.Wait()
	close(seqs)

	seen := make(map[int64]bool)
	for seq := range seqs {
		req.False(seen[seq], "seq %d assigned twice", seq)
		seen[seq] = true
	}
	req.Len(seen, senders)
	for seq := int64(1); seq <= senders; seq++ {
		req.True(seen[seq], "seq %d missing", seq)
	}
}

func TestMessageLog_Resumes_Seq_From_Disk(t *testing.T) {
	req := require.New(t)
	chatID := domain.ChatID("general")
	repo := repositories.NewMessageRepository(newTestDB(t), slog.Default())
	members := membershipOf(chatID, "alice")

	before := NewMessageLog(slog.Default(), repo, members, make(chan event.DomainEvent, 16))
	_, err := before.Append(context.Background(), chatID, "alice", "one")
	req.NoError(err)
	_, err = before.Append(context.Background(), chatID, "alice", "two")
	req.NoError(err)

	// A fresh log over the same store continues where the old one stopped
	after := NewMessageLog(slog.Default(), repo, members, make(chan event.DomainEvent, 16))
	message, err := after.Append(context.Background(), chatID, "alice", "three")
	req.NoError(err)
	req.Equal(int64(3), message.Seq)
}

func TestMessageLog_Full_Queue_Never_Fails_Append(t *testing.T) {
	req := require.New(t)
	chatID := domain.ChatID("general")
	repo := repositories.NewMessageRepository(newTestDB(t), slog.Default())
	appended := make(chan event.DomainEvent, 1)
	log := NewMessageLog(slog.Default(), repo, membershipOf(chatID, "alice"), appended)

	// The second append finds the queue full, the write still commits
	_, err := log.Append(context.Background(), chatID, "alice", "fills the queue")
	req.NoError(err)
	dropped, err := log.Append(context.Background(), chatID, "alice", "dropped live, replayable")
	req.NoError(err)
	req.Equal(int64(2), dropped.Seq)

	history, err := log.History(chatID, 0, 0)
	req.NoError(err)
	req.Len(history, 2)
}
