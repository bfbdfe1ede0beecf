package runtime

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/observability"
	"chat-relay/repositories"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// deliveryCore wires log, router, registry and lifecycle the way the server
// binary does, with the router loop running.
type deliveryCore struct {
	log       *MessageLog
	lifecycle *Lifecycle
	registry  *Registry
	cancel    context.CancelFunc
	done      chan struct{}
}

func startDeliveryCore(t *testing.T, chatID domain.ChatID, participants ...string) *deliveryCore {
	t.Helper()
	repo := repositories.NewMessageRepository(newTestDB(t), slog.Default())
	members := membershipOf(chatID, participants...)
	queue := make(chan event.DomainEvent, 64)
	metrics := observability.NewMetrics()

	messageLog := NewMessageLog(slog.Default(), repo, members, queue)
	registry := NewRegistry(slog.Default(), nil)
	router := NewDeliveryRouter(slog.Default(), members, registry, queue, nil, metrics)
	lifecycle := NewLifecycle(slog.Default(), registry, members, messageLog, metrics)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = router.Run(ctx)
		close(done)
	}()
	core := &deliveryCore{
		log:       messageLog,
		lifecycle: lifecycle,
		registry:  registry,
		cancel:    cancel,
		done:      done,
	}
	t.Cleanup(func() {
		core.cancel()
		<-core.done
	})
	return core
}

func TestDelivery_Offline_Participant_Catches_Up_On_Reconnect(t *testing.T) {
	req := require.New(t)
	chatID := domain.ChatID("general")
	core := startDeliveryCore(t, chatID, "alice", "bob")
	ctx := context.Background()

	// Given bob connected and joined
	firstDevice := &fakeTransport{}
	bobSession := core.lifecycle.Connect("bob", firstDevice)
	req.NoError(core.lifecycle.Join(ctx, bobSession, chatID, 0))

	// When alice sends her first message
	_, err := core.log.Append(ctx, chatID, "alice", "hi")
	req.NoError(err)

	// Then bob receives it live
	req.Eventually(func() bool {
		return len(firstDevice.messages()) == 1
	}, time.Second, 5*time.Millisecond)
	req.Equal(int64(1), firstDevice.messages()[0].Seq)

	// When bob disconnects and alice keeps talking
	core.lifecycle.Disconnect(bobSession.ID)
	_, err = core.log.Append(ctx, chatID, "alice", "there")
	req.NoError(err)
	_, err = core.log.Append(ctx, chatID, "alice", "you back?")
	req.NoError(err)

	// And bob reconnects on a fresh session, resuming after the last seq he saw
	secondDevice := &fakeTransport{}
	reconnected := core.lifecycle.Connect("bob", secondDevice)
	req.NoError(core.lifecycle.Join(ctx, reconnected, chatID, 1))

	// Then exactly the missed messages arrive, in order, without duplicates
	replayed := secondDevice.messages()
	req.Len(replayed, 2)
	req.Equal(int64(2), replayed[0].Seq)
	req.Equal("there", replayed[0].Content)
	req.Equal(int64(3), replayed[1].Seq)

	// And the stale session never received anything more
	req.Len(firstDevice.messages(), 1)
}

func TestDelivery_Sender_Receives_Own_Message(t *testing.T) {
	req := require.New(t)
	chatID := domain.ChatID("general")
	core := startDeliveryCore(t, chatID, "alice", "bob")
	ctx := context.Background()

	aliceTransport := &fakeTransport{}
	aliceSession := core.lifecycle.Connect("alice", aliceTransport)
	req.NoError(core.lifecycle.Join(ctx, aliceSession, chatID, 0))

	_, err := core.log.Append(ctx, chatID, "alice", "echo check")
	req.NoError(err)

	// The sender's subscribed session is a recipient like any other
	req.Eventually(func() bool {
		return len(aliceTransport.messages()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestDelivery_Multi_Device_User_Gets_Every_Copy(t *testing.T) {
	req := require.New(t)
	chatID := domain.ChatID("general")
	core := startDeliveryCore(t, chatID, "alice", "bob")
	ctx := context.Background()

	phone := &fakeTransport{}
	laptop := &fakeTransport{}
	phoneSession := core.lifecycle.Connect("bob", phone)
	laptopSession := core.lifecycle.Connect("bob", laptop)
	req.NoError(core.lifecycle.Join(ctx, phoneSession, chatID, 0))
	req.NoError(core.lifecycle.Join(ctx, laptopSession, chatID, 0))

	_, err := core.log.Append(ctx, chatID, "alice", "to both devices")
	req.NoError(err)

	req.Eventually(func() bool {
		return len(phone.messages()) == 1 && len(laptop.messages()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestDelivery_Broken_Device_Detached_Others_Unaffected(t *testing.T) {
	req := require.New(t)
	chatID := domain.ChatID("general")
	core := startDeliveryCore(t, chatID, "alice", "bob")
	ctx := context.Background()

	healthy := &fakeTransport{}
	broken := &fakeTransport{}
	healthySession := core.lifecycle.Connect("alice", healthy)
	brokenSession := core.lifecycle.Connect("bob", broken)
	req.NoError(core.lifecycle.Join(ctx, healthySession, chatID, 0))
	req.NoError(core.lifecycle.Join(ctx, brokenSession, chatID, 0))
	broken.fail()

	_, err := core.log.Append(ctx, chatID, "alice", "only one arrives")
	req.NoError(err)

	req.Eventually(func() bool {
		return len(healthy.messages()) == 1 && !core.registry.Online("bob")
	}, time.Second, 5*time.Millisecond)
	req.True(broken.isClosed())
}
