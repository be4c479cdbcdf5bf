package handler

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/rl1809/kitties/internal/adapter/auth"
	"github.com/rl1809/kitties/internal/adapter/notifier"
	"github.com/rl1809/kitties/internal/adapter/storage"
	"github.com/rl1809/kitties/internal/core/domain"
	"github.com/rl1809/kitties/internal/core/service"
)

type stubClock struct{}

func (stubClock) Now() time.Time {
	return time.Unix(1700000000, 0)
}

type panickingRegistry struct {
	KittyRegistry
}

func (panickingRegistry) KittyCount(context.Context) (uint64, error) {
	panic("boom")
}

func startGRPCServer(t *testing.T, registry KittyRegistry) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1024 * 1024)
	server := grpc.NewServer(ServerOptions()...)
	RegisterKittyServiceServer(server, NewGRPCHandler(registry))
	go server.Serve(lis)
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func newMacaroonRegistry(t *testing.T) (*service.RegistryService, *auth.MacaroonAuthenticator) {
	t.Helper()
	rootKey := make([]byte, 32)
	authenticator, err := auth.NewMacaroonAuthenticator(rootKey)
	require.NoError(t, err)

	registry := service.NewRegistryService(
		storage.NewMemoryStore(), authenticator, stubClock{}, notifier.LogNotifier{}, 0,
	)
	return registry, authenticator
}

func TestGRPCKittyService(t *testing.T) {
	ctx := context.Background()
	registry, authenticator := newMacaroonRegistry(t)
	conn := startGRPCServer(t, registry)

	aliceToken, err := authenticator.Mint("alice", 0)
	require.NoError(t, err)
	alice := NewGRPCClient(conn, domain.Origin{Token: aliceToken})
	anonymous := NewGRPCClient(conn, domain.Origin{Account: "alice"})
	dna := domain.DNA{0xbe, 0xef, 0x01}

	kitty, err := alice.CreateKitty(ctx, dna, 50)
	require.NoError(t, err)
	require.Equal(t, domain.AccountID("alice"), kitty.Owner)
	require.Equal(t, domain.GenderFemale, kitty.Gender)

	_, err = alice.CreateKitty(ctx, dna, 50)
	require.Equal(t, codes.AlreadyExists, status.Code(err))

	_, err = alice.CreateKitty(ctx, domain.DNA{0x02}, 0)
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = anonymous.CreateKitty(ctx, domain.DNA{0x03}, 1)
	require.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = alice.CreateKitty(ctx, domain.DNA{}, 1)
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	err = alice.TransferKitty(ctx, dna, "alice")
	require.Equal(t, codes.FailedPrecondition, status.Code(err))

	err = alice.TransferKitty(ctx, domain.DNA{0x09}, "bob")
	require.Equal(t, codes.NotFound, status.Code(err))

	require.NoError(t, alice.TransferKitty(ctx, dna, "bob"))

	err = alice.TransferKitty(ctx, dna, "carol")
	require.Equal(t, codes.PermissionDenied, status.Code(err))

	got, err := alice.GetKitty(ctx, dna)
	require.NoError(t, err)
	require.Equal(t, domain.AccountID("bob"), got.Owner)

	list, err := alice.ListKitties(ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, []domain.DNA{dna}, list)

	list, err = alice.ListKitties(ctx, "alice")
	require.NoError(t, err)
	require.Empty(t, list)

	count, err := alice.GetStats(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1), count)
}

func TestGRPCCapacityMapsToResourceExhausted(t *testing.T) {
	ctx := context.Background()
	registry := service.NewRegistryService(
		storage.NewMemoryStore(), auth.NewTrustedAuthenticator(), stubClock{}, notifier.LogNotifier{}, 1,
	)
	alice := NewGRPCClient(startGRPCServer(t, registry), domain.Origin{Account: "alice"})

	_, err := alice.CreateKitty(ctx, domain.DNA{0x01}, 1)
	require.NoError(t, err)
	_, err = alice.CreateKitty(ctx, domain.DNA{0x02}, 1)
	require.Equal(t, codes.ResourceExhausted, status.Code(err))
}

func TestGRPCPanicRecovery(t *testing.T) {
	client := NewGRPCClient(startGRPCServer(t, panickingRegistry{}), domain.Origin{})

	_, err := client.GetStats(context.Background())
	require.Equal(t, codes.Internal, status.Code(err))
}
