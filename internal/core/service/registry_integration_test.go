package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/kitties/internal/adapter/auth"
	"github.com/rl1809/kitties/internal/adapter/storage"
	"github.com/rl1809/kitties/internal/core/domain"
	"github.com/rl1809/kitties/internal/port"
)

type storeFactory struct {
	name string
	open func(t *testing.T) port.KVStore
}

func storeFactories() []storeFactory {
	return []storeFactory{
		{"memory", func(t *testing.T) port.KVStore {
			return storage.NewMemoryStore()
		}},
		{"badger", func(t *testing.T) port.KVStore {
			store, err := storage.NewBadgerStore("", log.New())
			require.NoError(t, err)
			return store
		}},
		{"sqlite", func(t *testing.T) port.KVStore {
			store, err := storage.NewSQLiteStore(context.Background(), t.TempDir()+"/kitties.db")
			require.NoError(t, err)
			return store
		}},
		{"redis", func(t *testing.T) port.KVStore {
			addr := os.Getenv("REDIS_ADDR")
			if addr == "" {
				addr = "localhost:6379"
			}
			rdb := redis.NewClient(&redis.Options{Addr: addr})
			if err := rdb.Ping(context.Background()).Err(); err != nil {
				t.Skipf("Redis not available: %v", err)
			}
			return storage.NewRedisStore(rdb, "it-"+uuid.NewString()+":", 100)
		}},
		{"mysql", func(t *testing.T) port.KVStore {
			dsn := os.Getenv("MYSQL_DSN")
			if dsn == "" {
				dsn = "root:root@tcp(localhost:3306)/kitties"
			}
			db, err := sql.Open("mysql", dsn)
			if err != nil {
				t.Skipf("MySQL not available: %v", err)
			}
			if err := db.Ping(); err != nil {
				t.Skipf("MySQL not available: %v", err)
			}
			store, err := storage.NewMySQLStore(context.Background(), db)
			require.NoError(t, err)
			return store
		}},
		{"postgres", func(t *testing.T) port.KVStore {
			dsn := os.Getenv("DATABASE_URL_FOR_TEST")
			if dsn == "" {
				t.Skip("DATABASE_URL_FOR_TEST not set; skipping postgres integration tests")
			}
			store, err := storage.NewPostgresStore(context.Background(), dsn)
			require.NoError(t, err)
			return store
		}},
	}
}

// Shared databases keep data between runs, so every run uses fresh accounts and identities.
func TestIntegration_RegistryAcrossStores(t *testing.T) {
	for _, factory := range storeFactories() {
		t.Run(factory.name, func(t *testing.T) {
			store := factory.open(t)
			defer store.Close()

			ctx := context.Background()
			run := uuid.NewString()[:8]
			account := func(name string) domain.AccountID {
				return domain.AccountID(name + "-" + run)
			}
			kitty := func(i int) domain.DNA {
				return domain.DNA(fmt.Sprintf("%s-%d", run, i))
			}

			events := &recordingNotifier{}
			svc := NewRegistryService(store, auth.NewTrustedAuthenticator(), fixedClock{testNow}, events, 4)
			alice, bob, carol := account("alice"), account("bob"), account("carol")

			before, err := svc.KittyCount(ctx)
			require.NoError(t, err)

			require.NoError(t, svc.CreateKitty(ctx, as(alice), kitty(1), 100))
			require.ErrorIs(t, svc.CreateKitty(ctx, as(alice), kitty(1), 100), ErrAlreadyExisted)
			require.ErrorIs(t, svc.CreateKitty(ctx, as(alice), kitty(2), 0), ErrPriceTooLow)
			require.NoError(t, svc.TransferKitty(ctx, as(alice), kitty(1), bob))
			require.ErrorIs(t, svc.TransferKitty(ctx, as(bob), kitty(1), bob), ErrOwnerAlready)
			require.ErrorIs(t, svc.TransferKitty(ctx, as(carol), kitty(1), alice), ErrNotOwner)

			requireList(t, svc, alice)
			requireList(t, svc, bob, kitty(1))

			after, err := svc.KittyCount(ctx)
			require.NoError(t, err)
			require.Equal(t, before+1, after)

			// carol races to fill her list past capacity
			var created, outOfBound atomic.Int32
			var wg sync.WaitGroup
			for i := 10; i < 20; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					err := svc.CreateKitty(ctx, as(carol), kitty(i), 1)
					switch {
					case err == nil:
						created.Add(1)
					case errors.Is(err, ErrOutOfBound):
						outOfBound.Add(1)
					}
				}(i)
			}
			wg.Wait()
			require.EqualValues(t, 4, created.Load())
			require.EqualValues(t, 6, outOfBound.Load())

			list, err := svc.KittiesOf(ctx, carol)
			require.NoError(t, err)
			require.Len(t, list, 4)

			// a transfer into a full list leaves both sides untouched
			err = svc.TransferKitty(ctx, as(bob), kitty(1), carol)
			require.ErrorIs(t, err, ErrOutOfBound)
			requireList(t, svc, bob, kitty(1))

			got, err := svc.KittiesOf(ctx, carol)
			require.NoError(t, err)
			require.Equal(t, list, got)

			require.Len(t, events.Events(), 2+4)
		})
	}
}
