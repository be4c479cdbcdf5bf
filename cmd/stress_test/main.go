package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/rl1809/kitties/internal/config"
	"github.com/rl1809/kitties/internal/core/domain"
	"github.com/rl1809/kitties/internal/core/service"
)

const (
	totalCreates   = 50
	totalTransfers = 200
	numOfAccounts  = 5
)

func main() {
	_ = godotenv.Load()

	app := &cli.App{
		Name:   "stress_test",
		Usage:  "hammer the ledger with concurrent creates and transfers and check its invariants",
		Flags:  config.Flags,
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	ctx := context.Background()

	cfg, err := config.LoadConfig(c)
	if err != nil {
		return err
	}
	cfg.NoAuth = true
	if err := cfg.Validate(); err != nil {
		return err
	}
	defer cfg.Close()
	log.SetLevel(log.WarnLevel)

	svc, err := cfg.RegistryService(ctx)
	if err != nil {
		return err
	}

	// fresh accounts and identities so reruns against a persistent store do not collide
	runID := uuid.NewString()[:8]
	whale := domain.AccountID("whale-" + runID)
	accounts := make([]domain.AccountID, numOfAccounts)
	for i := range accounts {
		accounts[i] = domain.AccountID(fmt.Sprintf("account-%s-%d", runID, i))
	}

	countBefore, err := svc.KittyCount(ctx)
	if err != nil {
		return err
	}

	// Phase 1: one account races to create more kitties than it can hold
	var created, outOfBound, otherCreate atomic.Int32
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalCreates; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			dna := domain.DNA(fmt.Sprintf("%s-kitty-%d", runID, i))
			err := svc.CreateKitty(ctx, domain.Origin{Account: whale}, dna, 1)
			switch {
			case err == nil:
				created.Add(1)
			case errors.Is(err, service.ErrOutOfBound):
				outOfBound.Add(1)
			default:
				otherCreate.Add(1)
				log.WithError(err).Error("unexpected create failure")
			}
		}(i)
	}
	wg.Wait()

	// Phase 2: the held kitties are passed around concurrently
	held, err := svc.KittiesOf(ctx, whale)
	if err != nil {
		return err
	}
	if len(held) == 0 {
		return cli.Exit("no kitty was created, nothing to transfer", 1)
	}
	var transferred, rejected atomic.Int32
	for i := 0; i < totalTransfers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			dna := held[i%len(held)]
			from := whale
			if i%3 != 0 {
				from = accounts[i%numOfAccounts]
			}
			to := accounts[(i+1)%numOfAccounts]
			if err := svc.TransferKitty(ctx, domain.Origin{Account: from}, dna, to); err != nil {
				rejected.Add(1)
				return
			}
			transferred.Add(1)
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(start)

	countAfter, err := svc.KittyCount(ctx)
	if err != nil {
		return err
	}

	holders := make(map[string]int)
	overCapacity := 0
	for _, account := range append([]domain.AccountID{whale}, accounts...) {
		list, err := svc.KittiesOf(ctx, account)
		if err != nil {
			return err
		}
		if len(list) > cfg.MaxKittiesPerOwner {
			overCapacity++
		}
		for _, dna := range list {
			holders[dna.String()]++
		}
	}

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Store:            %s\n", cfg.StoreType)
	fmt.Printf("Capacity:         %d\n", cfg.MaxKittiesPerOwner)
	fmt.Printf("Create Requests:  %d\n", totalCreates)
	fmt.Printf("Created:          %d\n", created.Load())
	fmt.Printf("Out Of Bound:     %d\n", outOfBound.Load())
	fmt.Printf("Other Failures:   %d\n", otherCreate.Load())
	fmt.Printf("Transfers:        %d ok / %d rejected\n", transferred.Load(), rejected.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	failed := false
	check := func(ok bool, pass string, format string, args ...any) {
		if ok {
			fmt.Println("PASS: " + pass)
			return
		}
		failed = true
		fmt.Printf("FAIL: "+format+"\n", args...)
	}

	expected := int32(min(totalCreates, cfg.MaxKittiesPerOwner))
	check(created.Load() == expected,
		fmt.Sprintf("exactly %d kitties created", expected),
		"expected %d created, got %d", expected, created.Load())
	check(countAfter-countBefore == uint64(created.Load()),
		"global count grew by the number of creates",
		"count grew by %d, expected %d", countAfter-countBefore, created.Load())
	check(overCapacity == 0, "no owner above capacity", "%d owners above capacity", overCapacity)

	lost, duplicated := 0, 0
	for _, dna := range held {
		switch holders[dna.String()] {
		case 0:
			lost++
		case 1:
		default:
			duplicated++
		}
	}
	check(lost == 0 && duplicated == 0, "every kitty held by exactly one owner",
		"%d kitties lost, %d held twice", lost, duplicated)

	if failed {
		return cli.Exit("stress test failed", 1)
	}
	return nil
}
