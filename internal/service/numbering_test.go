package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"kedaipos/backend/internal/domain"
	"kedaipos/backend/internal/store"
	"kedaipos/backend/internal/store/memory"
)

func TestSequentialSalesGetMonotonicNumbers(t *testing.T) {
	repo := memory.New()
	fix := seedSaleFixture(t, repo)
	svc := newTestService(repo)

	prefix := time.Now().UTC().Format("20060102") + "-"
	var prev int
	for i := 0; i < 3; i++ {
		resp, err := svc.RecordSale(cashierCtx(), saleRequest(fix, 1))
		if err != nil {
			t.Fatalf("sale %d: %v", i, err)
		}
		suffix, ok := strings.CutPrefix(resp.Transaction.Number, prefix)
		if !ok {
			t.Fatalf("number %s missing prefix %s", resp.Transaction.Number, prefix)
		}
		seq, err := strconv.Atoi(suffix)
		if err != nil {
			t.Fatalf("non-numeric suffix %q: %v", suffix, err)
		}
		if seq <= prev {
			t.Fatalf("expected strictly increasing sequence, got %d after %d", seq, prev)
		}
		prev = seq
	}
	if prev != 3 {
		t.Fatalf("expected third sale to be number 3, got %d", prev)
	}
}

func TestConcurrentSalesGetDistinctNumbers(t *testing.T) {
	repo := memory.New()
	fix := seedSaleFixture(t, repo)
	svc := newTestService(repo)

	const workers = 5
	var wg sync.WaitGroup
	numbers := make([]string, workers)
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := svc.RecordSale(cashierCtx(), saleRequest(fix, 1))
			if err != nil {
				errs[i] = err
				return
			}
			numbers[i] = resp.Transaction.Number
		}(i)
	}
	wg.Wait()

	prefix := time.Now().UTC().Format("20060102") + "-"
	seen := make(map[string]bool, workers)
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		if !strings.HasPrefix(numbers[i], prefix) {
			t.Fatalf("worker %d: number %s missing today prefix", i, numbers[i])
		}
		if seen[numbers[i]] {
			t.Fatalf("duplicate number issued: %s", numbers[i])
		}
		seen[numbers[i]] = true
	}
}

// collidingRepo rejects every transaction insert as a duplicate so the retry
// loop runs out of attempts.
type collidingRepo struct {
	*memory.Store
	attempts int
}

func (c *collidingRepo) CreateTransaction(ctx context.Context, tx domain.Transaction) (*domain.Transaction, error) {
	c.attempts++
	return nil, store.ErrDuplicateNumber
}

func TestNumberingExhaustionSurfaces(t *testing.T) {
	repo := &collidingRepo{Store: memory.New()}
	fix := seedSaleFixture(t, repo.Store)
	svc := newTestService(repo)

	_, err := svc.RecordSale(cashierCtx(), saleRequest(fix, 1))
	if !errors.Is(err, ErrNumberingExhausted) {
		t.Fatalf("expected ErrNumberingExhausted, got %v", err)
	}
	if repo.attempts != maxNumberingAttempts {
		t.Fatalf("expected %d insert attempts, got %d", maxNumberingAttempts, repo.attempts)
	}

	balance, _ := svc.CurrentBalance(context.Background(), fix.itemA)
	if balance != 100 {
		t.Fatalf("expected stock untouched after exhaustion, got %.2f", balance)
	}
}

func TestNextTransactionNumberSkipsAheadPerAttempt(t *testing.T) {
	repo := memory.New()
	svc := newTestService(repo)
	ctx := context.Background()

	first, err := svc.nextTransactionNumber(ctx, 0)
	if err != nil {
		t.Fatalf("attempt 0: %v", err)
	}
	retry, err := svc.nextTransactionNumber(ctx, 2)
	if err != nil {
		t.Fatalf("attempt 2: %v", err)
	}

	prefix := time.Now().UTC().Format("20060102")
	if first != prefix+"-0001" {
		t.Fatalf("expected first candidate %s-0001, got %s", prefix, first)
	}
	if retry != prefix+"-0003" {
		t.Fatalf("expected attempt 2 candidate %s-0003, got %s", prefix, retry)
	}
}
