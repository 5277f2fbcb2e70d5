package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"classquiz/internal/domain"
)

// BankLoader fetches the question bank from its backing source (e.g., CSV file).
type BankLoader interface {
	LoadBank(ctx context.Context) (domain.Bank, error)
}

// BankRepository caches the bank with a TTL so the file is not parsed on every request.
type BankRepository struct {
	loader BankLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu        sync.RWMutex
	bank      domain.Bank
	loaded    bool
	expiresAt time.Time
}

func NewBankRepository(loader BankLoader, ttl time.Duration) *BankRepository {
	return &BankRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *BankRepository) GetBank(ctx context.Context) (domain.Bank, error) {
	if bank, ok := r.cached(r.clock()); ok {
		return bank, nil
	}

	result, err, _ := r.sf.Do("bank", func() (interface{}, error) {
		now := r.clock()
		if bank, ok := r.cached(now); ok {
			return bank, nil
		}

		bank, err := r.loader.LoadBank(ctx)
		if err != nil {
			return domain.Bank{}, err
		}

		r.mu.Lock()
		r.bank = bank
		r.loaded = true
		r.expiresAt = now.Add(r.ttlWithJitter())
		r.mu.Unlock()
		return bank, nil
	})
	if err != nil {
		return domain.Bank{}, err
	}
	return result.(domain.Bank), nil
}

// A zero TTL caches forever.
func (r *BankRepository) cached(now time.Time) (domain.Bank, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.loaded && (r.ttl <= 0 || r.expiresAt.After(now)) {
		return r.bank, true
	}
	return domain.Bank{}, false
}

// StaticBankLoader serves a fixed bank (useful for tests/demos).
type StaticBankLoader struct {
	bank domain.Bank
}

func NewStaticBankLoader(bank domain.Bank) *StaticBankLoader {
	return &StaticBankLoader{bank: bank}
}

func (l *StaticBankLoader) LoadBank(_ context.Context) (domain.Bank, error) {
	if len(l.bank.Questions) == 0 {
		return domain.Bank{}, domain.ErrInvalidBank
	}
	return l.bank, nil
}

func (r *BankRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
