package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"classquiz/internal/domain"
)

// BankLoader fetches the question bank from a backing source (e.g., CSV file).
type BankLoader interface {
	LoadBank(ctx context.Context) (domain.Bank, error)
}

// BankRepository caches the parsed bank in Redis so every instance grades against
// the same copy, and falls back to the loader on cache miss.
// The bank is stored as JSON under: SET quiz:bank:current {bank}
type BankRepository struct {
	client *redis.Client
	loader BankLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewBankRepository(client *redis.Client, loader BankLoader, ttl time.Duration) *BankRepository {
	return &BankRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *BankRepository) GetBank(ctx context.Context) (domain.Bank, error) {
	if bank, ok := r.fromCache(ctx); ok {
		return bank, nil
	}

	result, err, _ := r.sf.Do(bankKey, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if bank, ok := r.fromCache(ctx); ok {
			return bank, nil
		}

		bank, err := r.loader.LoadBank(ctx)
		if err != nil {
			return domain.Bank{}, err
		}

		raw, err := json.Marshal(bank)
		if err != nil {
			return domain.Bank{}, err
		}
		// best-effort; a failed write only costs another load
		_ = r.client.Set(ctx, bankKey, raw, r.ttlWithJitter()).Err()
		return bank, nil
	})
	if err != nil {
		return domain.Bank{}, err
	}
	return result.(domain.Bank), nil
}

// Invalidate drops the cached copy so the next read reloads the source.
func (r *BankRepository) Invalidate(ctx context.Context) error {
	return r.client.Del(ctx, bankKey).Err()
}

const bankKey = "quiz:bank:current"

func (r *BankRepository) fromCache(ctx context.Context) (domain.Bank, bool) {
	raw, err := r.client.Get(ctx, bankKey).Bytes()
	if err != nil {
		return domain.Bank{}, false
	}
	var bank domain.Bank
	if err := json.Unmarshal(raw, &bank); err != nil || len(bank.Questions) == 0 {
		return domain.Bank{}, false
	}
	return bank, true
}

func (r *BankRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
