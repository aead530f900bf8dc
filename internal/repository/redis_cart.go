package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/keymint/keymint/internal/domain"
	"github.com/redis/go-redis/v9"
)

const cartKeyPrefix = "cart:"

// RedisCartRepository reads cart snapshots written by the upstream cart service.
// Carts live entirely in Redis and are never written by this service.
type RedisCartRepository struct {
	client redis.UniversalClient
}

func NewRedisCartRepository(client redis.UniversalClient) *RedisCartRepository {
	return &RedisCartRepository{
		client: client,
	}
}

func (r *RedisCartRepository) GetById(ctx context.Context, cartID string) (*domain.CartSnapshot, error) {
	data, err := r.client.Get(ctx, cartKeyPrefix+cartID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrCartNotFound
		}
		return nil, err
	}

	var cart domain.CartSnapshot

	err = json.Unmarshal(data, &cart)
	if err != nil {
		return nil, fmt.Errorf("unmarshaling cart %s: %w", cartID, err)
	}

	cart.ID = cartID

	return &cart, nil
}
