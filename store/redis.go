package store

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/aegis/clog"
	"github.com/ceyewan/aegis/connector"
	"github.com/ceyewan/aegis/store/serializer"
	"github.com/ceyewan/aegis/xerrors"
)

// redisStore Redis 后端，每个端点一个 Key
// SET 整条覆盖，天然满足原子替换语义；记录不设 TTL，
// 熔断状态的生命周期由外部清理决定。
type redisStore struct {
	client *redis.Client
	prefix string
	ser    serializer.Serializer
	logger clog.Logger
}

func newRedis(conn connector.RedisConnector, cfg *Config, ser serializer.Serializer, logger clog.Logger) (Store, error) {
	if conn == nil {
		return nil, ErrConnectorNil
	}

	return &redisStore{
		client: conn.GetClient(),
		prefix: cfg.Prefix,
		ser:    ser,
		logger: logger,
	}, nil
}

func (s *redisStore) Load(ctx context.Context, endpoint string) (*Record, error) {
	data, err := s.client.Get(ctx, s.redisKey(endpoint)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, xerrors.Wrapf(ErrNotFound, "endpoint: %s", endpoint)
		}
		return nil, xerrors.Wrap(err, "failed to read record")
	}

	var record Record
	if err := s.ser.Unmarshal(data, &record); err != nil {
		s.logger.ErrorContext(ctx, "corrupt state record, treating as not found",
			clog.String("endpoint", endpoint),
			clog.Error(err))
		return nil, xerrors.Wrapf(ErrNotFound, "endpoint: %s: corrupt record", endpoint)
	}
	return &record, nil
}

func (s *redisStore) Save(ctx context.Context, endpoint string, record *Record) error {
	if record == nil {
		return ErrRecordNil
	}

	data, err := s.ser.Marshal(record)
	if err != nil {
		return xerrors.Wrap(err, "failed to marshal record")
	}

	if err := s.client.Set(ctx, s.redisKey(endpoint), data, 0).Err(); err != nil {
		return xerrors.Wrap(err, "failed to save record")
	}
	return nil
}

func (s *redisStore) Delete(ctx context.Context, endpoint string) error {
	if err := s.client.Del(ctx, s.redisKey(endpoint)).Err(); err != nil {
		return xerrors.Wrap(err, "failed to delete record")
	}
	return nil
}

func (s *redisStore) redisKey(endpoint string) string {
	return s.prefix + SanitizeEndpoint(endpoint)
}

func (s *redisStore) Close() error {
	return nil
}
