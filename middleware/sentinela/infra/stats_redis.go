package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"fronteira/middleware/sentinela/domain"
)

var _ domain.MetricSink = (*RedisMetricSink)(nil)

// RedisMetricSink grava as métricas por segundo em hashes do Redis:
//
//	<prefix>:total                  recurso:campo -> acumulado (não expira)
//	<prefix>:minute:<YYYYMMDDhhmm>  recurso:campo -> soma no minuto (expira com ttl)
//	<prefix>:resource:<nome>        campo -> acumulado (opcional, expira com ttl)
type RedisMetricSink struct {
	rdb redis.Cmdable

	prefix string
	// ttl aplica apenas em chaves de série temporal / por recurso.
	// total é cumulativo e não expira.
	ttl time.Duration

	bucket string // "minute" (padrão) ou "none"

	trackResources bool
}

type RedisSinkOption func(*RedisMetricSink)

func WithSinkPrefix(prefix string) RedisSinkOption {
	return func(s *RedisMetricSink) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithSinkTTL(d time.Duration) RedisSinkOption {
	return func(s *RedisMetricSink) { s.ttl = d }
}

func WithSinkBucket(bucket string) RedisSinkOption {
	return func(s *RedisMetricSink) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithSinkTrackResources(track bool) RedisSinkOption {
	return func(s *RedisMetricSink) { s.trackResources = track }
}

func NewRedisMetricSink(rdb redis.Cmdable, opts ...RedisSinkOption) *RedisMetricSink {
	s := &RedisMetricSink{
		rdb:    rdb,
		prefix: "sentinela:metrics",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func metricFields(it domain.MetricItem) map[string]int64 {
	return map[string]int64{
		"pass":      it.PassQPS,
		"block":     it.BlockQPS,
		"success":   it.SuccessQPS,
		"exception": it.ExceptionQPS,
		"occupied":  it.OccupiedPassQPS,
	}
}

func (s *RedisMetricSink) Write(ctx context.Context, items []domain.MetricItem) error {
	if s == nil || s.rdb == nil || len(items) == 0 {
		return nil
	}

	totalKey := s.prefix + ":total"
	expire := make(map[string]struct{})

	pipe := s.rdb.Pipeline()
	for _, it := range items {
		res := strings.TrimSpace(it.Resource)
		if res == "" {
			continue
		}
		at := it.Timestamp
		if at.IsZero() {
			at = time.Now()
		}

		for field, v := range metricFields(it) {
			if v == 0 {
				continue
			}
			pipe.HIncrBy(ctx, totalKey, res+":"+field, v)

			if s.bucket == "minute" {
				bucketKey := fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
				pipe.HIncrBy(ctx, bucketKey, res+":"+field, v)
				expire[bucketKey] = struct{}{}
			}
			if s.trackResources {
				resKey := s.prefix + ":resource:" + res
				pipe.HIncrBy(ctx, resKey, field, v)
				expire[resKey] = struct{}{}
			}
		}
	}
	if s.ttl > 0 {
		for k := range expire {
			pipe.Expire(ctx, k, s.ttl)
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}
