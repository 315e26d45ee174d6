package health

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/jonwraymond/opguard/fault"
)

// SQLProbe pings a database pool.
func SQLProbe(db *sql.DB) Probe {
	return ProbeFunc(func(ctx context.Context) error {
		if db == nil {
			return ErrNilProbe
		}
		if err := db.PingContext(ctx); err != nil {
			return fault.Wrap(err, fault.KindExternalService, "database unreachable").
				WithContext("service", "sql")
		}
		return nil
	})
}

// RedisProbe sends PING to a Redis server.
func RedisProbe(client redis.Cmdable) Probe {
	return ProbeFunc(func(ctx context.Context) error {
		if client == nil {
			return ErrNilProbe
		}
		if err := client.Ping(ctx).Err(); err != nil {
			return fault.Wrap(err, fault.KindExternalService, "redis unreachable").
				WithContext("service", "redis")
		}
		return nil
	})
}

// KafkaProbe asks the client to reach any seed broker.
func KafkaProbe(client *kgo.Client) Probe {
	return ProbeFunc(func(ctx context.Context) error {
		if client == nil {
			return ErrNilProbe
		}
		if err := client.Ping(ctx); err != nil {
			return fault.Wrap(err, fault.KindExternalService, "kafka unreachable").
				WithContext("service", "kafka")
		}
		return nil
	})
}

// HTTPProbe issues GET url and passes on any 2xx or 3xx status. A nil client
// uses http.DefaultClient.
func HTTPProbe(client *http.Client, url string) Probe {
	if client == nil {
		client = http.DefaultClient
	}
	return ProbeFunc(func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fault.Wrap(err, fault.KindSystem, "invalid probe request")
		}
		resp, err := client.Do(req)
		if err != nil {
			return fault.Wrap(err, fault.KindExternalService, "endpoint unreachable").
				WithContext("url", url)
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

		if resp.StatusCode >= http.StatusBadRequest {
			return fault.Wrap(fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode),
				fault.KindExternalService, "endpoint unhealthy").
				WithContext("url", url)
		}
		return nil
	})
}
