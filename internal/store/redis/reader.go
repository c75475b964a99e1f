package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"quantlab/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// Latest returns the most recently published result for an instance, or
// nil if none is stored (never published or expired).
func (p *Publisher) Latest(ctx context.Context, id string) (*model.Result, error) {
	data, err := p.client.Get(ctx, ResultKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis GET %s: %w", ResultKey(id), err)
	}
	var res model.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("unmarshal result %s: %w", id, err)
	}
	return &res, nil
}

// Subscribe streams results announced on channels matching pattern (e.g.
// "pub:ind:rsi:*") until ctx is done. Undecodable messages are skipped.
func (p *Publisher) Subscribe(ctx context.Context, pattern string) <-chan *model.Result {
	out := make(chan *model.Result, 64)
	sub := p.client.PSubscribe(ctx, pattern)
	go func() {
		defer sub.Close()
		forwardResults(ctx, sub.Channel(), out)
	}()
	return out
}

// forwardResults decodes pub/sub payloads from ch into out until ctx is
// done or ch closes, then closes out.
func forwardResults(ctx context.Context, ch <-chan *goredis.Message, out chan<- *model.Result) {
	defer close(out)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var res model.Result
			if err := json.Unmarshal([]byte(msg.Payload), &res); err != nil {
				log.Printf("[redis] skipping undecodable message on %s: %v", msg.Channel, err)
				continue
			}
			select {
			case out <- &res:
			case <-ctx.Done():
				return
			}
		}
	}
}
