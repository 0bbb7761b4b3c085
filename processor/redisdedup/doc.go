// Package redisdedup shares processed message IDs between processes through
// Redis, so that several clients logged in as the same identity dispatch a
// message once between them.
//
//	store, err := redisdedup.Dial(ctx, "localhost:6379")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//	p, err := processor.New(cfg, processor.WithDedupStore(store))
//
// Integration tests run Redis in a container and are behind the integration
// build tag:
//
//	go test -tags integration ./processor/redisdedup/...
package redisdedup
