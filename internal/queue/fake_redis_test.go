// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hubbub Contributors

package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// fakeStreams implements Consumer in memory. Values written with XAdd are
// stored the way Redis returns them: every field as a string.
type fakeStreams struct {
	mu sync.Mutex

	added   map[string][]redis.XMessage
	acked   map[string][]string
	pending []redis.XPendingExt
	claimed []string
	groups  []string
	seq     int

	reads map[string]chan []redis.XMessage

	xaddErr    error
	groupErr   error
	pendingErr error
	claimErr   error
	sawCtxErr  error
}

func newFakeStreams() *fakeStreams {
	return &fakeStreams{
		added: make(map[string][]redis.XMessage),
		acked: make(map[string][]string),
		reads: make(map[string]chan []redis.XMessage),
	}
}

func stringify(values any) map[string]any {
	out := make(map[string]any)
	if m, ok := values.(map[string]any); ok {
		for k, v := range m {
			switch t := v.(type) {
			case []byte:
				out[k] = string(t)
			default:
				out[k] = fmt.Sprint(t)
			}
		}
	}
	return out
}

func (f *fakeStreams) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sawCtxErr = ctx.Err()
	if f.xaddErr != nil {
		cmd.SetErr(f.xaddErr)
		return cmd
	}
	f.seq++
	id := fmt.Sprintf("%d-0", f.seq)
	f.added[a.Stream] = append(f.added[a.Stream], redis.XMessage{ID: id, Values: stringify(a.Values)})
	cmd.SetVal(id)
	return cmd
}

func (f *fakeStreams) XGroupCreateMkStream(ctx context.Context, stream, group, _ string) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.groupErr != nil {
		cmd.SetErr(f.groupErr)
		return cmd
	}
	f.groups = append(f.groups, stream+"/"+group)
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeStreams) readChan(stream string) chan []redis.XMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.reads[stream]
	if !ok {
		ch = make(chan []redis.XMessage, 8)
		f.reads[stream] = ch
	}
	return ch
}

// deliver queues msgs for the next XReadGroup on stream.
func (f *fakeStreams) deliver(stream string, msgs ...redis.XMessage) {
	f.readChan(stream) <- msgs
}

func (f *fakeStreams) XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd {
	cmd := redis.NewXStreamSliceCmd(ctx)
	stream := a.Streams[0]
	select {
	case <-ctx.Done():
		cmd.SetErr(ctx.Err())
	case msgs := <-f.readChan(stream):
		cmd.SetVal([]redis.XStream{{Stream: stream, Messages: msgs}})
	}
	return cmd
}

func (f *fakeStreams) XAck(ctx context.Context, stream, _ string, ids ...string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked[stream] = append(f.acked[stream], ids...)
	cmd.SetVal(int64(len(ids)))
	return cmd
}

func (f *fakeStreams) XPendingExt(ctx context.Context, _ *redis.XPendingExtArgs) *redis.XPendingExtCmd {
	cmd := redis.NewXPendingExtCmd(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pendingErr != nil {
		cmd.SetErr(f.pendingErr)
		return cmd
	}
	cmd.SetVal(f.pending)
	return cmd
}

func (f *fakeStreams) XClaim(ctx context.Context, a *redis.XClaimArgs) *redis.XMessageSliceCmd {
	cmd := redis.NewXMessageSliceCmd(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimErr != nil {
		cmd.SetErr(f.claimErr)
		return cmd
	}
	f.claimed = append(f.claimed, a.Messages...)
	var out []redis.XMessage
	for _, id := range a.Messages {
		for _, msgs := range f.added {
			for _, m := range msgs {
				if m.ID == id {
					out = append(out, m)
				}
			}
		}
	}
	cmd.SetVal(out)
	return cmd
}

func (f *fakeStreams) ackedIDs(stream string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.acked[stream]...)
}

func (f *fakeStreams) messages(stream string) []redis.XMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]redis.XMessage(nil), f.added[stream]...)
}
