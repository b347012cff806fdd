package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/skillcall/internal/core"
	"github.com/dkeye/skillcall/internal/core/coremock"
	"github.com/dkeye/skillcall/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fakeConn struct {
	id core.ConnID

	mu     sync.Mutex
	frames []core.Frame
	closed bool
	block  bool
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: core.ConnID(id)} }

func (f *fakeConn) ID() core.ConnID      { return f.id }
func (f *fakeConn) Meta() *domain.Member { return domain.NewMember(domain.UserID("u-"+f.id), "") }

func (f *fakeConn) Send(ctx context.Context, fr core.Frame) error {
	f.mu.Lock()
	block := f.block
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("closed")
	}
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeConn) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeConn) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.frames))
	for i, fr := range f.frames {
		out[i] = string(fr)
	}
	return out
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func TestRelay_BroadcastExcludesSender(t *testing.T) {
	r := NewRelay(RelayConfig{})
	a, b, c := newFakeConn("a"), newFakeConn("b"), newFakeConn("c")
	for _, conn := range []*fakeConn{a, b, c} {
		require.NoError(t, r.Join("room", conn))
	}

	res := r.Broadcast(context.Background(), "room", core.Frame(`{"type":"offer"}`), "a")

	assert.Equal(t, 2, res.SentTo)
	assert.Empty(t, res.Dropped)
	assert.Empty(t, a.received())
	assert.Equal(t, []string{`{"type":"offer"}`}, b.received())
	assert.Equal(t, []string{`{"type":"offer"}`}, c.received())
}

func TestRelay_BroadcastToMissingRoomIsNoop(t *testing.T) {
	r := NewRelay(RelayConfig{})
	res := r.Broadcast(context.Background(), "nope", core.Frame("x"), "")
	assert.Equal(t, core.PublishResult{}, res)
}

func TestRelay_PerSenderOrder(t *testing.T) {
	r := NewRelay(RelayConfig{})
	a, b := newFakeConn("a"), newFakeConn("b")
	require.NoError(t, r.Join("room", a))
	require.NoError(t, r.Join("room", b))

	var want []string
	for i := range 20 {
		msg := fmt.Sprintf(`{"n":%d}`, i)
		want = append(want, msg)
		r.Broadcast(context.Background(), "room", core.Frame(msg), "a")
	}
	assert.Equal(t, want, b.received())
}

func TestRelay_FailingMemberIsRemoved(t *testing.T) {
	ctrl := gomock.NewController(t)
	bad := coremock.NewMockConnection(ctrl)
	bad.EXPECT().ID().Return(core.ConnID("bad")).AnyTimes()
	bad.EXPECT().Meta().Return(domain.NewMember("mallory", "")).AnyTimes()
	bad.EXPECT().Send(gomock.Any(), gomock.Any()).Return(errors.New("broken pipe")).Times(1)
	bad.EXPECT().Close().Times(1)

	r := NewRelay(RelayConfig{})
	good, sender := newFakeConn("good"), newFakeConn("sender")
	require.NoError(t, r.Join("room", sender))
	require.NoError(t, r.Join("room", good))
	require.NoError(t, r.Join("room", bad))

	res := r.Broadcast(context.Background(), "room", core.Frame("hello"), "sender")

	assert.Equal(t, 1, res.SentTo)
	require.Len(t, res.Dropped, 1)
	assert.Equal(t, core.ConnID("bad"), res.Dropped[0].ID())
	assert.Equal(t, []string{"hello"}, good.received())
	assert.Len(t, r.Members("room"), 2)
	_, bound := r.RoomOf("bad")
	assert.False(t, bound)

	r.Broadcast(context.Background(), "room", core.Frame("again"), "sender")
	assert.Equal(t, []string{"hello", "again"}, good.received())
}

func TestRelay_StalledMemberDoesNotBlockOthers(t *testing.T) {
	r := NewRelay(RelayConfig{SendTimeout: 50 * time.Millisecond})
	slow, fast := newFakeConn("slow"), newFakeConn("fast")
	slow.block = true
	require.NoError(t, r.Join("room", slow))
	require.NoError(t, r.Join("room", fast))

	start := time.Now()
	res := r.Broadcast(context.Background(), "room", core.Frame("x"), "")
	assert.Less(t, time.Since(start), time.Second)

	assert.Equal(t, 1, res.SentTo)
	assert.Equal(t, []string{"x"}, fast.received())
	assert.True(t, slow.isClosed())
	assert.Len(t, r.Members("room"), 1)
}

type keepPolicy struct{}

func (keepPolicy) OnDeliveryFailure(domain.RoomName, core.Connection, error) DeliveryAction {
	return NoAction
}

func TestRelay_PolicyCanKeepMember(t *testing.T) {
	r := NewRelay(RelayConfig{SendTimeout: 10 * time.Millisecond, Policy: keepPolicy{}})
	slow := newFakeConn("slow")
	slow.block = true
	require.NoError(t, r.Join("room", slow))

	res := r.Broadcast(context.Background(), "room", core.Frame("x"), "")
	assert.Len(t, res.Dropped, 1)
	assert.False(t, slow.isClosed())
	assert.Len(t, r.Members("room"), 1)
}

func TestRelay_JoinIsIdempotentAndSingleRoom(t *testing.T) {
	r := NewRelay(RelayConfig{})
	a := newFakeConn("a")
	require.NoError(t, r.Join("one", a))
	require.NoError(t, r.Join("one", a))
	assert.Len(t, r.Members("one"), 1)

	err := r.Join("two", a)
	assert.ErrorIs(t, err, core.ErrAlreadyBound)
	assert.Empty(t, r.Members("two"))
	assert.Len(t, r.List(), 1, "failed join does not leave an empty room behind")
}

func TestRelay_LeaveAndGC(t *testing.T) {
	r := NewRelay(RelayConfig{})
	a, b := newFakeConn("a"), newFakeConn("b")
	require.NoError(t, r.Join("room", a))
	require.NoError(t, r.Join("room", b))

	r.Leave("room", "a")
	r.Leave("room", "a")
	r.Leave("other", "b")
	assert.Len(t, r.Members("room"), 1)

	r.Leave("room", "b")
	assert.Empty(t, r.List())
	assert.Nil(t, r.Members("room"))

	require.NoError(t, r.Join("room", a), "a removed room is recreated on join")
	assert.Len(t, r.Members("room"), 1)
}

func TestRelay_Capacity(t *testing.T) {
	r := NewRelay(RelayConfig{})
	r.Open("room", 2)
	require.NoError(t, r.Join("room", newFakeConn("a")))
	require.NoError(t, r.Join("room", newFakeConn("b")))
	err := r.Join("room", newFakeConn("c"))
	assert.ErrorIs(t, err, core.ErrRoomFull)
	assert.Len(t, r.Members("room"), 2)

	for i := range 5 {
		require.NoError(t, r.Join("open", newFakeConn(fmt.Sprintf("o%d", i))), "rooms without a registered capacity are unbounded")
	}
}

func TestRelay_CloseEvicts(t *testing.T) {
	r := NewRelay(RelayConfig{})
	r.Open("room", 2)
	a, b := newFakeConn("a"), newFakeConn("b")
	require.NoError(t, r.Join("room", a))
	require.NoError(t, r.Join("room", b))

	assert.Equal(t, 2, r.Close("room"))
	assert.True(t, a.isClosed())
	assert.True(t, b.isClosed())
	assert.Empty(t, r.List())
	assert.Equal(t, 0, r.Close("room"))
}

func TestRelay_ReopenAfterCloseRestoresCapacity(t *testing.T) {
	r := NewRelay(RelayConfig{})
	r.Open("room", 2)
	require.NoError(t, r.Join("room", newFakeConn("a")))
	r.Close("room")

	r.Open("room", 2)
	require.NoError(t, r.Join("room", newFakeConn("b")))
	require.NoError(t, r.Join("room", newFakeConn("c")))
	assert.ErrorIs(t, r.Join("room", newFakeConn("d")), core.ErrRoomFull)

	rooms := r.List()
	require.Len(t, rooms, 1)
	assert.Equal(t, 2, rooms[0].Capacity)
}

func TestRelay_Unicast(t *testing.T) {
	r := NewRelay(RelayConfig{})
	a := newFakeConn("a")
	require.NoError(t, r.Unicast(context.Background(), a, core.Frame("pong")))
	assert.Equal(t, []string{"pong"}, a.received())

	a.Close()
	err := r.Unicast(context.Background(), a, core.Frame("pong"))
	assert.ErrorIs(t, err, core.ErrDeliveryFailure)
}

func TestRelay_ConcurrentMembership(t *testing.T) {
	r := NewRelay(RelayConfig{})
	const n = 50
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := newFakeConn(fmt.Sprintf("c%d", i))
			for range 20 {
				if err := r.Join("room", c); err != nil {
					t.Error(err)
					return
				}
				r.Broadcast(context.Background(), "room", core.Frame("x"), c.ID())
				r.Leave("room", c.ID())
			}
		}()
	}
	wg.Wait()
	assert.Empty(t, r.List())
}
