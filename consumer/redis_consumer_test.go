package consumer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mohitkumar/stepflow/maintenance"
	"github.com/mohitkumar/stepflow/model"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu      sync.Mutex
	batches [][]model.Message
	errs    []error
	reads   int
	acked   []string
}

func (f *fakeSource) Read(ctx context.Context, maxWait time.Duration) ([]model.Message, error) {
	f.mu.Lock()
	f.reads++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		f.mu.Unlock()
		return nil, err
	}
	if len(f.batches) == 0 {
		f.mu.Unlock()
		time.Sleep(maxWait)
		return nil, nil
	}
	b := f.batches[0]
	f.batches = f.batches[1:]
	f.mu.Unlock()
	return b, nil
}

func (f *fakeSource) Acknowledge(ctx context.Context, messageId string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, messageId)
	return nil
}

func (f *fakeSource) ackedIds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.acked...)
}

func (f *fakeSource) readCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

type fakeListener struct {
	mu       sync.Mutex
	handled  []string
	results  map[string]bool
	panicsOn string
}

func (l *fakeListener) IsProcessable(msg model.Message) bool {
	return msg.Topic == model.TOPIC_ADVISE
}

func (l *fakeListener) HandleMessage(msg model.Message) bool {
	l.mu.Lock()
	l.handled = append(l.handled, msg.Id)
	l.mu.Unlock()
	if msg.Id == l.panicsOn {
		panic("listener blew up")
	}
	if r, ok := l.results[msg.Id]; ok {
		return r
	}
	return true
}

func (l *fakeListener) handledIds() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string{}, l.handled...)
}

func advise(id string) model.Message {
	return model.Message{Id: id, Topic: model.TOPIC_ADVISE}
}

func newTestConsumer(source Consumer, listener MessageListener, mc *maintenance.Controller) *RedisConsumer {
	return NewRedisConsumer("test-consumer", source, listener, NewEventsCache(time.Minute), mc, Options{
		ReadWait:          10 * time.Millisecond,
		FrameworkDownWait: 10 * time.Millisecond,
		MaintenanceWait:   10 * time.Millisecond,
	})
}

func TestRedisConsumer(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T){
		"acks only successful first deliveries":  testAckContract,
		"duplicates are counted and not handled": testDuplicates,
		"handler panic is not acked":             testHandlerPanic,
		"framework down backs off and recovers":  testFrameworkDown,
		"maintenance pauses polling":             testMaintenance,
		"other read errors keep the loop alive":  testOtherReadError,
	} {
		t.Run(scenario, fn)
	}
}

func testAckContract(t *testing.T) {
	source := &fakeSource{batches: [][]model.Message{{
		advise("1-0"),
		{Id: "2-0", Topic: "other"},
		advise("3-0"),
	}}}
	listener := &fakeListener{results: map[string]bool{"3-0": false}}
	rc := newTestConsumer(source, listener, nil)

	require.NoError(t, rc.PollAndProcessMessages(context.Background()))
	require.Equal(t, []string{"1-0", "3-0"}, listener.handledIds())
	require.Equal(t, []string{"1-0"}, source.ackedIds())
}

func testDuplicates(t *testing.T) {
	source := &fakeSource{batches: [][]model.Message{
		{advise("1-0")},
		{advise("1-0")},
		{advise("1-0")},
	}}
	listener := &fakeListener{}
	rc := newTestConsumer(source, listener, nil)

	for i := 0; i < 3; i++ {
		require.NoError(t, rc.PollAndProcessMessages(context.Background()))
	}
	require.Equal(t, []string{"1-0"}, listener.handledIds())
	require.Equal(t, []string{"1-0"}, source.ackedIds())
	require.Equal(t, 2, rc.DuplicateCount("1-0"))
}

func testHandlerPanic(t *testing.T) {
	source := &fakeSource{batches: [][]model.Message{{advise("1-0"), advise("2-0")}}}
	listener := &fakeListener{panicsOn: "1-0"}
	rc := newTestConsumer(source, listener, nil)

	require.NoError(t, rc.PollAndProcessMessages(context.Background()))
	require.Equal(t, []string{"1-0", "2-0"}, listener.handledIds())
	require.Equal(t, []string{"2-0"}, source.ackedIds())
}

func testFrameworkDown(t *testing.T) {
	source := &fakeSource{
		errs:    []error{EventsFrameworkDownError{Err: errors.New("connection refused")}},
		batches: [][]model.Message{{advise("1-0")}},
	}
	listener := &fakeListener{}
	rc := newTestConsumer(source, listener, nil)

	done := make(chan struct{})
	go func() {
		rc.Run(context.Background())
		close(done)
	}()
	require.Eventually(t, func() bool {
		return len(source.ackedIds()) == 1
	}, 5*time.Second, 10*time.Millisecond)
	rc.ShutDown()
	rc.ShutDown()
	<-done
}

func testMaintenance(t *testing.T) {
	source := &fakeSource{batches: [][]model.Message{{advise("1-0")}}}
	listener := &fakeListener{}
	mc := maintenance.NewController()
	mc.Set(true)
	rc := newTestConsumer(source, listener, mc)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rc.Run(ctx)
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 0, source.readCount())

	mc.Set(false)
	require.Eventually(t, func() bool {
		return len(source.ackedIds()) == 1
	}, 5*time.Second, 10*time.Millisecond)
	cancel()
	<-done
}

func testOtherReadError(t *testing.T) {
	source := &fakeSource{
		errs:    []error{errors.New("decode failure")},
		batches: [][]model.Message{{advise("1-0")}},
	}
	listener := &fakeListener{}
	rc := newTestConsumer(source, listener, nil)

	done := make(chan struct{})
	go func() {
		rc.Run(context.Background())
		close(done)
	}()
	require.Eventually(t, func() bool {
		return len(source.ackedIds()) == 1
	}, 5*time.Second, 10*time.Millisecond)
	rc.ShutDown()
	<-done
}
