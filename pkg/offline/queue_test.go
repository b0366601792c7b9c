package offline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSender 按 mutationId 返回预设错误，并记录送达顺序
type fakeSender struct {
	mu       sync.Mutex
	sent     []string
	failWith map[string]error
}

func newFakeSender() *fakeSender {
	return &fakeSender{failWith: make(map[string]error)}
}

func (f *fakeSender) Send(_ context.Context, update Update) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failWith[update.MutationID]; ok {
		return err
	}
	f.sent = append(f.sent, update.MutationID)
	return nil
}

func (f *fakeSender) sentIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func newTestQueue(t *testing.T, sender Sender, opts Options) (*Queue, *Store) {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewQueue(store, sender, nil, opts), store
}

func TestDrainSendsInFIFOOrder(t *testing.T) {
	sender := newFakeSender()
	queue, _ := newTestQueue(t, sender, Options{})

	var ids []string
	for i := 0; i < 3; i++ {
		item, err := queue.Enqueue(Update{LessonID: 1, PercentComplete: (i + 1) * 10})
		require.NoError(t, err)
		ids = append(ids, item.MutationID)
	}

	require.NoError(t, queue.Drain(context.Background()))

	assert.Equal(t, ids, sender.sentIDs())
	pending, err := queue.Pending()
	require.NoError(t, err)
	assert.EqualValues(t, 0, pending)
}

func TestEnqueueAssignsMutationID(t *testing.T) {
	queue, _ := newTestQueue(t, newFakeSender(), Options{})

	item, err := queue.Enqueue(Update{LessonID: 1})
	require.NoError(t, err)
	assert.NotEmpty(t, item.MutationID)

	update, err := item.Decode()
	require.NoError(t, err)
	assert.Equal(t, item.MutationID, update.MutationID)
}

func TestDrainHaltsOnTransientError(t *testing.T) {
	sender := newFakeSender()
	queue, store := newTestQueue(t, sender, Options{})

	a, err := queue.Enqueue(Update{LessonID: 1, PercentComplete: 10})
	require.NoError(t, err)
	b, err := queue.Enqueue(Update{LessonID: 1, PercentComplete: 20})
	require.NoError(t, err)
	_, err = queue.Enqueue(Update{LessonID: 1, PercentComplete: 30})
	require.NoError(t, err)

	netErr := errors.New("connection refused")
	sender.failWith[b.MutationID] = netErr

	err = queue.Drain(context.Background())
	assert.ErrorIs(t, err, netErr)

	// A 已确认删除，B 留在队头，C 原封不动
	assert.Equal(t, []string{a.MutationID}, sender.sentIDs())
	pending, err := queue.Pending()
	require.NoError(t, err)
	assert.EqualValues(t, 2, pending)

	head, err := store.Oldest()
	require.NoError(t, err)
	assert.Equal(t, b.MutationID, head.MutationID)
	// 网络错误不消耗重试次数
	assert.Equal(t, 0, head.Attempts)

	// 网络恢复后续传剩余两条
	delete(sender.failWith, b.MutationID)
	require.NoError(t, queue.Drain(context.Background()))
	pending, err = queue.Pending()
	require.NoError(t, err)
	assert.EqualValues(t, 0, pending)
}

func TestDrainDeadLettersRejectedItem(t *testing.T) {
	sender := newFakeSender()
	queue, store := newTestQueue(t, sender, Options{MaxRetries: 2})

	bad, err := queue.Enqueue(Update{LessonID: 1, PercentComplete: 200})
	require.NoError(t, err)
	good, err := queue.Enqueue(Update{LessonID: 1, PercentComplete: 50})
	require.NoError(t, err)

	reject := &PermanentError{StatusCode: 400, Message: "percent out of range"}
	sender.failWith[bad.MutationID] = reject

	// 第一次被拒：计一次失败，停止本轮
	err = queue.Drain(context.Background())
	require.Error(t, err)
	assert.True(t, IsPermanent(err))

	head, err := store.Oldest()
	require.NoError(t, err)
	assert.Equal(t, 1, head.Attempts)

	// 第二次达到上限：转死信，后面的项继续送达
	require.NoError(t, queue.Drain(context.Background()))

	assert.Equal(t, []string{good.MutationID}, sender.sentIDs())
	pending, err := queue.Pending()
	require.NoError(t, err)
	assert.EqualValues(t, 0, pending)

	dead, err := store.DeadItems()
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, bad.MutationID, dead[0].MutationID)
	assert.Contains(t, dead[0].LastError, "percent out of range")
}

func TestQueueSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.db")

	store, err := OpenStore(path)
	require.NoError(t, err)
	queue := NewQueue(store, newFakeSender(), nil, Options{})

	item, err := queue.Enqueue(Update{LessonID: 7, TimeSpentSeconds: 90})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// 客户端重启
	reopened, err := OpenStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	head, err := reopened.Oldest()
	require.NoError(t, err)
	assert.Equal(t, item.MutationID, head.MutationID)

	update, err := head.Decode()
	require.NoError(t, err)
	assert.EqualValues(t, 7, update.LessonID)
	assert.Equal(t, 90, update.TimeSpentSeconds)
}

func TestDrainDeadLettersBatchRejectionFromRealEndpoint(t *testing.T) {
	// 走真实 HTTPSender：服务端按批量端点的实际响应形状回 200 +
	// failedIndex。被拒的变更必须进死信，绝不能被当成功删掉
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"code":200,"message":"success","data":{"results":[{"index":0,"error":"task number must be between 1 and 5"}],"applied":0,"failedIndex":0}}`))
	}))
	defer server.Close()

	queue, store := newTestQueue(t, NewHTTPSender(server.URL, "token", 1), Options{MaxRetries: 1})

	badTask := 9
	item, err := queue.Enqueue(Update{LessonID: 1, TaskNumber: &badTask, PercentComplete: 50})
	require.NoError(t, err)

	require.NoError(t, queue.Drain(context.Background()))

	pending, err := queue.Pending()
	require.NoError(t, err)
	assert.EqualValues(t, 0, pending)

	dead, err := store.DeadItems()
	require.NoError(t, err)
	require.Len(t, dead, 1, "被拒的变更必须留在死信里，不能无声消失")
	assert.Equal(t, item.MutationID, dead[0].MutationID)
	assert.Contains(t, dead[0].LastError, "task number must be between 1 and 5")
}

// blockingSender 第一次调用挂起，用于验证同一时刻只有一轮上报
type blockingSender struct {
	mu      sync.Mutex
	calls   int
	started chan struct{}
	release chan struct{}
}

func (b *blockingSender) Send(_ context.Context, _ Update) error {
	b.mu.Lock()
	b.calls++
	first := b.calls == 1
	b.mu.Unlock()
	if first {
		close(b.started)
		<-b.release
	}
	return nil
}

func TestDrainSingleFlight(t *testing.T) {
	sender := &blockingSender{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	queue, _ := newTestQueue(t, sender, Options{})

	_, err := queue.Enqueue(Update{LessonID: 1})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- queue.Drain(context.Background())
	}()
	<-sender.started

	// 第一轮还挂在发送上，重入直接返回且不会再次发送
	require.NoError(t, queue.Drain(context.Background()))
	sender.mu.Lock()
	assert.Equal(t, 1, sender.calls)
	sender.mu.Unlock()

	close(sender.release)
	require.NoError(t, <-done)
}
