package offline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeBatchOK(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"code":200,"message":"success","data":{"results":[{"index":0}],"applied":1,"xpAwarded":10}}`))
}

func TestHTTPSenderPostsSingleItemBatch(t *testing.T) {
	var got syncRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/progress/sync", r.URL.Path)
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeBatchOK(w)
	}))
	defer server.Close()

	sender := NewHTTPSender(server.URL, "token-1", 3)
	err := sender.Send(context.Background(), Update{
		LessonID:        4,
		MutationID:      "m-1",
		PercentComplete: 60,
	})
	require.NoError(t, err)

	require.Len(t, got.Updates, 1)
	assert.Equal(t, "m-1", got.Updates[0].MutationID)
	assert.EqualValues(t, 4, got.Updates[0].LessonID)
}

func TestHTTPSenderRetriesServerErrors(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeBatchOK(w)
	}))
	defer server.Close()

	sender := NewHTTPSender(server.URL, "token", 5)
	err := sender.Send(context.Background(), Update{LessonID: 1, MutationID: "m-2"})
	require.NoError(t, err)
	assert.EqualValues(t, 3, atomic.LoadInt32(&hits))
}

func TestHTTPSenderDoesNotRetryClientErrors(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	sender := NewHTTPSender(server.URL, "token", 5)
	err := sender.Send(context.Background(), Update{LessonID: 1, MutationID: "m-3"})

	require.Error(t, err)
	assert.True(t, IsPermanent(err))
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits), "4xx 不重试")
}

func TestHTTPSenderSurfacesBatchItemRejection(t *testing.T) {
	// 批量端点对校验失败也回 200，失败藏在 failedIndex 里；
	// 光看状态码会把被拒的变更当成功确认掉
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"code":200,"message":"success","data":{"results":[{"index":0,"error":"percent complete must be between 0 and 100"}],"applied":0,"failedIndex":0}}`))
	}))
	defer server.Close()

	sender := NewHTTPSender(server.URL, "token", 5)
	err := sender.Send(context.Background(), Update{LessonID: 1, MutationID: "m-4", PercentComplete: 200})

	require.Error(t, err)
	assert.True(t, IsPermanent(err), "服务端拒绝必须按永久错误处理")
	assert.Contains(t, err.Error(), "percent complete must be between 0 and 100")
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits), "服务端明确拒绝不重试")
}

func TestHTTPSenderRejectsUnreadableResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	sender := NewHTTPSender(server.URL, "token", 1)
	err := sender.Send(context.Background(), Update{LessonID: 1, MutationID: "m-5"})

	// 读不懂的响应不能当成功：按瞬时错误返回，队列保留该项
	require.Error(t, err)
	assert.False(t, IsPermanent(err))
}
