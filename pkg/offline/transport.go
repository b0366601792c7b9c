package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"github.com/go-resty/resty/v2"
)

// Sender 把一条变更交给服务端。实现负责自身的瞬时错误重试；
// 返回 *PermanentError 表示服务端明确拒绝，重放也不会成功
type Sender interface {
	Send(ctx context.Context, update Update) error
}

// PermanentError 服务端明确拒绝（4xx 或批量项校验失败）。
// 这类错误消耗重试次数，网络错误不消耗
type PermanentError struct {
	StatusCode int
	Message    string
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("server rejected update (%d): %s", e.StatusCode, e.Message)
}

func IsPermanent(err error) bool {
	var perm *PermanentError
	return errors.As(err, &perm)
}

type HTTPSender struct {
	client   *resty.Client
	attempts uint
}

func NewHTTPSender(baseURL, token string, retryAttempts uint) *HTTPSender {
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetHeader("Authorization", "Bearer "+token)
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(15 * time.Second)

	return &HTTPSender{
		client:   client,
		attempts: retryAttempts,
	}
}

type syncRequest struct {
	Updates []Update `json:"updates"`
}

// syncResponse 批量端点响应体里与投递结果相关的部分
type syncResponse struct {
	Data struct {
		Results []struct {
			Error string `json:"error"`
		} `json:"results"`
		Failed *int `json:"failedIndex"`
	} `json:"data"`
}

// Send 单条提交到批量端点。瞬时错误（网络、5xx）在这里按退避重试，
// 全部失败后原样返回，让队列保留该项
func (s *HTTPSender) Send(ctx context.Context, update Update) error {
	return retry.Do(
		func() error {
			resp, err := s.client.R().
				SetContext(ctx).
				SetBody(syncRequest{Updates: []Update{update}}).
				Post("/api/progress/sync")
			if err != nil {
				return err
			}

			code := resp.StatusCode()
			switch {
			case code >= 200 && code < 300:
				return batchOutcome(code, resp.Body())
			case code >= 400 && code < 500:
				return &PermanentError{StatusCode: code, Message: resp.String()}
			default:
				return fmt.Errorf("server error %d", code)
			}
		},
		retry.Attempts(s.attempts),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !IsPermanent(err)
		}),
		retry.Context(ctx),
	)
}

// batchOutcome 2xx 不等于送达：批量端点对校验失败也回 200，
// 失败只体现在响应体的 failedIndex 里。我们每次只投一条，
// failedIndex 非空就是本条被拒
func batchOutcome(code int, body []byte) error {
	var resp syncResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		// 读不懂的响应当作瞬时错误，宁可重试也不能误删队列项
		return fmt.Errorf("unexpected sync response: %w", err)
	}
	if resp.Data.Failed == nil {
		return nil
	}

	message := "update rejected"
	if i := *resp.Data.Failed; i >= 0 && i < len(resp.Data.Results) && resp.Data.Results[i].Error != "" {
		message = resp.Data.Results[i].Error
	}
	return &PermanentError{StatusCode: code, Message: message}
}
