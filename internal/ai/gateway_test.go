package ai

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	. "github.com/smartystreets/goconvey/convey"

	"ragchat/internal/config"
)

// fakeChatModel 记录调用并返回预设结果
type fakeChatModel struct {
	reply *schema.Message
	err   error
	calls int
	last  []*schema.Message
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.calls++
	f.last = input
	if f.err != nil {
		return nil, f.err
	}
	return f.reply, nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := f.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func reply(content string, in, out int) *schema.Message {
	return &schema.Message{
		Role:    schema.Assistant,
		Content: content,
		ResponseMeta: &schema.ResponseMeta{
			Usage: &schema.TokenUsage{PromptTokens: in, CompletionTokens: out, TotalTokens: in + out},
		},
	}
}

type statusErr struct{ code int }

func (e statusErr) Error() string   { return fmt.Sprintf("provider failed with %d", e.code) }
func (e statusErr) StatusCode() int { return e.code }

func TestGatewayInvoke(t *testing.T) {
	Convey("推理网关调用", t, func() {
		ctx := context.Background()
		backend := &fakeChatModel{reply: reply("hello", 12, 3)}
		resolver := NewProfileResolver("profile/", []config.ProfileConfig{
			{Name: "fast", Models: []string{"model-a", "model-b"}},
			{Name: "empty"},
		})
		gw := NewGateway(map[string]model.BaseChatModel{"model-a": backend}, resolver)

		Convey("直接模型 ID 调用成功并归一化用量", func() {
			resp, err := gw.Invoke(ctx, &InvokeRequest{
				ModelID:      "model-a",
				SystemPrompt: "you are helpful",
				Messages:     []*schema.Message{schema.UserMessage("hi")},
			})
			So(err, ShouldBeNil)
			So(resp.ModelID, ShouldEqual, "model-a")
			So(resp.Content, ShouldResemble, []string{"hello"})
			So(resp.Text(), ShouldEqual, "hello")
			So(resp.Usage, ShouldResemble, Usage{InputTokens: 12, OutputTokens: 3})
			So(resp.Usage.Total(), ShouldEqual, 15)

			So(backend.last, ShouldHaveLength, 2)
			So(backend.last[0].Role, ShouldEqual, schema.System)
			So(backend.last[0].Content, ShouldEqual, "you are helpful")
		})

		Convey("profile 引用解析为第一个后端模型，响应里不出现 profile", func() {
			resp, err := gw.Invoke(ctx, &InvokeRequest{
				ModelID:  "profile/fast",
				Messages: []*schema.Message{schema.UserMessage("hi")},
			})
			So(err, ShouldBeNil)
			So(resp.ModelID, ShouldEqual, "model-a")
		})

		Convey("未知 profile 返回 ResolutionError", func() {
			_, err := gw.Invoke(ctx, &InvokeRequest{ModelID: "profile/missing"})
			var resErr *ResolutionError
			So(errors.As(err, &resErr), ShouldBeTrue)
			So(backend.calls, ShouldEqual, 0)
		})

		Convey("空 profile 返回 ResolutionError", func() {
			_, err := gw.Invoke(ctx, &InvokeRequest{ModelID: "profile/empty"})
			var resErr *ResolutionError
			So(errors.As(err, &resErr), ShouldBeTrue)
		})

		Convey("guardrail 参数不成对时在调用前失败", func() {
			_, err := gw.Invoke(ctx, &InvokeRequest{ModelID: "model-a", GuardrailID: "gr-1"})
			var cfgErr *InvalidConfigurationError
			So(errors.As(err, &cfgErr), ShouldBeTrue)

			_, err = gw.Invoke(ctx, &InvokeRequest{ModelID: "model-a", GuardrailVersion: "1"})
			So(errors.As(err, &cfgErr), ShouldBeTrue)
			So(backend.calls, ShouldEqual, 0)
		})

		Convey("guardrail 参数成对时正常调用", func() {
			_, err := gw.Invoke(ctx, &InvokeRequest{ModelID: "model-a", GuardrailID: "gr-1", GuardrailVersion: "1"})
			So(err, ShouldBeNil)
			So(backend.calls, ShouldEqual, 1)
		})

		Convey("4xx 错误归类为 InvalidRequestError 并保留状态码", func() {
			backend.err = statusErr{code: 429}
			_, err := gw.Invoke(ctx, &InvokeRequest{ModelID: "model-a"})
			var invalid *InvalidRequestError
			So(errors.As(err, &invalid), ShouldBeTrue)
			So(invalid.StatusCode, ShouldEqual, 429)
			So(ProviderStatusCode(err), ShouldEqual, 429)
		})

		Convey("5xx 错误归类为 InferenceUnavailableError", func() {
			backend.err = errors.New("error, status code: 503, message: service unavailable")
			_, err := gw.Invoke(ctx, &InvokeRequest{ModelID: "model-a"})
			var unavailable *InferenceUnavailableError
			So(errors.As(err, &unavailable), ShouldBeTrue)
			So(unavailable.StatusCode, ShouldEqual, 503)
		})

		Convey("没有状态码的网络错误归类为不可用", func() {
			backend.err = errors.New("connection reset by peer")
			_, err := gw.Invoke(ctx, &InvokeRequest{ModelID: "model-a"})
			So(IsProviderError(err), ShouldBeTrue)
			So(ProviderStatusCode(err), ShouldEqual, 0)
		})

		Convey("HasModel 判断引用能否落到后端", func() {
			So(gw.HasModel(ctx, "model-a"), ShouldBeTrue)
			So(gw.HasModel(ctx, "profile/fast"), ShouldBeTrue)
			So(gw.HasModel(ctx, "model-z"), ShouldBeFalse)
			So(gw.HasModel(ctx, "profile/empty"), ShouldBeFalse)
		})
	})
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantInvalid bool
		wantCode    int
	}{
		{"status coder 400", statusErr{code: 400}, true, 400},
		{"text 404", errors.New("error, status code: 404, message: not found"), true, 404},
		{"text 500", errors.New("error, status code: 500, message: boom"), false, 500},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), false, 504},
		{"plain", errors.New("eof"), false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyError(tt.err)
			var invalid *InvalidRequestError
			if isInvalid := errors.As(got, &invalid); isInvalid != tt.wantInvalid {
				t.Fatalf("invalid = %v, want %v", isInvalid, tt.wantInvalid)
			}
			if code := ProviderStatusCode(got); code != tt.wantCode {
				t.Fatalf("code = %d, want %d", code, tt.wantCode)
			}
		})
	}
}
