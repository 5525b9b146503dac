package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/smartystreets/goconvey/convey"

	"ragchat/internal/config"
	"ragchat/internal/model/chat"
	httputil "ragchat/internal/pkg/http"
	"ragchat/internal/pkg/queue"
	"ragchat/internal/repository/conversation"
	"ragchat/internal/service"
)

type nopQueue struct{ sent int }

func (q *nopQueue) Send(context.Context, []byte) (string, error) {
	q.sent++
	return "1-0", nil
}

func (q *nopQueue) Receive(context.Context, int64, time.Duration) ([]queue.Message, error) {
	return nil, nil
}

func (q *nopQueue) Delete(context.Context, string) error { return nil }

type memFeedbackRepo struct{ saved []*chat.Feedback }

func (m *memFeedbackRepo) Create(_ context.Context, fb *chat.Feedback) error {
	m.saved = append(m.saved, fb)
	return nil
}

func newTestRouter(repo conversation.ConversationRepository, q queue.Queue) *gin.Engine {
	gin.SetMode(gin.TestMode)
	models := service.NewModelService([]config.AvailableModel{{ID: "gpt-4o-mini", Name: "GPT-4o mini"}})
	h := NewHandler(
		service.NewChatService(repo, q, models, nil),
		models,
		service.NewFeedbackService(&memFeedbackRepo{}, repo),
	)

	r := gin.New()
	v1 := r.Group("/api/v1")
	v1.POST("/chat", h.SubmitChat)
	v1.GET("/conversations/:conversation_id", h.GetConversation)
	v1.GET("/models", h.ListModels)
	v1.POST("/feedback", h.SubmitFeedback)
	return r
}

func doJSON(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestChatHandlers(t *testing.T) {
	Convey("对话接口", t, func() {
		repo := conversation.NewMemoryRepo()
		q := &nopQueue{}
		r := newTestRouter(repo, q)

		Convey("提交返回 202，轮询看到 queued 消息", func() {
			w := doJSON(r, http.MethodPost, "/api/v1/chat", map[string]string{"question": "What is AI?", "model_id": "gpt-4o-mini"})
			So(w.Code, ShouldEqual, http.StatusAccepted)

			var submitted SubmitChatResponse
			So(json.Unmarshal(w.Body.Bytes(), &submitted), ShouldBeNil)
			So(submitted.Status, ShouldEqual, "queued")
			So(q.sent, ShouldEqual, 1)

			w = doJSON(r, http.MethodGet, "/api/v1/conversations/"+submitted.ConversationID, nil)
			So(w.Code, ShouldEqual, http.StatusOK)

			var conv ConversationResponse
			So(json.Unmarshal(w.Body.Bytes(), &conv), ShouldBeNil)
			So(conv.ConversationID, ShouldEqual, submitted.ConversationID)
			So(conv.Messages, ShouldHaveLength, 1)
			So(conv.Messages[0].MessageID, ShouldEqual, submitted.MessageID)
			So(conv.Messages[0].Role, ShouldEqual, "user")
			So(conv.Messages[0].Status, ShouldEqual, "queued")
			So(conv.Messages[0].ModelName, ShouldEqual, "GPT-4o mini")
		})

		Convey("失败的消息返回错误信息", func() {
			res, _ := doJSONResult(r, map[string]string{"question": "q", "model_id": "gpt-4o-mini"})
			So(repo.UpdateMessageStatus(context.Background(), res.ConversationID, res.MessageID, chat.MessageStatusFailed, "throttled", 429), ShouldBeNil)

			w := doJSON(r, http.MethodGet, "/api/v1/conversations/"+res.ConversationID, nil)
			var conv ConversationResponse
			So(json.Unmarshal(w.Body.Bytes(), &conv), ShouldBeNil)
			So(conv.Messages[0].Status, ShouldEqual, "failed")
			So(conv.Messages[0].ErrorCode, ShouldEqual, 429)
			So(conv.Messages[0].ErrorMessage, ShouldEqual, "throttled")
		})

		Convey("不支持的模型返回 400", func() {
			w := doJSON(r, http.MethodPost, "/api/v1/chat", map[string]string{"question": "q", "model_id": "nope"})
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			var resp httputil.ErrorResponse
			So(json.Unmarshal(w.Body.Bytes(), &resp), ShouldBeNil)
			So(resp.Code, ShouldEqual, httputil.CodeUnsupportedModel)
			So(q.sent, ShouldEqual, 0)
		})

		Convey("缺少问题返回 400", func() {
			w := doJSON(r, http.MethodPost, "/api/v1/chat", map[string]string{"model_id": "gpt-4o-mini"})
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("空白问题返回 400", func() {
			w := doJSON(r, http.MethodPost, "/api/v1/chat", map[string]string{"question": "   ", "model_id": "gpt-4o-mini"})
			So(w.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("未知对话返回 404", func() {
			w := doJSON(r, http.MethodPost, "/api/v1/chat", map[string]string{"question": "q", "model_id": "gpt-4o-mini", "conversation_id": "missing"})
			So(w.Code, ShouldEqual, http.StatusNotFound)

			w = doJSON(r, http.MethodGet, "/api/v1/conversations/missing", nil)
			So(w.Code, ShouldEqual, http.StatusNotFound)
			var resp httputil.ErrorResponse
			So(json.Unmarshal(w.Body.Bytes(), &resp), ShouldBeNil)
			So(resp.Code, ShouldEqual, httputil.CodeConversationNotFound)
		})

		Convey("模型目录", func() {
			w := doJSON(r, http.MethodGet, "/api/v1/models", nil)
			So(w.Code, ShouldEqual, http.StatusOK)
			var resp ListModelsResponse
			So(json.Unmarshal(w.Body.Bytes(), &resp), ShouldBeNil)
			So(resp.Models, ShouldHaveLength, 1)
			So(resp.Models[0].ID, ShouldEqual, "gpt-4o-mini")
		})

		Convey("反馈", func() {
			w := doJSON(r, http.MethodPost, "/api/v1/feedback", map[string]string{"was_helpful": "useful", "comment": "thanks"})
			So(w.Code, ShouldEqual, http.StatusCreated)

			w = doJSON(r, http.MethodPost, "/api/v1/feedback", map[string]string{"was_helpful": "amazing"})
			So(w.Code, ShouldEqual, http.StatusBadRequest)

			w = doJSON(r, http.MethodPost, "/api/v1/feedback", map[string]string{"was_helpful": "useful", "conversation_id": "missing"})
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func doJSONResult(r http.Handler, body any) (SubmitChatResponse, int) {
	w := doJSON(r, http.MethodPost, "/api/v1/chat", body)
	var res SubmitChatResponse
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	return res, w.Code
}

func TestToMessageInfo(t *testing.T) {
	Convey("按角色转换消息", t, func() {
		usage := chat.TokenUsage{InputTokens: 1, OutputTokens: 2, TotalTokens: 3}
		assistant := chat.NewAssistantMessage("answer", "m", "M", usage, []chat.Source{{Name: "doc"}})
		info := toMessageInfo(&assistant)
		So(info.Status, ShouldEqual, "completed")
		So(info.Usage, ShouldNotBeNil)
		So(info.Sources, ShouldHaveLength, 1)

		legacy := chat.Message{Role: chat.RoleUser, Content: "old"}
		So(toMessageInfo(&legacy).Status, ShouldEqual, "completed")

		queued := chat.NewUserMessage("q", "m", "M")
		queued.ErrorMessage = "stale"
		So(toMessageInfo(&queued).ErrorMessage, ShouldEqual, "")
	})
}
