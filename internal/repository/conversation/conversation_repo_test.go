package conversation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	. "github.com/smartystreets/goconvey/convey"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ragchat/internal/model/chat"
	"ragchat/internal/pkg/cache"
)

// testDB 设置 MONGO_URI 时在 TestMain 中初始化，否则 Mongo 相关测试跳过
var testDB *mongo.Database

// TestMain 运行 Mongo 集成测试：
//
//	MONGO_URI=mongodb://localhost:27017 go test ./internal/repository/conversation -v
func TestMain(m *testing.M) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		os.Exit(m.Run())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	cancel()
	if err != nil {
		panic(fmt.Sprintf("failed to connect to MongoDB: %v", err))
	}

	dbName := fmt.Sprintf("ragchat_test_%d", time.Now().UnixNano())
	testDB = client.Database(dbName)

	code := m.Run()

	_ = testDB.Drop(context.Background())
	_ = client.Disconnect(context.Background())
	os.Exit(code)
}

// repoContract 两种实现共用的行为约定
func repoContract(repo ConversationRepository) {
	ctx := context.Background()

	conv := chat.NewConversation()
	msg := chat.NewUserMessage("What is AI?", "gpt-4o-mini", "GPT-4o mini")
	conv.AddMessage(msg)
	So(repo.Save(ctx, conv), ShouldBeNil)

	Convey("抢占只有一个调用方成功", func() {
		var wins int32
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := repo.ClaimMessage(ctx, conv.ID, msg.MessageID)
				if err == nil && ok {
					atomic.AddInt32(&wins, 1)
				}
			}()
		}
		wg.Wait()
		So(wins, ShouldEqual, 1)

		status, ok, err := repo.GetMessageStatus(ctx, conv.ID, msg.MessageID)
		So(err, ShouldBeNil)
		So(ok, ShouldBeTrue)
		So(status, ShouldEqual, chat.MessageStatusProcessing)
	})

	Convey("已完成的消息不能再被抢占", func() {
		So(repo.UpdateMessageStatus(ctx, conv.ID, msg.MessageID, chat.MessageStatusCompleted, "", 0), ShouldBeNil)
		ok, err := repo.ClaimMessage(ctx, conv.ID, msg.MessageID)
		So(err, ShouldBeNil)
		So(ok, ShouldBeFalse)
	})

	Convey("failed 写入错误信息", func() {
		So(repo.UpdateMessageStatus(ctx, conv.ID, msg.MessageID, chat.MessageStatusFailed, "boom", 503), ShouldBeNil)
		loaded, err := repo.Get(ctx, conv.ID)
		So(err, ShouldBeNil)
		So(loaded.Messages[0].Status, ShouldEqual, chat.MessageStatusFailed)
		So(loaded.Messages[0].ErrorMessage, ShouldEqual, "boom")
		So(loaded.Messages[0].ErrorCode, ShouldEqual, 503)
	})

	Convey("追加消息不影响已有消息状态", func() {
		ok, _ := repo.ClaimMessage(ctx, conv.ID, msg.MessageID)
		So(ok, ShouldBeTrue)
		second := chat.NewUserMessage("and ML?", "gpt-4o-mini", "GPT-4o mini")
		So(repo.AppendMessages(ctx, conv.ID, second), ShouldBeNil)

		loaded, _ := repo.Get(ctx, conv.ID)
		So(loaded.Messages, ShouldHaveLength, 2)
		So(loaded.Messages[0].Status, ShouldEqual, chat.MessageStatusProcessing)
		So(loaded.Messages[1].Status, ShouldEqual, chat.MessageStatusQueued)
	})

	Convey("没有状态的历史消息视为 completed", func() {
		legacy := chat.Message{MessageID: "legacy-1", Role: chat.RoleUser, Content: "old", Timestamp: time.Now().UTC()}
		So(repo.AppendMessages(ctx, conv.ID, legacy), ShouldBeNil)
		status, ok, err := repo.GetMessageStatus(ctx, conv.ID, "legacy-1")
		So(err, ShouldBeNil)
		So(ok, ShouldBeTrue)
		So(status, ShouldEqual, chat.MessageStatusCompleted)
	})

	Convey("不存在的对话和消息", func() {
		_, err := repo.Get(ctx, "missing")
		var notFound *chat.ConversationNotFoundError
		So(errors.As(err, &notFound), ShouldBeTrue)

		_, ok, err := repo.GetMessageStatus(ctx, conv.ID, "missing")
		So(err, ShouldBeNil)
		So(ok, ShouldBeFalse)

		err = repo.AppendMessages(ctx, "missing", msg)
		So(errors.As(err, &notFound), ShouldBeTrue)
	})

	Convey("完成消息与追加回答是一次写入", func() {
		ok, _ := repo.ClaimMessage(ctx, conv.ID, msg.MessageID)
		So(ok, ShouldBeTrue)
		reply := chat.NewAssistantMessage("$5 per month", "gpt-4o-mini", "GPT-4o mini", chat.TokenUsage{TotalTokens: 3}, nil)

		completed, err := repo.CompleteMessage(ctx, conv.ID, msg.MessageID, reply)
		So(err, ShouldBeNil)
		So(completed, ShouldBeTrue)

		loaded, _ := repo.Get(ctx, conv.ID)
		So(loaded.Messages, ShouldHaveLength, 2)
		So(loaded.Messages[0].Status, ShouldEqual, chat.MessageStatusCompleted)
		So(loaded.Messages[0].ProcessingStartedAt, ShouldBeNil)
		So(loaded.Messages[1].Role, ShouldEqual, chat.RoleAssistant)
		So(loaded.Messages[1].Content, ShouldEqual, "$5 per month")

		Convey("重复完成不会追加第二条回答", func() {
			completed, err := repo.CompleteMessage(ctx, conv.ID, msg.MessageID, reply)
			So(err, ShouldBeNil)
			So(completed, ShouldBeFalse)
			loaded, _ := repo.Get(ctx, conv.ID)
			So(loaded.Messages, ShouldHaveLength, 2)
		})
	})

	Convey("未抢占的消息不能完成", func() {
		reply := chat.NewAssistantMessage("answer", "gpt-4o-mini", "GPT-4o mini", chat.TokenUsage{}, nil)
		completed, err := repo.CompleteMessage(ctx, conv.ID, msg.MessageID, reply)
		So(err, ShouldBeNil)
		So(completed, ShouldBeFalse)
		loaded, _ := repo.Get(ctx, conv.ID)
		So(loaded.Messages, ShouldHaveLength, 1)
	})

	Convey("卡住的消息被找到并恢复一次", func() {
		ok, _ := repo.ClaimMessage(ctx, conv.ID, msg.MessageID)
		So(ok, ShouldBeTrue)
		cutoff := time.Now().UTC().Add(time.Second)

		stale, err := repo.FindStaleProcessing(ctx, cutoff, 1000)
		So(err, ShouldBeNil)
		found := false
		for _, s := range stale {
			if s.Message.MessageID == msg.MessageID {
				found = true
			}
		}
		So(found, ShouldBeTrue)

		requeued, err := repo.RequeueMessage(ctx, conv.ID, msg.MessageID, cutoff)
		So(err, ShouldBeNil)
		So(requeued, ShouldBeTrue)
		requeued, _ = repo.RequeueMessage(ctx, conv.ID, msg.MessageID, cutoff)
		So(requeued, ShouldBeFalse)

		status, _, _ := repo.GetMessageStatus(ctx, conv.ID, msg.MessageID)
		So(status, ShouldEqual, chat.MessageStatusQueued)
	})
}

func TestMemoryRepo(t *testing.T) {
	Convey("内存对话仓库", t, func() {
		repoContract(NewMemoryRepo())
	})
}

func TestMongoRepo(t *testing.T) {
	if testDB == nil {
		t.Skip("MONGO_URI not set")
	}
	Convey("Mongo 对话仓库", t, func() {
		var c chat.Conversation
		So(c.EnsureIndexes(context.Background(), testDB), ShouldBeNil)
		repoContract(NewRepo(testDB))
	})
}

func TestCachedRepo(t *testing.T) {
	Convey("带缓存的对话仓库", t, func() {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer client.Close()

		repo := NewCachedRepo(NewMemoryRepo(), cache.NewRedisCache(client), time.Minute)
		repoContract(repo)

		Convey("读取后写入缓存，写操作后失效", func() {
			ctx := context.Background()
			conv := chat.NewConversation()
			msg := chat.NewUserMessage("q", "m", "M")
			conv.AddMessage(msg)
			So(repo.Save(ctx, conv), ShouldBeNil)

			key := cache.ConversationCacheKey(conv.ID)
			So(mr.Exists(key), ShouldBeFalse)

			_, err := repo.Get(ctx, conv.ID)
			So(err, ShouldBeNil)
			So(mr.Exists(key), ShouldBeTrue)

			ok, err := repo.ClaimMessage(ctx, conv.ID, msg.MessageID)
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			So(mr.Exists(key), ShouldBeFalse)

			loaded, err := repo.Get(ctx, conv.ID)
			So(err, ShouldBeNil)
			So(loaded.Messages[0].Status, ShouldEqual, chat.MessageStatusProcessing)
		})

		Convey("读库期间发生写入时不回填旧数据", func() {
			ctx := context.Background()
			inner := &interleavedRepo{ConversationRepository: NewMemoryRepo()}
			repo := NewCachedRepo(inner, cache.NewRedisCache(client), 30*time.Second)

			conv := chat.NewConversation()
			msg := chat.NewUserMessage("q", "m", "M")
			conv.AddMessage(msg)
			So(repo.Save(ctx, conv), ShouldBeNil)
			ok, _ := repo.ClaimMessage(ctx, conv.ID, msg.MessageID)
			So(ok, ShouldBeTrue)

			// 轮询读到 processing 之后、回填缓存之前，worker 完成了消息
			inner.afterGet = func() {
				reply := chat.NewAssistantMessage("answer", "m", "M", chat.TokenUsage{}, nil)
				completed, err := repo.CompleteMessage(ctx, conv.ID, msg.MessageID, reply)
				So(err, ShouldBeNil)
				So(completed, ShouldBeTrue)
			}

			polled, err := repo.Get(ctx, conv.ID)
			So(err, ShouldBeNil)
			So(polled.Messages[0].Status, ShouldEqual, chat.MessageStatusProcessing)
			So(mr.Exists(cache.ConversationCacheKey(conv.ID)), ShouldBeFalse)

			polled, err = repo.Get(ctx, conv.ID)
			So(err, ShouldBeNil)
			So(polled.Messages[0].Status, ShouldEqual, chat.MessageStatusCompleted)
			So(polled.Messages, ShouldHaveLength, 2)
		})
	})
}

// interleavedRepo 在一次读库返回后执行 afterGet，模拟并发写入
type interleavedRepo struct {
	ConversationRepository
	afterGet func()
}

func (r *interleavedRepo) Get(ctx context.Context, conversationID string) (*chat.Conversation, error) {
	conv, err := r.ConversationRepository.Get(ctx, conversationID)
	if hook := r.afterGet; hook != nil {
		r.afterGet = nil
		hook()
	}
	return conv, err
}
