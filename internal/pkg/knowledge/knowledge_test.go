package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"ragchat/internal/config"
)

func TestSimilarityThresholdDefault(t *testing.T) {
	Convey("相似度阈值", t, func() {
		Convey("未配置时默认 0.5", func() {
			client := NewDataServiceClient(&config.KnowledgeConfig{DataServiceURL: "http://data-service"})
			So(client.threshold, ShouldEqual, DefaultSimilarityThreshold)

			es, err := NewElasticSearcher(&config.KnowledgeConfig{Elastic: config.ElasticConfig{Index: "kb"}})
			So(err, ShouldBeNil)
			So(es.threshold, ShouldEqual, 0.5)
		})

		Convey("显式配置优先，负数关闭过滤", func() {
			So(NewDataServiceClient(&config.KnowledgeConfig{SimilarityThreshold: 0.7}).threshold, ShouldEqual, 0.7)
			So(NewDataServiceClient(&config.KnowledgeConfig{SimilarityThreshold: -1}).threshold, ShouldEqual, 0)
		})

		Convey("默认阈值会过滤低分文档", func() {
			docs := []Document{{Score: 0.9, HasScore: true}, {Score: 0.3, HasScore: true}}
			So(filterBySimilarity(docs, similarityThreshold(0)), ShouldHaveLength, 1)
		})
	})
}

func TestDataServiceClient(t *testing.T) {
	Convey("数据服务检索", t, func() {
		ctx := context.Background()
		var calls int32
		var lastBody queryRequest
		status := http.StatusOK
		response := `[
			{"content":"doc one","snapshotId":"s1","sourceId":"src1","metadata":{"title":"Guide","url":"https://example.com/guide"},"similarityScore":0.9},
			{"content":"doc two","snapshotId":"s2","sourceId":"src2","metadata":{},"similarityScore":0.2},
			{"content":"doc three","snapshotId":"s3","sourceId":"src3"}
		]`

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			if r.URL.Path != "/snapshots/query" || r.Method != http.MethodPost {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_ = json.NewDecoder(r.Body).Decode(&lastBody)
			w.WriteHeader(status)
			if status == http.StatusOK {
				_, _ = w.Write([]byte(response))
			} else {
				_, _ = w.Write([]byte(`{"message":"boom"}`))
			}
		}))
		defer srv.Close()

		cfg := &config.KnowledgeConfig{
			DataServiceURL:      srv.URL,
			GroupID:             "default-group",
			SimilarityThreshold: 0.5,
			MaxRetries:          3,
			Timeout:             time.Second,
		}
		client := NewDataServiceClient(cfg)
		client.retryDelay = time.Millisecond

		Convey("发送 groupId/query/maxResults 并按阈值过滤", func() {
			docs, err := client.Search(ctx, "what is ai", "", 0)
			So(err, ShouldBeNil)
			So(lastBody, ShouldResemble, queryRequest{GroupID: "default-group", Query: "what is ai", MaxResults: 5})
			So(docs, ShouldHaveLength, 2)
			So(docs[0].SnapshotID, ShouldEqual, "s1")
			So(docs[0].Name(), ShouldEqual, "Guide")
			So(docs[0].Location(), ShouldEqual, "https://example.com/guide")
			So(docs[1].HasScore, ShouldBeFalse)
			So(docs[1].Name(), ShouldEqual, "src3")
		})

		Convey("scope 覆盖默认 group", func() {
			_, err := client.Search(ctx, "q", "other-group", 3)
			So(err, ShouldBeNil)
			So(lastBody.GroupID, ShouldEqual, "other-group")
			So(lastBody.MaxResults, ShouldEqual, 3)
		})

		Convey("5xx 会重试并最终返回 UnavailableError", func() {
			status = http.StatusServiceUnavailable
			_, err := client.Search(ctx, "q", "", 0)
			var unavailable *UnavailableError
			So(errors.As(err, &unavailable), ShouldBeTrue)
			So(unavailable.StatusCode, ShouldEqual, http.StatusServiceUnavailable)
			So(atomic.LoadInt32(&calls), ShouldEqual, 3)
		})

		Convey("4xx 不重试", func() {
			status = http.StatusBadRequest
			_, err := client.Search(ctx, "q", "", 0)
			So(err, ShouldNotBeNil)
			So(atomic.LoadInt32(&calls), ShouldEqual, 1)
		})
	})
}

func TestElasticSearcher(t *testing.T) {
	Convey("Elasticsearch 检索", t, func() {
		ctx := context.Background()
		var gotQuery map[string]any
		var gotSize int
		respBody := `{"hits":{"max_score":4.0,"hits":[
			{"_id":"a","_score":4.0,"_source":{"content":"alpha","source_id":"src-a","metadata":{"title":"A"}}},
			{"_id":"b","_score":3.0,"_source":{"content":"beta"}},
			{"_id":"c","_score":1.0,"_source":{"content":"gamma"}}
		]}}`
		isError := false

		s := newElasticSearcher("kb", 0.5, func(_ context.Context, index string, body io.Reader, size int) (bool, io.ReadCloser, error) {
			So(index, ShouldEqual, "kb")
			gotSize = size
			_ = json.NewDecoder(body).Decode(&gotQuery)
			return isError, io.NopCloser(bytes.NewReader([]byte(respBody))), nil
		})

		Convey("归一化分数并过滤", func() {
			docs, err := s.Search(ctx, "alpha", "group-1", 0)
			So(err, ShouldBeNil)
			So(gotSize, ShouldEqual, DefaultMaxResults)
			So(docs, ShouldHaveLength, 2)
			So(docs[0].Score, ShouldEqual, 1.0)
			So(docs[0].Name(), ShouldEqual, "A")
			So(docs[1].SourceID, ShouldEqual, "b")

			raw, _ := json.Marshal(gotQuery)
			So(string(raw), ShouldContainSubstring, `"group_id":"group-1"`)
			So(string(raw), ShouldContainSubstring, `"content":"alpha"`)
		})

		Convey("错误响应返回 UnavailableError", func() {
			isError = true
			_, err := s.Search(ctx, "alpha", "", 0)
			var unavailable *UnavailableError
			So(errors.As(err, &unavailable), ShouldBeTrue)
		})
	})
}

func TestDocumentSnippet(t *testing.T) {
	Convey("摘要截断", t, func() {
		So(Document{Content: "  short  "}.Snippet(), ShouldEqual, "short")
		long := Document{Content: strings.Repeat("字", 250)}
		So([]rune(long.Snippet()), ShouldHaveLength, snippetLength+3)
	})
}
