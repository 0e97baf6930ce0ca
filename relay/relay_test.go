package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatline/pkg/session"
	"github.com/papercomputeco/chatline/pkg/storage"
	testutils "github.com/papercomputeco/chatline/pkg/utils/test"
	"github.com/papercomputeco/chatline/relay/header"
)

const streamBody = "{\"type\":\"thought\",\"content\":\"thinking...\"}\n" +
	"{\"type\":\"token\",\"content\":\"Hel\"}\n" +
	"not json\n" +
	"{\"type\":\"token\",\"content\":\"lo\"}\n" +
	"{\"type\":\"complete\"}\n"

var _ = Describe("Relay", func() {
	var (
		upstream  *httptest.Server
		handler   http.HandlerFunc
		driver    *testutils.MockDriver
		publisher *testutils.MockPublisher
		limits    session.Limits
		r         *Relay
	)

	// do sends req through the relay and returns the status and body.
	do := func(req *http.Request) (int, string, http.Header) {
		resp, err := r.server.Test(req, -1)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		return resp.StatusCode, string(body), resp.Header
	}

	post := func(path, body string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		return req
	}

	// stored drains the worker pool and returns every stored exchange.
	stored := func() []*storage.Exchange {
		r.workerPool.Close()
		list, err := driver.List(context.Background(), storage.ListOptions{})
		Expect(err).NotTo(HaveOccurred())
		return list
	}

	BeforeEach(func() {
		handler = func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/x-ndjson")
			fmt.Fprint(w, streamBody)
		}
		upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			handler(w, req)
		}))
		driver = testutils.NewMockDriver()
		publisher = testutils.NewMockPublisher()
		limits = session.DefaultLimits()
	})

	JustBeforeEach(func() {
		var err error
		r, err = New(Config{
			ListenAddr:  ":0",
			UpstreamURL: upstream.URL + "/",
			Limits:      limits,
			Publisher:   publisher,
		}, driver, nil)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(r.Close()).To(Succeed())
		upstream.Close()
	})

	It("requires an upstream URL", func() {
		_, err := New(Config{}, driver, nil)
		Expect(err).To(MatchError("upstream URL is required"))
	})

	It("answers ping", func() {
		status, body, _ := do(httptest.NewRequest(http.MethodGet, "/ping", nil))
		Expect(status).To(Equal(http.StatusOK))
		Expect(body).To(Equal(`"pong"`))
	})

	Describe("POST /api/orchestrator", func() {
		It("forwards the request body and headers", func() {
			var gotBody, gotAuth, gotSession string
			handler = func(w http.ResponseWriter, req *http.Request) {
				b, _ := io.ReadAll(req.Body)
				gotBody = string(b)
				gotAuth = req.Header.Get("Authorization")
				gotSession = req.Header.Get(header.SessionHeader)
				fmt.Fprint(w, streamBody)
			}

			req := post("/api/orchestrator", `{"message":"hi there"}`)
			req.Header.Set("Authorization", "Bearer abc")
			req.Header.Set(header.SessionHeader, "sess-1")
			status, _, _ := do(req)

			Expect(status).To(Equal(http.StatusOK))
			Expect(gotBody).To(Equal(`{"message":"hi there"}`))
			Expect(gotAuth).To(Equal("Bearer abc"))
			Expect(gotSession).To(BeEmpty())
		})

		It("streams the answer back verbatim", func() {
			status, body, headers := do(post("/api/orchestrator", `{"message":"hi"}`))
			Expect(status).To(Equal(http.StatusOK))
			Expect(body).To(Equal(streamBody))
			Expect(headers.Get("Content-Type")).To(Equal("application/x-ndjson"))
		})

		It("relays a stream with an oversized line in full", func() {
			body := "{\"type\":\"token\",\"content\":\"A\"}\n" +
				"{\"type\":\"token\",\"content\":\"" + strings.Repeat("x", 1100*1024) + "\"}\n" +
				"{\"type\":\"token\",\"content\":\"B\"}\n" +
				"{\"type\":\"complete\"}\n"
			handler = func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/x-ndjson")
				fmt.Fprint(w, body)
			}

			status, got, _ := do(post("/api/orchestrator", `{"message":"hi"}`))
			Expect(status).To(Equal(http.StatusOK))
			Expect(got).To(HaveLen(len(body)))
			Expect(got).To(Equal(body))

			exchanges := stored()
			Expect(exchanges).To(HaveLen(1))
			Expect(exchanges[0].Answer).To(Equal("AB"))
			Expect(exchanges[0].Completed).To(BeTrue())
		})

		It("records the exchange rebuilt from the stream", func() {
			req := post("/api/orchestrator", `{"message":"  hi  "}`)
			req.Header.Set(header.SessionHeader, "sess-1")
			do(req)

			exchanges := stored()
			Expect(exchanges).To(HaveLen(1))

			ex := exchanges[0]
			Expect(ex.SessionID).To(Equal("sess-1"))
			Expect(ex.Message).To(Equal("hi"))
			Expect(ex.Thought).To(Equal("thinking..."))
			Expect(ex.Answer).To(Equal("Hello"))
			Expect(ex.Completed).To(BeTrue())
			Expect(ex.Streaming).To(BeTrue())
			Expect(ex.HTTPStatus).To(Equal(http.StatusOK))
			Expect(ex.Endpoint).To(Equal(upstream.URL + "/api/orchestrator"))

			Expect(publisher.Events()).To(HaveLen(1))
			Expect(publisher.Events()[0].Source.Component).To(Equal(Component))
		})

		It("relays an upstream error status as-is", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/plain")
				w.WriteHeader(http.StatusInternalServerError)
				fmt.Fprint(w, "boom")
			}

			status, body, _ := do(post("/api/orchestrator", `{"message":"hi"}`))
			Expect(status).To(Equal(http.StatusInternalServerError))
			Expect(body).To(Equal("boom"))

			exchanges := stored()
			Expect(exchanges).To(HaveLen(1))
			Expect(exchanges[0].HTTPStatus).To(Equal(http.StatusInternalServerError))
			Expect(exchanges[0].Answer).To(BeEmpty())
		})

		It("answers 502 when the orchestrator is unreachable", func() {
			upstream.Close()

			status, body, _ := do(post("/api/orchestrator", `{"message":"hi"}`))
			Expect(status).To(Equal(http.StatusBadGateway))
			Expect(body).To(MatchJSON(`{"detail":"upstream request failed"}`))
			Expect(stored()[0].HTTPStatus).To(Equal(0))
		})

		It("rejects a malformed body", func() {
			status, body, _ := do(post("/api/orchestrator", `not json`))
			Expect(status).To(Equal(http.StatusBadRequest))
			Expect(body).To(MatchJSON(`{"detail":"invalid request body"}`))
		})

		It("rejects an empty message", func() {
			status, _, _ := do(post("/api/orchestrator", `{"message":"   "}`))
			Expect(status).To(Equal(http.StatusBadRequest))
			Expect(stored()).To(BeEmpty())
		})

		Context("with small limits", func() {
			BeforeEach(func() {
				limits = session.Limits{MaxQuestions: 1, MaxContentLength: 10}
			})

			It("rejects messages over the length limit", func() {
				status, body, _ := do(post("/api/orchestrator", `{"message":"this is far too long"}`))
				Expect(status).To(Equal(http.StatusRequestEntityTooLarge))
				Expect(body).To(MatchJSON(`{"detail":"Message is too long (max 10 characters). Please ask a shorter question."}`))
			})

			It("counts questions per session", func() {
				first := post("/api/orchestrator", `{"message":"one"}`)
				first.Header.Set(header.SessionHeader, "a")
				status, _, _ := do(first)
				Expect(status).To(Equal(http.StatusOK))

				second := post("/api/orchestrator", `{"message":"two"}`)
				second.Header.Set(header.SessionHeader, "a")
				status, body, _ := do(second)
				Expect(status).To(Equal(http.StatusTooManyRequests))
				Expect(body).To(ContainSubstring("daily limit of 1 questions"))

				other := post("/api/orchestrator", `{"message":"three"}`)
				other.Header.Set(header.SessionHeader, "b")
				status, _, _ = do(other)
				Expect(status).To(Equal(http.StatusOK))
			})

			It("keys a streamed request by its body session_id first", func() {
				first := post("/api/orchestrator", `{"message":"one","session_id":"body-sess"}`)
				first.Header.Set(header.SessionHeader, "a")
				status, _, _ := do(first)
				Expect(status).To(Equal(http.StatusOK))

				// Same header, different body session: not limited.
				second := post("/api/orchestrator", `{"message":"two","session_id":"other"}`)
				second.Header.Set(header.SessionHeader, "a")
				status, _, _ = do(second)
				Expect(status).To(Equal(http.StatusOK))

				third := post("/api/orchestrator", `{"message":"three","session_id":"body-sess"}`)
				status, _, _ = do(third)
				Expect(status).To(Equal(http.StatusTooManyRequests))

				sessions := []string{}
				for _, ex := range stored() {
					sessions = append(sessions, ex.SessionID)
				}
				Expect(sessions).To(ConsistOf("body-sess", "other"))
			})

			It("starts counting afresh on a new day", func() {
				today := time.Date(2026, 10, 19, 23, 59, 0, 0, time.Local)
				r.now = func() time.Time { return today }

				status, _, _ := do(post("/api/orchestrator", `{"message":"one","session_id":"a"}`))
				Expect(status).To(Equal(http.StatusOK))
				status, _, _ = do(post("/api/orchestrator", `{"message":"x","session_id":"b"}`))
				Expect(status).To(Equal(http.StatusOK))
				status, _, _ = do(post("/api/orchestrator", `{"message":"two","session_id":"a"}`))
				Expect(status).To(Equal(http.StatusTooManyRequests))
				Expect(r.guards.Len()).To(Equal(2))

				today = today.Add(2 * time.Minute)
				status, _, _ = do(post("/api/orchestrator", `{"message":"three","session_id":"a"}`))
				Expect(status).To(Equal(http.StatusOK))
				Expect(r.guards.Len()).To(Equal(1))
			})
		})
	})

	Describe("POST /chat", func() {
		BeforeEach(func() {
			handler = func(w http.ResponseWriter, req *http.Request) {
				var body map[string]string
				Expect(json.NewDecoder(req.Body).Decode(&body)).To(Succeed())
				w.Header().Set("Content-Type", "application/json")
				fmt.Fprintf(w, `{"response":"You said %s"}`, body["message"])
			}
		})

		It("relays the JSON answer and records it", func() {
			status, body, _ := do(post("/chat", `{"message":"hi","session_id":"w-1"}`))
			Expect(status).To(Equal(http.StatusOK))
			Expect(body).To(MatchJSON(`{"response":"You said hi"}`))

			exchanges := stored()
			Expect(exchanges).To(HaveLen(1))
			Expect(exchanges[0].SessionID).To(Equal("w-1"))
			Expect(exchanges[0].Answer).To(Equal("You said hi"))
			Expect(exchanges[0].Streaming).To(BeFalse())
			Expect(exchanges[0].Completed).To(BeTrue())
		})

		It("answers 503 when the orchestrator does not return JSON", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				w.WriteHeader(http.StatusBadGateway)
				fmt.Fprint(w, "<html>bad gateway</html>")
			}

			status, body, _ := do(post("/chat", `{"message":"hi"}`))
			Expect(status).To(Equal(http.StatusServiceUnavailable))
			Expect(body).To(MatchJSON(`{"detail":"Service unavailable - please try again later"}`))
			Expect(stored()[0].Errors).To(Equal([]string{"Service unavailable - please try again later"}))
		})

		It("relays an error detail from the orchestrator", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnprocessableEntity)
				fmt.Fprint(w, `{"detail":"bad input"}`)
			}

			status, body, _ := do(post("/chat", `{"message":"hi"}`))
			Expect(status).To(Equal(http.StatusUnprocessableEntity))
			Expect(body).To(MatchJSON(`{"detail":"bad input"}`))
			Expect(stored()[0].Errors).To(Equal([]string{"bad input"}))
		})

		It("records a generic error when the orchestrator gives no detail", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				fmt.Fprint(w, `{}`)
			}

			status, _, _ := do(post("/chat", `{"message":"hi"}`))
			Expect(status).To(Equal(http.StatusInternalServerError))
			Expect(stored()[0].Errors).To(Equal([]string{"Request failed"}))
		})

		Context("with a question limit", func() {
			BeforeEach(func() {
				limits = session.Limits{MaxQuestions: 1}
			})

			It("limits each widget session", func() {
				status, _, _ := do(post("/chat", `{"message":"one","session_id":"w-1"}`))
				Expect(status).To(Equal(http.StatusOK))

				status, body, _ := do(post("/chat", `{"message":"two","session_id":"w-1"}`))
				Expect(status).To(Equal(http.StatusTooManyRequests))
				Expect(body).To(MatchJSON(`{"detail":"You've reached the daily limit of 1 questions. Please try again tomorrow."}`))
			})
		})
	})

	Describe("transcripts", func() {
		JustBeforeEach(func() {
			for i := 1; i <= 3; i++ {
				_, err := driver.Put(context.Background(), testutils.NewTestExchange("s1", i))
				Expect(err).NotTo(HaveOccurred())
			}
			ex := testutils.NewTestExchange("s2", 4)
			ex.Answer = "**bold** <script>alert(1)</script>"
			_, err := driver.Put(context.Background(), ex)
			Expect(err).NotTo(HaveOccurred())
		})

		It("lists exchanges newest first", func() {
			status, body, _ := do(httptest.NewRequest(http.MethodGet, "/transcripts", nil))
			Expect(status).To(Equal(http.StatusOK))

			var resp struct {
				Count     int                 `json:"count"`
				Exchanges []*storage.Exchange `json:"exchanges"`
			}
			Expect(json.Unmarshal([]byte(body), &resp)).To(Succeed())
			Expect(resp.Count).To(Equal(4))
			Expect(resp.Exchanges[0].ID).To(Equal("ex-004"))
		})

		It("filters by session and limits the result", func() {
			_, body, _ := do(httptest.NewRequest(http.MethodGet, "/transcripts?session=s1&limit=2", nil))

			var resp struct {
				Exchanges []*storage.Exchange `json:"exchanges"`
			}
			Expect(json.Unmarshal([]byte(body), &resp)).To(Succeed())
			Expect(resp.Exchanges).To(HaveLen(2))
			Expect(resp.Exchanges[0].ID).To(Equal("ex-003"))
			Expect(resp.Exchanges[1].ID).To(Equal("ex-002"))
		})

		It("rejects an out of range limit", func() {
			status, _, _ := do(httptest.NewRequest(http.MethodGet, "/transcripts?limit=0", nil))
			Expect(status).To(Equal(http.StatusBadRequest))
		})

		It("returns an empty list from an empty store", func() {
			_, body, _ := do(httptest.NewRequest(http.MethodGet, "/transcripts?session=nobody", nil))
			Expect(body).To(MatchJSON(`{"count":0,"exchanges":[]}`))
		})

		It("returns one exchange with sanitized HTML", func() {
			status, body, _ := do(httptest.NewRequest(http.MethodGet, "/transcripts/ex-004", nil))
			Expect(status).To(Equal(http.StatusOK))

			var resp map[string]any
			Expect(json.Unmarshal([]byte(body), &resp)).To(Succeed())
			Expect(resp["id"]).To(Equal("ex-004"))
			Expect(resp["answer_html"]).To(ContainSubstring("<strong>bold</strong>"))
			Expect(resp["answer_html"]).NotTo(ContainSubstring("<script>"))
		})

		It("answers 404 for an unknown exchange", func() {
			status, body, _ := do(httptest.NewRequest(http.MethodGet, "/transcripts/missing", nil))
			Expect(status).To(Equal(http.StatusNotFound))
			Expect(body).To(MatchJSON(`{"detail":"transcript not found"}`))
		})
	})
})
