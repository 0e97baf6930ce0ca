package orchestrator_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatline/pkg/orchestrator"
	"github.com/papercomputeco/chatline/pkg/stream"
)

var _ = Describe("Client", func() {
	var (
		server  *httptest.Server
		handler http.HandlerFunc
		client  *orchestrator.Client
	)

	BeforeEach(func() {
		handler = nil
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handler(w, r)
		}))
		client = orchestrator.NewClient(orchestrator.ClientConfig{
			StreamURL: server.URL + "/api/orchestrator",
			ChatURL:   server.URL + "/chat",
		})
	})

	AfterEach(func() {
		server.Close()
	})

	Describe("Stream", func() {
		It("posts the message as JSON", func() {
			var got map[string]string
			handler = func(w http.ResponseWriter, r *http.Request) {
				Expect(r.Method).To(Equal(http.MethodPost))
				Expect(r.URL.Path).To(Equal("/api/orchestrator"))
				Expect(r.Header.Get("Content-Type")).To(Equal("application/json"))
				Expect(json.NewDecoder(r.Body).Decode(&got)).To(Succeed())
			}

			r, err := client.Stream(context.Background(), "hello there")
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Close()).To(Succeed())
			Expect(got).To(Equal(map[string]string{"message": "hello there"}))
		})

		It("returns a reader over the streamed events", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/x-ndjson")
				flusher := w.(http.Flusher)
				_, _ = io.WriteString(w, `{"type":"thought","content":"thinking..."}`+"\n"+`{"ty`)
				flusher.Flush()
				_, _ = io.WriteString(w, `pe":"token","content":"Hel"}`+"\n"+`{"type":"token","content":"lo"}`+"\n")
			}

			p := stream.NewPresenter(nil, nil)
			Expect(client.Send(context.Background(), "hi", p)).To(Succeed())
			Expect(p.Answer()).To(Equal("Hello"))
			Expect(p.Thought()).To(Equal("thinking..."))
		})

		It("reports a non-2xx status once as a TransportError without a reader", func() {
			calls := 0
			handler = func(w http.ResponseWriter, _ *http.Request) {
				calls++
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = io.WriteString(w, "<html>Internal Server Error</html>")
			}

			r, err := client.Stream(context.Background(), "hi")
			Expect(r).To(BeNil())

			var transportErr *stream.TransportError
			Expect(errors.As(err, &transportErr)).To(BeTrue())
			Expect(transportErr.StatusCode).To(Equal(http.StatusInternalServerError))
			Expect(transportErr.Status).To(Equal("500 Internal Server Error"))
			Expect(err.Error()).To(Equal("request failed: 500 Internal Server Error"))
			Expect(calls).To(Equal(1))
		})

		It("never hands an error body to the handler", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
				_, _ = io.WriteString(w, `{"type":"token","content":"should not show"}`+"\n")
			}

			n := 0
			err := client.Send(context.Background(), "hi", stream.HandlerFunc(func(stream.Event) { n++ }))
			Expect(err).To(HaveOccurred())
			Expect(n).To(BeZero())
		})

		It("returns a TransportError when the server is unreachable", func() {
			server.Close()

			_, err := client.Stream(context.Background(), "hi")
			var transportErr *stream.TransportError
			Expect(errors.As(err, &transportErr)).To(BeTrue())
			Expect(transportErr.StatusCode).To(BeZero())
			Expect(transportErr.Err).To(HaveOccurred())
		})

		It("stops reading when the context is cancelled mid-stream", func() {
			release := make(chan struct{})
			handler = func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, `{"type":"token","content":"first"}`+"\n")
				w.(http.Flusher).Flush()
				select {
				case <-release:
				case <-r.Context().Done():
				}
			}
			defer close(release)

			ctx, cancel := context.WithCancel(context.Background())
			received := make(chan string, 1)
			done := make(chan error, 1)
			go func() {
				done <- client.Send(ctx, "hi", stream.HandlerFunc(func(ev stream.Event) {
					received <- ev.Content
				}))
			}()

			Eventually(received).Should(Receive(Equal("first")))
			cancel()
			Eventually(done, 5*time.Second).Should(Receive(MatchError(context.Canceled)))
		})
	})

	Describe("Ask", func() {
		It("posts the message with the session id and returns the response", func() {
			var got orchestrator.ChatRequest
			handler = func(w http.ResponseWriter, r *http.Request) {
				Expect(r.URL.Path).To(Equal("/chat"))
				Expect(json.NewDecoder(r.Body).Decode(&got)).To(Succeed())
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, `{"response":"**Hi** there"}`)
			}

			answer, err := client.Ask(context.Background(), "hello", "s-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(answer).To(Equal("**Hi** there"))
			Expect(got).To(Equal(orchestrator.ChatRequest{Message: "hello", SessionID: "s-1"}))
		})

		It("defaults the session id", func() {
			var got orchestrator.ChatRequest
			handler = func(w http.ResponseWriter, r *http.Request) {
				Expect(json.NewDecoder(r.Body).Decode(&got)).To(Succeed())
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				_, _ = io.WriteString(w, `{"response":"ok"}`)
			}

			_, err := client.Ask(context.Background(), "hello", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.SessionID).To(Equal(orchestrator.DefaultSessionID))
		})

		It("reports a non-JSON answer as service unavailable", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				w.WriteHeader(http.StatusBadGateway)
				_, _ = io.WriteString(w, "<html>Bad Gateway</html>")
			}

			_, err := client.Ask(context.Background(), "hello", "")
			Expect(err).To(MatchError(orchestrator.ErrServiceUnavailable))
			Expect(err.Error()).To(Equal("Service unavailable - please try again later"))
		})

		It("uses the detail field of an error answer", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = io.WriteString(w, `{"detail":"Slow down"}`)
			}

			_, err := client.Ask(context.Background(), "hello", "")
			var chatErr *orchestrator.ChatError
			Expect(errors.As(err, &chatErr)).To(BeTrue())
			Expect(chatErr.StatusCode).To(Equal(http.StatusTooManyRequests))
			Expect(chatErr.Error()).To(Equal("Slow down"))
		})

		It("falls back to a generic message when the error has no detail", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = io.WriteString(w, `{}`)
			}

			_, err := client.Ask(context.Background(), "hello", "")
			Expect(err).To(MatchError("Request failed"))
		})
	})

	Describe("IsJSON", func() {
		It("matches JSON media types with parameters", func() {
			Expect(orchestrator.IsJSON("application/json")).To(BeTrue())
			Expect(orchestrator.IsJSON("application/json; charset=utf-8")).To(BeTrue())
			Expect(orchestrator.IsJSON("text/html")).To(BeFalse())
			Expect(orchestrator.IsJSON("")).To(BeFalse())
		})
	})
})
